package cmd

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"github.com/fzft/go-reverse-echo/deps/linenoise"
	"github.com/fzft/go-reverse-echo/node"
	"github.com/mattn/go-isatty"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ReverseCliHisFileEnv     = "REVERSECLI_HISTFILE"
	ReverseCliHisFileDefault = ".reversecli_history"
	ReverseCliDefaultTimeout = 5 * time.Second
)

var errNotConnected = errors.New("not connected")

type CliConfig struct {
	Host    string
	Port    int
	Timeout time.Duration
}

func DefaultCliConfig() *CliConfig {
	return &CliConfig{
		Host:    "127.0.0.1",
		Port:    4242,
		Timeout: ReverseCliDefaultTimeout,
	}
}

// ReverseCli talks to the reverse server one line at a time. A line is only sent after
// the reply to the previous one arrived, otherwise the server would merge them.
type ReverseCli struct {
	config *CliConfig
	conn   net.Conn
	prompt string
	out    io.Writer
}

func NewReverseCli(config *CliConfig) *ReverseCli {
	if config == nil {
		config = DefaultCliConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = ReverseCliDefaultTimeout
	}
	return &ReverseCli{
		config: config,
		out:    os.Stdout,
	}
}

// Run starts an interactive session when stdin is a terminal, otherwise every stdin line
// is sent and its reply printed.
func (cli *ReverseCli) Run() error {
	defer cli.Close()

	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return cli.repl()
	}

	if err := cli.connect(false); err != nil {
		return err
	}
	return cli.pipe(os.Stdin)
}

func (cli *ReverseCli) Close() error {
	if cli.conn == nil {
		return nil
	}
	err := cli.conn.Close()
	cli.conn = nil
	return err
}

func (cli *ReverseCli) addr() string {
	return net.JoinHostPort(cli.config.Host, strconv.Itoa(cli.config.Port))
}

// connect dials the server. force reconnects even if a connection is already open.
func (cli *ReverseCli) connect(force bool) error {
	if cli.conn != nil && !force {
		return nil
	}
	cli.Close()

	conn, err := net.DialTimeout("tcp", cli.addr(), cli.config.Timeout)
	if err != nil {
		return fmt.Errorf("could not connect to %s: %w", cli.addr(), err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.SetKeepAlive(true); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to set SO_KEEPALIVE: %s\n", err.Error())
		}
	}
	cli.conn = conn
	return nil
}

// roundTrip sends one line and waits for its reply.
func (cli *ReverseCli) roundTrip(line string) (string, error) {
	if cli.conn == nil {
		return "", errNotConnected
	}

	if err := cli.conn.SetDeadline(time.Now().Add(cli.config.Timeout)); err != nil {
		return "", err
	}
	if _, err := io.WriteString(cli.conn, line+"\n"); err != nil {
		return "", err
	}
	return readReply(cli.conn)
}

// readReply reads until a complete reply: a line ending in "\r\n" or the bad input marker,
// which carries no terminator.
func readReply(r io.Reader) (string, error) {
	var reply []byte
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		reply = append(reply, chunk[:n]...)
		if bytes.HasSuffix(reply, []byte(node.LineTerminator)) || string(reply) == node.BadInputReply {
			return string(reply), nil
		}
		if err != nil {
			if err == io.EOF && len(reply) == 0 {
				return "", fmt.Errorf("server closed the connection: %w", err)
			}
			return string(reply), err
		}
	}
}

func (cli *ReverseCli) printReply(reply string) {
	fmt.Fprintln(cli.out, strings.TrimSuffix(reply, node.LineTerminator))
}

// pipe sends every line read from r, stopping at the first error.
func (cli *ReverseCli) pipe(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		reply, err := cli.roundTrip(scanner.Text())
		if err != nil {
			return err
		}
		cli.printReply(reply)
	}
	return scanner.Err()
}

func (cli *ReverseCli) repl() error {
	line := linenoise.New()
	defer line.Close()

	historyFile := getDotfilePath(ReverseCliHisFileEnv, ReverseCliHisFileDefault)
	if historyFile != "" {
		line.HistoryLoad(historyFile)
	}

	if err := cli.connect(false); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err.Error())
	}

	cli.refreshPrompt()
	for {
		prompt := cli.prompt
		if cli.conn == nil {
			prompt = "not connected> "
		}
		input, err := line.Prompt(prompt)
		if err != nil {
			// ctrl-c or ctrl-d
			break
		}

		argv := strings.Fields(input)
		if len(argv) == 0 {
			continue
		}
		line.AppendHistory(input)
		if historyFile != "" {
			line.HistorySave(historyFile)
		}

		switch {
		case len(argv) == 1 && (strings.EqualFold(argv[0], "quit") || strings.EqualFold(argv[0], "exit")):
			return nil
		case len(argv) == 1 && strings.EqualFold(argv[0], "clear"):
			line.ClearScreen()
		case len(argv) == 3 && strings.EqualFold(argv[0], "connect"):
			port, err := strconv.Atoi(argv[2])
			if err != nil {
				fmt.Fprintf(cli.out, "Invalid port number\n")
				continue
			}
			cli.config.Host = argv[1]
			cli.config.Port = port
			cli.refreshPrompt()
			if err := cli.connect(true); err != nil {
				fmt.Fprintf(os.Stderr, "%s\n", err.Error())
			}
		default:
			if err := cli.connect(false); err != nil {
				fmt.Fprintf(os.Stderr, "%s\n", err.Error())
				continue
			}
			startTime := time.Now()
			reply, err := cli.roundTrip(input)
			if err != nil {
				fmt.Fprintf(os.Stderr, "I/O error: %s\n", err.Error())
				cli.Close()
				continue
			}
			cli.printReply(reply)
			fmt.Fprintf(cli.out, "(%.2fs)\n", time.Since(startTime).Seconds())
		}
	}
	return nil
}

func (cli *ReverseCli) refreshPrompt() {
	cli.prompt = fmt.Sprintf("reverse://%s> ", cli.addr())
}

func getDotfilePath(envOverride, dotFilename string) string {
	var dotPath string

	path := os.Getenv(envOverride)
	if path != "" {
		if path == "/dev/null" {
			return ""
		}
		dotPath = path
	} else {
		home := os.Getenv("HOME")
		if home != "" {
			dotPath = fmt.Sprintf("%s/%s", home, dotFilename)
		}
	}
	return dotPath
}

package main

import (
	"github.com/fzft/go-reverse-echo/cmd"
	"github.com/fzft/go-reverse-echo/log"
	"github.com/fzft/go-reverse-echo/node"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"os"
	"time"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Logger.Error("exit", zap.Error(err))
		log.Logger.Sync()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := node.DefaultConfig()
	var logLevel string

	command := &cobra.Command{
		Use:          "reverse-echo",
		Short:        "single-threaded TCP server replying with each client's input reversed",
		Version:      Version(),
		SilenceUsage: true,
		RunE: func(c *cobra.Command, args []string) error {
			if err := log.InitLogger(logLevel); err != nil {
				return err
			}
			defer log.Logger.Sync()
			return node.NewServer(cfg).Run()
		},
	}

	command.Flags().StringVarP(&cfg.Addr, "addr", "a", cfg.Addr, "TCP address to listen on.")
	command.Flags().IntVar(&cfg.MaxEvents, "max-events", cfg.MaxEvents, "Maximum number of readiness events handled per poll.")
	command.Flags().IntVar(&cfg.ReadChunkSize, "read-chunk", cfg.ReadChunkSize, "Connection buffer growth increment in bytes.")
	command.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "Log level: debug, info, warn, error.")

	command.AddCommand(newCliCommand(&logLevel))
	return command
}

func newCliCommand(logLevel *string) *cobra.Command {
	cfg := cmd.DefaultCliConfig()

	command := &cobra.Command{
		Use:          "cli",
		Short:        "interactive client, reads stdin line by line when it is not a terminal",
		SilenceUsage: true,
		RunE: func(c *cobra.Command, args []string) error {
			if err := log.InitLogger(*logLevel); err != nil {
				return err
			}
			return cmd.NewReverseCli(cfg).Run()
		},
	}

	command.Flags().StringVarP(&cfg.Host, "host", "H", cfg.Host, "Server hostname.")
	command.Flags().IntVarP(&cfg.Port, "port", "p", cfg.Port, "Server port.")
	command.Flags().DurationVarP(&cfg.Timeout, "timeout", "t", 5*time.Second, "Connect and reply timeout.")
	return command
}

//go:build linux || darwin
// +build linux darwin

package node

// ConnTable maps tokens to live connections and hands out new tokens.
// Tokens are never recycled.
type ConnTable struct {
	conns map[Token]*Conn
	next  Token
}

func NewConnTable() *ConnTable {
	return &ConnTable{
		conns: make(map[Token]*Conn),
		next:  ListenerToken + 1,
	}
}

func (t *ConnTable) NextToken() Token {
	token := t.next
	t.next++
	return token
}

func (t *ConnTable) Insert(c *Conn) {
	t.conns[c.token] = c
}

func (t *ConnTable) Get(token Token) (*Conn, bool) {
	c, ok := t.conns[token]
	return c, ok
}

func (t *ConnTable) Remove(token Token) (*Conn, bool) {
	c, ok := t.conns[token]
	if ok {
		delete(t.conns, token)
	}
	return c, ok
}

func (t *ConnTable) Len() int {
	return len(t.conns)
}

// Each calls fn for every connection, in no particular order.
func (t *ConnTable) Each(fn func(c *Conn)) {
	for _, c := range t.conns {
		fn(c)
	}
}

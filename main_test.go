package main

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestRootCommandFlags(t *testing.T) {
	c := newRootCommand()
	require.NoError(t, c.ParseFlags([]string{"--addr", "0.0.0.0:5000", "--max-events", "64", "-l", "debug"}))

	addr, err := c.Flags().GetString("addr")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:5000", addr)

	maxEvents, err := c.Flags().GetInt("max-events")
	require.NoError(t, err)
	assert.Equal(t, 64, maxEvents)

	chunk, err := c.Flags().GetInt("read-chunk")
	require.NoError(t, err)
	assert.Equal(t, 4096, chunk)

	level, err := c.Flags().GetString("log-level")
	require.NoError(t, err)
	assert.Equal(t, "debug", level)
}

func TestCliSubcommand(t *testing.T) {
	c := newRootCommand()
	sub, _, err := c.Find([]string{"cli"})
	require.NoError(t, err)
	assert.Equal(t, "cli", sub.Name())

	port, err := sub.Flags().GetInt("port")
	require.NoError(t, err)
	assert.Equal(t, 4242, port)
}

func TestVersion(t *testing.T) {
	assert.Equal(t, "0.1.0", Version())

	defer func(sha, dirty string) { gitSHA1, gitDirty = sha, dirty }(gitSHA1, gitDirty)
	gitSHA1, gitDirty = "abc123", "1"
	assert.Equal(t, "0.1.0 (git:abc123-dirty)", Version())
}

package rcon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	commands []string
	reply    string
	err      error
	closed   int
}

func (f *fakeConn) Execute(command string) (string, error) {
	f.commands = append(f.commands, command)
	return f.reply, f.err
}

func (f *fakeConn) Close() error {
	f.closed++
	return nil
}

func newTestClient(conn *fakeConn, allowed ...string) (*Client, *[]string) {
	var dials []string
	c := New("127.0.0.1:27015", "secret", 10*time.Second, allowed, nil,
		WithDialer(func(addr, password string, _ time.Duration) (Conn, error) {
			dials = append(dials, addr+"|"+password)
			return conn, nil
		}))
	return c, &dials
}

func TestBroadcast(t *testing.T) {
	conn := &fakeConn{reply: "  Message sent.\n"}
	c, dials := newTestClient(conn, "/servermsg")

	resp, err := c.Broadcast(context.Background(), " Server restart in 5 minutes ")
	require.NoError(t, err)
	assert.Equal(t, "Message sent.", resp)
	assert.Equal(t, []string{"/servermsg Server restart in 5 minutes"}, conn.commands)
	assert.Equal(t, []string{"127.0.0.1:27015|secret"}, *dials)
	assert.Equal(t, 1, conn.closed)
}

func TestEmptyArguments(t *testing.T) {
	conn := &fakeConn{}
	c, _ := newTestClient(conn)
	ctx := context.Background()

	_, err := c.Broadcast(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyArgument)
	_, err = c.ChangeOption(ctx, "PVP", "")
	assert.ErrorIs(t, err, ErrEmptyArgument)
	_, err = c.SetAccessLevel(ctx, "", "admin")
	assert.ErrorIs(t, err, ErrEmptyArgument)
	assert.Empty(t, conn.commands)

	_, err = c.ChangeOption(ctx, "PVP", "false")
	require.NoError(t, err)
	_, err = c.SetAccessLevel(ctx, "alice", "moderator")
	require.NoError(t, err)
	assert.Equal(t, []string{"/changeoption PVP false", "/setaccesslevel alice moderator"}, conn.commands)
}

func TestAllowList(t *testing.T) {
	conn := &fakeConn{}
	c, dials := newTestClient(conn, "/servermsg", "players")
	ctx := context.Background()

	_, err := c.ChangeOption(ctx, "PVP", "false")
	assert.ErrorIs(t, err, ErrNotAllowed)
	assert.Empty(t, *dials, "rejected commands never connect")

	assert.True(t, c.Allowed("servermsg hi"))
	assert.True(t, c.Allowed("/players"))
	assert.False(t, c.Allowed(""))
}

func TestPlayers(t *testing.T) {
	conn := &fakeConn{reply: "Players connected (2): \n-alice\n-bob\n"}
	c, _ := newTestClient(conn)

	names, err := c.Players(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, names)
	assert.Equal(t, []string{"/players"}, conn.commands)
}

func TestPlayersIgnoresAllowList(t *testing.T) {
	conn := &fakeConn{reply: "Players connected (1): \n-carol\n"}
	c, _ := newTestClient(conn, "/servermsg")

	names, err := c.Players(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, names)

	_, err = c.Run(context.Background(), "/players")
	assert.ErrorIs(t, err, ErrNotAllowed)
}

func TestDialError(t *testing.T) {
	c := New("127.0.0.1:1", "x", time.Second, nil, nil,
		WithDialer(func(string, string, time.Duration) (Conn, error) {
			return nil, errors.New("connection refused")
		}))
	_, err := c.Run(context.Background(), "players")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestExecuteError(t *testing.T) {
	conn := &fakeConn{err: errors.New("auth failed")}
	c, _ := newTestClient(conn)
	_, err := c.Run(context.Background(), "players")
	require.Error(t, err)
	assert.Equal(t, 1, conn.closed)
}

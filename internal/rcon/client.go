// Package rcon sends console commands to the dedicated server over RCON.
package rcon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorcon/rcon"
	"go.uber.org/zap"
)

var (
	ErrNotAllowed    = errors.New("command not allowed")
	ErrEmptyArgument = errors.New("argument cannot be empty")
)

// Conn is one authenticated RCON connection.
type Conn interface {
	Execute(command string) (string, error)
	Close() error
}

type DialFunc func(addr, password string, timeout time.Duration) (Conn, error)

func dialRCON(addr, password string, timeout time.Duration) (Conn, error) {
	conn, err := rcon.Dial(addr, password, rcon.SetDialTimeout(timeout), rcon.SetDeadline(timeout))
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Client opens a connection per command. Allowed restricts the base
// commands that may run; an empty list allows everything.
type Client struct {
	addr     string
	password string
	timeout  time.Duration
	allowed  []string
	dial     DialFunc
	log      *zap.Logger
}

type Option func(*Client)

func WithDialer(fn DialFunc) Option {
	return func(c *Client) { c.dial = fn }
}

func New(addr, password string, timeout time.Duration, allowed []string, log *zap.Logger, opts ...Option) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		addr:     addr,
		password: password,
		timeout:  timeout,
		allowed:  allowed,
		dial:     dialRCON,
		log:      log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Allowed reports whether command's base command is permitted. A leading
// slash is optional on both sides.
func (c *Client) Allowed(command string) bool {
	if len(c.allowed) == 0 {
		return true
	}
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return false
	}
	base := strings.TrimPrefix(fields[0], "/")
	for _, a := range c.allowed {
		if strings.TrimPrefix(a, "/") == base {
			return true
		}
	}
	return false
}

// PlayersCommand lists connected players. It only reads state, so it is
// not subject to the allow-list.
const PlayersCommand = "/players"

// Run executes an allow-listed command and returns the trimmed response.
func (c *Client) Run(ctx context.Context, command string) (string, error) {
	if !c.Allowed(command) {
		return "", fmt.Errorf("%w: %s", ErrNotAllowed, command)
	}
	return c.execute(ctx, command)
}

func (c *Client) execute(ctx context.Context, command string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	timeout := c.timeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(dl))
	}

	conn, err := c.dial(c.addr, c.password, timeout)
	if err != nil {
		return "", fmt.Errorf("rcon connect %s: %w", c.addr, err)
	}
	defer conn.Close()

	c.log.Debug("rcon command", zap.String("command", command))
	resp, err := conn.Execute(command)
	if err != nil {
		c.log.Warn("rcon command failed", zap.String("command", command), zap.Error(err))
		return "", fmt.Errorf("rcon %q: %w", command, err)
	}
	return strings.TrimSpace(resp), nil
}

// Broadcast shows message to every player.
func (c *Client) Broadcast(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", fmt.Errorf("%w: message", ErrEmptyArgument)
	}
	return c.Run(ctx, "/servermsg "+message)
}

// ChangeOption updates a server option without a restart.
func (c *Client) ChangeOption(ctx context.Context, option, value string) (string, error) {
	option, value = strings.TrimSpace(option), strings.TrimSpace(value)
	if option == "" || value == "" {
		return "", fmt.Errorf("%w: option and value", ErrEmptyArgument)
	}
	return c.Run(ctx, fmt.Sprintf("/changeoption %s %s", option, value))
}

func (c *Client) SetAccessLevel(ctx context.Context, player, level string) (string, error) {
	player, level = strings.TrimSpace(player), strings.TrimSpace(level)
	if player == "" || level == "" {
		return "", fmt.Errorf("%w: player and access level", ErrEmptyArgument)
	}
	return c.Run(ctx, fmt.Sprintf("/setaccesslevel %s %s", player, level))
}

// Players asks the server who is connected. The server answers
// "Players connected (2):" followed by "-name" lines.
func (c *Client) Players(ctx context.Context) ([]string, error) {
	resp, err := c.execute(ctx, PlayersCommand)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(resp, "\n") {
		line = strings.TrimSpace(line)
		if name, ok := strings.CutPrefix(line, "-"); ok && name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

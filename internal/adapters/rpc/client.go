package rpc

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"tombot/internal/core/domain"
)

const DefaultTimeout = 10 * time.Second

// Client talks to a running bot over the control channel.
type Client struct {
	address string
	timeout time.Duration
}

func NewClient(address string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{address: address, timeout: timeout}
}

// Call sends one frame and returns the response line.
func (c *Client) Call(ctx context.Context, command string, args ...string) (string, error) {
	fields := append([]string{command}, args...)
	for _, f := range fields {
		if strings.ContainsAny(f, "\n"+FieldSeparator) {
			return "", fmt.Errorf("%w: %q", domain.ErrInvalidField, f)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return "", fmt.Errorf("failed to reach control channel: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	frame := strings.Join(fields, FieldSeparator)
	log.Debug().Str("command", command).Msg("control call")

	if _, err := fmt.Fprintf(conn, "%s\n", frame); err != nil {
		return "", fmt.Errorf("failed to write control frame: %w", err)
	}

	response, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read control response: %w", err)
	}

	return strings.TrimRight(response, "\r\n"), nil
}

// RemoteSend asks the bot to deliver body to recipient.
func (c *Client) RemoteSend(ctx context.Context, recipient, body string) error {
	response, err := c.Call(ctx, "SEND", recipient, body)
	if err != nil {
		return err
	}

	if response != ResponseOK {
		return fmt.Errorf("%w: %s", domain.ErrRemoteFailed, response)
	}

	return nil
}

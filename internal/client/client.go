// Package client talks to the wallet server over its line protocol.
package client

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/cryptowallet/internal/protocol"
	"github.com/vadiminshakov/cryptowallet/pkg/retrier"
	"go.uber.org/zap"
)

const defaultReplyTimeout = 30 * time.Second

// Client is a connection to the wallet server.
type Client struct {
	conn         net.Conn
	reader       *protocol.Reader
	replyTimeout time.Duration
}

// Dial connects to addr, retrying with r until it succeeds or ctx is done.
func Dial(ctx context.Context, addr string, r *retrier.Retrier, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if r == nil {
		r = retrier.New()
	}

	var d net.Dialer
	conn, err := retrier.DoWithData(r, ctx, func(ctx context.Context) (net.Conn, error) {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			logger.Debug("dial failed", zap.String("addr", addr), zap.Error(err))
		}
		return conn, err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "connect to %s", addr)
	}

	return &Client{
		conn:         conn,
		reader:       protocol.NewReader(conn, 0),
		replyTimeout: defaultReplyTimeout,
	}, nil
}

// Send writes one command and waits for its reply.
func (c *Client) Send(line string) (string, error) {
	if err := c.conn.SetDeadline(time.Now().Add(c.replyTimeout)); err != nil {
		return "", errors.Wrap(err, "set deadline")
	}
	if err := protocol.WriteCommand(c.conn, line); err != nil {
		return "", err
	}
	reply, err := c.reader.ReadReply()
	if err != nil {
		return "", errors.Wrap(err, "read reply")
	}
	return reply, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

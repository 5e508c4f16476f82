// Package nats connects the segment notifier to a NATS server.
package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// ConnectionConfig describes the connection used to announce segments.
type ConnectionConfig struct {
	URL           string
	Name          string
	MaxReconnects int // -1 reconnects forever
	ReconnectWait time.Duration
	Timeout       time.Duration

	// Token takes precedence over Username/Password.
	Token    string
	Username string
	Password string

	// Subject receives one event per stored segment.
	Subject string

	// PublishMaxRetries is the number of extra attempts after a failed publish.
	PublishMaxRetries int
}

// DefaultConnectionConfig returns the configuration used by the daedalus command.
func DefaultConnectionConfig(url string) *ConnectionConfig {
	return &ConnectionConfig{
		URL:               url,
		Name:              "daedalus",
		MaxReconnects:     10,
		ReconnectWait:     2 * time.Second,
		Timeout:           5 * time.Second,
		Subject:           "daedalus.segments",
		PublishMaxRetries: 3,
	}
}

// Validate reports a configuration that cannot be used to connect.
func (c *ConnectionConfig) Validate() error {
	if c == nil {
		return errors.New("connection config cannot be nil")
	}
	if c.URL == "" {
		return errors.New("NATS URL cannot be empty")
	}
	if c.Subject == "" {
		return errors.New("segment subject cannot be empty")
	}
	return nil
}

func (c *ConnectionConfig) options(logger *zap.Logger) []nats.Option {
	opts := []nats.Option{
		nats.Name(c.Name),
		nats.MaxReconnects(c.MaxReconnects),
		nats.ReconnectWait(c.ReconnectWait),
		nats.Timeout(c.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			fields := []zap.Field{zap.Error(err)}
			if sub != nil {
				fields = append(fields, zap.String("subject", sub.Subject))
			}
			logger.Error("NATS async error", fields...)
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Debug("NATS connection closed")
		}),
	}

	switch {
	case c.Token != "":
		opts = append(opts, nats.Token(c.Token))
	case c.Username != "" && c.Password != "":
		opts = append(opts, nats.UserInfo(c.Username, c.Password))
	}
	return opts
}

// Connect dials the server, giving up when ctx is done. A connection that
// completes after cancellation is closed.
func Connect(ctx context.Context, config *ConnectionConfig, logger *zap.Logger) (*nats.Conn, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("url", config.URL))

	type dialed struct {
		conn *nats.Conn
		err  error
	}
	ch := make(chan dialed, 1)
	go func() {
		conn, err := nats.Connect(config.URL, config.options(logger)...)
		ch <- dialed{conn: conn, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if d := <-ch; d.conn != nil {
				d.conn.Close()
			}
		}()
		return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
	case d := <-ch:
		if d.err != nil {
			return nil, fmt.Errorf("failed to connect to NATS: %w", d.err)
		}
		logger.Info("Connected to NATS", zap.String("subject", config.Subject))
		return d.conn, nil
	}
}

// Close drains conn so queued events are flushed, falling back to a hard close.
func Close(conn *nats.Conn) error {
	if conn == nil {
		return nil
	}
	if err := conn.Drain(); err != nil {
		conn.Close()
		return fmt.Errorf("error draining connection: %w", err)
	}
	return nil
}

// IsConnected reports whether conn is usable.
func IsConnected(conn *nats.Conn) bool {
	return conn != nil && conn.IsConnected()
}

package client

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"lukas/inventory/internal/packet"
	"net"
	"time"
)

const DefaultTimeout = time.Second

type Config struct {
	Addr            string
	ConnectTimeout  time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ReadBufferSize  int
	WriteBufferSize int
	MaxPayloadSize  uint32
}

// Client is a session with one server: at most one socket, opened lazily, and
// a sequence counter that advances once per request written. A Client must
// not be used by more than one goroutine at a time.
type Client struct {
	id       string
	logger   *zap.Logger
	config   Config
	codec    *packet.Codec
	conn     net.Conn
	reader   packet.FrameReader
	writer   packet.FrameWriter
	sequence uint64
}

func New(logger *zap.Logger, config Config, codec *packet.Codec) *Client {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultTimeout
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = DefaultTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultTimeout
	}
	id := uuid.NewString()
	return &Client{
		id:     id,
		logger: logger.With(zap.String("clientId", id)),
		config: config,
		codec:  codec,
	}
}

func (c *Client) ID() string {
	return c.id
}

// Sequence is the number the next request will carry.
func (c *Client) Sequence() uint64 {
	return c.sequence
}

func (c *Client) Close() error {
	c.closeConn()
	return nil
}

// Stop asks the server to drop the connection and closes the local socket.
// It dials first when no connection is open. No reply is expected.
func (c *Client) Stop(ctx context.Context) error {
	defer c.closeConn()
	data, err := c.codec.Encode(packet.Packet{
		Sequence: c.sequence,
		Status:   packet.StatusClient,
		Command:  packet.CommandStop,
		Payload:  "stop",
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return c.send(ctx, data)
}

func (c *Client) connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	dialer := net.Dialer{Timeout: c.config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.config.Addr)
	if err != nil {
		return err
	}
	c.conn = conn
	c.reader = packet.NewStreamFrameReader(conn, c.config.ReadBufferSize, c.config.MaxPayloadSize)
	c.writer = packet.NewStreamFrameWriter(conn, c.config.WriteBufferSize)
	c.logger.Debug("connected to server", zap.String("addr", c.config.Addr))
	return nil
}

func (c *Client) closeConn() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Debug("error closing connection", zap.Error(err))
	}
	c.conn, c.reader, c.writer = nil, nil, nil
}

func (c *Client) deadline(ctx context.Context, timeout time.Duration) time.Time {
	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		return ctxDeadline
	}
	return deadline
}

func (c *Client) write(ctx context.Context, data []byte) error {
	if err := c.connect(ctx); err != nil {
		return err
	}
	if err := c.conn.SetWriteDeadline(c.deadline(ctx, c.config.WriteTimeout)); err != nil {
		return err
	}
	return c.writer.WriteFrame(data)
}

// send writes one frame, reconnecting and writing again once on failure.
func (c *Client) send(ctx context.Context, data []byte) error {
	err := c.write(ctx, data)
	if err != nil {
		c.logger.Debug("send failed, reconnecting", zap.Error(err))
		c.closeConn()
		if err = c.write(ctx, data); err != nil {
			c.closeConn()
			return fmt.Errorf("%w: %v", ErrConnectionUnavailable, err)
		}
	}
	c.sequence++
	return nil
}

type decodeError struct {
	err error
}

func (e decodeError) Error() string {
	return e.err.Error()
}

func (e decodeError) Unwrap() error {
	return e.err
}

func (c *Client) read(ctx context.Context) (packet.Packet, error) {
	if err := c.conn.SetReadDeadline(c.deadline(ctx, c.config.ReadTimeout)); err != nil {
		return packet.Packet{}, err
	}
	frame, err := c.reader.ReadFrame()
	if errors.Is(err, packet.ErrFrameTooLarge) {
		return packet.Packet{}, decodeError{err}
	} else if err != nil {
		return packet.Packet{}, err
	}
	reply, err := c.codec.Decode(frame)
	if err != nil {
		return packet.Packet{}, decodeError{err}
	}
	return reply, nil
}

// receive reads one reply. A broken stream is retried once by reconnecting and
// resending data; a frame that arrives intact but does not decode is not.
func (c *Client) receive(ctx context.Context, data []byte) (packet.Packet, error) {
	reply, err := c.read(ctx)
	if err == nil {
		return reply, nil
	}
	var decErr decodeError
	if errors.As(err, &decErr) {
		c.closeConn()
		return packet.Packet{}, fmt.Errorf("%w: %w", ErrServerError, err)
	}

	c.logger.Debug("receive failed, reconnecting", zap.Error(err))
	c.closeConn()
	if err = c.write(ctx, data); err != nil {
		c.closeConn()
		return packet.Packet{}, fmt.Errorf("%w: %v", ErrConnectionUnavailable, err)
	}
	reply, err = c.read(ctx)
	if errors.As(err, &decErr) {
		c.closeConn()
		return packet.Packet{}, fmt.Errorf("%w: %w", ErrServerError, err)
	} else if err != nil {
		c.closeConn()
		return packet.Packet{}, fmt.Errorf("%w: %v", ErrConnectionUnavailable, err)
	}
	return reply, nil
}

func (c *Client) roundTrip(ctx context.Context, command packet.Command, payload string) (packet.Packet, error) {
	seq := c.sequence
	data, err := c.codec.Encode(packet.Packet{
		Sequence: seq,
		Status:   packet.StatusClient,
		Command:  command,
		Payload:  payload,
	})
	if err != nil {
		return packet.Packet{}, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	if err = c.send(ctx, data); err != nil {
		return packet.Packet{}, err
	}
	reply, err := c.receive(ctx, data)
	if err != nil {
		return packet.Packet{}, err
	}
	if reply.Sequence != seq && reply.Sequence != packet.ErrorSequence {
		c.closeConn()
		return packet.Packet{}, fmt.Errorf("%w: reply sequence %d does not match request %d", ErrServerError, reply.Sequence, seq)
	}
	return reply, nil
}

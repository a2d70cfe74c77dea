package server

import (
	"context"
	"errors"
	"go.uber.org/zap"
	"io"
	"lukas/inventory/internal/packet"
	"net"
	"sync/atomic"
	"time"
)

// DefaultIdleTimeout matches the client's read timeout. Clients reconnect
// transparently, so idle sessions are dropped quickly to free their worker.
const DefaultIdleTimeout = time.Second

type ConnectionConfig struct {
	// IdleTimeout bounds each blocking read. Zero disables the deadline.
	IdleTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxPayloadSize  uint32
	ReadBufferSize  int
	WriteBufferSize int
}

type ConnectionClosedCb func(*Connection)

// Connection serves one client socket. Each request passes through
// receive, decrypt, process, encrypt and send on the calling goroutine.
type Connection struct {
	id         uint64
	conn       net.Conn
	logger     *zap.Logger
	config     ConnectionConfig
	codec      *packet.Codec
	processor  *Processor
	reader     packet.FrameReader
	writer     packet.FrameWriter
	connClosed atomic.Bool
	finished   atomic.Bool
	done       chan struct{}
	closedCb   ConnectionClosedCb
}

func NewConnection(id uint64, conn net.Conn, logger *zap.Logger, config ConnectionConfig, codec *packet.Codec, processor *Processor, closedCb ConnectionClosedCb) *Connection {
	return &Connection{
		id:        id,
		conn:      conn,
		logger:    logger.With(zap.Uint64("connId", id), zap.String("addr", conn.RemoteAddr().String())),
		config:    config,
		codec:     codec,
		processor: processor,
		reader:    packet.NewStreamFrameReader(conn, config.ReadBufferSize, config.MaxPayloadSize),
		writer:    packet.NewStreamFrameWriter(conn, config.WriteBufferSize),
		done:      make(chan struct{}),
		closedCb:  closedCb,
	}
}

func (conn *Connection) ID() uint64 {
	return conn.id
}

func (conn *Connection) Done() <-chan struct{} {
	return conn.done
}

// Handle runs the request loop until the socket closes or the peer sends STOP.
func (conn *Connection) Handle(ctx context.Context) {
	defer conn.finish()
	conn.logger.Debug("handling connection")
	for {
		frame, ok := conn.receive()
		if !ok {
			return
		}
		request := conn.decrypt(frame)
		reply, ok := conn.processor.Process(ctx, request)
		if !ok {
			conn.logger.Debug("stop requested", zap.Uint64("seq", request.Sequence))
			return
		}
		if !conn.send(conn.encrypt(reply)) {
			return
		}
	}
}

func (conn *Connection) Stop() {
	conn.closeConnection()
}

func (conn *Connection) Shutdown(ctx context.Context) error {
	conn.Stop()
	select {
	case <-conn.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (conn *Connection) closeConnection() {
	if conn.connClosed.CompareAndSwap(false, true) {
		err := conn.conn.Close()
		if err != nil {
			conn.logger.Error("error closing connection", zap.Error(err))
		}
	}
}

// finish releases the connection exactly once, whether or not Handle ever ran.
func (conn *Connection) finish() {
	if !conn.finished.CompareAndSwap(false, true) {
		return
	}
	conn.closeConnection()
	conn.logger.Debug("connection closed")
	close(conn.done)
	if conn.closedCb != nil {
		conn.closedCb(conn)
	}
}

func (conn *Connection) receive() ([]byte, bool) {
	if conn.config.IdleTimeout > 0 {
		err := conn.conn.SetReadDeadline(time.Now().Add(conn.config.IdleTimeout))
		if err != nil {
			conn.logger.Debug("error setting read deadline", zap.Error(err))
			return nil, false
		}
	}
	frame, err := conn.reader.ReadFrame()
	if errors.Is(err, io.EOF) {
		conn.logger.Debug("received EOF")
		return nil, false
	} else if err != nil {
		conn.logger.Debug("error reading frame", zap.Error(err))
		return nil, false
	}
	return frame, true
}

// decrypt never fails: frames that do not decode become a pre-tagged error reply.
func (conn *Connection) decrypt(frame []byte) packet.Packet {
	request, err := conn.codec.Decode(frame)
	if err != nil {
		conn.logger.Debug("error decoding frame", zap.Error(err))
		return packet.Packet{
			Sequence: packet.ErrorSequence,
			Status:   packet.StatusError,
			Command:  packet.CommandUnknown,
			Payload:  MessageError,
		}
	}
	return request
}

func (conn *Connection) encrypt(reply packet.Packet) []byte {
	data, err := conn.codec.Encode(reply)
	if err != nil {
		conn.logger.Error("encode error", zap.Error(err), zap.Stringer("command", reply.Command))
		data, err = conn.codec.Encode(reply.Reply(packet.StatusError, MessageError))
		if err != nil {
			conn.logger.Error("encode error", zap.Error(err))
			return nil
		}
	}
	return data
}

func (conn *Connection) send(data []byte) bool {
	if data == nil {
		return false
	}
	if conn.config.WriteTimeout > 0 {
		err := conn.conn.SetWriteDeadline(time.Now().Add(conn.config.WriteTimeout))
		if err != nil {
			conn.logger.Error("failed to set write deadline on client connection", zap.Error(err))
			return false
		}
	}
	if err := conn.writer.WriteFrame(data); err != nil {
		conn.logger.Debug("failed to write frame", zap.Error(err))
		return false
	}
	return true
}

package server

import (
	"context"
	"errors"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"lukas/inventory/internal/packet"
	"net"
	"sync"
	"sync/atomic"
)

type ConnectionManager interface {
	Start(listener net.Listener)
	Stop()
	Shutdown(ctx context.Context) error
	ConnectionCount() int
	CloseConnections()
}

// DefaultConnectionManager accepts sockets and runs each on a fixed pool of
// workers. Connections beyond the pool size wait for a free worker.
type DefaultConnectionManager struct {
	logger         *zap.Logger
	codec          *packet.Codec
	processor      *Processor
	listener       net.Listener
	listenerClosed atomic.Bool
	mutex          sync.Mutex
	nextConnId     atomic.Uint64
	activeConn     map[uint64]*Connection
	maxConnections int
	connConfig     ConnectionConfig
	workers        *semaphore.Weighted
	ctx            context.Context
	cancel         context.CancelFunc
	done           chan struct{}
	connWg         sync.WaitGroup
}

func NewDefaultConnectionManager(logger *zap.Logger, codec *packet.Codec, processor *Processor, workers int, maxConnections int, connConfig ConnectionConfig) *DefaultConnectionManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &DefaultConnectionManager{
		logger:         logger,
		codec:          codec,
		processor:      processor,
		listener:       nil,
		activeConn:     make(map[uint64]*Connection),
		maxConnections: maxConnections,
		connConfig:     connConfig,
		workers:        semaphore.NewWeighted(int64(workers)),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
}

func (m *DefaultConnectionManager) Stop() {
	m.closeListener()
}

func (m *DefaultConnectionManager) Shutdown(ctx context.Context) error {
	m.Stop()
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *DefaultConnectionManager) Start(listener net.Listener) {
	m.listener = listener
	go m.acceptConnections()
}

func (m *DefaultConnectionManager) Done() <-chan struct{} {
	return m.done
}

func (m *DefaultConnectionManager) ConnectionCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.activeConn)
}

// CloseConnections drops every live connection and keeps accepting new ones.
func (m *DefaultConnectionManager) CloseConnections() {
	m.mutex.Lock()
	for _, conn := range m.activeConn {
		conn.Stop()
	}
	m.mutex.Unlock()
}

func (m *DefaultConnectionManager) closeListener() {
	if m.listener == nil {
		return
	}
	if m.listenerClosed.CompareAndSwap(false, true) {
		err := m.listener.Close()
		if err != nil {
			m.logger.Error("error closing listener", zap.Error(err))
		}
	}
}

func (m *DefaultConnectionManager) acceptConnections() {
	for {
		conn, err := m.listener.Accept()
		if errors.Is(err, net.ErrClosed) {
			m.logger.Debug("listener closed")
			break
		} else if err != nil {
			m.logger.Error("error accepting connection, shutting down", zap.Error(err))
			break
		}
		connId := m.nextConnId.Add(1)
		m.logger.Debug("accepting new connection", zap.Uint64("connId", connId), zap.String("addr", conn.RemoteAddr().String()))
		m.addConnection(conn, connId)
	}
	m.closeListener()
	m.cancel()
	m.CloseConnections()
	m.connWg.Wait()
	close(m.done)
}

func (m *DefaultConnectionManager) addConnection(conn net.Conn, connId uint64) bool {
	newConn := NewConnection(connId, conn, m.logger, m.connConfig, m.codec, m.processor, func(connection *Connection) {
		m.removeConnection(connection, connId)
	})
	m.connWg.Add(1)
	m.mutex.Lock()
	if m.maxConnections > 0 && len(m.activeConn) >= m.maxConnections {
		m.mutex.Unlock()
		m.logger.Debug("maximum number of connections exceeded", zap.Int("maxConnections", m.maxConnections))
		m.connWg.Done()
		newConn.Stop()
		return false
	}
	m.activeConn[connId] = newConn
	m.mutex.Unlock()
	go m.runConnection(newConn)
	return true
}

func (m *DefaultConnectionManager) runConnection(conn *Connection) {
	if err := m.workers.Acquire(m.ctx, 1); err != nil {
		conn.finish()
		return
	}
	defer m.workers.Release(1)
	conn.Handle(m.ctx)
}

func (m *DefaultConnectionManager) removeConnection(connection *Connection, connId uint64) {
	m.logger.Debug("removing connection", zap.Uint64("connId", connId), zap.String("addr", connection.conn.RemoteAddr().String()))
	m.mutex.Lock()
	delete(m.activeConn, connId)
	m.mutex.Unlock()
	m.connWg.Done()
}

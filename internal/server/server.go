package server

import (
	"context"
	"fmt"
	"go.uber.org/zap"
	"lukas/inventory/internal/packet"
	"lukas/inventory/internal/stock"
	"net"
	"runtime"
)

type ServerConfig struct {
	Addr           string
	Port           uint16
	MaxConnections int
	// Workers is the number of connections served at once. Defaults to runtime.NumCPU().
	Workers int
}

// Server owns the listening socket. The store is shared by every connection and is not closed by the server.
type Server struct {
	logger            *zap.Logger
	connectionManager *DefaultConnectionManager
	serverConfig      ServerConfig
	listener          net.Listener
}

func NewServer(logger *zap.Logger, serverConfig ServerConfig, connConfig ConnectionConfig, codec *packet.Codec, store stock.Store) *Server {
	workers := serverConfig.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	processor := NewProcessor(store, logger)
	return &Server{
		logger:            logger,
		connectionManager: NewDefaultConnectionManager(logger, codec, processor, workers, serverConfig.MaxConnections, connConfig),
		serverConfig:      serverConfig,
	}
}

func (s *Server) Start() error {
	listenerAddr := fmt.Sprintf("%s:%d", s.serverConfig.Addr, s.serverConfig.Port)
	listener, err := net.Listen("tcp", listenerAddr)
	if err != nil {
		return fmt.Errorf("error starting listener on %s: %w", listenerAddr, err)
	}
	s.listener = listener
	s.logger.Info("server listening", zap.String("addr", listener.Addr().String()))
	s.connectionManager.Start(listener)
	return nil
}

func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) ConnectionCount() int {
	return s.connectionManager.ConnectionCount()
}

func (s *Server) CloseConnections() {
	s.connectionManager.CloseConnections()
}

// Done is closed once the accept loop has exited and every connection is released.
func (s *Server) Done() <-chan struct{} {
	return s.connectionManager.Done()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	err := s.connectionManager.Shutdown(ctx)
	if err != nil {
		s.logger.Warn("error shutting down connection manager", zap.Error(err))
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

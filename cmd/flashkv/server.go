package main

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/KevoDB/flashkv/pkg/grpc/service"
	"github.com/KevoDB/flashkv/pkg/grpc/transport"
	"github.com/KevoDB/flashkv/pkg/store"
	"github.com/KevoDB/flashkv/pkg/telemetry"
	"google.golang.org/grpc"
)

// Server represents the flashkv gRPC server
type Server struct {
	store      *store.Store
	tel        telemetry.Telemetry
	listener   net.Listener
	grpcServer *grpc.Server
	config     Config
}

// NewServer creates a new server instance
func NewServer(st *store.Store, tel telemetry.Telemetry, config Config) *Server {
	return &Server{
		store:  st,
		tel:    tel,
		config: config,
	}
}

// Start initializes the listener and the gRPC server
func (s *Server) Start() error {
	opts := transport.DefaultOptions()
	opts.TLSEnabled = s.config.TLSEnabled
	opts.CertFile = s.config.TLSCertFile
	opts.KeyFile = s.config.TLSKeyFile
	opts.CAFile = s.config.TLSCAFile

	serverOpts, err := transport.ServerOptions(opts)
	if err != nil {
		return fmt.Errorf("failed to configure gRPC server: %w", err)
	}

	s.listener, err = net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddr, err)
	}

	fmt.Printf("Listening on %s\n", s.listener.Addr())

	s.grpcServer = grpc.NewServer(serverOpts...)
	service.RegisterRecordServiceServer(s.grpcServer,
		service.NewRecordService(s.store, service.WithTelemetry(s.tel)))

	fmt.Println("gRPC server initialized")
	return nil
}

// Addr returns the address the server listens on
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve starts serving requests (blocking)
func (s *Server) Serve() error {
	if s.grpcServer == nil {
		return fmt.Errorf("server not initialized, call Start() first")
	}

	fmt.Println("Starting gRPC server")
	return s.grpcServer.Serve(s.listener)
}

// Shutdown gracefully shuts down the server. The store stays open.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.grpcServer != nil {
		fmt.Println("Gracefully stopping gRPC server...")

		stopped := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(stopped)
		}()

		select {
		case <-stopped:
			fmt.Println("gRPC server stopped gracefully")
		case <-ctx.Done():
			fmt.Println("Context deadline exceeded, forcing server stop")
			s.grpcServer.Stop()
		}
	}

	// Serve closes the listener on stop; it is still open if Serve never ran
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("failed to close listener: %w", err)
		}
	}
	return nil
}

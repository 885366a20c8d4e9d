// Package transport builds the gRPC server and dial options shared by the
// flashkv server and client.
package transport

import (
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
)

var ErrInvalidTLS = errors.New("invalid TLS configuration")

// Options configures the gRPC connection on either side
type Options struct {
	TLSEnabled bool
	CertFile   string
	KeyFile    string
	CAFile     string
	SkipVerify bool // client only

	// MaxMessageSize bounds a single request or response. Records never
	// exceed a flash page, so the default is small.
	MaxMessageSize int
}

// DefaultOptions returns options for a plaintext connection
func DefaultOptions() Options {
	return Options{
		MaxMessageSize: 1 << 20,
	}
}

// ServerOptions returns the grpc.Server options for opts
func ServerOptions(opts Options) ([]grpc.ServerOption, error) {
	var serverOpts []grpc.ServerOption

	if opts.TLSEnabled {
		tlsConfig, err := LoadServerTLSConfig(opts.CertFile, opts.KeyFile, opts.CAFile)
		if err != nil {
			return nil, err
		}
		serverOpts = append(serverOpts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}

	kaProps := keepalive.ServerParameters{
		MaxConnectionIdle:     60 * time.Second,
		MaxConnectionAge:      5 * time.Minute,
		MaxConnectionAgeGrace: 5 * time.Second,
		Time:                  15 * time.Second,
		Timeout:               5 * time.Second,
	}

	kaPolicy := keepalive.EnforcementPolicy{
		MinTime:             5 * time.Second,
		PermitWithoutStream: true,
	}

	serverOpts = append(serverOpts,
		grpc.KeepaliveParams(kaProps),
		grpc.KeepaliveEnforcementPolicy(kaPolicy),
	)

	if opts.MaxMessageSize > 0 {
		serverOpts = append(serverOpts,
			grpc.MaxRecvMsgSize(opts.MaxMessageSize),
			grpc.MaxSendMsgSize(opts.MaxMessageSize),
		)
	}

	return serverOpts, nil
}

// DialOptions returns the client dial options for opts
func DialOptions(opts Options) ([]grpc.DialOption, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                15 * time.Second,
			Timeout:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	if opts.TLSEnabled {
		tlsConfig, err := LoadClientTLSConfig(opts.CertFile, opts.KeyFile, opts.CAFile, opts.SkipVerify)
		if err != nil {
			return nil, err
		}
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	} else {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	if opts.MaxMessageSize > 0 {
		dialOpts = append(dialOpts, grpc.WithDefaultCallOptions(
			grpc.MaxCallRecvMsgSize(opts.MaxMessageSize),
			grpc.MaxCallSendMsgSize(opts.MaxMessageSize),
		))
	}

	return dialOpts, nil
}

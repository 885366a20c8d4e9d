package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/KevoDB/flashkv/pkg/grpc/service"
	"github.com/KevoDB/flashkv/pkg/grpc/transport"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ClientOptions configures a flashkv client
type ClientOptions struct {
	// Connection options
	Endpoint       string        // Server address
	ConnectTimeout time.Duration // Timeout for connection attempts
	RequestTimeout time.Duration // Default timeout for requests

	// Security options
	TLSEnabled bool   // Enable TLS
	CertFile   string // Client certificate file
	KeyFile    string // Client key file
	CAFile     string // CA certificate file
	SkipVerify bool   // Skip server certificate verification

	// Retry options
	MaxRetries     int           // Maximum number of retries
	InitialBackoff time.Duration // Initial retry backoff
	MaxBackoff     time.Duration // Maximum retry backoff
	BackoffFactor  float64       // Backoff multiplier
	RetryJitter    float64       // Random jitter factor

	MaxMessageSize int // Maximum message size

	// DialOptions are appended to the options built from the fields above
	DialOptions []grpc.DialOption
}

// DefaultClientOptions returns sensible default client options
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		Endpoint:       "localhost:50051",
		ConnectTimeout: time.Second * 5,
		RequestTimeout: time.Second * 10,
		TLSEnabled:     false,
		MaxRetries:     3,
		InitialBackoff: time.Millisecond * 100,
		MaxBackoff:     time.Second * 2,
		BackoffFactor:  1.5,
		RetryJitter:    0.2,
		MaxMessageSize: 1 << 20,
	}
}

// RecordInfo describes a record header and where it sits on flash
type RecordInfo struct {
	ID       uint8
	Name     string
	Length   uint32
	Checksum uint8
	Page     int
	Offset   uint32
}

// Usage describes how the server's current page is used
type Usage struct {
	Page        int
	PageSize    uint32
	Used        uint32
	Free        uint32
	LiveBytes   uint32
	LiveRecords int
	Headers     int
}

// Client represents a connection to a flashkv server
type Client struct {
	options ClientOptions
	conn    *grpc.ClientConn
}

// NewClient creates a new client with the given options
func NewClient(options ClientOptions) (*Client, error) {
	if options.Endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint is required", ErrInvalidOptions)
	}
	if options.RequestTimeout <= 0 {
		return nil, fmt.Errorf("%w: request timeout must be positive", ErrInvalidOptions)
	}

	return &Client{options: options}, nil
}

// Connect establishes a connection to the server
func (c *Client) Connect(ctx context.Context) error {
	dialOpts, err := transport.DialOptions(transport.Options{
		TLSEnabled:     c.options.TLSEnabled,
		CertFile:       c.options.CertFile,
		KeyFile:        c.options.KeyFile,
		CAFile:         c.options.CAFile,
		SkipVerify:     c.options.SkipVerify,
		MaxMessageSize: c.options.MaxMessageSize,
	})
	if err != nil {
		return fmt.Errorf("failed to build dial options: %w", err)
	}
	dialOpts = append(dialOpts, c.options.DialOptions...)

	conn, err := grpc.NewClient(c.options.Endpoint, dialOpts...)
	if err != nil {
		return fmt.Errorf("failed to create connection to %s: %w", c.options.Endpoint, err)
	}

	if c.options.ConnectTimeout > 0 {
		dialCtx, cancel := context.WithTimeout(ctx, c.options.ConnectTimeout)
		defer cancel()
		if err := waitReady(dialCtx, conn); err != nil {
			conn.Close()
			return fmt.Errorf("failed to connect to %s: %w", c.options.Endpoint, err)
		}
	}

	c.conn = conn
	return nil
}

// waitReady blocks until conn is ready or ctx ends
func waitReady(ctx context.Context, conn *grpc.ClientConn) error {
	conn.Connect()
	for {
		state := conn.GetState()
		if state == connectivity.Ready {
			return nil
		}
		if !conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("%w: connection stuck in %s", ErrTimeout, state)
		}
	}
}

// Close closes the connection to the server
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// IsConnected returns whether the client is connected to the server
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.GetState() != connectivity.Shutdown
}

// invoke calls method with retries, mapping status errors onto client errors
func (c *Client) invoke(ctx context.Context, method string, in, out proto.Message) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	return RetryWithBackoff(ctx, func() error {
		timeoutCtx, cancel := context.WithTimeout(ctx, c.options.RequestTimeout)
		defer cancel()
		return fromStatus(c.conn.Invoke(timeoutCtx, method, in, out))
	},
		c.options.MaxRetries,
		c.options.InitialBackoff,
		c.options.MaxBackoff,
		c.options.BackoffFactor,
		c.options.RetryJitter,
	)
}

// Get retrieves the payload stored under name
func (c *Client) Get(ctx context.Context, name string) ([]byte, bool, error) {
	resp := new(wrapperspb.BytesValue)
	err := c.invoke(ctx, service.MethodGet, wrapperspb.String(name), resp)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return resp.GetValue(), true, nil
}

// Find returns the header of the live record stored under name
func (c *Client) Find(ctx context.Context, name string) (*RecordInfo, bool, error) {
	resp := new(structpb.Struct)
	err := c.invoke(ctx, service.MethodFind, wrapperspb.String(name), resp)
	if errors.Is(err, ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	info := recordInfo(resp)
	return &info, true, nil
}

// Put stores value under name
func (c *Client) Put(ctx context.Context, name string, value []byte) (*RecordInfo, error) {
	req, err := structpb.NewStruct(map[string]interface{}{
		"name":  name,
		"value": base64.StdEncoding.EncodeToString(value),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	resp := new(structpb.Struct)
	if err := c.invoke(ctx, service.MethodPut, req, resp); err != nil {
		return nil, err
	}
	info := recordInfo(resp)
	return &info, nil
}

// Delete removes the record stored under name
func (c *Client) Delete(ctx context.Context, name string) error {
	return c.invoke(ctx, service.MethodDelete, wrapperspb.String(name), new(emptypb.Empty))
}

// List returns the headers of all live records
func (c *Client) List(ctx context.Context) ([]RecordInfo, error) {
	resp := new(structpb.ListValue)
	if err := c.invoke(ctx, service.MethodList, &emptypb.Empty{}, resp); err != nil {
		return nil, err
	}

	records := make([]RecordInfo, 0, len(resp.GetValues()))
	for _, v := range resp.GetValues() {
		records = append(records, recordInfo(v.GetStructValue()))
	}
	return records, nil
}

// Usage reports how the server's current page is used
func (c *Client) Usage(ctx context.Context) (*Usage, error) {
	resp := new(structpb.Struct)
	if err := c.invoke(ctx, service.MethodUsage, &emptypb.Empty{}, resp); err != nil {
		return nil, err
	}

	f := resp.GetFields()
	return &Usage{
		Page:        int(f["page"].GetNumberValue()),
		PageSize:    uint32(f["page_size"].GetNumberValue()),
		Used:        uint32(f["used"].GetNumberValue()),
		Free:        uint32(f["free"].GetNumberValue()),
		LiveBytes:   uint32(f["live_bytes"].GetNumberValue()),
		LiveRecords: int(f["live_records"].GetNumberValue()),
		Headers:     int(f["headers"].GetNumberValue()),
	}, nil
}

// GetStats returns the server's store statistics
func (c *Client) GetStats(ctx context.Context) (map[string]interface{}, error) {
	resp := new(structpb.Struct)
	if err := c.invoke(ctx, service.MethodStats, &emptypb.Empty{}, resp); err != nil {
		return nil, err
	}
	return resp.AsMap(), nil
}

// Compact asks the server to rotate its log into the next page
func (c *Client) Compact(ctx context.Context) error {
	return c.invoke(ctx, service.MethodCompact, &emptypb.Empty{}, new(emptypb.Empty))
}

// Format erases every page on the server
func (c *Client) Format(ctx context.Context) error {
	return c.invoke(ctx, service.MethodFormat, &emptypb.Empty{}, new(emptypb.Empty))
}

func recordInfo(st *structpb.Struct) RecordInfo {
	f := st.GetFields()
	return RecordInfo{
		ID:       uint8(f["id"].GetNumberValue()),
		Name:     f["name"].GetStringValue(),
		Length:   uint32(f["length"].GetNumberValue()),
		Checksum: uint8(f["checksum"].GetNumberValue()),
		Page:     int(f["page"].GetNumberValue()),
		Offset:   uint32(f["offset"].GetNumberValue()),
	}
}

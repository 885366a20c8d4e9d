package service

import (
	"context"
	"encoding/base64"
	"errors"
	"time"

	"github.com/KevoDB/flashkv/pkg/common/log"
	"github.com/KevoDB/flashkv/pkg/store"
	"github.com/KevoDB/flashkv/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// RecordStore is the part of store.Store the service exposes
type RecordStore interface {
	Find(name string) (*store.Record, error)
	Get(name string) ([]byte, error)
	Write(ctx context.Context, name string, payload []byte) (*store.Record, error)
	Delete(ctx context.Context, name string) error
	List() ([]*store.Record, error)
	Usage() (store.Usage, error)
	Stats() map[string]interface{}
	Compact(ctx context.Context) error
	Format(ctx context.Context) error
}

// RecordServiceServer implementation backed by a RecordStore
type RecordService struct {
	store         RecordStore
	logger        log.Logger
	tel           telemetry.Telemetry
	compactionSem chan struct{} // one compaction or format at a time
}

// Option configures a RecordService
type Option func(*RecordService)

// WithLogger sets the service logger
func WithLogger(logger log.Logger) Option {
	return func(s *RecordService) {
		s.logger = logger
	}
}

// WithTelemetry sets the telemetry used for request metrics and spans
func WithTelemetry(tel telemetry.Telemetry) Option {
	return func(s *RecordService) {
		s.tel = tel
	}
}

// NewRecordService creates a service over st
func NewRecordService(st RecordStore, options ...Option) *RecordService {
	s := &RecordService{
		store:         st,
		logger:        log.GetDefaultLogger().WithField("component", telemetry.ComponentService),
		tel:           telemetry.NewNoop(),
		compactionSem: make(chan struct{}, 1),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

var _ RecordServiceServer = (*RecordService)(nil)

// Find returns the header of the live record stored under a name
func (s *RecordService) Find(ctx context.Context, req *wrapperspb.StringValue) (resp *structpb.Struct, err error) {
	_, finish := s.begin(ctx, telemetry.OpTypeFind, req.GetValue())
	defer func() { finish(err) }()

	rec, err := s.store.Find(req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return recordStruct(rec)
}

// Get returns the payload of the live record stored under a name
func (s *RecordService) Get(ctx context.Context, req *wrapperspb.StringValue) (resp *wrapperspb.BytesValue, err error) {
	_, finish := s.begin(ctx, telemetry.OpTypeRead, req.GetValue())
	defer func() { finish(err) }()

	payload, err := s.store.Get(req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bytes(payload), nil
}

// Put writes a record. The request carries "name" and a base64 "value".
func (s *RecordService) Put(ctx context.Context, req *structpb.Struct) (resp *structpb.Struct, err error) {
	name, payload, err := putRequest(req)
	if err != nil {
		return nil, err
	}

	ctx, finish := s.begin(ctx, telemetry.OpTypeWrite, name)
	defer func() { finish(err) }()

	rec, err := s.store.Write(ctx, name, payload)
	if err != nil {
		return nil, toStatus(err)
	}
	if rec == nil {
		// empty value for a name with nothing to delete
		return structpb.NewStruct(map[string]interface{}{"name": name, "length": 0})
	}
	return recordStruct(rec)
}

// Delete tombstones the record stored under a name
func (s *RecordService) Delete(ctx context.Context, req *wrapperspb.StringValue) (resp *emptypb.Empty, err error) {
	ctx, finish := s.begin(ctx, telemetry.OpTypeDelete, req.GetValue())
	defer func() { finish(err) }()

	if err := s.store.Delete(ctx, req.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// List returns the header of every live record on the current page
func (s *RecordService) List(ctx context.Context, _ *emptypb.Empty) (*structpb.ListValue, error) {
	records, err := s.store.List()
	if err != nil {
		return nil, toStatus(err)
	}

	list := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(records))}
	for _, rec := range records {
		entry, err := recordStruct(rec)
		if err != nil {
			return nil, err
		}
		list.Values = append(list.Values, structpb.NewStructValue(entry))
	}
	return list, nil
}

// Usage reports how the current page is used
func (s *RecordService) Usage(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	u, err := s.store.Usage()
	if err != nil {
		return nil, toStatus(err)
	}
	return structpb.NewStruct(map[string]interface{}{
		"page":         u.Page,
		"page_size":    u.PageSize,
		"used":         u.Used,
		"free":         u.Free,
		"live_bytes":   u.LiveBytes,
		"live_records": u.LiveRecords,
		"headers":      u.Headers,
	})
}

// Stats returns the store statistics
func (s *RecordService) Stats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(s.store.Stats())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode stats: %v", err)
	}
	return st, nil
}

// Compact forces a page rotation
func (s *RecordService) Compact(ctx context.Context, _ *emptypb.Empty) (resp *emptypb.Empty, err error) {
	select {
	case s.compactionSem <- struct{}{}:
		defer func() { <-s.compactionSem }()
	default:
		return nil, status.Error(codes.Unavailable, "compaction is already in progress")
	}

	ctx, finish := s.begin(ctx, telemetry.OpTypeCompact, "")
	defer func() { finish(err) }()

	if err := s.store.Compact(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// Format erases every page
func (s *RecordService) Format(ctx context.Context, _ *emptypb.Empty) (resp *emptypb.Empty, err error) {
	select {
	case s.compactionSem <- struct{}{}:
		defer func() { <-s.compactionSem }()
	default:
		return nil, status.Error(codes.Unavailable, "compaction is already in progress")
	}

	ctx, finish := s.begin(ctx, telemetry.OpTypeFormat, "")
	defer func() { finish(err) }()

	if err := s.store.Format(ctx); err != nil {
		return nil, toStatus(err)
	}
	s.logger.Warn("Store formatted by client request")
	return &emptypb.Empty{}, nil
}

// begin opens a span for a request and returns a func that records its outcome
func (s *RecordService) begin(ctx context.Context, op, name string) (context.Context, func(error)) {
	start := time.Now()
	attrs := []attribute.KeyValue{
		attribute.String(telemetry.AttrComponent, telemetry.ComponentService),
		attribute.String(telemetry.AttrOperationType, op),
	}
	if name != "" {
		attrs = append(attrs, attribute.String(telemetry.AttrRecordName, name))
	}
	ctx, span := s.tel.StartSpan(ctx, "flashkv.service."+op, attrs...)

	return ctx, func(err error) {
		result := telemetry.StatusSuccess
		if err != nil {
			result = telemetry.StatusError
			span.RecordError(err)
			if status.Code(err) == codes.Internal || status.Code(err) == codes.Unavailable {
				s.logger.Error("Request %s %q failed: %v", op, name, err)
			}
		}
		telemetry.RecordDuration(ctx, s.tel, "flashkv.service.request.duration", start,
			attribute.String(telemetry.AttrOperationType, op),
			attribute.String(telemetry.AttrStatus, result),
		)
		span.End()
	}
}

func putRequest(req *structpb.Struct) (string, []byte, error) {
	fields := req.GetFields()
	name := fields["name"].GetStringValue()
	if name == "" {
		return "", nil, status.Error(codes.InvalidArgument, "name is required")
	}

	payload, err := base64.StdEncoding.DecodeString(fields["value"].GetStringValue())
	if err != nil {
		return "", nil, status.Errorf(codes.InvalidArgument, "value is not base64: %v", err)
	}
	return name, payload, nil
}

// recordStruct encodes a record header and its location
func recordStruct(rec *store.Record) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(map[string]interface{}{
		"id":       uint32(rec.ID),
		"name":     rec.Name,
		"length":   rec.Length,
		"checksum": uint32(rec.Checksum),
		"page":     rec.Addr.Page,
		"offset":   rec.Addr.Offset,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode record: %v", err)
	}
	return st, nil
}

// toStatus maps store errors onto gRPC status codes
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	var code codes.Code
	switch {
	case errors.Is(err, store.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, store.ErrNameTooLong), errors.Is(err, store.ErrEmptyName),
		errors.Is(err, store.ErrInvalidName), errors.Is(err, store.ErrRecordTooLarge),
		errors.Is(err, store.ErrInvalidHandle):
		code = codes.InvalidArgument
	case errors.Is(err, store.ErrStoreFull), errors.Is(err, store.ErrIDSpaceExhausted):
		code = codes.ResourceExhausted
	case errors.Is(err, store.ErrIDConflict), errors.Is(err, store.ErrStoreFailed):
		code = codes.FailedPrecondition
	case errors.Is(err, store.ErrFlashTimeout):
		code = codes.DeadlineExceeded
	case errors.Is(err, store.ErrClosed):
		code = codes.Unavailable
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"testing"

	"github.com/KevoDB/flashkv/pkg/common/log"
	"github.com/KevoDB/flashkv/pkg/flash"
	"github.com/KevoDB/flashkv/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func quiet() log.Logger {
	return log.NewDiscardLogger()
}

func newTestStore(t *testing.T, pageSize uint32) *store.Store {
	t.Helper()
	ctrl, err := flash.NewMemoryController(flash.Geometry{PageSize: pageSize, PageCount: flash.DefaultPageCount})
	require.NoError(t, err)
	st, err := store.Open(context.Background(), ctrl, store.WithLogger(quiet()))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

// dial serves svc over an in-memory listener and returns a connected client conn
func dial(t *testing.T, svc RecordServiceServer) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	RegisterRecordServiceServer(server, svc)
	go server.Serve(lis)
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func put(t *testing.T, conn *grpc.ClientConn, name string, value []byte) (*structpb.Struct, error) {
	t.Helper()
	req, err := structpb.NewStruct(map[string]interface{}{
		"name":  name,
		"value": base64.StdEncoding.EncodeToString(value),
	})
	require.NoError(t, err)
	resp := new(structpb.Struct)
	err = conn.Invoke(context.Background(), MethodPut, req, resp)
	return resp, err
}

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	conn := dial(t, NewRecordService(newTestStore(t, 1024), WithLogger(quiet())))

	resp, err := put(t, conn, "mode", []byte("rainbow"))
	require.NoError(t, err)
	assert.Equal(t, "mode", resp.Fields["name"].GetStringValue())
	assert.Equal(t, float64(1), resp.Fields["id"].GetNumberValue())
	assert.Equal(t, float64(7), resp.Fields["length"].GetNumberValue())

	got := new(wrapperspb.BytesValue)
	require.NoError(t, conn.Invoke(ctx, MethodGet, wrapperspb.String("mode"), got))
	assert.Equal(t, []byte("rainbow"), got.GetValue())

	found := new(structpb.Struct)
	require.NoError(t, conn.Invoke(ctx, MethodFind, wrapperspb.String("mode"), found))
	assert.Equal(t, float64(0), found.Fields["offset"].GetNumberValue())

	require.NoError(t, conn.Invoke(ctx, MethodDelete, wrapperspb.String("mode"), new(emptypb.Empty)))
	err = conn.Invoke(ctx, MethodGet, wrapperspb.String("mode"), got)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestListAndUsage(t *testing.T) {
	ctx := context.Background()
	conn := dial(t, NewRecordService(newTestStore(t, 1024), WithLogger(quiet())))

	for _, name := range []string{"hue", "sat", "val", "hue"} {
		_, err := put(t, conn, name, []byte(name+"-v"))
		require.NoError(t, err)
	}

	list := new(structpb.ListValue)
	require.NoError(t, conn.Invoke(ctx, MethodList, &emptypb.Empty{}, list))
	var names []string
	for _, v := range list.Values {
		names = append(names, v.GetStructValue().Fields["name"].GetStringValue())
	}
	assert.Equal(t, []string{"hue", "sat", "val"}, names)

	usage := new(structpb.Struct)
	require.NoError(t, conn.Invoke(ctx, MethodUsage, &emptypb.Empty{}, usage))
	assert.Equal(t, float64(3), usage.Fields["live_records"].GetNumberValue())
	assert.Equal(t, float64(4), usage.Fields["headers"].GetNumberValue())
	assert.Equal(t, float64(1024), usage.Fields["page_size"].GetNumberValue())
}

func TestCompactFormatAndStats(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t, 1024)
	conn := dial(t, NewRecordService(st, WithLogger(quiet())))

	_, err := put(t, conn, "a", []byte("1111"))
	require.NoError(t, err)

	require.NoError(t, conn.Invoke(ctx, MethodCompact, &emptypb.Empty{}, new(emptypb.Empty)))
	assert.Equal(t, 1, st.Page())

	stats := new(structpb.Struct)
	require.NoError(t, conn.Invoke(ctx, MethodStats, &emptypb.Empty{}, stats))
	assert.Equal(t, float64(1), stats.Fields["compaction_count"].GetNumberValue())
	assert.NotNil(t, stats.Fields["discovery"].GetStructValue())

	require.NoError(t, conn.Invoke(ctx, MethodFormat, &emptypb.Empty{}, new(emptypb.Empty)))
	assert.Equal(t, 0, st.Page())
	err = conn.Invoke(ctx, MethodFind, wrapperspb.String("a"), new(structpb.Struct))
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestErrorCodes(t *testing.T) {
	conn := dial(t, NewRecordService(newTestStore(t, 256), WithLogger(quiet())))

	tests := []struct {
		name  string
		value []byte
		code  codes.Code
	}{
		{"", []byte("x"), codes.InvalidArgument},
		{"a-name-that-is-far-too-long-for-a-header", []byte("x"), codes.InvalidArgument},
		{"big", make([]byte, 1024), codes.InvalidArgument},
		{"fits", make([]byte, 256-36), codes.OK},
		{"other", make([]byte, 200), codes.ResourceExhausted},
	}

	for _, tt := range tests {
		_, err := put(t, conn, tt.name, tt.value)
		assert.Equal(t, tt.code, status.Code(err), "put %q", tt.name)
	}
}

func TestPutRejectsBadValue(t *testing.T) {
	conn := dial(t, NewRecordService(newTestStore(t, 256), WithLogger(quiet())))

	req, err := structpb.NewStruct(map[string]interface{}{"name": "x", "value": "not base64!"})
	require.NoError(t, err)
	err = conn.Invoke(context.Background(), MethodPut, req, new(structpb.Struct))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestPutEmptyValueForAbsentName(t *testing.T) {
	st := newTestStore(t, 256)
	conn := dial(t, NewRecordService(st, WithLogger(quiet())))

	req, err := structpb.NewStruct(map[string]interface{}{"name": "ghost", "value": ""})
	require.NoError(t, err)
	resp := new(structpb.Struct)
	require.NoError(t, conn.Invoke(context.Background(), MethodPut, req, resp))
	assert.Equal(t, "ghost", resp.GetFields()["name"].GetStringValue())
	assert.Zero(t, resp.GetFields()["length"].GetNumberValue())

	records, err := st.List()
	require.NoError(t, err)
	assert.Empty(t, records)
	usage, err := st.Usage()
	require.NoError(t, err)
	assert.Zero(t, usage.Headers)
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{store.ErrNotFound, codes.NotFound},
		{store.ErrStoreFull, codes.ResourceExhausted},
		{store.ErrIDSpaceExhausted, codes.ResourceExhausted},
		{store.ErrIDConflict, codes.FailedPrecondition},
		{fmt.Errorf("%w: %w", store.ErrStoreFailed, store.ErrFlashTimeout), codes.FailedPrecondition},
		{store.ErrFlashTimeout, codes.DeadlineExceeded},
		{store.ErrFlashFault, codes.Internal},
		{store.ErrClosed, codes.Unavailable},
		{status.Error(codes.Aborted, "kept"), codes.Aborted},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.code, status.Code(toStatus(tt.err)), "%v", tt.err)
	}
	assert.NoError(t, toStatus(nil))
}

func TestCompactionIsExclusive(t *testing.T) {
	svc := NewRecordService(newTestStore(t, 256), WithLogger(quiet()))
	svc.compactionSem <- struct{}{}

	_, err := svc.Compact(context.Background(), &emptypb.Empty{})
	assert.Equal(t, codes.Unavailable, status.Code(err))

	<-svc.compactionSem
	_, err = svc.Compact(context.Background(), &emptypb.Empty{})
	assert.NoError(t, err)
}

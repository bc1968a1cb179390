package grpcserver_test

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/momentapp/notifier/internal/grpcserver"
)

func dialHealth(t *testing.T, srv *grpcserver.HealthServer) grpc_health_v1.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Server.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return grpc_health_v1.NewHealthClient(conn)
}

func check(client grpc_health_v1.HealthClient) grpc_health_v1.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: "notifier"})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN
	}
	return resp.GetStatus()
}

func TestHealthServer_FollowsChecks(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)

	srv := grpcserver.New("notifier", map[string]grpcserver.Check{
		"event_bus": func(context.Context) bool { return healthy.Load() },
	}, zaptest.NewLogger(t)).WithInterval(20 * time.Millisecond)

	client := dialHealth(t, srv)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, check(client))

	srv.Start(context.Background())
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, check(client))

	healthy.Store(false)
	require.Eventually(t, func() bool {
		return check(client) == grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}, time.Second, 10*time.Millisecond)

	healthy.Store(true)
	require.Eventually(t, func() bool {
		return check(client) == grpc_health_v1.HealthCheckResponse_SERVING
	}, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

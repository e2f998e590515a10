package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/kumarabd/gokit/logger"
	"github.com/kumarabd/redaction-plane/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func TestGRPCHealth(t *testing.T) {
	log, err := logger.New("test", logger.Options{Format: logger.JSONLogFormat})
	require.NoError(t, err)
	metric, err := metrics.New("test")
	require.NoError(t, err)

	server := NewGRPC(&GRPCConfig{MaxConcurrentStreams: 10}, log, metric)

	listener := bufconn.Listen(1 << 20)
	go func() {
		_ = server.Serve(listener)
	}()
	t.Cleanup(server.handler.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client := healthpb.NewHealthClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	server.SetServing(true)
	resp, err = client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	_, err = client.Check(ctx, &healthpb.HealthCheckRequest{Service: "unknown"})
	assert.Error(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(metric.RequestsReceived.WithLabelValues("/grpc.health.v1.Health/Check", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metric.RequestsReceived.WithLabelValues("/grpc.health.v1.Health/Check", "NotFound")))
}

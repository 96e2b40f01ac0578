package server_test

import (
	"QuoteLedger/internal/observability"
	"QuoteLedger/internal/server"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestStatusServer_HealthFollowsPhase(t *testing.T) {
	checker := observability.NewHealthChecker()
	srv := server.NewStatusServer("127.0.0.1:0", "127.0.0.1:0", checker, nil)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ServeGRPC(ctx, lis) }()
	defer func() {
		cancel()
		<-done
	}()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		callCtx, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer callCancel()
		resp, err := client.Check(callCtx, &healthpb.HealthCheckRequest{Service: server.ReplayService})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())

	checker.SetPhase(observability.PhaseReplaying, "")
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check())

	checker.SetPhase(observability.PhaseFailed, "source error")
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check())
}

func TestStatusServer_HTTPEndpoints(t *testing.T) {
	checker := observability.NewHealthChecker()
	reg := prometheus.NewRegistry()
	observability.NewMetricsWith(reg)
	srv := server.NewStatusServer("127.0.0.1:0", "127.0.0.1:0", checker, reg)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, get("/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz").Code)

	checker.SetPhase(observability.PhaseDone, "")
	assert.Equal(t, http.StatusOK, get("/readyz").Code)

	metrics := get("/metrics")
	assert.Equal(t, http.StatusOK, metrics.Code)
	assert.True(t, strings.Contains(metrics.Body.String(), "replay_core_sequence"))
}

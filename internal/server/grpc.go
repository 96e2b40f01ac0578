package server

import (
	"QuoteLedger/internal/observability"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ReplayService is the health service name reported for the replay run.
const ReplayService = "quoteledger.Replay"

// StatusServer exposes the run phase over gRPC health checks and serves
// /healthz, /readyz and /metrics over HTTP.
type StatusServer struct {
	grpcServer   *grpc.Server
	healthServer *health.Server
	httpServer   *http.Server
	grpcAddr     string
	httpAddr     string
	logger       zerolog.Logger
}

// NewStatusServer registers the health and reflection services and follows
// the checker's phase. gatherer may be nil to omit /metrics.
func NewStatusServer(grpcAddr, httpAddr string, checker *observability.HealthChecker, gatherer prometheus.Gatherer) *StatusServer {
	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	s := &StatusServer{
		grpcServer:   grpcServer,
		healthServer: healthServer,
		grpcAddr:     grpcAddr,
		httpAddr:     httpAddr,
		logger:       observability.NewLogger("status-server"),
	}

	s.httpServer = &http.Server{
		Addr:              httpAddr,
		Handler:           newHTTPMux(checker, gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if checker != nil {
		checker.Watch(s.setPhase)
	} else {
		s.setPhase(observability.PhaseReplaying)
	}

	return s
}

func newHTTPMux(checker *observability.HealthChecker, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	if checker != nil {
		mux.HandleFunc("/healthz", checker.LivenessHandler)
		mux.HandleFunc("/readyz", checker.ReadinessHandler)
	} else {
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			fmt.Fprintf(w, `{"status":"ok"}`)
		})
	}
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// setPhase maps the run phase onto gRPC serving status.
func (s *StatusServer) setPhase(p observability.Phase) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if p == observability.PhaseReplaying || p == observability.PhaseDone {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.healthServer.SetServingStatus("", status)
	s.healthServer.SetServingStatus(ReplayService, status)

	s.logger.Debug().Str("phase", p.String()).Str("status", status.String()).Msg("health status updated")
}

// Handler returns the HTTP handler serving health and metrics.
func (s *StatusServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// StartGRPC listens on the configured address and serves until ctx is done.
func (s *StatusServer) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return s.ServeGRPC(ctx, lis)
}

// ServeGRPC serves on an existing listener until ctx is done.
func (s *StatusServer) ServeGRPC(ctx context.Context, lis net.Listener) error {
	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("gRPC server shutting down")
		s.healthServer.Shutdown()
		s.grpcServer.GracefulStop()
	}()

	s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC server listening")
	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// StartHTTP serves health and metrics until ctx is done.
func (s *StatusServer) StartHTTP(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.logger.Info().Msg("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", s.httpAddr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

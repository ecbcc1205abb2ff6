package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"MarginCore/internal/assets"
	"MarginCore/internal/monitor"
	"MarginCore/internal/observability"
	"MarginCore/internal/query"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Deps holds what the API surface needs. Mu guards Monitor: the tick
// loop owns the monitor and HTTP handlers take the same lock before
// reading it.
type Deps struct {
	Monitor       *monitor.PositionsMonitor
	Mu            *sync.Mutex
	Query         *query.Service
	HealthChecker *observability.HealthChecker
	Logger        zerolog.Logger
}

// Server exposes the read-only HTTP/JSON API plus the gRPC health
// endpoint used by orchestration probes.
type Server struct {
	grpcServer   *grpc.Server
	healthServer *health.Server
	httpServer   *http.Server
	grpcAddr     string
	httpAddr     string
	deps         *Deps
}

func NewServer(grpcAddr, httpAddr string, deps *Deps) *Server {
	grpcServer := grpc.NewServer()

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	// Reflection for grpcurl / grpcui
	reflection.Register(grpcServer)

	return &Server{
		grpcServer:   grpcServer,
		healthServer: healthServer,
		grpcAddr:     grpcAddr,
		httpAddr:     httpAddr,
		deps:         deps,
	}
}

// SetServing flips the gRPC health status once the monitor loop is up.
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.healthServer.SetServingStatus("", status)
}

// StartGRPC starts the gRPC server (blocking).
func (s *Server) StartGRPC(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.grpcAddr)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		s.deps.Logger.Info().Msg("grpc server shutting down")
		s.grpcServer.GracefulStop()
	}()

	s.deps.Logger.Info().Str("addr", s.grpcAddr).Msg("grpc server listening")
	return s.grpcServer.Serve(lis)
}

// StartHTTP starts the HTTP API (blocking). Routes are registered on a
// gateway mux so path parameters and error shapes match the rest of
// the platform's gateway-fronted services.
func (s *Server) StartHTTP(ctx context.Context) error {
	mux := runtime.NewServeMux()

	if err := s.registerRoutes(mux); err != nil {
		return fmt.Errorf("register routes: %w", err)
	}

	httpMux := http.NewServeMux()
	httpMux.HandleFunc("/healthz", s.deps.HealthChecker.LivenessHandler)
	httpMux.HandleFunc("/readyz", s.deps.HealthChecker.ReadinessHandler)
	httpMux.Handle("/metrics", promhttp.Handler())
	httpMux.Handle("/", mux)

	s.httpServer = &http.Server{
		Addr:    s.httpAddr,
		Handler: httpMux,
	}

	go func() {
		<-ctx.Done()
		s.deps.Logger.Info().Msg("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.deps.Logger.Info().Str("addr", s.httpAddr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) registerRoutes(mux *runtime.ServeMux) error {
	if err := mux.HandlePath("GET", "/v1/positions/{id}", s.handleGetPosition); err != nil {
		return err
	}
	if err := mux.HandlePath("GET", "/v1/wallets/{id}", s.handleGetWallet); err != nil {
		return err
	}
	if err := mux.HandlePath("GET", "/v1/wallets/{id}/positions", s.handleGetWalletPositions); err != nil {
		return err
	}
	if err := mux.HandlePath("GET", "/v1/wallets/{id}/history", s.handleGetWalletHistory); err != nil {
		return err
	}
	if err := mux.HandlePath("GET", "/v1/traders/{id}/history", s.handleGetTraderHistory); err != nil {
		return err
	}
	if err := mux.HandlePath("GET", "/v1/stats", s.handleGetStats); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	id, err := assets.ParsePositionID(pathParams["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid position id: %v", err))
		return
	}

	s.deps.Mu.Lock()
	pos := s.deps.Monitor.Get(id)
	if pos == nil {
		s.deps.Mu.Unlock()
		writeError(w, http.StatusNotFound, "position not found")
		return
	}
	payload, err := json.Marshal(newPositionView(pos, s.deps.Monitor.IsLocked(id)))
	s.deps.Mu.Unlock()

	writeJSON(w, payload, err)
}

func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	id := assets.WalletID(pathParams["id"])

	s.deps.Mu.Lock()
	wal := s.deps.Monitor.GetWallet(id)
	if wal == nil {
		s.deps.Mu.Unlock()
		writeError(w, http.StatusNotFound, "wallet not found")
		return
	}
	payload, err := json.Marshal(newWalletView(wal))
	s.deps.Mu.Unlock()

	writeJSON(w, payload, err)
}

func (s *Server) handleGetWalletPositions(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	id := assets.WalletID(pathParams["id"])

	s.deps.Mu.Lock()
	positions := s.deps.Monitor.GetByWalletID(id)
	views := make([]positionView, 0, len(positions))
	for _, pos := range positions {
		views = append(views, newPositionView(pos, s.deps.Monitor.IsLocked(pos.GetID())))
	}
	payload, err := json.Marshal(views)
	s.deps.Mu.Unlock()

	writeJSON(w, payload, err)
}

func (s *Server) handleGetWalletHistory(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	records, err := s.deps.Query.WalletHistory(r.Context(), pathParams["id"],
		queryInt(r, "limit"), int64(queryInt(r, "before")))
	if err != nil {
		s.deps.Logger.Error().Err(err).Msg("wallet history query")
		writeError(w, http.StatusInternalServerError, "query wallet history")
		return
	}
	payload, err := json.Marshal(records)
	writeJSON(w, payload, err)
}

func (s *Server) handleGetTraderHistory(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	records, err := s.deps.Query.TraderHistory(r.Context(), pathParams["id"],
		queryInt(r, "limit"), int64(queryInt(r, "before")))
	if err != nil {
		s.deps.Logger.Error().Err(err).Msg("trader history query")
		writeError(w, http.StatusInternalServerError, "query trader history")
		return
	}
	payload, err := json.Marshal(records)
	writeJSON(w, payload, err)
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	s.deps.Mu.Lock()
	stats := s.deps.Monitor.Stats()
	s.deps.Mu.Unlock()

	payload, err := json.Marshal(newStatsView(stats))
	writeJSON(w, payload, err)
}

func queryInt(r *http.Request, key string) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func writeJSON(w http.ResponseWriter, payload []byte, err error) {
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":%q}`, message)
}

package rpc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Server exposes a Service over HTTP, grounded on the teacher's own small
// chi-routed HTTP APIs for the bulk of the request/response surface
// (cmd/explorer/server.go's chi.NewRouter pattern), with the peer-facing
// websocket heartbeat stream mounted as its own gorilla/mux sub-router —
// the teacher reaches for mux specifically where a handler needs
// mux.Vars-style path params alongside a raw http.Handler upgrade
// (cmd/xchainserver/server.go). The Orchestrator starts this server the
// first time the node becomes Leader and stops it only at shutdown; a
// step-down leaves it running, and only SubmitTransaction's leader check
// changes behavior.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	svc        *Service
}

// NewServer builds the router and binds it to addr, but does not start
// listening — call Start.
func NewServer(addr string, svc *Service) *Server {
	s := &Server{svc: svc, router: chi.NewRouter()}
	s.routes()
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(loggingMiddleware)
	s.router.Post("/api/tx", s.handleSubmitTx)
	s.router.Get("/api/accounts/{address}/balance", s.handleGetBalance)
	s.router.Get("/api/accounts/{address}/statement", s.handleGetStatement)
	s.router.Get("/api/accounts/{address}/segments", s.handleStreamAccountSegments)
	s.router.Get("/api/accounts", s.handleGetAccounts)
	s.router.Get("/api/tokens", s.handleGetTokens)
	s.router.Get("/api/status", s.handleClusterStatus)
	s.router.Mount("/ws", s.heartbeatRouter())
}

// heartbeatRouter isolates the websocket upgrade behind its own
// gorilla/mux router: mux.Vars's path-parameter shape is what the status
// stream's peer-scoped variant (/ws/heartbeat/{peer}) uses to address a
// single validator's feed, distinct from chi's param style used
// everywhere else in this file.
func (s *Server) heartbeatRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/heartbeat", s.handleHeartbeatStream)
	r.HandleFunc("/heartbeat/{peer}", s.handleHeartbeatStream)
	return r
}

// Start blocks serving HTTP until Stop is called (http.ErrServerClosed is
// swallowed, matching net/http's own graceful-shutdown idiom).
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down within the given deadline.
func (s *Server) Stop(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	var req SubmitTxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, SubmitTxResponse{Success: false, ErrorMessage: err.Error()})
		return
	}
	resp, err := s.svc.SubmitTransaction(req)
	if err != nil {
		if _, ok := err.(*ErrNotLeader); ok {
			writeJSON(w, http.StatusServiceUnavailable, SubmitTxResponse{Success: false, ErrorMessage: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, SubmitTxResponse{Success: false, ErrorMessage: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "address")
	asset := r.URL.Query().Get("asset")
	resp, err := s.svc.GetBalance(addr, asset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetStatement(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "address")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	resp, err := s.svc.GetStatement(addr, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStreamAccountSegments serves raw AEC segment bytes for bulk export
// and audit tooling, not for wallet/explorer statement display — those go
// through handleGetStatement instead.
func (s *Server) handleStreamAccountSegments(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "address")
	from, to := parseTickRange(r)
	stream, err := s.svc.StreamAccountSegments(addr, from, to)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, stream); err != nil {
		logrus.WithError(err).Warn("rpc: segment stream write failed")
	}
}

func parseTickRange(r *http.Request) (from, to uint64) {
	to = ^uint64(0)
	if v := r.URL.Query().Get("from_tick"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			from = n
		}
	}
	if v := r.URL.Query().Get("to_tick"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			to = n
		}
	}
	return from, to
}

func (s *Server) handleGetAccounts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.GetAccounts())
}

func (s *Server) handleGetTokens(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.GetTokens())
}

func (s *Server) handleClusterStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.GetClusterStatus())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logrus.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Debug("rpc request")
	})
}

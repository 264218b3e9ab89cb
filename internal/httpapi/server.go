package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/BrandonDHaskell/Portunus/gate/internal/auth"
	"github.com/BrandonDHaskell/Portunus/gate/internal/clock"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/barrier"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/service"
	"github.com/BrandonDHaskell/Portunus/gate/internal/gate/types"
	"github.com/BrandonDHaskell/Portunus/gate/internal/obs"
)

// RateLimit bounds requests per client IP on the controller endpoints.
// PerSecond <= 0 disables limiting.
type RateLimit struct {
	PerSecond float64
	Burst     int
}

type Dependencies struct {
	Logger         *log.Logger
	Addr           string
	Clock          clock.Clock
	AccessService  *service.AccessService
	CommandService *service.CommandService
	Barrier        *barrier.Barrier
	Verifier       *auth.Verifier
	Metrics        *obs.Metrics
	RateLimit      RateLimit
}

type Server struct {
	httpServer     *http.Server
	logger         *log.Logger
	mux            *http.ServeMux
	clock          clock.Clock
	accessService  *service.AccessService
	commandService *service.CommandService
	barrier        *barrier.Barrier
	metrics        *obs.Metrics
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	clk := d.Clock
	if clk == nil {
		clk = clock.Real()
	}

	s := &Server{
		logger:         d.Logger,
		mux:            mux,
		clock:          clk,
		accessService:  d.AccessService,
		commandService: d.CommandService,
		barrier:        d.Barrier,
		metrics:        d.Metrics,
	}

	limiter := newRateLimiter(d.RateLimit.PerSecond, d.RateLimit.Burst)
	authed := func(h http.HandlerFunc) http.Handler { return requireAuth(d.Verifier, h) }

	// Controller endpoints.
	s.handle("POST /v1/access/validate", limiter.wrap(http.HandlerFunc(s.handleValidate)))
	s.handle("GET /v1/access/command", limiter.wrap(http.HandlerFunc(s.handlePoll)))

	// Resident endpoints.
	s.handle("POST /v1/access/manual-open", authed(s.handleManualOpen))
	s.handle("POST /v1/access/manual-close", authed(s.handleManualClose))
	s.handle("GET /v1/access/commands/{id}", authed(s.handleGetCommand))

	s.handle("GET /v1/access/barrier", http.HandlerFunc(s.handleBarrier))
	s.handle("GET /healthz", http.HandlerFunc(s.handleHealthz))
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics.Handler())
	}

	handler := requestID(loggingMiddleware(d.Logger, mux))

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) handle(pattern string, h http.Handler) {
	if s.metrics != nil {
		h = s.metrics.Instrument(pattern, h)
	}
	s.mux.Handle(pattern, h)
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var code string
	protobuf := isProtobuf(r)

	if protobuf {
		var msg wrapperspb.StringValue
		if err := readProto(r, &msg); err != nil {
			writeError(w, http.StatusBadRequest, "bad_protobuf", "invalid protobuf body")
			return
		}
		code = msg.GetValue()
	} else {
		var req types.ValidateRequest
		dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
		dec.DisallowUnknownFields()

		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
			return
		}
		code = req.Code
	}

	resp, err := s.accessService.Validate(r.Context(), code)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCode) {
			writeError(w, http.StatusBadRequest, "invalid_code", err.Error())
			return
		}
		s.logger.Printf("validate error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	if protobuf {
		writeProto(w, http.StatusOK, validateResponseToProto(resp))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	verb, err := s.commandService.ClaimNext(r.Context())
	if err != nil {
		s.logger.Printf("poll error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	if acceptsProtobuf(r) {
		writeProto(w, http.StatusOK, pollResponseToProto(verb))
		return
	}
	writeJSON(w, http.StatusOK, types.PollResponse{Command: verb})
}

func (s *Server) handleManualOpen(w http.ResponseWriter, r *http.Request) {
	s.handleManual(w, r, s.commandService.ManualOpen)
}

func (s *Server) handleManualClose(w http.ResponseWriter, r *http.Request) {
	s.handleManual(w, r, s.commandService.ManualClose)
}

func (s *Server) handleManual(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) (types.ManualCommandResponse, error)) {
	userID, _ := auth.UserIDFromContext(r.Context())

	resp, err := fn(r.Context(), userID)
	if err != nil {
		s.writeServiceError(w, "manual command", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetCommand(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_id", "command id must be a positive integer")
		return
	}
	userID, _ := auth.UserIDFromContext(r.Context())

	rec, err := s.commandService.Get(r.Context(), userID, id)
	if err != nil {
		s.writeServiceError(w, "get command", err)
		return
	}
	writeJSON(w, http.StatusOK, commandView(rec))
}

func (s *Server) handleBarrier(w http.ResponseWriter, r *http.Request) {
	snap := s.barrier.Status()
	writeJSON(w, http.StatusOK, barrierStatusResponse(snap, s.clock.Now().UTC()))
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "not_authorized", err.Error())
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		s.logger.Printf("%s error: %v", op, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}

package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/mentxia/mordomo/internal/cron"
	. "github.com/mentxia/mordomo/internal/logging"
	"github.com/mentxia/mordomo/internal/types"
)

// Ops are the registered operations exposed to the surrounding
// automation layer over /api. Function fields keep the server decoupled
// from the engine wiring.
type Ops struct {
	ScheduleJob      func(expr, description string, commands []types.ToolCall, createdBy string, oneShot bool) (*cron.Job, error)
	RemoveJob        func(id string) error
	JobsReport       func(createdBy string) string
	CreateAutomation func(ctx context.Context, spec map[string]any) (string, error)
}

// Server hosts the inbound webhook and the registered-operations API.
type Server struct {
	listen   string
	apiToken string
	adapter  *Adapter
	ops      Ops
	httpSrv  *http.Server
}

func NewServer(listen, apiToken string, adapter *Adapter, ops Ops) *Server {
	return &Server{
		listen:   listen,
		apiToken: apiToken,
		adapter:  adapter,
		ops:      ops,
	}
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /api/send-message", s.authorized(s.handleSendMessage))
	mux.HandleFunc("POST /api/schedule-job", s.authorized(s.handleScheduleJob))
	mux.HandleFunc("POST /api/remove-job", s.authorized(s.handleRemoveJob))
	mux.HandleFunc("POST /api/list-jobs", s.authorized(s.handleListJobs))
	mux.HandleFunc("POST /api/create-automation", s.authorized(s.handleCreateAutomation))
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	mux := s.routes()

	s.httpSrv = &http.Server{
		Addr:              s.listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpSrv.Shutdown(shutdownCtx)
	}()

	L_info("gateway: http server listening", "addr", s.listen, "provider", s.adapter.ProviderName())
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// authorized enforces the bearer API token on /api handlers. With no
// token configured the API is disabled outright rather than left open.
func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiToken == "" {
			http.Error(w, "api disabled: no apiToken configured", http.StatusForbidden)
			return
		}
		got := r.Header.Get("Authorization")
		want := "Bearer " + s.apiToken
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "provider": s.adapter.ProviderName()})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	if err := s.adapter.HandleInbound(body); err != nil {
		L_warn("gateway: webhook parse failed", "error", err)
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To      string `json:"to"`
		Message string `json:"message"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.To == "" || req.Message == "" {
		http.Error(w, "to and message are required", http.StatusBadRequest)
		return
	}
	if err := s.adapter.Send(r.Context(), req.To, req.Message); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
}

func (s *Server) handleScheduleJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CronExpression string           `json:"cron_expression"`
		Description    string           `json:"description"`
		Commands       []types.ToolCall `json:"commands"`
		CreatedBy      string           `json:"created_by"`
		OneShot        bool             `json:"one_shot"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	job, err := s.ops.ScheduleJob(req.CronExpression, req.Description, req.Commands, req.CreatedBy, req.OneShot)
	if err != nil {
		var invalid *cron.ErrInvalidExpression
		if errors.As(err, &invalid) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleRemoveJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobID string `json:"job_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.ops.RemoveJob(req.JobID); err != nil {
		var notFound *cron.ErrJobNotFound
		if errors.As(err, &notFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

// handleListJobs emits its result asynchronously through the gateway:
// the caller is usually an automation rule, not a live conversation.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CreatedBy string `json:"created_by"`
		Notify    string `json:"notify"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	notify := req.Notify
	if notify == "" {
		notify = req.CreatedBy
	}
	if notify == "" {
		http.Error(w, "notify or created_by is required", http.StatusBadRequest)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		report := s.ops.JobsReport(req.CreatedBy)
		if err := s.adapter.Send(ctx, notify, report); err != nil {
			L_error("gateway: list-jobs notification failed", "to", notify, "error", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "notifying", "to": notify})
}

func (s *Server) handleCreateAutomation(w http.ResponseWriter, r *http.Request) {
	var spec map[string]any
	if !decodeBody(w, r, &spec) {
		return
	}
	id, err := s.ops.CreateAutomation(r.Context(), spec)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"automation_id": id})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

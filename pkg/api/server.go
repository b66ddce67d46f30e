package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/brasaforge/forge/internal/adapters/providers"
	"github.com/brasaforge/forge/internal/core/domain"
	"github.com/brasaforge/forge/internal/core/ports"
	"github.com/brasaforge/forge/internal/core/services"
)

const userIDHeader = "X-Forge-User-ID"

// Server exposes the public HTTP surface: enqueue endpoints, job status,
// credit estimation and provider discovery. It never runs jobs itself; all
// generation work goes through the queue.
type Server struct {
	logger   *slog.Logger
	queue    *services.QueueEngine
	store    ports.CommandStore
	limiter  *services.RateLimiter
	registry *providers.Registry
	sites    ports.SiteRepository
	tracker  ports.JobTracker
	ledger   ports.CreditLedger
	apiLogs  ports.APILogRecorder
}

func NewServer(
	logger *slog.Logger,
	queue *services.QueueEngine,
	store ports.CommandStore,
	limiter *services.RateLimiter,
	registry *providers.Registry,
	sites ports.SiteRepository,
	tracker ports.JobTracker,
	ledger ports.CreditLedger,
	apiLogs ports.APILogRecorder,
) *Server {
	return &Server{
		logger:   logger,
		queue:    queue,
		store:    store,
		limiter:  limiter,
		registry: registry,
		sites:    sites,
		tracker:  tracker,
		ledger:   ledger,
		apiLogs:  apiLogs,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/generate-site", s.withAudit("/api/generate-site", s.handleGenerateSite))
	mux.HandleFunc("POST /api/edit-section", s.withAudit("/api/edit-section", s.handleEditSection))
	mux.HandleFunc("POST /api/generate-image", s.withAudit("/api/generate-image", s.handleGenerateImage))
	mux.HandleFunc("GET /api/job/{id}", s.withAudit("/api/job", s.handleJobStatus))
	mux.HandleFunc("POST /api/credits/estimate", s.withAudit("/api/credits/estimate", s.handleEstimateCredits))
	mux.HandleFunc("GET /api/providers", s.withAudit("/api/providers", s.handleListProviders))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return mux
}

// handlerFunc handlers return the status code they wrote plus request
// attribution for the audit row.
type handlerResult struct {
	status     int
	userID     string
	providerID domain.ProviderID
	model      string
	errMessage string
}

type handlerFunc func(w http.ResponseWriter, r *http.Request) handlerResult

func (s *Server) withAudit(route string, h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		res := h(w, r)
		s.apiLogs.Record(r.Context(), ports.APILogEntry{
			Route:        route,
			UserID:       res.userID,
			StatusCode:   res.status,
			Duration:     time.Since(start),
			ProviderID:   res.providerID,
			Model:        res.model,
			ErrorMessage: res.errMessage,
		})
	}
}

// authenticate resolves the calling user from the request headers. Identity
// verification happens upstream at the gateway; an absent header is the only
// rejection here.
func (s *Server) authenticate(r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get(userIDHeader))
	return userID, userID != ""
}

// checkRate applies a fixed per-user window to route. A nil error means the
// request may proceed.
func (s *Server) checkRate(ctx context.Context, route, userID string, limit int) error {
	_, err := s.limiter.Allow(ctx, route+":"+userID, limit, time.Minute)
	return err
}

func (s *Server) resolveProvider(id domain.ProviderID) (domain.Provider, error) {
	return s.registry.Get(id)
}

// estimateCredits asks the provider to price the call, falling back to a
// flat default when the backend cannot estimate.
func (s *Server) estimateCredits(ctx context.Context, p domain.Provider, model string, promptTokens, completionTokens int, fallback float64) float64 {
	estimator, ok := p.(domain.CostEstimator)
	if !ok {
		return fallback
	}
	credits, err := estimator.EstimateCost(ctx, domain.CostEstimate{
		Model:            model,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
	})
	if err != nil || credits <= 0 {
		return fallback
	}
	return credits
}

// ensureBalance rejects a request whose estimated cost exceeds the user's
// available credits.
func (s *Server) ensureBalance(ctx context.Context, userID string, estimated float64) error {
	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to check balance: %w", err)
	}
	if balance.Available < estimated {
		return domain.ErrInsufficientCredits
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// fail writes an error response and builds the matching audit result.
func fail(w http.ResponseWriter, status int, userID, message string) handlerResult {
	writeError(w, status, message)
	return handlerResult{status: status, userID: userID, errMessage: message}
}

// rateLimited maps a limiter rejection to a 429 with Retry-After.
func rateLimited(w http.ResponseWriter, userID string, err error) (handlerResult, bool) {
	var rl *services.RateLimitError
	if errors.As(err, &rl) {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rl.RetryAfter.Seconds())))
		return fail(w, http.StatusTooManyRequests, userID, "rate limit exceeded"), true
	}
	return handlerResult{}, false
}

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

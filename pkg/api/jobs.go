package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/brasaforge/forge/internal/core/domain"
	"github.com/brasaforge/forge/internal/core/services"
)

const (
	generateSiteRateLimit  = 10
	editSectionRateLimit   = 20
	generateImageRateLimit = 10

	// Fallback estimates when the provider cannot price the call.
	fallbackSiteEstimate  = 10
	fallbackEditEstimate  = 4
	fallbackImageEstimate = 5

	// Replay window for duplicate submits carrying the same Idempotency-Key.
	idempotencyTTL = 60 * time.Second
)

type generateSiteRequest struct {
	SiteID   string                `json:"siteId"`
	Provider domain.ProviderID     `json:"provider"`
	Model    string                `json:"model"`
	Briefing services.SiteBriefing `json:"briefing"`
}

type enqueueResponse struct {
	JobID            string  `json:"jobId"`
	SiteID           string  `json:"siteId,omitempty"`
	Status           string  `json:"status"`
	EstimatedCredits float64 `json:"estimatedCredits"`
}

func (s *Server) handleGenerateSite(w http.ResponseWriter, r *http.Request) handlerResult {
	ctx := r.Context()

	userID, ok := s.authenticate(r)
	if !ok {
		return fail(w, http.StatusUnauthorized, "", "missing user identity")
	}

	if err := s.checkRate(ctx, "generate-site", userID, generateSiteRateLimit); err != nil {
		if res, limited := rateLimited(w, userID, err); limited {
			return res
		}
		return fail(w, http.StatusInternalServerError, userID, "rate limit check failed")
	}

	var req generateSiteRequest
	if err := decodeBody(r, &req); err != nil {
		return fail(w, http.StatusBadRequest, userID, err.Error())
	}
	if req.Briefing.Prompt == "" || req.Briefing.Title == "" {
		return fail(w, http.StatusBadRequest, userID, "briefing title and prompt are required")
	}

	provider, err := s.resolveProvider(req.Provider)
	if err != nil {
		return fail(w, http.StatusBadRequest, userID, err.Error())
	}

	if replayed, res := s.replayIdempotent(ctx, w, r, "generate-site", userID); replayed {
		return res
	}

	estimated := s.estimateCredits(ctx, provider, req.Model, len(req.Briefing.Prompt)/4, 1024, fallbackSiteEstimate)
	if err := s.ensureBalance(ctx, userID, estimated); err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			return fail(w, http.StatusPaymentRequired, userID, "insufficient credits")
		}
		s.logger.Error("balance check failed", "user_id", userID, "error", err)
		return fail(w, http.StatusInternalServerError, userID, "failed to check credits")
	}

	siteID := req.SiteID
	site := domain.Site{
		ID:         siteID,
		UserID:     userID,
		Title:      req.Briefing.Title,
		ProviderID: req.Provider,
		Model:      req.Model,
		Palette:    req.Briefing.Palette,
		Sector:     req.Briefing.Sector,
		LastPrompt: req.Briefing.Prompt,
	}
	if siteID == "" {
		siteID = uuid.NewString()
		site.ID = siteID
		if err := s.sites.CreateDraftSite(ctx, site); err != nil {
			s.logger.Error("failed to create draft site", "user_id", userID, "error", err)
			return fail(w, http.StatusInternalServerError, userID, "failed to create site")
		}
	} else {
		if res, ok := s.checkOwnership(ctx, w, siteID, userID); !ok {
			return res
		}
		if err := s.sites.UpdateDraftSite(ctx, site); err != nil {
			s.logger.Error("failed to update draft site", "site_id", siteID, "error", err)
			return fail(w, http.StatusInternalServerError, userID, "failed to update site")
		}
	}

	briefing, err := json.Marshal(req.Briefing)
	if err != nil {
		return fail(w, http.StatusInternalServerError, userID, "failed to encode briefing")
	}

	jobID := uuid.NewString()
	if err := s.tracker.Insert(ctx, domain.TrackedJob{
		ID:               jobID,
		UserID:           userID,
		SiteID:           siteID,
		Kind:             domain.JobKindGenerateSite,
		Status:           domain.TrackedQueued,
		ProviderID:       req.Provider,
		Model:            req.Model,
		Prompt:           req.Briefing.Prompt,
		EstimatedCredits: estimated,
	}); err != nil {
		s.logger.Error("failed to insert job row", "job_id", jobID, "error", err)
		return fail(w, http.StatusInternalServerError, userID, "failed to track job")
	}

	if _, err := s.queue.Enqueue(ctx, domain.JobPayload{
		Kind:       domain.JobKindGenerateSite,
		UserID:     userID,
		ProviderID: req.Provider,
		Model:      req.Model,
		Prompt:     string(briefing),
		SiteID:     siteID,
	}, services.EnqueueOptions{ID: jobID}); err != nil {
		s.logger.Error("failed to enqueue job", "job_id", jobID, "error", err)
		return fail(w, http.StatusInternalServerError, userID, "failed to enqueue job")
	}

	resp := enqueueResponse{JobID: jobID, SiteID: siteID, Status: "queued", EstimatedCredits: estimated}
	s.storeIdempotent(ctx, r, "generate-site", userID, resp)
	writeJSON(w, http.StatusAccepted, resp)
	return handlerResult{status: http.StatusAccepted, userID: userID, providerID: req.Provider, model: req.Model}
}

type editSectionRequest struct {
	SiteID      string            `json:"siteId"`
	PageRoute   string            `json:"pageRoute"`
	SectionID   string            `json:"sectionId"`
	Instruction string            `json:"instruction"`
	Provider    domain.ProviderID `json:"provider"`
	Model       string            `json:"model"`
}

func (s *Server) handleEditSection(w http.ResponseWriter, r *http.Request) handlerResult {
	ctx := r.Context()

	userID, ok := s.authenticate(r)
	if !ok {
		return fail(w, http.StatusUnauthorized, "", "missing user identity")
	}

	if err := s.checkRate(ctx, "edit-section", userID, editSectionRateLimit); err != nil {
		if res, limited := rateLimited(w, userID, err); limited {
			return res
		}
		return fail(w, http.StatusInternalServerError, userID, "rate limit check failed")
	}

	var req editSectionRequest
	if err := decodeBody(r, &req); err != nil {
		return fail(w, http.StatusBadRequest, userID, err.Error())
	}
	if req.SiteID == "" || req.PageRoute == "" || req.SectionID == "" || req.Instruction == "" {
		return fail(w, http.StatusBadRequest, userID, "siteId, pageRoute, sectionId and instruction are required")
	}

	provider, err := s.resolveProvider(req.Provider)
	if err != nil {
		return fail(w, http.StatusBadRequest, userID, err.Error())
	}

	if res, ok := s.checkOwnership(ctx, w, req.SiteID, userID); !ok {
		return res
	}

	// Prompt size is instruction plus the serialized section context.
	estimated := s.estimateCredits(ctx, provider, req.Model, len(req.Instruction)/4+400, 512, fallbackEditEstimate)
	if err := s.ensureBalance(ctx, userID, estimated); err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			return fail(w, http.StatusPaymentRequired, userID, "insufficient credits")
		}
		s.logger.Error("balance check failed", "user_id", userID, "error", err)
		return fail(w, http.StatusInternalServerError, userID, "failed to check credits")
	}

	jobID := uuid.NewString()
	if err := s.tracker.Insert(ctx, domain.TrackedJob{
		ID:               jobID,
		UserID:           userID,
		SiteID:           req.SiteID,
		Kind:             domain.JobKindEditSection,
		Status:           domain.TrackedQueued,
		ProviderID:       req.Provider,
		Model:            req.Model,
		Prompt:           req.Instruction,
		EstimatedCredits: estimated,
		Metadata: map[string]string{
			"pageRoute": req.PageRoute,
			"sectionId": req.SectionID,
		},
	}); err != nil {
		s.logger.Error("failed to insert job row", "job_id", jobID, "error", err)
		return fail(w, http.StatusInternalServerError, userID, "failed to track job")
	}

	if _, err := s.queue.Enqueue(ctx, domain.JobPayload{
		Kind:        domain.JobKindEditSection,
		UserID:      userID,
		ProviderID:  req.Provider,
		Model:       req.Model,
		SiteID:      req.SiteID,
		PageRoute:   req.PageRoute,
		SectionID:   req.SectionID,
		Instruction: req.Instruction,
	}, services.EnqueueOptions{ID: jobID}); err != nil {
		s.logger.Error("failed to enqueue job", "job_id", jobID, "error", err)
		return fail(w, http.StatusInternalServerError, userID, "failed to enqueue job")
	}

	resp := enqueueResponse{JobID: jobID, SiteID: req.SiteID, Status: "queued", EstimatedCredits: estimated}
	writeJSON(w, http.StatusAccepted, resp)
	return handlerResult{status: http.StatusAccepted, userID: userID, providerID: req.Provider, model: req.Model}
}

type generateImageRequest struct {
	Prompt   string            `json:"prompt"`
	Provider domain.ProviderID `json:"provider"`
	Model    string            `json:"model"`
	Size     domain.ImageSize  `json:"size"`
	SiteID   string            `json:"siteId"`
}

func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) handlerResult {
	ctx := r.Context()

	userID, ok := s.authenticate(r)
	if !ok {
		return fail(w, http.StatusUnauthorized, "", "missing user identity")
	}

	if err := s.checkRate(ctx, "generate-image", userID, generateImageRateLimit); err != nil {
		if res, limited := rateLimited(w, userID, err); limited {
			return res
		}
		return fail(w, http.StatusInternalServerError, userID, "rate limit check failed")
	}

	var req generateImageRequest
	if err := decodeBody(r, &req); err != nil {
		return fail(w, http.StatusBadRequest, userID, err.Error())
	}
	if req.Prompt == "" {
		return fail(w, http.StatusBadRequest, userID, "prompt is required")
	}

	provider, err := s.resolveProvider(req.Provider)
	if err != nil {
		return fail(w, http.StatusBadRequest, userID, err.Error())
	}
	if !domain.SupportsImages(provider) {
		return fail(w, http.StatusBadRequest, userID, "provider does not support image generation")
	}

	if req.SiteID != "" {
		if res, ok := s.checkOwnership(ctx, w, req.SiteID, userID); !ok {
			return res
		}
	}

	estimated := float64(fallbackImageEstimate)
	if err := s.ensureBalance(ctx, userID, estimated); err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			return fail(w, http.StatusPaymentRequired, userID, "insufficient credits")
		}
		s.logger.Error("balance check failed", "user_id", userID, "error", err)
		return fail(w, http.StatusInternalServerError, userID, "failed to check credits")
	}

	jobID := uuid.NewString()
	if err := s.tracker.Insert(ctx, domain.TrackedJob{
		ID:               jobID,
		UserID:           userID,
		SiteID:           req.SiteID,
		Kind:             domain.JobKindGenerateImage,
		Status:           domain.TrackedQueued,
		ProviderID:       req.Provider,
		Model:            req.Model,
		Prompt:           req.Prompt,
		EstimatedCredits: estimated,
	}); err != nil {
		s.logger.Error("failed to insert job row", "job_id", jobID, "error", err)
		return fail(w, http.StatusInternalServerError, userID, "failed to track job")
	}

	if _, err := s.queue.Enqueue(ctx, domain.JobPayload{
		Kind:       domain.JobKindGenerateImage,
		UserID:     userID,
		ProviderID: req.Provider,
		Model:      req.Model,
		Prompt:     req.Prompt,
		SiteID:     req.SiteID,
		Size:       req.Size,
	}, services.EnqueueOptions{ID: jobID}); err != nil {
		s.logger.Error("failed to enqueue job", "job_id", jobID, "error", err)
		return fail(w, http.StatusInternalServerError, userID, "failed to enqueue job")
	}

	resp := enqueueResponse{JobID: jobID, SiteID: req.SiteID, Status: "queued", EstimatedCredits: estimated}
	writeJSON(w, http.StatusAccepted, resp)
	return handlerResult{status: http.StatusAccepted, userID: userID, providerID: req.Provider, model: req.Model}
}

type jobStatusResponse struct {
	Job   *domain.TrackedJob `json:"job"`
	Queue *queueStateView    `json:"queue,omitempty"`
}

type queueStateView struct {
	Status    domain.JobStatus `json:"status"`
	Attempts  int              `json:"attempts"`
	LastError string           `json:"lastError,omitempty"`
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) handlerResult {
	ctx := r.Context()

	userID, ok := s.authenticate(r)
	if !ok {
		return fail(w, http.StatusUnauthorized, "", "missing user identity")
	}

	jobID := r.PathValue("id")
	tracked, err := s.tracker.Get(ctx, jobID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return fail(w, http.StatusNotFound, userID, "job not found")
		}
		s.logger.Error("failed to load job row", "job_id", jobID, "error", err)
		return fail(w, http.StatusInternalServerError, userID, "failed to load job")
	}

	resp := jobStatusResponse{Job: tracked}
	if envelope, err := s.queue.GetJob(ctx, jobID); err == nil {
		resp.Queue = &queueStateView{
			Status:    envelope.Status,
			Attempts:  envelope.Attempts,
			LastError: envelope.LastError,
		}
	}

	writeJSON(w, http.StatusOK, resp)
	return handlerResult{status: http.StatusOK, userID: userID, providerID: tracked.ProviderID, model: tracked.Model}
}

// checkOwnership rejects access to sites the caller does not own. ok=false
// means the rejection has already been written.
func (s *Server) checkOwnership(ctx context.Context, w http.ResponseWriter, siteID, userID string) (handlerResult, bool) {
	owner, err := s.sites.GetSiteOwner(ctx, siteID)
	if err != nil {
		if errors.Is(err, domain.ErrSiteNotFound) {
			return fail(w, http.StatusNotFound, userID, "site not found"), false
		}
		s.logger.Error("failed to load site owner", "site_id", siteID, "error", err)
		return fail(w, http.StatusInternalServerError, userID, "failed to load site"), false
	}
	if owner != userID {
		return fail(w, http.StatusForbidden, userID, "site belongs to another user"), false
	}
	return handlerResult{}, true
}

// replayIdempotent serves a cached response when the request repeats an
// Idempotency-Key seen within the replay window.
func (s *Server) replayIdempotent(ctx context.Context, w http.ResponseWriter, r *http.Request, route, userID string) (bool, handlerResult) {
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		return false, handlerResult{}
	}

	cached, ok, err := s.store.Get(ctx, idempotencyKey(route, userID, key))
	if err != nil {
		s.logger.Warn("idempotency lookup failed", "route", route, "error", err)
		return false, handlerResult{}
	}
	if !ok {
		return false, handlerResult{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte(cached))
	return true, handlerResult{status: http.StatusAccepted, userID: userID}
}

func (s *Server) storeIdempotent(ctx context.Context, r *http.Request, route, userID string, resp enqueueResponse) {
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := s.store.Set(ctx, idempotencyKey(route, userID, key), string(raw), idempotencyTTL); err != nil {
		s.logger.Warn("failed to store idempotent response", "route", route, "error", err)
	}
}

func idempotencyKey(route, userID, key string) string {
	return "idem:" + route + ":" + userID + ":" + key
}

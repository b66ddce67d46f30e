package api

import (
	"net/http"

	"github.com/brasaforge/forge/internal/core/domain"
)

type estimateRequest struct {
	Provider         domain.ProviderID `json:"provider"`
	Model            string            `json:"model"`
	PromptTokens     int               `json:"promptTokens"`
	CompletionTokens int               `json:"completionTokens"`
}

type estimateResponse struct {
	Provider         domain.ProviderID `json:"provider"`
	Model            string            `json:"model"`
	EstimatedCredits float64           `json:"estimatedCredits"`
	Balance          *balanceView      `json:"balance,omitempty"`
}

type balanceView struct {
	Available float64 `json:"available"`
	Total     float64 `json:"total"`
	Used      float64 `json:"used"`
	Plan      string  `json:"plan,omitempty"`
}

func (s *Server) handleEstimateCredits(w http.ResponseWriter, r *http.Request) handlerResult {
	ctx := r.Context()

	userID, ok := s.authenticate(r)
	if !ok {
		return fail(w, http.StatusUnauthorized, "", "missing user identity")
	}

	var req estimateRequest
	if err := decodeBody(r, &req); err != nil {
		return fail(w, http.StatusBadRequest, userID, err.Error())
	}
	if req.PromptTokens <= 0 {
		return fail(w, http.StatusBadRequest, userID, "promptTokens must be positive")
	}
	if req.CompletionTokens <= 0 {
		// Output typically runs a bit longer than the input for generation.
		req.CompletionTokens = req.PromptTokens * 12 / 10
	}

	provider, err := s.resolveProvider(req.Provider)
	if err != nil {
		return fail(w, http.StatusBadRequest, userID, err.Error())
	}

	estimated := s.estimateCredits(ctx, provider, req.Model, req.PromptTokens, req.CompletionTokens, fallbackSiteEstimate)

	resp := estimateResponse{
		Provider:         req.Provider,
		Model:            req.Model,
		EstimatedCredits: estimated,
	}
	if balance, err := s.ledger.GetBalance(ctx, userID); err == nil {
		resp.Balance = &balanceView{
			Available: balance.Available,
			Total:     balance.Total,
			Used:      balance.Used,
			Plan:      balance.Plan,
		}
	}

	writeJSON(w, http.StatusOK, resp)
	return handlerResult{status: http.StatusOK, userID: userID, providerID: req.Provider, model: req.Model}
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) handlerResult {
	userID, _ := s.authenticate(r)
	writeJSON(w, http.StatusOK, map[string]any{"providers": s.registry.List()})
	return handlerResult{status: http.StatusOK, userID: userID}
}

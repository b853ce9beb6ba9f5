package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	appErrors "github.com/fixhub/workshop-backend/internal/errors"
	"github.com/fixhub/workshop-backend/internal/model"
	"github.com/fixhub/workshop-backend/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
	Log             zerolog.Logger
}

// Routes mounts the campaign API.
func (c *CampaignController) Routes(r chi.Router) {
	r.Post("/campaigns", c.CreateCampaign)
	r.Get("/campaigns", c.ListCampaigns)
	r.Get("/campaigns/{id}", c.GetCampaign)
	r.Post("/campaigns/preview", c.PreviewAudience)
	r.Post("/campaigns/{id}/start", c.action((*service.CampaignService).Start))
	r.Post("/campaigns/{id}/pause", c.action((*service.CampaignService).Pause))
	r.Post("/campaigns/{id}/resume", c.action((*service.CampaignService).Resume))
	r.Post("/campaigns/{id}/cancel", c.action((*service.CampaignService).Cancel))
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var in service.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
		return
	}
	campaign, err := c.CampaignService.Create(in)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := c.CampaignService.List()
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": campaigns})
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid campaign id"})
		return
	}
	details, err := c.CampaignService.Get(id)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (c *CampaignController) PreviewAudience(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Filters model.FilterSpec `json:"filters"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid body"})
		return
	}
	preview, err := c.CampaignService.Preview(body.Filters)
	if err != nil {
		c.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// action wraps the four lifecycle transitions, which share their signature.
func (c *CampaignController) action(fn func(*service.CampaignService, int) (*model.Campaign, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid campaign id"})
			return
		}
		campaign, err := fn(c.CampaignService, id)
		if err != nil {
			c.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, campaign)
	}
}

func (c *CampaignController) writeError(w http.ResponseWriter, err error) {
	var validation *appErrors.ValidationError
	var notFound *appErrors.CampaignNotFoundError
	var conflict *appErrors.StateConflictError
	var unavailable *appErrors.ResourceUnavailableError

	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":            err.Error(),
			"current_status":   conflict.Current,
			"requested_status": conflict.Requested,
		})
	case errors.As(err, &unavailable):
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
	default:
		c.Log.Error().Err(err).Msg("unhandled API error")
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

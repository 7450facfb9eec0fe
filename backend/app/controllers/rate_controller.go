package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"rynx/backend/app/models"
	"rynx/backend/app/repo"
	"rynx/backend/app/services"
	"rynx/protocol"
)

type RateController struct{ Rates *repo.RateRepository }

func NewRateController(rates *repo.RateRepository) *RateController {
	return &RateController{Rates: rates}
}

func (c *RateController) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	rate, err := c.Rates.FindByID(uint(id))
	if err != nil {
		writeErr(w, services.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, protocol.Rate{
		ID:          rate.ID,
		Name:        rate.Name,
		UnitPrice:   rate.UnitPrice,
		UnitMinutes: rate.UnitMinutes,
	})
}

type createRateRequest struct {
	Name        string  `json:"name"`
	UnitPrice   float64 `json:"unit_price"`
	UnitMinutes int     `json:"unit_minutes"`
}

func (c *RateController) Create(w http.ResponseWriter, r *http.Request) {
	var req createRateRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Name == "" || req.UnitPrice <= 0 || req.UnitMinutes <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid rate"})
		return
	}
	rate := &models.Rate{Name: req.Name, UnitPrice: req.UnitPrice, UnitMinutes: req.UnitMinutes}
	if err := c.Rates.Create(rate); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, protocol.Rate{
		ID:          rate.ID,
		Name:        rate.Name,
		UnitPrice:   rate.UnitPrice,
		UnitMinutes: rate.UnitMinutes,
	})
}

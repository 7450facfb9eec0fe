package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"rynx/backend/app/services"
	"rynx/protocol"
)

type MemberController struct{ Members *services.MemberService }

func NewMemberController(members *services.MemberService) *MemberController {
	return &MemberController{Members: members}
}

// Auth verifies a username/PIN pair on behalf of a lockscreen.
func (c *MemberController) Auth(w http.ResponseWriter, r *http.Request) {
	var req protocol.MemberAuthRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Username == "" || req.PIN == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing credentials"})
		return
	}
	m, err := c.Members.Authenticate(req.Username, req.PIN)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, services.MemberToWire(m))
}

func (c *MemberController) Debit(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	var req protocol.DebitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	m, err := c.Members.Debit(uint(id), req.Amount)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.DebitResponse{Credits: m.Credits})
}

type createMemberRequest struct {
	Username string  `json:"username"`
	PIN      string  `json:"pin"`
	Credits  float64 `json:"credits"`
}

func (c *MemberController) Create(w http.ResponseWriter, r *http.Request) {
	var req createMemberRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Username == "" || req.PIN == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing username or pin"})
		return
	}
	m, err := c.Members.Create(req.Username, req.PIN, req.Credits)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, services.MemberToWire(m))
}

package controllers

import (
	"encoding/json"
	"net/http"

	"rynx/backend/app/services"
)

type SessionController struct{ Sessions *services.SessionService }

func NewSessionController(sessions *services.SessionService) *SessionController {
	return &SessionController{Sessions: sessions}
}

func (c *SessionController) Start(w http.ResponseWriter, r *http.Request) {
	var req services.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	sess, err := c.Sessions.Start(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, services.SessionToWire(sess))
}

// ActiveByDevice serves the agent's point read of its own session; 404
// means no active session, which is a normal state for the caller.
func (c *SessionController) ActiveByDevice(w http.ResponseWriter, r *http.Request) {
	sess, err := c.Sessions.ActiveByDeviceCode(r.PathValue("code"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, services.SessionToWire(sess))
}

func (c *SessionController) Patch(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	sess, err := c.Sessions.Patch(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, services.SessionToWire(sess))
}

package controllers

import (
	"encoding/json"
	"net/http"

	"rynx/backend/app/services"
	"rynx/protocol"
)

type CommandController struct{ Commands *services.CommandService }

func NewCommandController(commands *services.CommandService) *CommandController {
	return &CommandController{Commands: commands}
}

func (c *CommandController) Create(w http.ResponseWriter, r *http.Request) {
	var req services.CreateCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	cmd, err := c.Commands.Create(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, services.CommandToWire(cmd))
}

// PendingByDevice returns the device's unresolved command queue in FIFO
// order.
func (c *CommandController) PendingByDevice(w http.ResponseWriter, r *http.Request) {
	cmds, err := c.Commands.PendingByDevice(r.PathValue("code"))
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]protocol.Command, 0, len(cmds))
	for i := range cmds {
		out = append(out, services.CommandToWire(&cmds[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

type resolveRequest struct {
	Status protocol.CommandStatus `json:"status"`
	Error  string                 `json:"error"`
}

func (c *CommandController) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := c.Commands.Resolve(r.PathValue("id"), req.Status, req.Error); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package controllers

import (
	"encoding/json"
	"net/http"

	jwtutil "rynx/backend/app/jwt"
	"rynx/backend/app/services"
	"rynx/protocol"
)

type DeviceController struct {
	Devices *services.DeviceService
	Signer  *jwtutil.Signer
}

func NewDeviceController(devices *services.DeviceService, signer *jwtutil.Signer) *DeviceController {
	return &DeviceController{Devices: devices, Signer: signer}
}

// Register is the one unauthenticated device endpoint; it returns the record
// plus the token the agent presents from then on. Re-registration of a known
// code returns the existing record.
func (c *DeviceController) Register(w http.ResponseWriter, r *http.Request) {
	var req protocol.RegisterRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing device code"})
		return
	}
	d, err := c.Devices.Register(r.Context(), req)
	if err != nil {
		writeErr(w, err)
		return
	}
	token, err := c.Signer.SignDevice(d.Code)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.RegisterResponse{Device: services.ToWire(d), Token: token})
}

func (c *DeviceController) Get(w http.ResponseWriter, r *http.Request) {
	d, err := c.Devices.FindByCode(r.PathValue("code"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, services.ToWire(d))
}

func (c *DeviceController) List(w http.ResponseWriter, r *http.Request) {
	devices, err := c.Devices.ListAll()
	if err != nil {
		writeErr(w, err)
		return
	}
	out := make([]protocol.Device, 0, len(devices))
	for i := range devices {
		out = append(out, services.ToWire(&devices[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (c *DeviceController) Patch(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if err := c.Devices.Patch(r.Context(), r.PathValue("code"), patch); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignRequest struct {
	BranchID uint `json:"branch_id"`
	RateID   uint `json:"rate_id"`
}

// Assign approves a pending device into a branch with a rate.
func (c *DeviceController) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.BranchID == 0 || req.RateID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing branch or rate"})
		return
	}
	if err := c.Devices.Assign(r.Context(), r.PathValue("code"), req.BranchID, req.RateID); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *DeviceController) Heartbeat(w http.ResponseWriter, r *http.Request) {
	if err := c.Devices.Heartbeat(r.PathValue("code")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package controllers

import (
	"encoding/json"
	"net/http"

	jwtutil "rynx/backend/app/jwt"
	"rynx/backend/app/services"
)

type AuthController struct {
	Users  *services.UserService
	Signer *jwtutil.Signer
}

func NewAuthController(users *services.UserService, signer *jwtutil.Signer) *AuthController {
	return &AuthController{Users: users, Signer: signer}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login authenticates an operator and issues the console token.
func (c *AuthController) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing credentials"})
		return
	}
	u, err := c.Users.Authenticate(req.Username, req.Password)
	if err != nil {
		writeErr(w, err)
		return
	}
	token, err := c.Signer.SignUser(u.ID, u.Username, u.Role)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token, "role": u.Role})
}

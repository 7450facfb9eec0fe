package router

import (
	"net/http"

	"rynx/backend/app/controllers"
	"rynx/backend/app/middleware"
)

// New builds the HTTP surface. Device-scoped routes accept the device's own
// token or an admin token; mutation of assignments, commands, rates and
// members is admin-only.
func New(
	authCtrl *controllers.AuthController,
	deviceCtrl *controllers.DeviceController,
	sessionCtrl *controllers.SessionController,
	memberCtrl *controllers.MemberController,
	commandCtrl *controllers.CommandController,
	rateCtrl *controllers.RateController,
	mw *middleware.Auth,
) http.Handler {
	mux := http.NewServeMux()

	// public
	mux.HandleFunc("POST /login", authCtrl.Login)
	mux.HandleFunc("POST /devices/register", deviceCtrl.Register)
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// device-scoped
	mux.Handle("GET /devices/{code}", mw.RequireDevice(http.HandlerFunc(deviceCtrl.Get)))
	mux.Handle("PATCH /devices/{code}", mw.RequireDevice(http.HandlerFunc(deviceCtrl.Patch)))
	mux.Handle("POST /devices/{code}/heartbeat", mw.RequireDevice(http.HandlerFunc(deviceCtrl.Heartbeat)))
	mux.Handle("GET /devices/{code}/session", mw.RequireDevice(http.HandlerFunc(sessionCtrl.ActiveByDevice)))
	mux.Handle("GET /devices/{code}/commands", mw.RequireDevice(http.HandlerFunc(commandCtrl.PendingByDevice)))

	// shared by agents and the console
	mux.Handle("POST /sessions", mw.RequireAuth(http.HandlerFunc(sessionCtrl.Start)))
	mux.Handle("PATCH /sessions/{id}", mw.RequireAuth(http.HandlerFunc(sessionCtrl.Patch)))
	mux.Handle("PATCH /commands/{id}", mw.RequireAuth(http.HandlerFunc(commandCtrl.Resolve)))
	mux.Handle("POST /members/auth", mw.RequireAuth(http.HandlerFunc(memberCtrl.Auth)))
	mux.Handle("POST /members/{id}/debit", mw.RequireAuth(http.HandlerFunc(memberCtrl.Debit)))
	mux.Handle("GET /rates/{id}", mw.RequireAuth(http.HandlerFunc(rateCtrl.Get)))

	// admin-only
	mux.Handle("GET /devices", mw.RequireAdmin(http.HandlerFunc(deviceCtrl.List)))
	mux.Handle("POST /devices/{code}/assign", mw.RequireAdmin(http.HandlerFunc(deviceCtrl.Assign)))
	mux.Handle("POST /commands", mw.RequireAdmin(http.HandlerFunc(commandCtrl.Create)))
	mux.Handle("POST /members", mw.RequireAdmin(http.HandlerFunc(memberCtrl.Create)))
	mux.Handle("POST /rates", mw.RequireAdmin(http.HandlerFunc(rateCtrl.Create)))

	return middleware.Logging(mux)
}

package router

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"rynx/backend/app/controllers"
	"rynx/backend/app/feed"
	jwtutil "rynx/backend/app/jwt"
	"rynx/backend/app/middleware"
	"rynx/backend/app/models"
	"rynx/backend/app/repo"
	"rynx/backend/app/services"
	"rynx/backend/global"
	"rynx/protocol"
)

type harness struct {
	srv        *httptest.Server
	adminToken string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	global.Logger = zerolog.New(io.Discard)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.Branch{}, &models.Rate{},
		&models.Device{}, &models.Member{}, &models.Session{}, &models.Command{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Create(&models.Branch{Name: "Main"}).Error; err != nil {
		t.Fatal(err)
	}
	if err := db.Create(&models.Rate{Name: "Standard", UnitPrice: 20, UnitMinutes: 60}).Error; err != nil {
		t.Fatal(err)
	}

	pub := feed.Noop{}
	userSvc := services.NewUserService(repo.NewUserRepository(db))
	deviceSvc := services.NewDeviceService(repo.NewDeviceRepository(db), pub)
	sessionSvc := services.NewSessionService(repo.NewSessionRepository(db), repo.NewDeviceRepository(db), pub)
	memberSvc := services.NewMemberService(repo.NewMemberRepository(db))
	commandSvc := services.NewCommandService(repo.NewCommandRepository(db), repo.NewDeviceRepository(db), pub)

	if err := userSvc.EnsureAdmin("admin", "admin123"); err != nil {
		t.Fatalf("seed admin: %v", err)
	}

	signer := &jwtutil.Signer{Secret: []byte("test-secret"), Issuer: "rynx-test", ExpMin: 60}
	h := New(
		controllers.NewAuthController(userSvc, signer),
		controllers.NewDeviceController(deviceSvc, signer),
		controllers.NewSessionController(sessionSvc),
		controllers.NewMemberController(memberSvc),
		controllers.NewCommandController(commandSvc),
		controllers.NewRateController(repo.NewRateRepository(db)),
		&middleware.Auth{Signer: signer},
	)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	admin, err := signer.SignUser(1, "admin", "admin")
	if err != nil {
		t.Fatal(err)
	}
	return &harness{srv: srv, adminToken: admin}
}

func (h *harness) call(t *testing.T, method, path, token string, in, out any) int {
	t.Helper()
	var body bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			t.Fatal(err)
		}
		body = *bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, &body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("%s %s decode: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestDeviceRegistrationAndScopedToken(t *testing.T) {
	h := newHarness(t)

	var reg protocol.RegisterResponse
	code := h.call(t, http.MethodPost, "/devices/register", "", protocol.RegisterRequest{Code: "RYNX-AB12CD34", Hostname: "pc-01"}, &reg)
	if code != http.StatusOK {
		t.Fatalf("register status = %d", code)
	}
	if reg.Token == "" || reg.Device.Status != protocol.DevicePending {
		t.Fatalf("register response = %+v", reg)
	}

	// unauthenticated reads are rejected
	if code := h.call(t, http.MethodGet, "/devices/RYNX-AB12CD34", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated read status = %d", code)
	}

	var dev protocol.Device
	if code := h.call(t, http.MethodGet, "/devices/RYNX-AB12CD34", reg.Token, nil, &dev); code != http.StatusOK {
		t.Fatalf("device read status = %d", code)
	}
	if dev.Assigned() {
		t.Fatal("fresh device reports assigned")
	}

	// a device token only opens its own device
	if code := h.call(t, http.MethodGet, "/devices/RYNX-OTHER", reg.Token, nil, nil); code != http.StatusForbidden {
		t.Fatalf("cross-device read status = %d, want 403", code)
	}
}

func TestOperatorFlow(t *testing.T) {
	h := newHarness(t)

	var login struct {
		Token string `json:"token"`
	}
	if code := h.call(t, http.MethodPost, "/login", "", map[string]string{"username": "admin", "password": "admin123"}, &login); code != http.StatusOK {
		t.Fatalf("login status = %d", code)
	}
	if login.Token == "" {
		t.Fatal("no token from login")
	}
	if code := h.call(t, http.MethodPost, "/login", "", map[string]string{"username": "admin", "password": "wrong"}, nil); code != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d", code)
	}

	var reg protocol.RegisterResponse
	h.call(t, http.MethodPost, "/devices/register", "", protocol.RegisterRequest{Code: "RYNX-0001"}, &reg)

	// device tokens cannot reach admin endpoints
	if code := h.call(t, http.MethodPost, "/devices/RYNX-0001/assign", reg.Token, map[string]uint{"branch_id": 1, "rate_id": 1}, nil); code != http.StatusForbidden {
		t.Fatalf("device token on admin endpoint = %d, want 403", code)
	}
	if code := h.call(t, http.MethodPost, "/devices/RYNX-0001/assign", login.Token, map[string]uint{"branch_id": 1, "rate_id": 1}, nil); code != http.StatusNoContent {
		t.Fatalf("assign status = %d", code)
	}

	var dev protocol.Device
	h.call(t, http.MethodGet, "/devices/RYNX-0001", reg.Token, nil, &dev)
	if !dev.Assigned() || dev.Status != protocol.DeviceOnline {
		t.Fatalf("device after assign = %+v", dev)
	}
}

func TestGuestSessionOverHTTP(t *testing.T) {
	h := newHarness(t)

	var reg protocol.RegisterResponse
	h.call(t, http.MethodPost, "/devices/register", "", protocol.RegisterRequest{Code: "RYNX-0001"}, &reg)
	h.call(t, http.MethodPost, "/devices/RYNX-0001/assign", h.adminToken, map[string]uint{"branch_id": 1, "rate_id": 1}, nil)

	// no session yet: 404 is the agent's normal "nothing active" answer
	if code := h.call(t, http.MethodGet, "/devices/RYNX-0001/session", reg.Token, nil, nil); code != http.StatusNotFound {
		t.Fatalf("no-session status = %d, want 404", code)
	}

	var sess protocol.Session
	start := map[string]any{"device_code": "RYNX-0001", "type": "guest", "time_remaining_seconds": 3600}
	if code := h.call(t, http.MethodPost, "/sessions", h.adminToken, start, &sess); code != http.StatusCreated {
		t.Fatalf("start status = %d", code)
	}
	if code := h.call(t, http.MethodPost, "/sessions", h.adminToken, start, nil); code != http.StatusConflict {
		t.Fatalf("second start status = %d, want 409", code)
	}

	var active protocol.Session
	if code := h.call(t, http.MethodGet, "/devices/RYNX-0001/session", reg.Token, nil, &active); code != http.StatusOK {
		t.Fatalf("active session status = %d", code)
	}
	if active.ID != sess.ID || *active.TimeRemainingSeconds != 3600 {
		t.Fatalf("active session = %+v", active)
	}

	// the agent reconciles counters, then ends
	if code := h.call(t, http.MethodPatch, "/sessions/"+sess.ID, reg.Token, map[string]any{"time_remaining_seconds": 3400, "total_seconds_used": 200}, nil); code != http.StatusOK {
		t.Fatalf("reconcile status = %d", code)
	}
	if code := h.call(t, http.MethodPatch, "/sessions/"+sess.ID, reg.Token, map[string]any{"status": "completed"}, nil); code != http.StatusOK {
		t.Fatalf("end status = %d", code)
	}
	if code := h.call(t, http.MethodGet, "/devices/RYNX-0001/session", reg.Token, nil, nil); code != http.StatusNotFound {
		t.Fatalf("session still active after end, status = %d", code)
	}
}

func TestCommandQueueOverHTTP(t *testing.T) {
	h := newHarness(t)

	var reg protocol.RegisterResponse
	h.call(t, http.MethodPost, "/devices/register", "", protocol.RegisterRequest{Code: "RYNX-0001"}, &reg)

	var cmd protocol.Command
	create := map[string]any{"device_code": "RYNX-0001", "type": "message", "payload": map[string]string{"text": "hi"}}
	if code := h.call(t, http.MethodPost, "/commands", h.adminToken, create, &cmd); code != http.StatusCreated {
		t.Fatalf("create command status = %d", code)
	}
	if code := h.call(t, http.MethodPost, "/commands", h.adminToken, map[string]any{"device_code": "RYNX-0001", "type": "format_disk"}, nil); code != http.StatusBadRequest {
		t.Fatalf("invalid type status = %d, want 400", code)
	}

	var pending []protocol.Command
	if code := h.call(t, http.MethodGet, "/devices/RYNX-0001/commands", reg.Token, nil, &pending); code != http.StatusOK {
		t.Fatalf("pending status = %d", code)
	}
	if len(pending) != 1 || pending[0].ID != cmd.ID {
		t.Fatalf("pending = %+v", pending)
	}

	if code := h.call(t, http.MethodPatch, "/commands/"+cmd.ID, reg.Token, map[string]any{"status": "executed"}, nil); code != http.StatusNoContent {
		t.Fatalf("resolve status = %d", code)
	}
	h.call(t, http.MethodGet, "/devices/RYNX-0001/commands", reg.Token, nil, &pending)
	if len(pending) != 0 {
		t.Fatal("resolved command re-delivered")
	}
}

func TestMemberAuthAndDebitOverHTTP(t *testing.T) {
	h := newHarness(t)

	var reg protocol.RegisterResponse
	h.call(t, http.MethodPost, "/devices/register", "", protocol.RegisterRequest{Code: "RYNX-0001"}, &reg)
	if code := h.call(t, http.MethodPost, "/members", h.adminToken, map[string]any{"username": "alice", "pin": "1234", "credits": 25}, nil); code != http.StatusCreated {
		t.Fatalf("create member status = %d", code)
	}

	var member protocol.Member
	if code := h.call(t, http.MethodPost, "/members/auth", reg.Token, protocol.MemberAuthRequest{Username: "alice", PIN: "1234"}, &member); code != http.StatusOK {
		t.Fatalf("auth status = %d", code)
	}
	if code := h.call(t, http.MethodPost, "/members/auth", reg.Token, protocol.MemberAuthRequest{Username: "alice", PIN: "9999"}, nil); code != http.StatusUnauthorized {
		t.Fatalf("bad pin status = %d", code)
	}

	var debit protocol.DebitResponse
	if code := h.call(t, http.MethodPost, "/members/7/debit", reg.Token, protocol.DebitRequest{Amount: 1}, nil); code != http.StatusNotFound {
		t.Fatalf("debit unknown member status = %d", code)
	}
	if code := h.call(t, http.MethodPost, "/members/1/debit", reg.Token, protocol.DebitRequest{Amount: 24.5}, &debit); code != http.StatusOK {
		t.Fatalf("debit status = %d", code)
	}
	if debit.Credits != 0.5 {
		t.Fatalf("credits = %v, want 0.5", debit.Credits)
	}
	// 402 is what flips the agent into the insufficient-credit path
	if code := h.call(t, http.MethodPost, "/members/1/debit", reg.Token, protocol.DebitRequest{Amount: 1}, nil); code != http.StatusPaymentRequired {
		t.Fatalf("overdraft status = %d, want 402", code)
	}
}

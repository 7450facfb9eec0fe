package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"rynx/backend/app/feed"
	"rynx/backend/app/models"
	"rynx/backend/app/repo"
	"rynx/protocol"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
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
	return db
}

func seedAssignedDevice(t *testing.T, db *gorm.DB, code string) {
	t.Helper()
	if err := db.Create(&models.Branch{Name: "Main"}).Error; err != nil {
		t.Fatal(err)
	}
	if err := db.Create(&models.Rate{Name: "Standard", UnitPrice: 20, UnitMinutes: 60}).Error; err != nil {
		t.Fatal(err)
	}
	b, r := uint(1), uint(1)
	if err := db.Create(&models.Device{Code: code, BranchID: &b, RateID: &r, Status: "online", IsLocked: true}).Error; err != nil {
		t.Fatal(err)
	}
}

func TestRegisterIsIdempotentByCode(t *testing.T) {
	db := testDB(t)
	svc := NewDeviceService(repo.NewDeviceRepository(db), feed.Noop{})
	ctx := context.Background()

	d1, err := svc.Register(ctx, protocol.RegisterRequest{Code: "RYNX-AB12CD34", Hostname: "pc-01"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if d1.Status != "pending" || !d1.IsLocked {
		t.Fatalf("fresh device = %+v, want pending and locked", d1)
	}

	d2, err := svc.Register(ctx, protocol.RegisterRequest{Code: "RYNX-AB12CD34"})
	if err != nil {
		t.Fatalf("re-Register: %v", err)
	}
	if d2.ID != d1.ID {
		t.Fatal("re-registration created a second device")
	}
}

func TestDevicePatchIgnoresNonWritableFields(t *testing.T) {
	db := testDB(t)
	seedAssignedDevice(t, db, "RYNX-0001")
	svc := NewDeviceService(repo.NewDeviceRepository(db), feed.Noop{})
	ctx := context.Background()

	// agents may write status and is_locked; assignment fields are not theirs
	err := svc.Patch(ctx, "RYNX-0001", map[string]any{"status": "in_use", "is_locked": false, "branch_id": 99})
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	d, _ := svc.FindByCode("RYNX-0001")
	if d.Status != "in_use" || d.IsLocked {
		t.Fatalf("device = %+v", d)
	}
	if d.BranchID == nil || *d.BranchID != 1 {
		t.Fatal("patch rewrote the assignment")
	}

	if err := svc.Patch(ctx, "RYNX-0001", map[string]any{"branch_id": 99}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("patch with no writable field = %v, want ErrInvalid", err)
	}
}

func TestSessionStartInvariants(t *testing.T) {
	db := testDB(t)
	seedAssignedDevice(t, db, "RYNX-0001")
	if err := db.Create(&models.Device{Code: "RYNX-BARE", Status: "pending", IsLocked: true}).Error; err != nil {
		t.Fatal(err)
	}
	svc := NewSessionService(repo.NewSessionRepository(db), repo.NewDeviceRepository(db), feed.Noop{})
	ctx := context.Background()

	secs := int64(3600)
	if _, err := svc.Start(ctx, StartRequest{DeviceCode: "RYNX-BARE", Type: protocol.SessionGuest, TimeRemainingSeconds: &secs}); !errors.Is(err, ErrNotAssigned) {
		t.Fatalf("start on unassigned device = %v, want ErrNotAssigned", err)
	}
	if _, err := svc.Start(ctx, StartRequest{DeviceCode: "RYNX-0001", Type: protocol.SessionGuest}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("guest start without prepaid time = %v, want ErrInvalid", err)
	}

	s1, err := svc.Start(ctx, StartRequest{DeviceCode: "RYNX-0001", Type: protocol.SessionGuest, TimeRemainingSeconds: &secs})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// one active session per device
	if _, err := svc.Start(ctx, StartRequest{DeviceCode: "RYNX-0001", Type: protocol.SessionGuest, TimeRemainingSeconds: &secs}); !errors.Is(err, ErrConflict) {
		t.Fatalf("second active start = %v, want ErrConflict", err)
	}

	if _, err := svc.Patch(ctx, s1.ID, map[string]any{"status": "completed"}); err != nil {
		t.Fatalf("end session: %v", err)
	}
	if _, err := svc.Start(ctx, StartRequest{DeviceCode: "RYNX-0001", Type: protocol.SessionGuest, TimeRemainingSeconds: &secs}); err != nil {
		t.Fatalf("start after end: %v", err)
	}
}

func TestSessionTerminalIsImmutable(t *testing.T) {
	db := testDB(t)
	seedAssignedDevice(t, db, "RYNX-0001")
	svc := NewSessionService(repo.NewSessionRepository(db), repo.NewDeviceRepository(db), feed.Noop{})
	ctx := context.Background()

	secs := int64(600)
	s, err := svc.Start(ctx, StartRequest{DeviceCode: "RYNX-0001", Type: protocol.SessionGuest, TimeRemainingSeconds: &secs})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Patch(ctx, s.ID, map[string]any{"total_seconds_used": 30}); err != nil {
		t.Fatalf("counter patch: %v", err)
	}
	if _, err := svc.Patch(ctx, s.ID, map[string]any{"status": "terminated"}); err != nil {
		t.Fatalf("end: %v", err)
	}

	// a second end is a no-op, not an error; the first writer wins
	got, err := svc.Patch(ctx, s.ID, map[string]any{"status": "completed"})
	if err != nil {
		t.Fatalf("double end: %v", err)
	}
	if got.Status != "terminated" {
		t.Fatalf("status = %s, first terminal status must win", got.Status)
	}

	// a late reconcile must bounce off the terminal record
	if _, err := svc.Patch(ctx, s.ID, map[string]any{"total_seconds_used": 9999}); !errors.Is(err, ErrConflict) {
		t.Fatalf("late counter patch = %v, want ErrConflict", err)
	}
	got, _ = svc.findOr404(ctx, s.ID)
	if got.TotalSecondsUsed != 30 {
		t.Fatalf("total_seconds_used = %d, want 30", got.TotalSecondsUsed)
	}
}

func TestMemberAuthAndDebit(t *testing.T) {
	db := testDB(t)
	svc := NewMemberService(repo.NewMemberRepository(db))

	m, err := svc.Create("alice", "1234", 25)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Authenticate("alice", "0000"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("wrong pin = %v, want ErrUnauthorized", err)
	}
	if _, err := svc.Authenticate("nobody", "1234"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown user = %v, want ErrUnauthorized", err)
	}
	got, err := svc.Authenticate("alice", "1234")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != m.ID {
		t.Fatal("authenticated the wrong member")
	}

	got, err = svc.Debit(m.ID, 24.5)
	if err != nil {
		t.Fatalf("Debit: %v", err)
	}
	if got.Credits != 0.5 {
		t.Fatalf("credits = %v, want 0.5", got.Credits)
	}

	// 0.50 left cannot cover a 1.0 charge and nothing is deducted
	if _, err := svc.Debit(m.ID, 1.0); !errors.Is(err, ErrInsufficientCredit) {
		t.Fatalf("overdraft = %v, want ErrInsufficientCredit", err)
	}
	got, _ = svc.Debit(m.ID, 0.5)
	if got == nil || got.Credits != 0 {
		t.Fatalf("after exact debit, member = %+v", got)
	}
}

func TestCommandLifecycle(t *testing.T) {
	db := testDB(t)
	seedAssignedDevice(t, db, "RYNX-0001")
	svc := NewCommandService(repo.NewCommandRepository(db), repo.NewDeviceRepository(db), feed.Noop{})
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateCommandRequest{DeviceCode: "RYNX-0001", Type: "format_disk"}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("unknown type = %v, want ErrInvalid", err)
	}
	if _, err := svc.Create(ctx, CreateCommandRequest{DeviceCode: "RYNX-GONE", Type: protocol.CmdLock}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown device = %v, want ErrNotFound", err)
	}

	cmd, err := svc.Create(ctx, CreateCommandRequest{DeviceCode: "RYNX-0001", Type: protocol.CmdLock})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	pending, err := svc.PendingByDevice("RYNX-0001")
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending = %v (%v), want one command", pending, err)
	}

	if err := svc.Resolve(cmd.ID, protocol.CommandExecuted, ""); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// duplicate resolve: first writer wins, silently
	if err := svc.Resolve(cmd.ID, protocol.CommandFailed, "late"); err != nil {
		t.Fatalf("duplicate Resolve: %v", err)
	}

	pending, _ = svc.PendingByDevice("RYNX-0001")
	if len(pending) != 0 {
		t.Fatal("resolved command still delivered as pending")
	}
	stored, _ := repo.NewCommandRepository(db).FindByID(cmd.ID)
	if stored.Status != "executed" {
		t.Fatalf("status = %s, want executed (first writer)", stored.Status)
	}
}

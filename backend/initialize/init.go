package initialize

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"rynx/backend/app/controllers"
	"rynx/backend/app/db"
	"rynx/backend/app/feed"
	jwtutil "rynx/backend/app/jwt"
	"rynx/backend/app/middleware"
	"rynx/backend/app/models"
	"rynx/backend/app/repo"
	"rynx/backend/app/services"
	"rynx/backend/config"
	"rynx/backend/global"
	"rynx/backend/router"
)

type App struct {
	Cfg      *config.Config
	DB       *gorm.DB
	Router   http.Handler
	Users    *services.UserService
	Devices  *services.DeviceService
	Sessions *services.SessionService
	Members  *services.MemberService
	Commands *services.CommandService
}

func Build(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	global.Config = cfg

	gdb, err := db.Connect(db.Config{Host: cfg.DB.Host, Port: cfg.DB.Port, User: cfg.DB.User, Password: cfg.DB.Pass, DBName: cfg.DB.Name})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	global.Mdb = gdb

	if err := gdb.AutoMigrate(
		&models.User{}, &models.Branch{}, &models.Rate{},
		&models.Device{}, &models.Member{}, &models.Session{}, &models.Command{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	var pub feed.Publisher = feed.Noop{}
	if cfg.Redis.Addr != "" {
		global.Rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		pub = feed.NewRedisPublisher(global.Rdb)
	}

	userRepo := repo.NewUserRepository(gdb)
	deviceRepo := repo.NewDeviceRepository(gdb)
	sessionRepo := repo.NewSessionRepository(gdb)
	memberRepo := repo.NewMemberRepository(gdb)
	commandRepo := repo.NewCommandRepository(gdb)
	rateRepo := repo.NewRateRepository(gdb)

	userSvc := services.NewUserService(userRepo)
	deviceSvc := services.NewDeviceService(deviceRepo, pub)
	sessionSvc := services.NewSessionService(sessionRepo, deviceRepo, pub)
	memberSvc := services.NewMemberService(memberRepo)
	commandSvc := services.NewCommandService(commandRepo, deviceRepo, pub)

	if err := userSvc.EnsureAdmin("admin", "admin123"); err != nil {
		global.Logger.Warn().Err(err).Msg("seed admin failed")
	}
	if err := seedDefaults(rateRepo); err != nil {
		global.Logger.Warn().Err(err).Msg("seed defaults failed")
	}

	signer := &jwtutil.Signer{Secret: []byte(cfg.JWT.Secret), Issuer: cfg.JWT.Issuer, ExpMin: cfg.JWT.ExpMin}
	mw := &middleware.Auth{Signer: signer}

	h := router.New(
		controllers.NewAuthController(userSvc, signer),
		controllers.NewDeviceController(deviceSvc, signer),
		controllers.NewSessionController(sessionSvc),
		controllers.NewMemberController(memberSvc),
		controllers.NewCommandController(commandSvc),
		controllers.NewRateController(rateRepo),
		mw,
	)

	return &App{
		Cfg:      cfg,
		DB:       gdb,
		Router:   h,
		Users:    userSvc,
		Devices:  deviceSvc,
		Sessions: sessionSvc,
		Members:  memberSvc,
		Commands: commandSvc,
	}, nil
}

// seedDefaults creates a branch and rate on first boot so freshly registered
// devices can be assigned without extra setup.
func seedDefaults(rates *repo.RateRepository) error {
	if _, err := rates.FindByID(1); err == nil {
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if err := rates.CreateBranch(&models.Branch{Name: "Main"}); err != nil {
		return err
	}
	return rates.Create(&models.Rate{Name: "Standard", UnitPrice: 20, UnitMinutes: 60})
}

package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/smartwill/lastwill/internal/asset"
	"github.com/smartwill/lastwill/internal/auth"
	"github.com/smartwill/lastwill/internal/config"
	"github.com/smartwill/lastwill/internal/deploy"
	"github.com/smartwill/lastwill/internal/escrow"
	"github.com/smartwill/lastwill/internal/factory"
	"github.com/smartwill/lastwill/internal/identity"
	"github.com/smartwill/lastwill/internal/metrics"
	"github.com/smartwill/lastwill/internal/middleware"
	"github.com/smartwill/lastwill/internal/registry"
	"github.com/smartwill/lastwill/internal/store"
	"github.com/smartwill/lastwill/internal/will"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg       config.Config
	Store     store.Store
	System    *deploy.System
	Addresses deploy.Addresses
	DB        *pgxpool.Pool
	Cache     *redis.Client
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Store == nil || d.System == nil {
		return fmt.Errorf("store and system are required")
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	// Health
	RegisterHealthRoutes(app, d)

	// Services and handlers
	sys := d.System
	wills := will.NewHandler(will.NewService(d.Store, sys.Wills, d.Logger, d.Metrics))
	factories := factory.NewHandler(factory.NewService(d.Store, sys.Factory, d.Logger, d.Metrics))
	assets := asset.NewHandler(asset.NewService(d.Store, sys.Bank, d.Logger, d.Metrics))
	escrows := escrow.NewHandler(escrow.NewService(d.Store, sys.Escrow, d.Logger, d.Metrics))
	registries := registry.NewHandler(d.Store, sys.Registry)

	var challengeRepo identity.Repository
	if d.Cache != nil {
		challengeRepo = identity.NewRedisRepository(d.Cache)
	} else {
		challengeRepo = identity.NewMemoryRepository(sys.Clock)
	}
	identitySvc := identity.NewService(challengeRepo, sys.Clock, d.Cfg.AppName, d.Cfg.ChallengeTTL)
	authSvc := auth.NewService(d.Cfg.JWTSecret, d.Cfg.AppName, d.Cfg.AccessTokenTTL, sys.Clock)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
	api.Get("/deployment", func(c *fiber.Ctx) error {
		a := d.Addresses
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"admin":    a.Admin.Hex(),
			"bank":     a.Bank.Hex(),
			"escrow":   a.Escrow.Hex(),
			"registry": a.Registry.Hex(),
			"factory":  a.Factory.Hex(),
		})
	})

	// Public routes
	rateLimiter := middleware.AuthRateLimit(d.Cache, 5)
	RegisterAuthRoutes(api, identity.NewHandler(identitySvc), auth.NewHandler(identitySvc, authSvc), rateLimiter)
	wills.RegisterReads(api)
	factories.RegisterReads(api)
	assets.RegisterReads(api)
	escrows.RegisterReads(api)
	registries.RegisterReads(api)

	// Protected routes
	guards := []fiber.Handler{middleware.JWTAuth(authSvc)}
	if d.Cache != nil {
		guards = append(guards, middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	protected := api.Group("", guards...)
	protected.Get("/me", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"address": middleware.Caller(c).Hex()})
	})
	wills.RegisterWrites(protected)
	factories.RegisterWrites(protected)
	assets.RegisterWrites(protected)
	escrows.RegisterWrites(protected)

	return nil
}

package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/smartwill/lastwill/internal/config"
	"github.com/smartwill/lastwill/internal/middleware"
	"github.com/smartwill/lastwill/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app *fiber.App
	cfg config.Config
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(deps routes.Deps) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:               deps.Cfg.AppName,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler:          middleware.ErrorHandler,
		DisableStartupMessage: !deps.Cfg.IsDev(),
	})

	if err := routes.Setup(app, deps); err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: deps.Cfg}, nil
}

// App exposes the underlying Fiber application, for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

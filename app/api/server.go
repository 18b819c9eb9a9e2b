package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"companion/app/config"
	"companion/app/service/gateway"
	"companion/app/service/ratelimit"
	"companion/app/service/summary"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 10 * time.Second
	bodyLimit       = 1 << 20
)

type Server struct {
	cfg *config.Config
	app *fiber.App
}

func New(di *do.Injector) (*Server, error) {
	cfg := do.MustInvoke[*config.Config](di)

	handler := NewHandler(
		do.MustInvoke[*gateway.Service](di),
		do.MustInvoke[*summary.Service](di),
		do.MustInvoke[*ratelimit.Service](di),
		cfg.Server.IdentityHeader,
	)

	return &Server{
		cfg: cfg,
		app: NewApp(handler),
	}, nil
}

func NewApp(handler *Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             bodyLimit,
		ErrorHandler:          errorHandler,
	})

	app.Use(cors())
	app.Use(requestLogger())
	app.Use(recover.New())

	handler.Register(app)

	return app
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("HTTP server listening", "addr", s.cfg.Server.Listen)
		return s.app.Listen(s.cfg.Server.Listen)
	})

	g.Go(func() error {
		<-ctx.Done()
		return s.app.ShutdownWithTimeout(shutdownTimeout)
	})

	return g.Wait()
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := internalDetails

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		if code < fiber.StatusInternalServerError {
			message = fe.Message
		}
	}

	if code >= fiber.StatusInternalServerError {
		slog.ErrorContext(c.UserContext(), "Unhandled request error", "error", err)
	}

	return c.Status(code).JSON(ErrorResponse{Error: message})
}

package bootstrap

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	apihttp "apply_server/adapter/in/http"
	"apply_server/infra/middleware"
	"apply_server/pkg/logger"
)

// API owns the Fiber app lifecycle.
type API struct {
	app  *fiber.App
	deps *Deps
	log  *logger.Logger
}

// NewAPI assembles the HTTP surface: health endpoints, JWT-protected user
// routes, and service-auth routes for the automation worker and operators.
func NewAPI(deps *Deps, workerMetrics func() any) *API {
	app := fiber.New(fiber.Config{
		AppName:      "apply-server",
		ErrorHandler: middleware.ErrorHandler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})

	app.Use(recover.New())
	app.Use(middleware.RequestID())

	apihttp.NewHealthHandler(deps.Mongo, deps.Redis).Register(app)

	api := app.Group("/api/v1", middleware.JWTAuth(deps.Cfg.JWTSecret))
	apihttp.NewApplicationHandler(deps.Applications).Register(api)
	apihttp.NewSubmissionHandler(deps.Submissions, deps.Producer).Register(api)
	apihttp.NewTailoringHandler(deps.Tailoring, deps.Classifier).Register(api)
	apihttp.NewNotificationHandler(deps.Notifier).Register(api)

	internal := app.Group("/internal/v1", middleware.ServiceAuth(deps.Cfg.BrowserWorkerSecret))
	apihttp.NewWebhookHandler(deps.Submissions, deps.WebhookEvents).Register(internal)
	apihttp.NewOpsHandler(deps.DeadLetters, workerMetrics).Register(internal)

	return &API{
		app:  app,
		deps: deps,
		log:  logger.WithComponent("api"),
	}
}

// Start blocks serving HTTP until Shutdown is called.
func (a *API) Start() error {
	a.log.Info("api listening on :%s", a.deps.Cfg.Port)
	return a.app.Listen(":" + a.deps.Cfg.Port)
}

func (a *API) Shutdown(ctx context.Context) error {
	return a.app.ShutdownWithContext(ctx)
}

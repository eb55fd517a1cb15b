// Package bootstrap wires adapters, services and entrypoints.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"apply_server/adapter/out/automation"
	"apply_server/adapter/out/messaging"
	"apply_server/adapter/out/mongodb"
	"apply_server/adapter/out/provider"
	"apply_server/config"
	"apply_server/core/agent/llm"
	"apply_server/core/port/in"
	"apply_server/core/port/out"
	"apply_server/core/service/application"
	"apply_server/core/service/classification"
	"apply_server/core/service/monitor"
	"apply_server/core/service/notification"
	"apply_server/core/service/quota"
	"apply_server/core/service/submission"
	"apply_server/core/service/tailoring"
	"apply_server/pkg/logger"
	"apply_server/pkg/ratelimit"
)

// Deps holds every wired dependency. Both the API and the worker entrypoints
// build the full graph; the cost is one mongo and one redis connection.
type Deps struct {
	Cfg *config.Config

	Mongo *mongo.Client
	Redis *redis.Client
	Zlog  zerolog.Logger

	// Repositories
	Apps          out.ApplicationRepository
	Jobs          out.JobRepository
	Users         out.UserRepository
	CVs           out.CVRepository
	Usage         out.UsageRepository
	EmailLogs     out.EmailLogRepository
	Notifications out.NotificationRepository
	DeadLetters   out.DeadLetterRepository
	WebhookEvents out.WebhookEventRepository

	// Outbound adapters
	Producer out.MessageProducer
	Mailbox  out.UserMailbox
	Browser  out.BrowserAutomation
	LLM      out.LLMClient

	// Services
	Quota        in.QuotaService
	Notifier     in.NotificationService
	Classifier   in.ClassificationService
	Applications in.ApplicationService
	Tailoring    in.TailoringService
	Submissions  in.SubmissionService
	Monitor      in.MonitorService
}

// Build connects the infrastructure and constructs the service graph.
func Build(cfg *config.Config) (*Deps, error) {
	logger.Init(logger.Config{
		Level:   logLevel(cfg),
		Output:  os.Stdout,
		Service: "apply-server",
	})

	zlog := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "apply-server").
		Logger()

	mongoClient, err := mongodb.NewClient(cfg.MongoDBURL, cfg.MongoDBName)
	if err != nil {
		return nil, fmt.Errorf("mongodb: %w", err)
	}
	db := mongoClient.Database(cfg.MongoDBName)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}

	apps := mongodb.NewApplicationAdapter(db)
	jobs := mongodb.NewJobAdapter(db)
	users := mongodb.NewUserAdapter(db)
	cvs := mongodb.NewCVAdapter(db)
	usage := mongodb.NewUsageAdapter(db)
	emailLogs := mongodb.NewEmailLogAdapter(db)
	notifications := mongodb.NewNotificationAdapter(db)
	deadLetters := mongodb.NewDeadLetterAdapter(db)
	webhookEvents := mongodb.NewWebhookEventAdapter(db)

	indexCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := mongodb.EnsureAllIndexes(indexCtx,
		apps, jobs, users, cvs, usage, emailLogs, notifications, deadLetters, webhookEvents,
	); err != nil {
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}

	producer := messaging.NewRedisProducer(redisClient)

	gmail := provider.NewGmailAdapter(&provider.GmailConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	mailbox := provider.NewUserMailbox(gmail, users)

	browser := automation.NewClient(cfg.BrowserWorkerURL, cfg.BrowserWorkerSecret)

	llmClient := llm.NewClient(llm.ClientConfig{
		APIKey:         cfg.OpenAIAPIKey,
		Model:          cfg.LLMModel,
		MaxTokens:      cfg.LLMMaxTokens,
		Temperature:    cfg.LLMTemperature,
		TimeoutSec:     cfg.LLMTimeoutSec,
		MaxConcurrent:  cfg.LLMMaxConcurrent,
		RequestsPerMin: cfg.LLMRequestsPerMin,
		MaxRetries:     cfg.LLMMaxRetries,
	})

	probeLimiter := ratelimit.NewSlidingWindowLimiter(
		redisClient, cfg.MonitorProbesPerHour, time.Hour, cfg.MonitorProbesPerHour,
	)
	debouncer := ratelimit.NewDebouncer(redisClient, 24*time.Hour)

	quotaSvc := quota.NewService(usage)
	notifier := notification.NewService(&notification.Deps{
		Repo:    notifications,
		Users:   users,
		Mailbox: mailbox,
	})
	classifier := classification.NewClassifier(llmClient)
	applicationSvc := application.NewService(&application.Deps{
		Apps:     apps,
		Jobs:     jobs,
		Notifier: notifier,
		Debounce: debouncer,
	})
	tailoringSvc := tailoring.NewService(&tailoring.Deps{
		LLM:   llmClient,
		CVs:   cvs,
		Jobs:  jobs,
		Quota: quotaSvc,
	})
	submissionSvc := submission.NewService(&submission.Deps{
		Apps:      apps,
		Jobs:      jobs,
		Users:     users,
		CVs:       cvs,
		EmailLogs: emailLogs,
		Quota:     quotaSvc,
		Mailbox:   mailbox,
		Browser:   browser,
		LLM:       llmClient,
		Producer:  producer,
		Notifier:  notifier,
	})
	monitorSvc := monitor.NewService(&monitor.Deps{
		Apps:       apps,
		Lifecycle:  applicationSvc,
		Users:      users,
		Mailbox:    mailbox,
		Browser:    browser,
		Classifier: classifier,
		Producer:   producer,
		Limiter:    probeLimiter,
		Debounce:   debouncer,
	})

	return &Deps{
		Cfg:           cfg,
		Mongo:         mongoClient,
		Redis:         redisClient,
		Zlog:          zlog,
		Apps:          apps,
		Jobs:          jobs,
		Users:         users,
		CVs:           cvs,
		Usage:         usage,
		EmailLogs:     emailLogs,
		Notifications: notifications,
		DeadLetters:   deadLetters,
		WebhookEvents: webhookEvents,
		Producer:      producer,
		Mailbox:       mailbox,
		Browser:       browser,
		LLM:           llmClient,
		Quota:         quotaSvc,
		Notifier:      notifier,
		Classifier:    classifier,
		Applications:  applicationSvc,
		Tailoring:     tailoringSvc,
		Submissions:   submissionSvc,
		Monitor:       monitorSvc,
	}, nil
}

// Close releases infrastructure connections.
func (d *Deps) Close(ctx context.Context) {
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.Mongo != nil {
		_ = d.Mongo.Disconnect(ctx)
	}
}

func logLevel(cfg *config.Config) logger.Level {
	if cfg.IsProduction() {
		return logger.ParseLevel("info")
	}
	return logger.ParseLevel("debug")
}

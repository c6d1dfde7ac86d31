package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/jobdeck/api/internal/config"
	"github.com/jobdeck/api/internal/handler"
	"github.com/jobdeck/api/internal/lifecycle"
	"github.com/jobdeck/api/internal/runner"
	"github.com/jobdeck/api/internal/scheduler"
	"github.com/jobdeck/api/internal/sink"
	"github.com/jobdeck/api/internal/store"
	ws "github.com/jobdeck/api/internal/websocket"
	"github.com/jobdeck/api/pkg/response"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	setupLogging(cfg)

	// Open the job store
	ctx := context.Background()
	jobStore, err := store.Open(ctx, cfg.Database.DSN)
	if err != nil {
		logrus.Fatalf("Failed to open job store: %v", err)
	}
	defer jobStore.Close()
	logrus.WithField("dsn", cfg.Database.DSN).Info("Job store ready")

	// Lifecycle engine
	engine := lifecycle.NewEngine(jobStore)

	// Notification sinks
	webhookSink := sink.NewHTTPWebhook(cfg.Webhook.URL, cfg.Webhook.Timeout())
	var emailSink sink.EmailSink
	if cfg.Email.SMTPHost != "" {
		smtpSink, err := sink.NewSMTPEmail(&sink.SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
		})
		if err != nil {
			logrus.Fatalf("Invalid email configuration: %v", err)
		}
		emailSink = smtpSink
	} else {
		emailSink = sink.NewLogEmail()
	}

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Job runner, with an in-process timer scheduler by default
	jobRunner := runner.New(jobStore, engine, webhookSink, emailSink, hub, cfg.Runner.Delay())

	// With Redis configured, switch to the durable asynq scheduler so
	// pending finalizations survive restarts
	if cfg.Redis.Addr != "" {
		redisOpt := asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}

		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logrus.Warnf("Redis not available: %v", err)
		}

		asynqClient := asynq.NewClient(redisOpt)
		defer asynqClient.Close()

		jobRunner.SetScheduler(scheduler.NewAsynq(asynqClient))
		go startWorkerServer(redisOpt, jobRunner)
		logrus.Info("Using durable asynq scheduler")
	}

	// Initialize validator
	validate := validator.New()

	// Initialize handlers
	jobHandler := handler.NewJobHandler(jobStore, jobRunner, validate)
	healthHandler := handler.NewHealthHandler(jobStore)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Health check
	app.Get("/health", healthHandler.Health)

	// Job routes
	app.Post("/jobs", jobHandler.Create)
	app.Get("/jobs", jobHandler.List)
	app.Get("/jobs/:id", jobHandler.GetByID)
	app.Post("/run-job/:id", jobHandler.Run)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:id", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("id"))
	}))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logrus.Info("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logrus.Errorf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	logrus.WithField("addr", addr).Info("Server starting")
	if err := app.Listen(addr); err != nil {
		logrus.Fatalf("Server error: %v", err)
	}
}

func setupLogging(cfg *config.Config) {
	if cfg.Server.Env == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func startWorkerServer(redisOpt asynq.RedisClientOpt, jobRunner *runner.Runner) {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			scheduler.QueueJobs: 10,
		},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(scheduler.TaskTypeFinalize, scheduler.FinalizeHandler(func(jobID string) {
		jobRunner.Finalize(context.Background(), jobID)
	}))

	if err := srv.Run(mux); err != nil {
		logrus.Errorf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return response.Error(c, code, response.CodeServiceError, message, nil)
}

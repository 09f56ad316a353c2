package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/nilai-go-api/internal/config"
	"github.com/noah-isme/nilai-go-api/internal/database"
	"github.com/noah-isme/nilai-go-api/internal/handler"
	"github.com/noah-isme/nilai-go-api/internal/middleware"
	"github.com/noah-isme/nilai-go-api/internal/models"
	"github.com/noah-isme/nilai-go-api/internal/repository"
	"github.com/noah-isme/nilai-go-api/internal/router"
	"github.com/noah-isme/nilai-go-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.CriterionGroup{},
		&models.SubCriterion{},
		&models.SpecialCriterion{},
		&models.Enrollment{},
		&models.Task{},
		&models.TaskScore{},
		&models.Project{},
		&models.ProjectMember{},
		&models.CriterionScore{},
		&models.ActivityLog{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	// NATS is optional: without it events still reach the redis channel.
	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = nats.Connect(cfg.NATSURL)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable, continuing without it")
		} else {
			defer natsConn.Close()
		}
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	criteriaRepo := repository.NewCriteriaRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	scoreRepo := repository.NewScoreRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	activityService := service.NewActivityService(activityRepo, logger)
	events := service.NewGradeEventPublisher(redisClient, cfg.EventChannel, natsConn, cfg.NATSSubject, logger)

	gradesheetService := service.NewGradesheetService(criteriaRepo, scoreRepo, taskRepo, projectRepo, enrollmentRepo, validate, redisClient, cfg.GradesheetCacheTTL, activityService, events, logger)
	criteriaService := service.NewCriteriaService(criteriaRepo, validate, gradesheetService, events, logger)
	taskService := service.NewTaskService(taskRepo, criteriaRepo, enrollmentRepo, validate, activityService, events, gradesheetService, logger)
	projectService := service.NewProjectService(projectRepo, criteriaRepo, enrollmentRepo, validate, activityService, events, gradesheetService, logger)

	criteriaHandler := handler.NewCriteriaHandler(criteriaService, logger)
	taskHandler := handler.NewTaskHandler(taskService, logger)
	projectHandler := handler.NewProjectHandler(projectService, logger)
	gradesheetHandler := handler.NewGradesheetHandler(gradesheetService, logger)
	activityHandler := handler.NewActivityHandler(activityService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		CriteriaHandler:   criteriaHandler,
		TaskHandler:       taskHandler,
		ProjectHandler:    projectHandler,
		GradesheetHandler: gradesheetHandler,
		ActivityHandler:   activityHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}

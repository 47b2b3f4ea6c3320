package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/referhub/referhub/internal/config"
	"github.com/referhub/referhub/internal/domain/admin"
	"github.com/referhub/referhub/internal/domain/facility"
	"github.com/referhub/referhub/internal/domain/fanout"
	"github.com/referhub/referhub/internal/domain/notification"
	"github.com/referhub/referhub/internal/domain/referral"
	"github.com/referhub/referhub/internal/domain/unit"
	"github.com/referhub/referhub/internal/platform/apperr"
	"github.com/referhub/referhub/internal/platform/auth"
	"github.com/referhub/referhub/internal/platform/db"
	"github.com/referhub/referhub/internal/platform/middleware"
	"github.com/referhub/referhub/internal/platform/validation"
	"github.com/referhub/referhub/internal/platform/websocket"
	"github.com/referhub/referhub/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "referhub-server",
		Short: "Patient referral API and realtime server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the referral API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, migrator, closeFn, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			fmt.Printf("Running migrations on schema: %s\n", cfg.DBSchema)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			cfg, migrator, closeFn, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", cfg.DBSchema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func openMigrator(ctx context.Context) (*config.Config, *db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, db.NewMigrator(pool, migrations.FS, cfg.DBSchema), pool.Close, nil
}

// tokenCmd issues a bearer token for a clinic, unit or admin subject.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed subject token",
		RunE: func(cmd *cobra.Command, args []string) error {
			subjectType, _ := cmd.Flags().GetString("type")
			id, _ := cmd.Flags().GetString("id")
			hospitalID, _ := cmd.Flags().GetString("hospital")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if id == "" {
				return fmt.Errorf("--id is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tok, err := auth.IssueToken(jwtConfig(cfg), auth.Subject{
				ID:         id,
				Type:       auth.SubjectType(subjectType),
				HospitalID: hospitalID,
			}, ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().String("type", string(auth.SubjectAdmin), "Subject type: clinic, unit or admin")
	cmd.Flags().String("id", "", "Clinic or unit id (any string for admins)")
	cmd.Flags().String("hospital", "", "Owning hospital id for unit subjects")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		SigningKey: []byte(cfg.JWTSigningKey),
		Skipper:    auth.AuthSkipper,
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		l := newLogger(nil)
		l.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	cfg.LogWarnings(logger)

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database")

	checks := []db.Check{db.PoolCheck(pool)}

	// Presence cache
	var presence unit.PresenceCache = unit.NopPresenceCache{}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis unreachable, presence reads fall back to postgres")
		}
		presence = unit.NewRedisPresenceCache(rdb, cfg.PresenceCacheTTL)
		checks = append(checks, db.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	// Realtime
	hub := websocket.NewHub(cfg.WSSendBuffer, logger)
	router := websocket.NewRouter(hub, logger)
	wsHandler := websocket.NewHandler(hub, websocket.HandlerConfig{
		PingInterval: cfg.WSPingInterval,
		PongWait:     cfg.WSPongWait,
		WriteWait:    cfg.WSWriteWait,
	}, logger)

	// Domain
	v := validation.New()

	facilitySvc := facility.NewService(facility.NewHospitalRepoPG(pool), facility.NewClinicRepoPG(pool), v)
	unitRepo := unit.NewRepoPG(pool)
	referralSvc := referral.NewService(referral.NewRepoPG(pool), newReferralDirectory(facilitySvc, unitRepo), v)
	unitSvc := unit.NewService(unitRepo, facilitySvc, referralSvc, presence, v, logger)
	notificationSvc := notification.NewService(notification.NewRepoPG(pool))
	adminSvc := admin.NewService(facilitySvc, unitSvc, referralSvc, hub)

	coordinator := fanout.NewCoordinator(referralSvc, unitSvc, facilitySvc, notificationSvc, router, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", auth.HeaderSubjectID, auth.HeaderSubjectType, auth.HeaderHospitalID},
	}))
	e.Use(middleware.BodyLimit("1M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(jwtConfig(cfg)))
	} else {
		e.Use(auth.JWTMiddleware(jwtConfig(cfg)))
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(checks...))

	wsHandler.RegisterRoutes(e.Group(""))

	// API groups
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	api := e.Group("/api", middleware.RateLimit(rateLimitCfg))
	clinicGroup := api.Group("/clinic", auth.RequireSubjectType(auth.SubjectClinic))
	unitGroup := api.Group("/unit", auth.RequireSubjectType(auth.SubjectUnit))
	adminGroup := api.Group("/admin", auth.RequireSubjectType(auth.SubjectAdmin))

	facilityHandler := facility.NewHandler(facilitySvc)
	facilityHandler.RegisterClinicRoutes(clinicGroup)
	facilityHandler.RegisterAdminRoutes(adminGroup)

	referralHandler := referral.NewHandler(referralSvc, coordinator)
	referralHandler.RegisterClinicRoutes(clinicGroup)
	referralHandler.RegisterUnitRoutes(unitGroup)
	referralHandler.RegisterAdminRoutes(adminGroup)

	unitHandler := unit.NewHandler(unitSvc, coordinator)
	unitHandler.RegisterClinicRoutes(clinicGroup)
	unitHandler.RegisterUnitRoutes(unitGroup)
	unitHandler.RegisterAdminRoutes(adminGroup)

	notificationHandler := notification.NewHandler(notificationSvc)
	notificationHandler.RegisterRoutes(clinicGroup)
	notificationHandler.RegisterRoutes(unitGroup)

	admin.NewHandler(adminSvc).RegisterRoutes(adminGroup)
	wsHandler.RegisterStatsRoute(adminGroup)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

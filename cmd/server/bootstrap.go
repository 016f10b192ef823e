package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gin-gonic/gin"

	"github.com/admingate/admingate/internal/api"
	"github.com/admingate/admingate/internal/app"
	"github.com/admingate/admingate/internal/app/maintenance"
	"github.com/admingate/admingate/internal/database"
	"github.com/admingate/admingate/internal/dispatch"
	"github.com/admingate/admingate/internal/engine"
	"github.com/admingate/admingate/internal/permissions"
	"github.com/admingate/admingate/internal/resources"
	"github.com/admingate/admingate/internal/services"
	"github.com/admingate/admingate/pkg/logger"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB         *gorm.DB
	Registry   *resources.Registry
	Gate       *permissions.Gate
	AuditSvc   *services.AuditService
	TokenSvc   *services.TokenService
	Engine     *engine.Engine
	Dispatcher *dispatch.Dispatcher
	Cleaner    *maintenance.Cleaner
	Router     *gin.Engine
}

// bootstrapRuntime initialises the database, registry, services, and router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.Registry = resources.NewRegistry()
	if err := registerBuiltinResources(stack.Registry); err != nil {
		return nil, fmt.Errorf("register builtin resources: %w", err)
	}

	policy, err := cfg.GatePolicy()
	if err != nil {
		return nil, err
	}
	stack.Gate, err = permissions.NewGate(stack.DB, policy)
	if err != nil {
		return nil, fmt.Errorf("initialise permission gate: %w", err)
	}

	if err := permissions.SyncResources(ctx, stack.DB, stack.Registry); err != nil {
		return nil, fmt.Errorf("sync resource permissions: %w", err)
	}

	stack.AuditSvc, err = services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	tokenOpts := []services.TokenServiceOption{}
	if cfg.Auth.Token.TTL > 0 {
		tokenOpts = append(tokenOpts, services.WithDefaultTTL(cfg.Auth.Token.TTL))
	}
	stack.TokenSvc, err = services.NewTokenService(stack.DB, tokenOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise token service: %w", err)
	}

	stack.Engine, err = engine.New(stack.DB, stack.Registry, stack.AuditSvc)
	if err != nil {
		return nil, fmt.Errorf("initialise execution engine: %w", err)
	}

	stack.Dispatcher, err = dispatch.New(stack.Registry, stack.Gate, stack.Engine)
	if err != nil {
		return nil, fmt.Errorf("initialise dispatcher: %w", err)
	}

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(stack.AuditSvc, stack.TokenSvc,
			maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays),
			maintenance.WithTokenGrace(cfg.Maintenance.TokenGrace),
			maintenance.WithAuditSchedule(cfg.Maintenance.AuditSchedule),
			maintenance.WithTokenSchedule(cfg.Maintenance.TokenSchedule),
		)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
		// Catch-up pass so retention holds even when the process rarely
		// stays up long enough for a scheduled run.
		if err := stack.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("startup maintenance pass failed", zap.Error(err))
		}
	}

	stack.Router, err = api.NewRouter(cfg, stack.Dispatcher, stack.TokenSvc)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// registerBuiltinResources exposes the core administrative tables through the
// command surface so a fresh deployment is usable before any application
// resources are registered.
func registerBuiltinResources(registry *resources.Registry) error {
	descriptors := []*resources.Definition{
		{
			ResourceName: "user",
			Table:        "users",
			DisplayField: "username",
			Search:       []string{"username", "email"},
			Ordering:     []string{"username"},
			FieldList: []resources.Field{
				{Name: "id", Type: resources.FieldString, ReadOnly: true},
				{Name: "username", Type: resources.FieldString, Required: true, Unique: true},
				{Name: "email", Type: resources.FieldString},
				{Name: "is_active", Type: resources.FieldBoolean, Default: true, HasDefault: true},
				{Name: "created_at", Type: resources.FieldDateTime, ReadOnly: true},
				{Name: "updated_at", Type: resources.FieldDateTime, ReadOnly: true},
			},
		},
		{
			ResourceName: "group",
			Table:        "groups",
			DisplayField: "name",
			Search:       []string{"name"},
			Ordering:     []string{"name"},
			FieldList: []resources.Field{
				{Name: "id", Type: resources.FieldString, ReadOnly: true},
				{Name: "name", Type: resources.FieldString, Required: true, Unique: true},
				{Name: "description", Type: resources.FieldText},
				{Name: "created_at", Type: resources.FieldDateTime, ReadOnly: true},
				{Name: "updated_at", Type: resources.FieldDateTime, ReadOnly: true},
			},
		},
		{
			ResourceName: "permission",
			Table:        "permissions",
			DisplayField: "resource",
			Search:       []string{"resource", "action"},
			Ordering:     []string{"resource", "action"},
			FieldList: []resources.Field{
				{Name: "id", Type: resources.FieldString, ReadOnly: true},
				{Name: "resource", Type: resources.FieldString, Required: true},
				{Name: "action", Type: resources.FieldString, Required: true, Choices: []resources.Choice{
					{Value: "view", Label: "View"},
					{Value: "add", Label: "Add"},
					{Value: "change", Label: "Change"},
					{Value: "delete", Label: "Delete"},
				}},
				{Name: "description", Type: resources.FieldText},
				{Name: "created_at", Type: resources.FieldDateTime, ReadOnly: true},
				{Name: "updated_at", Type: resources.FieldDateTime, ReadOnly: true},
			},
		},
	}

	for _, desc := range descriptors {
		if err := registry.Register(desc); err != nil {
			return err
		}
	}
	return nil
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.DatabaseSettings()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		select {
		case <-stopCtx.Done():
		case <-ctx.Done():
		}
	}

	if s.DB != nil {
		sqlDB, err := s.DB.DB()
		if err != nil {
			log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
			return
		}
		if err := sqlDB.Close(); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}
}

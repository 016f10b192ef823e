// Package engine executes CRUD, bulk, and action operations against registered
// resources. It works on plain row maps through the resource's table so any
// schema a descriptor can express is reachable without model structs; every
// mutation commits together with its audit record.
package engine

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/admingate/admingate/internal/resources"
	"github.com/admingate/admingate/internal/services"
	"github.com/admingate/admingate/pkg/logger"
)

const (
	// DefaultListLimit applies when a list request does not set a limit.
	DefaultListLimit = 100

	// relatedRowCap bounds reverse-relation listings per relation.
	relatedRowCap = 10
)

// Engine executes resource operations. Authorization happens before the
// engine is reached; the principal passed in is used for audit attribution
// only.
type Engine struct {
	db       *gorm.DB
	registry *resources.Registry
	audit    *services.AuditService
	log      *zap.Logger
	now      func() time.Time
}

// New constructs an Engine over the given database, registry, and audit sink.
func New(db *gorm.DB, registry *resources.Registry, audit *services.AuditService) (*Engine, error) {
	if db == nil {
		return nil, errors.New("engine: db is required")
	}
	if registry == nil {
		return nil, errors.New("engine: registry is required")
	}
	if audit == nil {
		return nil, errors.New("engine: audit service is required")
	}
	return &Engine{
		db:       db,
		registry: registry,
		audit:    audit,
		log:      logger.WithModule("engine"),
		now:      time.Now,
	}, nil
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/admingate/admingate/internal/models"
	"github.com/admingate/admingate/internal/permissions"
)

// AuditEntry captures a single mutation to record.
type AuditEntry struct {
	Principal  *permissions.Principal
	Resource   string
	ObjectID   string
	ObjectRepr string
	Kind       string
	Message    string
	Metadata   map[string]any
}

// AuditFilters encapsulates optional filters when querying audit logs.
type AuditFilters struct {
	TokenID  string
	Resource string
	ObjectID string
	Kind     string
	Since    *time.Time
	Until    *time.Time
}

// AuditListOptions controls pagination and filtering for audit queries.
type AuditListOptions struct {
	Page     int
	PageSize int
	Filters  AuditFilters
}

// AuditService persists and retrieves append-only audit records.
type AuditService struct {
	db *gorm.DB
}

// NewAuditService constructs an AuditService using the provided database handle.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db}, nil
}

// LogTx appends an audit record using the supplied transaction handle so the
// record commits or rolls back together with the mutation it documents.
//
// Entries without a principal are skipped entirely: a record that cannot be
// attributed has no audit value here.
func (s *AuditService) LogTx(tx *gorm.DB, entry AuditEntry) error {
	if tx == nil {
		return errors.New("audit service: tx is required")
	}
	if entry.Principal == nil {
		return nil
	}
	if strings.TrimSpace(entry.Kind) == "" {
		return errors.New("audit service: kind is required")
	}
	if strings.TrimSpace(entry.Resource) == "" {
		return errors.New("audit service: resource is required")
	}

	var payload datatypes.JSON
	if entry.Metadata != nil {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("audit service: marshal metadata: %w", err)
		}
		payload = datatypes.JSON(encoded)
	}

	record := models.AuditLog{
		Resource:   strings.TrimSpace(entry.Resource),
		ObjectID:   strings.TrimSpace(entry.ObjectID),
		ObjectRepr: entry.ObjectRepr,
		Kind:       strings.TrimSpace(entry.Kind),
		Message:    entry.Message,
		Metadata:   payload,
	}

	if id := strings.TrimSpace(entry.Principal.TokenID); id != "" {
		record.TokenID = &id
	}
	record.UserID = entry.Principal.UserID

	return tx.Create(&record).Error
}

// Log appends an audit record outside any caller-managed transaction.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	return s.LogTx(s.db.WithContext(ensureContext(ctx)), entry)
}

// List returns paginated audit records ordered by creation time descending.
func (s *AuditService) List(ctx context.Context, opts AuditListOptions) ([]models.AuditLog, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page <= 0 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}

	var (
		results []models.AuditLog
		total   int64
	)

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})
	query = applyAuditFilters(query, opts.Filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: count records: %w", err)
	}

	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&results).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: list records: %w", err)
	}

	return results, total, nil
}

// HistoryFor returns the audit trail of a single resource instance, newest first.
func (s *AuditService) HistoryFor(ctx context.Context, resource, objectID string) ([]models.AuditLog, error) {
	ctx = ensureContext(ctx)

	var records []models.AuditLog
	if err := s.db.WithContext(ctx).
		Where("resource = ? AND object_id = ?", strings.TrimSpace(resource), strings.TrimSpace(objectID)).
		Order("created_at DESC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("audit service: history: %w", err)
	}
	return records, nil
}

// CleanupOlderThan removes audit records older than the supplied retention window (in days).
func (s *AuditService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	ctx = ensureContext(ctx)

	if retentionDays <= 0 {
		return 0, errors.New("audit service: retentionDays must be positive")
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup records: %w", result.Error)
	}

	return result.RowsAffected, nil
}

func applyAuditFilters(query *gorm.DB, filters AuditFilters) *gorm.DB {
	if filters.TokenID != "" {
		query = query.Where("token_id = ?", filters.TokenID)
	}
	if filters.Resource != "" {
		query = query.Where("resource = ?", filters.Resource)
	}
	if filters.ObjectID != "" {
		query = query.Where("object_id = ?", filters.ObjectID)
	}
	if filters.Kind != "" {
		query = query.Where("kind = ?", filters.Kind)
	}
	if filters.Since != nil {
		query = query.Where("created_at >= ?", *filters.Since)
	}
	if filters.Until != nil {
		query = query.Where("created_at <= ?", *filters.Until)
	}
	return query
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

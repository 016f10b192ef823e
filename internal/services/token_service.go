package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/admingate/admingate/internal/models"
	"github.com/admingate/admingate/internal/permissions"
	"github.com/admingate/admingate/pkg/crypto"
	appErrors "github.com/admingate/admingate/pkg/errors"
	"github.com/admingate/admingate/pkg/logger"
	"github.com/admingate/admingate/pkg/metrics"
)

const (
	// tokenPrefix marks presented credentials: agt_<identifier>_<secret>.
	tokenPrefix = "agt_"

	// identifierBytes sizes the public lookup key; hex-encoded so the
	// identifier can never contain the "_" separator.
	identifierBytes = 8
	// secretBytes is the private portion's entropy.
	secretBytes = 32
	saltBytes   = 16

	// DefaultTokenTTL bounds the lifetime of tokens created without an
	// explicit expiry.
	DefaultTokenTTL = 90 * 24 * time.Hour
)

// errAuthFailed is the single caller-visible verification failure. Lookup
// misses, hash mismatches, and expired tokens are indistinguishable so
// identifiers cannot be enumerated.
var errAuthFailed = appErrors.ErrUnauthorized.WithMessage("Invalid or missing authentication token")

// GenerateTokenInput describes a token to mint.
type GenerateTokenInput struct {
	Name   string
	UserID *string

	// ExpiresAt set together with NeverExpires=false pins an explicit expiry.
	// Leaving ExpiresAt nil applies the 90-day default unless NeverExpires is
	// set, which yields a token with indefinite validity.
	ExpiresAt    *time.Time
	NeverExpires bool

	GroupIDs      []string
	PermissionIDs []string
}

// GeneratedToken pairs a persisted token with its plaintext credential. The
// plaintext exists only in this value and is never recoverable afterwards.
type GeneratedToken struct {
	Token     models.AccessToken
	Plaintext string
}

// TokenService is the credential store: it mints, verifies, regenerates, and
// retires access tokens. Tokens are deactivated rather than deleted so audit
// records keep a valid attribution target.
type TokenService struct {
	db     *gorm.DB
	params crypto.Argon2Parameters
	ttl    time.Duration
	now    func() time.Time
	log    *zap.Logger
}

// TokenServiceOption customises the TokenService.
type TokenServiceOption func(*TokenService)

// WithNow overrides the clock, primarily for tests.
func WithNow(now func() time.Time) TokenServiceOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDefaultTTL overrides the default token lifetime.
func WithDefaultTTL(ttl time.Duration) TokenServiceOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewTokenService constructs a TokenService using the provided database handle.
func NewTokenService(db *gorm.DB, opts ...TokenServiceOption) (*TokenService, error) {
	if db == nil {
		return nil, errors.New("token service: db is required")
	}

	svc := &TokenService{
		db:     db,
		params: crypto.DefaultTokenParams(),
		ttl:    DefaultTokenTTL,
		now:    time.Now,
		log:    logger.WithModule("tokens"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Generate mints a new token and returns its plaintext exactly once.
func (s *TokenService) Generate(ctx context.Context, input GenerateTokenInput) (*GeneratedToken, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, appErrors.NewInvalidInput("token name is required")
	}

	identifier, plaintext, hash, salt, err := s.mintSecret()
	if err != nil {
		return nil, fmt.Errorf("token service: mint secret: %w", err)
	}

	token := models.AccessToken{
		Name:       name,
		Identifier: identifier,
		SecretHash: hash,
		Salt:       salt,
		UserID:     input.UserID,
		IsActive:   true,
		ExpiresAt:  s.resolveExpiry(input),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&token).Error; err != nil {
			return err
		}
		if len(input.GroupIDs) > 0 {
			var groups []models.Group
			if err := tx.Where("id IN ?", input.GroupIDs).Find(&groups).Error; err != nil {
				return err
			}
			if len(groups) != len(input.GroupIDs) {
				return appErrors.ErrInvalidReference.WithMessage("unknown group in group_ids")
			}
			if err := tx.Model(&token).Association("Groups").Replace(groups); err != nil {
				return err
			}
		}
		if len(input.PermissionIDs) > 0 {
			var perms []models.Permission
			if err := tx.Where("id IN ?", input.PermissionIDs).Find(&perms).Error; err != nil {
				return err
			}
			if len(perms) != len(input.PermissionIDs) {
				return appErrors.ErrInvalidReference.WithMessage("unknown permission in permission_ids")
			}
			if err := tx.Model(&token).Association("Permissions").Replace(perms); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var appErr *appErrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, fmt.Errorf("token service: create token: %w", err)
	}

	return &GeneratedToken{Token: token, Plaintext: plaintext}, nil
}

// Verify authenticates a presented credential and returns the matching token.
// All failure modes collapse into the same generic authentication error.
func (s *TokenService) Verify(ctx context.Context, presented string) (*models.AccessToken, error) {
	ctx = ensureContext(ctx)

	identifier, secret, ok := parseToken(presented)
	if !ok {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, errAuthFailed
	}

	var token models.AccessToken
	if err := s.db.WithContext(ctx).
		First(&token, "identifier = ?", identifier).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Error("token lookup failed", zap.Error(err))
		}
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, errAuthFailed
	}

	if !crypto.VerifySecret(secret, token.Salt, token.SecretHash, s.params) || !token.IsValid(s.now()) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, errAuthFailed
	}

	s.markUsed(ctx, &token)
	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return &token, nil
}

// Regenerate issues a fresh secret for an existing token, keeping its
// identifier. The previous secret is invalid as soon as this returns.
func (s *TokenService) Regenerate(ctx context.Context, id string) (*GeneratedToken, error) {
	ctx = ensureContext(ctx)

	var token models.AccessToken
	if err := s.db.WithContext(ctx).First(&token, "id = ?", strings.TrimSpace(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrNotFound.WithMessage("token not found")
		}
		return nil, fmt.Errorf("token service: load token: %w", err)
	}

	secret, hash, salt, err := s.mintSecretFor(token.Identifier)
	if err != nil {
		return nil, fmt.Errorf("token service: mint secret: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&token).Updates(map[string]any{
		"secret_hash": hash,
		"salt":        salt,
	}).Error; err != nil {
		return nil, fmt.Errorf("token service: rotate secret: %w", err)
	}

	token.SecretHash = hash
	token.Salt = salt
	return &GeneratedToken{
		Token:     token,
		Plaintext: assembleToken(token.Identifier, secret),
	}, nil
}

// Deactivate retires a token. The row is kept for audit linkage.
func (s *TokenService) Deactivate(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Model(&models.AccessToken{}).
		Where("id = ?", strings.TrimSpace(id)).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("token service: deactivate: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return appErrors.ErrNotFound.WithMessage("token not found")
	}
	return nil
}

// List returns all tokens ordered by creation time descending.
func (s *TokenService) List(ctx context.Context) ([]models.AccessToken, error) {
	ctx = ensureContext(ctx)

	var tokens []models.AccessToken
	if err := s.db.WithContext(ctx).
		Preload("Groups").
		Preload("Permissions").
		Order("created_at DESC").
		Find(&tokens).Error; err != nil {
		return nil, fmt.Errorf("token service: list: %w", err)
	}
	return tokens, nil
}

// DeactivateExpired flips is_active off for tokens whose expiry passed more
// than grace ago. Used by background maintenance; expired tokens already fail
// verification either way.
func (s *TokenService) DeactivateExpired(ctx context.Context, grace time.Duration) (int64, error) {
	ctx = ensureContext(ctx)

	cutoff := s.now().Add(-grace)
	result := s.db.WithContext(ctx).
		Model(&models.AccessToken{}).
		Where("is_active = ? AND expires_at IS NOT NULL AND expires_at < ?", true, cutoff).
		Update("is_active", false)
	if result.Error != nil {
		return 0, fmt.Errorf("token service: deactivate expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// PrincipalFor builds the dispatch principal for a verified token.
func PrincipalFor(token *models.AccessToken) *permissions.Principal {
	if token == nil {
		return nil
	}
	return &permissions.Principal{
		TokenID: token.ID,
		Name:    token.Name,
		UserID:  token.UserID,
	}
}

func (s *TokenService) resolveExpiry(input GenerateTokenInput) *time.Time {
	if input.NeverExpires {
		return nil
	}
	if input.ExpiresAt != nil {
		expiry := *input.ExpiresAt
		return &expiry
	}
	expiry := s.now().Add(s.ttl)
	return &expiry
}

func (s *TokenService) mintSecret() (identifier, plaintext, hash string, salt []byte, err error) {
	raw, err := crypto.NewSalt(identifierBytes)
	if err != nil {
		return "", "", "", nil, err
	}
	identifier = fmt.Sprintf("%x", raw)

	secret, hash, salt, err := s.mintSecretFor(identifier)
	if err != nil {
		return "", "", "", nil, err
	}
	return identifier, assembleToken(identifier, secret), hash, salt, nil
}

func (s *TokenService) mintSecretFor(identifier string) (secret, hash string, salt []byte, err error) {
	secret, err = crypto.GenerateToken(secretBytes)
	if err != nil {
		return "", "", nil, err
	}
	salt, err = crypto.NewSalt(saltBytes)
	if err != nil {
		return "", "", nil, err
	}
	hash, err = crypto.HashSecret(secret, salt, s.params)
	if err != nil {
		return "", "", nil, err
	}
	return secret, hash, salt, nil
}

// markUsed records last_used_at opportunistically; a failure here must not
// turn a successful authentication into a failed one.
func (s *TokenService) markUsed(ctx context.Context, token *models.AccessToken) {
	now := s.now()
	if err := s.db.WithContext(ctx).
		Model(token).
		UpdateColumn("last_used_at", now).Error; err != nil {
		s.log.Warn("failed to update last_used_at", zap.String("token_id", token.ID), zap.Error(err))
		return
	}
	token.LastUsedAt = &now
}

func assembleToken(identifier, secret string) string {
	return tokenPrefix + identifier + "_" + secret
}

// parseToken splits a presented credential into identifier and secret. The
// identifier is hex-encoded, so the first "_" after the prefix is always the
// separator even though the secret's base64url alphabet contains "_".
func parseToken(presented string) (identifier, secret string, ok bool) {
	presented = strings.TrimSpace(presented)
	if !strings.HasPrefix(presented, tokenPrefix) {
		return "", "", false
	}
	rest := presented[len(tokenPrefix):]
	parts := strings.SplitN(rest, "_", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

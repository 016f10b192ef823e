package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/admingate/admingate/internal/models"
	"github.com/admingate/admingate/internal/services"
	"github.com/admingate/admingate/pkg/response"
)

// TokenHandler is the administration surface of the credential store.
type TokenHandler struct {
	tokens *services.TokenService
}

// NewTokenHandler constructs a TokenHandler.
func NewTokenHandler(tokens *services.TokenService) (*TokenHandler, error) {
	if tokens == nil {
		return nil, errors.New("handlers: token service is required")
	}
	return &TokenHandler{tokens: tokens}, nil
}

type createTokenRequest struct {
	Name          string     `json:"name" validate:"required,min=1,max=128"`
	UserID        *string    `json:"user_id"`
	ExpiresAt     *time.Time `json:"expires_at"`
	NeverExpires  bool       `json:"never_expires"`
	GroupIDs      []string   `json:"group_ids"`
	PermissionIDs []string   `json:"permission_ids"`
}

// tokenView omits the secret material; the plaintext only ever appears in the
// create and regenerate responses.
type tokenView struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Identifier string     `json:"identifier"`
	UserID     *string    `json:"user_id,omitempty"`
	IsActive   bool       `json:"is_active"`
	ExpiresAt  *time.Time `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

func viewOf(token models.AccessToken) tokenView {
	return tokenView{
		ID:         token.ID,
		Name:       token.Name,
		Identifier: token.Identifier,
		UserID:     token.UserID,
		IsActive:   token.IsActive,
		ExpiresAt:  token.ExpiresAt,
		LastUsedAt: token.LastUsedAt,
		CreatedAt:  token.CreatedAt,
	}
}

// POST /api/tokens
func (h *TokenHandler) Create(c *gin.Context) {
	var body createTokenRequest
	if !bindAndValidate(c, &body) {
		return
	}

	generated, err := h.tokens.Generate(c.Request.Context(), services.GenerateTokenInput{
		Name:          body.Name,
		UserID:        body.UserID,
		ExpiresAt:     body.ExpiresAt,
		NeverExpires:  body.NeverExpires,
		GroupIDs:      body.GroupIDs,
		PermissionIDs: body.PermissionIDs,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"token":     viewOf(generated.Token),
		"plaintext": generated.Plaintext,
	})
}

// GET /api/tokens
func (h *TokenHandler) List(c *gin.Context) {
	tokens, err := h.tokens.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	views := make([]tokenView, 0, len(tokens))
	for _, token := range tokens {
		views = append(views, viewOf(token))
	}
	response.Success(c, http.StatusOK, views)
}

// POST /api/tokens/:id/regenerate
func (h *TokenHandler) Regenerate(c *gin.Context) {
	generated, err := h.tokens.Regenerate(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token":     viewOf(generated.Token),
		"plaintext": generated.Plaintext,
	})
}

// DELETE /api/tokens/:id
func (h *TokenHandler) Deactivate(c *gin.Context) {
	if err := h.tokens.Deactivate(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deactivated": true})
}

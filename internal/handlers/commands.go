package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/admingate/admingate/internal/dispatch"
	"github.com/admingate/admingate/internal/middleware"
	"github.com/admingate/admingate/pkg/response"
)

// CommandHandler exposes the dispatcher over HTTP.
type CommandHandler struct {
	dispatcher *dispatch.Dispatcher
}

// NewCommandHandler constructs a CommandHandler.
func NewCommandHandler(dispatcher *dispatch.Dispatcher) (*CommandHandler, error) {
	if dispatcher == nil {
		return nil, errors.New("handlers: dispatcher is required")
	}
	return &CommandHandler{dispatcher: dispatcher}, nil
}

type invokeRequest struct {
	Command   string         `json:"command" validate:"required"`
	Arguments map[string]any `json:"arguments"`
}

// POST /api/mcp
func (h *CommandHandler) Invoke(c *gin.Context) {
	var body invokeRequest
	if !bindAndValidate(c, &body) {
		return
	}

	principal := middleware.PrincipalFrom(c)
	result, err := h.dispatcher.Dispatch(c.Request.Context(), principal, body.Command, body.Arguments)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// GET /api/mcp/commands
func (h *CommandHandler) List(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"commands": h.dispatcher.Commands()})
}

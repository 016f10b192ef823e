package handlers

import (
	"github.com/gin-gonic/gin"

	appErrors "github.com/admingate/admingate/pkg/errors"
	"github.com/admingate/admingate/pkg/response"
	appValidator "github.com/admingate/admingate/pkg/validator"
)

// bindAndValidate decodes the request body into dest and runs struct
// validation, writing the error response itself on failure.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewInvalidInput("invalid JSON payload"))
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, appErrors.NewValidation(formatValidationError(err)))
		return false
	}

	return true
}

func formatValidationError(err error) string {
	if err == nil {
		return "invalid request payload"
	}

	if ve, ok := err.(appValidator.ValidationErrors); ok {
		if len(ve) == 0 {
			return "invalid request payload"
		}
		return ve.Error()
	}
	return "invalid request payload"
}

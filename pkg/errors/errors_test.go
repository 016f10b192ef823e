package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppErrorMessageFormatting(t *testing.T) {
	err := ErrDuplicateEntry.WithInternal(fmt.Errorf("UNIQUE constraint failed: authors.email"))

	require.Contains(t, err.Error(), "already exists")
	require.Contains(t, err.Error(), "UNIQUE constraint failed")
}

func TestWithInternalKeepsSentinelIdentity(t *testing.T) {
	cause := errors.New("pk missing")
	err := ErrNotFound.WithInternal(cause)

	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, err, cause)
	require.Equal(t, "not_found", FromError(err).Code)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	require.Nil(t, FromError(nil))

	appErr := FromError(errors.New("connection reset"))
	require.Equal(t, ErrInternalServer.Code, appErr.Code)
	require.Equal(t, http.StatusInternalServerError, appErr.StatusCode)
	require.EqualError(t, appErr.Internal, "connection reset")
}

func TestWithMessageDoesNotMutateSentinel(t *testing.T) {
	custom := ErrValidation.WithMessage("email is required")

	require.Equal(t, "email is required", custom.Message)
	require.Equal(t, "Validation failed", ErrValidation.Message)
	require.ErrorIs(t, custom, ErrValidation)
}

func TestWrapProducesInternalCode(t *testing.T) {
	err := Wrap(errors.New("boom"), "engine failure")
	require.Equal(t, "internal_error", err.Code)
	require.Contains(t, err.Error(), "engine failure")
}

package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodesAndStatus(t *testing.T) {
	err := New(CodeMissingMatrixAxis, "pessimistic matrix required")
	require.True(t, Is(err, CodeMissingMatrixAxis))
	require.Equal(t, http.StatusBadRequest, GetHTTPStatus(err))

	wrapped := fmt.Errorf("load bundle: %w", err)
	require.True(t, Is(wrapped, CodeMissingMatrixAxis))
	require.Equal(t, CodeMissingMatrixAxis, GetCode(wrapped))

	require.Equal(t, CodeUnknown, GetCode(errors.New("plain")))
	require.Equal(t, http.StatusInternalServerError, GetHTTPStatus(errors.New("plain")))
	require.Equal(t, http.StatusUnprocessableEntity, GetHTTPStatus(New(CodePartitionViolation, "dup")))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeDatabaseError, "save run")
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "DATABASE_ERROR")
	require.Contains(t, err.Error(), "connection refused")
}

func TestInvalidInputField(t *testing.T) {
	err := InvalidInput("alpha", "must be in (0,1)")
	require.Equal(t, "alpha", err.Fields["field"])
	require.Equal(t, http.StatusBadRequest, err.HTTPStatus)
}

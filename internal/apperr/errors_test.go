package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{Validation("title is required"), http.StatusBadRequest},
		{NotFound("artifact", "x"), http.StatusNotFound},
		{Forbidden("x"), http.StatusForbidden},
		{Conflict("artifact %q already exists", "x"), http.StatusConflict},
		{Unavailable("save artifact", errors.New("conn reset")), http.StatusServiceUnavailable},
		{fmt.Errorf("publish: %w", NotFound("artifact", "x")), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, Status(tt.err))
		})
	}
}

func TestUnavailableDeadline(t *testing.T) {
	err := Unavailable("open file", context.DeadlineExceeded)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "timed out")
}

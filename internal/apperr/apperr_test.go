package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: amount", ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: card declined", ErrProvider), http.StatusBadRequest},
		{fmt.Errorf("%w: user 1", ErrNotFound), http.StatusNotFound},
		{ErrNotReady, http.StatusConflict},
		{ErrConflict, http.StatusConflict},
		{ErrRateLimited, http.StatusTooManyRequests},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Status(c.err), c.err.Error())
	}
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "amount must be between 5 and 500", Message(fmt.Errorf("%w: amount must be between 5 and 500", ErrValidation)))
	assert.Equal(t, "No such account: 'acct_x'", Message(fmt.Errorf("%w: No such account: 'acct_x'", ErrProvider)))
	assert.Equal(t, "internal error", Message(errors.New("pq: connection refused")))
}

func TestCode(t *testing.T) {
	assert.Equal(t, "not_ready", Code(fmt.Errorf("wrap: %w", ErrNotReady)))
	assert.Equal(t, "internal_error", Code(errors.New("x")))
}

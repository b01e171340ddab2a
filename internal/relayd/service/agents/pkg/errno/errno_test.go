package errno

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code Code
	}{
		{"invalid request", ErrInvalidRequest, CodeRequestValidation},
		{"agent not found", ErrAgentNotFound, CodeAgentNotFound},
		{"session cleared", ErrSessionCleared, CodeSessionCleared},
		{"session limit", ErrSessionLimit, CodeSessionLimit},
		{"wrapped session limit", fmt.Errorf("create session: %w", ErrSessionLimit), CodeSessionLimit},
		{"approval timeout", ErrApprovalTimeout, CodeApprovalTimeout},
		{"unknown error", errors.New("boom"), CodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, CodeOf(tc.err))
		})
	}
}

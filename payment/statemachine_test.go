package payment

import (
	"errors"
	"testing"

	"github.com/mstgnz/academypay/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachine_Transition(t *testing.T) {
	sm := NewStateMachine()

	tests := []struct {
		name     string
		from, to Status
		allowed  bool
		path     []Status
		reason   Reason
	}{
		{"pending to processing", provider.StatusPending, provider.StatusProcessing, true, []Status{provider.StatusProcessing}, ""},
		{"pending to cancelled", provider.StatusPending, provider.StatusCancelled, true, []Status{provider.StatusCancelled}, ""},
		{"pending to succeeded via processing", provider.StatusPending, provider.StatusSucceeded, true, []Status{provider.StatusProcessing, provider.StatusSucceeded}, ""},
		{"pending to failed via processing", provider.StatusPending, provider.StatusFailed, true, []Status{provider.StatusProcessing, provider.StatusFailed}, ""},
		{"processing to succeeded", provider.StatusProcessing, provider.StatusSucceeded, true, []Status{provider.StatusSucceeded}, ""},
		{"processing to failed", provider.StatusProcessing, provider.StatusFailed, true, []Status{provider.StatusFailed}, ""},
		{"processing to cancelled", provider.StatusProcessing, provider.StatusCancelled, true, []Status{provider.StatusCancelled}, ""},
		{"succeeded to refunded", provider.StatusSucceeded, provider.StatusRefunded, true, []Status{provider.StatusRefunded}, ""},
		{"pending to refunded", provider.StatusPending, provider.StatusRefunded, false, nil, ReasonInvalidEdge},
		{"processing to pending", provider.StatusProcessing, provider.StatusPending, false, nil, ReasonInvalidEdge},
		{"processing to refunded", provider.StatusProcessing, provider.StatusRefunded, false, nil, ReasonInvalidEdge},
		{"succeeded to failed", provider.StatusSucceeded, provider.StatusFailed, false, nil, ReasonAlreadyTerminal},
		{"succeeded to pending", provider.StatusSucceeded, provider.StatusPending, false, nil, ReasonAlreadyTerminal},
		{"failed to succeeded", provider.StatusFailed, provider.StatusSucceeded, false, nil, ReasonAlreadyTerminal},
		{"cancelled to processing", provider.StatusCancelled, provider.StatusProcessing, false, nil, ReasonAlreadyTerminal},
		{"refunded to succeeded", provider.StatusRefunded, provider.StatusSucceeded, false, nil, ReasonAlreadyTerminal},
		{"unknown status", Status("bogus"), provider.StatusSucceeded, false, nil, ReasonInvalidEdge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := sm.Transition(tt.from, tt.to)
			assert.Equal(t, tt.allowed, d.Allowed())
			assert.Equal(t, tt.allowed, sm.CanTransition(tt.from, tt.to))

			if tt.allowed {
				assert.Equal(t, tt.to, d.Status)
				assert.Equal(t, tt.path, d.Path)
				assert.Nil(t, d.Rejection)
				return
			}

			require.NotNil(t, d.Rejection)
			assert.Equal(t, tt.from, d.Status)
			assert.Equal(t, tt.reason, d.Rejection.Reason)
			assert.Equal(t, tt.from, d.Rejection.From)
			assert.Equal(t, tt.to, d.Rejection.To)
		})
	}
}

func TestStateMachine_TerminalHasNoExit(t *testing.T) {
	sm := NewStateMachine()
	all := []Status{
		provider.StatusPending, provider.StatusProcessing, provider.StatusSucceeded,
		provider.StatusFailed, provider.StatusCancelled, provider.StatusRefunded,
	}

	for _, from := range []Status{provider.StatusFailed, provider.StatusCancelled, provider.StatusRefunded} {
		for _, to := range all {
			assert.False(t, sm.CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestRejection_Err(t *testing.T) {
	terminal := &Rejection{Reason: ReasonAlreadyTerminal, From: provider.StatusSucceeded, To: provider.StatusFailed}
	assert.True(t, errors.Is(terminal.Err(), ErrAlreadyTerminal))
	assert.Contains(t, terminal.Error(), "succeeded -> failed")

	edge := &Rejection{Reason: ReasonInvalidEdge, From: provider.StatusPending, To: provider.StatusRefunded}
	assert.True(t, errors.Is(edge.Err(), ErrInvalidEdge))

	var none *Rejection
	assert.NoError(t, none.Err())
}

package airerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("device busy")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", cause, KindUnknown},
		{"unable to start", UnableToStart(cause), KindUnableToStart},
		{"unable to start without cause", UnableToStart(nil), KindUnableToStart},
		{"wrapped cpu", fmt.Errorf("port: %w", ErrInsufficientCPUTime), KindInsufficientCPUTime},
		{"interruption", ErrInterruption, KindInterruption},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
			assert.Equal(t, tt.want != KindUnknown, IsFatal(tt.err))
		})
	}
}

func TestUnableToStartKeepsCause(t *testing.T) {
	cause := errors.New("no input device")
	err := UnableToStart(cause)

	assert.ErrorIs(t, err, ErrUnableToStart)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "UnableToStart", KindOf(err).String())
}

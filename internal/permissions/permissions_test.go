//go:build !darwin

package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureMicrophoneNoopOffDarwin(t *testing.T) {
	assert.NoError(t, EnsureMicrophone())
}

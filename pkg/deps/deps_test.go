package deps

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pvcship/pvcship/pkg/prompt"
)

func TestCheckBinaryPresent(t *testing.T) {
	assert.NoError(t, checkBinary("sh", "", prompt.NonInteractive{}))
}

func TestCheckBinaryMissingNonInteractive(t *testing.T) {
	err := checkBinary("definitely-not-a-binary-on-path", "install it", prompt.NonInteractive{AssumeYes: true})
	assert.ErrorContains(t, err, "not found on PATH")
}

func TestCheckBinaryMissingWavedThrough(t *testing.T) {
	p := &prompt.Fake{ConfirmAnswers: []bool{true}}
	assert.NoError(t, checkBinary("definitely-not-a-binary-on-path", "install it", p))
}

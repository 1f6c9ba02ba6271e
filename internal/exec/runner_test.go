package exec

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner_Success(t *testing.T) {
	r := NewRunner()

	out, code, err := r.Run(context.Background(), t.TempDir(), "sh", "-c", "echo hello")

	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Contains(t, string(out), "hello")
}

func TestExecRunner_NonZeroExitIsNotAnError(t *testing.T) {
	r := NewRunner()

	out, code, err := r.Run(context.Background(), "", "sh", "-c", "echo broken; exit 3")

	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Contains(t, string(out), "broken")
}

func TestExecRunner_MissingBinary(t *testing.T) {
	r := NewRunner()

	_, _, err := r.Run(context.Background(), "", "definitely-not-a-real-binary-xyz")

	assert.Error(t, err)
}

func TestExecRunner_ContextDeadline(t *testing.T) {
	r := NewRunner()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := r.Run(ctx, "", "sh", "-c", "sleep 5")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecRunner_Env(t *testing.T) {
	r := NewRunner("AUTOCODER_TEST_VALUE=42")

	out, _, err := r.Run(context.Background(), "", "sh", "-c", "echo $AUTOCODER_TEST_VALUE")

	require.NoError(t, err)
	assert.Contains(t, string(out), "42")
}

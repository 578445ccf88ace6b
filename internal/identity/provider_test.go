package identity

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("missing file has no assertion", func(t *testing.T) {
		p := NewFileProvider("google", filepath.Join(t.TempDir(), "absent"))
		_, err := p.SilentAssertion(ctx)
		assert.ErrorIs(t, err, ErrNoAssertion)
	})

	t.Run("empty path has no assertion", func(t *testing.T) {
		_, err := NewFileProvider("google", "").SilentAssertion(ctx)
		assert.ErrorIs(t, err, ErrNoAssertion)
	})

	t.Run("blank file has no assertion", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "token")
		require.NoError(t, os.WriteFile(path, []byte("  \n"), 0o600))
		_, err := NewFileProvider("google", path).SilentAssertion(ctx)
		assert.ErrorIs(t, err, ErrNoAssertion)
	})

	t.Run("stored assertion is read back trimmed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "token")
		p := NewFileProvider("google", path)
		require.NoError(t, p.Store("  id-token-value "))

		got, err := p.SilentAssertion(ctx)
		require.NoError(t, err)
		assert.Equal(t, "id-token-value", got)
		assert.Equal(t, "google", p.Name())
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := NewFileProvider("google", "x").SilentAssertion(cctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestStaticProvider(t *testing.T) {
	got, err := NewStaticProvider("google", "abc").SilentAssertion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", got)

	_, err = NewStaticProvider("google", "").SilentAssertion(context.Background())
	assert.ErrorIs(t, err, ErrNoAssertion)
}

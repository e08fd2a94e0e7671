package kv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T, workspace string) *Store {
	t.Helper()
	s, err := Open(context.Background(), Memory, workspace, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSecrets(t *testing.T) {
	ctx := context.Background()
	s := openTest(t, "/repo")

	v, err := s.Secret(ctx, APIKeySecret)
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetSecret(ctx, APIKeySecret, "sk-one"))
	require.NoError(t, s.SetSecret(ctx, APIKeySecret, "sk-two"))
	v, err = s.Secret(ctx, APIKeySecret)
	require.NoError(t, err)
	assert.Equal(t, "sk-two", v)

	require.NoError(t, s.DeleteSecret(ctx, APIKeySecret))
	v, err = s.Secret(ctx, APIKeySecret)
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestTestFileMap(t *testing.T) {
	ctx := context.Background()
	s := openTest(t, "/repo")

	m, err := s.TestFileMap(ctx)
	require.NoError(t, err)
	assert.Empty(t, m)
	assert.NotNil(t, m)

	require.NoError(t, s.UpdateTestFileMap(ctx, "src/a.ts", "test/a.test.ts"))
	require.NoError(t, s.UpdateTestFileMap(ctx, "src/b.ts", "test/b.test.ts"))
	require.NoError(t, s.UpdateTestFileMap(ctx, "src/a.ts", "test/a2.test.ts"))

	m, err = s.TestFileMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"src/a.ts": "test/a2.test.ts",
		"src/b.ts": "test/b.test.ts",
	}, m)

	require.NoError(t, s.RemoveTestFileMap(ctx, "src/a.ts"))
	require.NoError(t, s.RemoveTestFileMap(ctx, "src/missing.ts"))
	m, err = s.TestFileMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"src/b.ts": "test/b.test.ts"}, m)
}

func TestCurrentSelection(t *testing.T) {
	ctx := context.Background()
	s := openTest(t, "/repo")

	require.NoError(t, s.SetCurrentTestCommand(ctx, "npm test"))
	require.NoError(t, s.SetCurrentSourceFile(ctx, "src/a.ts"))
	require.NoError(t, s.SetCurrentTestFile(ctx, "test/a.test.ts"))
	require.NoError(t, s.SetCurrentContext(ctx, "focus on parsing"))

	cmd, err := s.CurrentTestCommand(ctx)
	require.NoError(t, err)
	assert.Equal(t, "npm test", cmd)
	src, err := s.CurrentSourceFile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "src/a.ts", src)
	test, err := s.CurrentTestFile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test/a.test.ts", test)
	note, err := s.CurrentContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "focus on parsing", note)

	require.NoError(t, s.RemoveCurrentTestCommand(ctx))
	require.NoError(t, s.RemoveCurrentSourceFile(ctx))
	require.NoError(t, s.RemoveCurrentTestFile(ctx))
	cmd, err = s.CurrentTestCommand(ctx)
	require.NoError(t, err)
	assert.Empty(t, cmd)
	src, _ = s.CurrentSourceFile(ctx)
	assert.Empty(t, src)
	test, _ = s.CurrentTestFile(ctx)
	assert.Empty(t, test)
}

func TestPreferences(t *testing.T) {
	ctx := context.Background()
	s := openTest(t, "/repo")

	var provider string
	ok, err := s.Preference(ctx, "selectedModelProvider", &provider)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetPreference(ctx, "selectedModelProvider", "openai"))
	ok, err = s.Preference(ctx, "selectedModelProvider", &provider)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "openai", provider)
}

func TestWorkspaceScoping(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	a, err := Open(ctx, path, "/repo/a", zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, a.SetCurrentTestCommand(ctx, "make test"))
	require.NoError(t, a.SetSecret(ctx, APIKeySecret, "sk-shared"))
	require.NoError(t, a.Close())

	b, err := Open(ctx, path, "/repo/b", zerolog.Nop())
	require.NoError(t, err)
	defer b.Close()

	cmd, err := b.CurrentTestCommand(ctx)
	require.NoError(t, err)
	assert.Empty(t, cmd, "values do not leak across workspaces")

	key, err := b.Secret(ctx, APIKeySecret)
	require.NoError(t, err)
	assert.Equal(t, "sk-shared", key, "secrets are global")
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.db")

	s, err := Open(ctx, path, "/repo", zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.UpdateTestFileMap(ctx, "a.go", "a_test.go"))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, "/repo", zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()
	m, err := s.TestFileMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a.go": "a_test.go"}, m)
}

func TestClosed(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Memory, "/repo", zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Secret(ctx, APIKeySecret)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.SetCurrentTestCommand(ctx, "x"), ErrClosed)
	assert.ErrorIs(t, s.DeleteSecret(ctx, APIKeySecret), ErrClosed)
}

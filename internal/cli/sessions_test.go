package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanoagent/nanoagent/pkg/session"
)

// writeTestConfig points the global --config flag at a config file
// whose sessions directory lives under a temp dir, and restores the
// previous value when the test ends.
func writeTestConfig(t *testing.T) *session.Store {
	t.Helper()

	dir := t.TempDir()
	sessionsDir := filepath.Join(dir, "sessions")
	configPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(
		`{"data_dir": "`+dir+`", "sessions": {"dir": "`+sessionsDir+`"}}`), 0o644))

	prev := cfgFile
	cfgFile = configPath
	t.Cleanup(func() { cfgFile = prev })

	store, err := session.NewStore(sessionsDir)
	require.NoError(t, err)
	return store
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := GetRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	root.SetArgs(nil)
	return out.String(), err
}

func TestSessionsListPlainOutput(t *testing.T) {
	store := writeTestConfig(t)

	sess, err := store.Create("", "openai", "gpt-4o")
	require.NoError(t, err)

	out, err := runCommand(t, "sessions", "list")
	require.NoError(t, err)
	assert.Contains(t, out, sess.ID)
	assert.Contains(t, out, "gpt-4o")
}

func TestSessionsListLimitAndClientFilter(t *testing.T) {
	store := writeTestConfig(t)

	mine, err := store.Create("client-a", "openai", "gpt-4o")
	require.NoError(t, err)
	theirs, err := store.Create("client-b", "openai", "gpt-4o")
	require.NoError(t, err)

	mine.UpdatedAt = time.Now().UTC()
	require.NoError(t, store.Save(mine))
	theirs.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.Save(theirs))

	out, err := runCommand(t, "sessions", "list", "--client", "client-a")
	require.NoError(t, err)
	assert.Contains(t, out, mine.ID)
	assert.NotContains(t, out, theirs.ID)

	out, err = runCommand(t, "sessions", "list", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, mine.ID)
	assert.NotContains(t, out, theirs.ID)
}

func TestSessionsShowTranscript(t *testing.T) {
	store := writeTestConfig(t)

	sess, err := store.Create("", "anthropic", "claude-sonnet-4-20250514")
	require.NoError(t, err)
	sess.Append(session.Message{Role: "user", Content: "list the files"})
	sess.Append(session.Message{Role: "assistant", Content: "there are two files"})
	require.NoError(t, store.Save(sess))

	out, err := runCommand(t, "sessions", "show", sess.ID)
	require.NoError(t, err)
	assert.Contains(t, out, sess.ID)
	assert.Contains(t, out, "USER")
	assert.Contains(t, out, "list the files")
	assert.Contains(t, out, "there are two files")
}

func TestSessionsShowMissing(t *testing.T) {
	writeTestConfig(t)

	_, err := runCommand(t, "sessions", "show", "s_20250101_000000_missing0")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestSessionsSweepOnce(t *testing.T) {
	store := writeTestConfig(t)

	expired, err := store.Create("", "openai", "gpt-4o")
	require.NoError(t, err)
	expired.UpdatedAt = time.Now().UTC().Add(-30 * 24 * time.Hour)
	require.NoError(t, store.Save(expired))

	out, err := runCommand(t, "sessions", "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 1 expired session(s)")
}

func TestSessionsClearAll(t *testing.T) {
	store := writeTestConfig(t)

	_, err := store.Create("", "openai", "gpt-4o")
	require.NoError(t, err)
	_, err = store.Create("", "openai", "gpt-4o")
	require.NoError(t, err)

	out, err := runCommand(t, "sessions", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 2 session(s)")

	summaries, err := store.List("", 0)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, "Donna", p.Persona.AgentName)
	assert.Equal(t, "Thank you for calling. Goodbye!", p.Lines.Farewell)
	assert.Equal(t, 50, p.Guards.FarewellMaxLength)
	assert.Equal(t, 5, p.Guards.HistoryWindow)
	assert.Equal(t, 2, p.Guards.RepeatWindow)
	assert.Equal(t, 8*time.Second, p.Timeouts.Decision.Duration)
	assert.Equal(t, 15*time.Second, p.Timeouts.Outcome.Duration)
	assert.Equal(t, 30*time.Minute, p.Meeting.Duration.Duration)
	assert.Contains(t, p.Guards.FarewellPhrases, "talk to you later")
	assert.Contains(t, p.Guards.GreetingPhrases, "how may i help")
}

func TestParsePolicyOverlaysDefaults(t *testing.T) {
	doc := []byte(`
version: "override-1"
lines:
  farewell: "Bye for now!"
timeouts:
  reply: 3s
`)
	p, err := ParsePolicy(doc)
	require.NoError(t, err)

	assert.Equal(t, "override-1", p.Version)
	assert.Equal(t, "Bye for now!", p.Lines.Farewell)
	assert.Equal(t, 3*time.Second, p.Timeouts.Reply.Duration)
	// untouched sections keep built-in values
	assert.Equal(t, DefaultPolicy().Lines.Greeting, p.Lines.Greeting)
	assert.Equal(t, 8*time.Second, p.Timeouts.Decision.Duration)
}

func TestParsePolicyRejectsInvalidDocuments(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{name: "missing version", doc: "lines:\n  farewell: bye\n"},
		{name: "unknown field", doc: "version: v1\nlinez:\n  farewell: bye\n"},
		{name: "bad duration", doc: "version: v1\ntimeouts:\n  reply: soon\n"},
		{name: "non positive window", doc: "version: v1\nguards:\n  history_window: 0\n"},
		{name: "wrong type", doc: "version: v1\nguards:\n  farewell_phrases: bye\n"},
		{name: "empty document", doc: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePolicy([]byte(tc.doc))
			assert.Error(t, err)
		})
	}
}

func TestPolicySchemaJSON(t *testing.T) {
	raw, err := PolicySchemaJSON()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"farewell_phrases"`)
	assert.Contains(t, string(raw), `"version"`)
}

func TestLoadPolicyEmptyPathUsesDefault(t *testing.T) {
	p, err := LoadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy().Version, p.Version)
}

func TestPolicyWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: first\n"), 0o600))

	w, err := NewPolicyWatcher(path)
	require.NoError(t, err)
	assert.Equal(t, "first", w.Current().Version)

	require.NoError(t, os.WriteFile(path, []byte("version: second\n"), 0o600))
	require.NoError(t, w.Reload())
	assert.Equal(t, "second", w.Current().Version)
	assert.EqualValues(t, 1, w.Reloads())

	// an invalid file leaves the previous policy in place
	require.NoError(t, os.WriteFile(path, []byte("version: third\nbogus: true\n"), 0o600))
	assert.Error(t, w.Reload())
	assert.Equal(t, "second", w.Current().Version)
}

func TestPolicyWatcherPicksUpFileChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: first\n"), 0o600))

	w, err := NewPolicyWatcher(path)
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond
	require.NoError(t, w.Start(t.Context()))
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte("version: watched\n"), 0o600))
	assert.Eventually(t, func() bool {
		return w.Current().Version == "watched"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestStaticPolicy(t *testing.T) {
	assert.Equal(t, DefaultPolicy().Version, NewStaticPolicy(nil).Current().Version)
}

package nodes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChannelType(t *testing.T) {
	assert.Equal(t, ChannelEmail, ParseChannelType("Email"))
	assert.Equal(t, ChannelEmail, ParseChannelType("gmail"))
	assert.Equal(t, ChannelText, ParseChannelType("SMS"))
	assert.Equal(t, ChannelEmergency, ParseChannelType("emergency"))
	assert.Equal(t, ChannelUnknown, ParseChannelType("pager"))

	assert.True(t, ChannelEmail.IsEmailCapable())
	assert.False(t, ChannelText.IsEmailCapable())
	assert.False(t, ChannelEmergency.IsEmailCapable())
	assert.False(t, ChannelUnknown.IsEmailCapable())
}

func TestCompilePrompt(t *testing.T) {
	thr := 0.8
	l := &ListenerConfig{
		Name: "Person Detected",
		Type: "detection",
		Conditions: []ConditionConfig{
			{Name: "confidence", Threshold: &thr},
			{Name: "daytime only"},
		},
	}
	got := CompilePrompt(l)
	assert.Equal(t, "Goal: Person Detected (detection), Constraints: confidence, threshold: 0.8; daytime only", got)

	bare := &ListenerConfig{Name: "Smoke"}
	assert.Equal(t, "Goal: Smoke, Constraints: none", CompilePrompt(bare))
}

func TestCombinedPrompt(t *testing.T) {
	assert.Equal(t, DefaultPrompt, CombinedPrompt(nil))

	one := []*ListenerConfig{{Name: "Smoke"}}
	assert.Equal(t, "Goal: Smoke, Constraints: none", CombinedPrompt(one))

	two := []*ListenerConfig{{Name: "Smoke"}, {Name: "Fire"}}
	assert.Equal(t, "1. Goal: Smoke, Constraints: none 2. Goal: Fire, Constraints: none", CombinedPrompt(two))
}

func TestOutputSchema(t *testing.T) {
	listeners := []*ListenerConfig{
		{ID: "has_person", Name: "Person", Datatype: TypeBoolean},
		{Name: "Count", Datatype: TypeInteger},
		{ID: "note", Name: "Note", Datatype: "blob"},
	}
	schema := OutputSchema(listeners)
	assert.Equal(t, "object", schema["type"])

	props := schema["properties"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "boolean"}, props["has_person"])
	// Missing ID gets a positional fallback.
	assert.Equal(t, map[string]any{"type": "integer"}, props["node_1"])
	// Unknown datatype degrades to string.
	assert.Equal(t, map[string]any{"type": "string"}, props["note"])

	assert.Empty(t, OutputSchema(nil))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file is empty set", func(t *testing.T) {
		listeners, err := LoadFile(filepath.Join(dir, "absent.json"))
		require.NoError(t, err)
		assert.Empty(t, listeners)
	})

	t.Run("bare array with invalid entry skipped", func(t *testing.T) {
		path := filepath.Join(dir, "nodes.json")
		payload := `[
			{"id": "has_person", "name": "Person", "datatype": "boolean",
			 "events": [{"action": "notify", "channel": "Email", "recipient": "ops@example.com"}]},
			{"datatype": "boolean"},
			{"name": "Count"}
		]`
		require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

		listeners, err := LoadFile(path)
		require.NoError(t, err)
		require.Len(t, listeners, 2)
		assert.Equal(t, "has_person", listeners[0].ID)
		// Nameless entry was dropped, third listener keeps its index-based ID.
		assert.Equal(t, "node_2", listeners[1].ID)
		assert.Equal(t, ChannelEmail, listeners[0].Events[0].ChannelType())
	})

	t.Run("wrapped object form", func(t *testing.T) {
		path := filepath.Join(dir, "wrapped.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"nodes": [{"name": "Smoke"}]}`), 0o644))

		listeners, err := LoadFile(path)
		require.NoError(t, err)
		require.Len(t, listeners, 1)
		assert.Equal(t, "Smoke", listeners[0].Name)
	})

	t.Run("garbage is an error", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))
		_, err := LoadFile(path)
		assert.Error(t, err)
	})
}

func TestRegistryFindListener(t *testing.T) {
	first := &ListenerConfig{ID: "has_person", Name: "Person"}
	second := &ListenerConfig{ID: "other", Name: "has_person"}
	r := NewRegistry([]*ListenerConfig{first, second})

	// ID match beats name match.
	got, ok := r.FindListener("has_person")
	require.True(t, ok)
	assert.Same(t, first, got)

	got, ok = r.FindListener("Person")
	require.True(t, ok)
	assert.Same(t, first, got)

	_, ok = r.FindListener("nope")
	assert.False(t, ok)

	r.Replace(nil)
	assert.Zero(t, r.Len())
	_, ok = r.FindListener("has_person")
	assert.False(t, ok)
}

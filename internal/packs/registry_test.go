// ABOUTME: Tests for static registry construction, collision detection, and lookup.
// ABOUTME: Verifies registration order and advertised input schemas.

package packs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(result string) ToolHandler {
	return func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(result), nil
	}
}

func createTestTool(name string, params ...Param) *BuiltinTool {
	return &BuiltinTool{
		Definition: ToolDefinition{
			Name:        name,
			Description: "test tool " + name,
			Schema:      Schema{Params: params},
		},
		Handler: okHandler(`{"ok":true}`),
	}
}

func TestNewRegistry(t *testing.T) {
	t.Run("registers tools from several packs", func(t *testing.T) {
		registry, err := NewRegistry(slog.Default(),
			&BuiltinPack{ID: "builtin:a", Tools: []*BuiltinTool{createTestTool("one"), createTestTool("two")}},
			&BuiltinPack{ID: "builtin:b", Tools: []*BuiltinTool{createTestTool("three")}},
		)
		require.NoError(t, err)
		assert.Equal(t, 3, registry.Len())

		var names []string
		for _, tool := range registry.Tools() {
			names = append(names, tool.Definition.Name)
		}
		assert.Equal(t, []string{"one", "two", "three"}, names)

		tool, err := registry.Lookup("three")
		require.NoError(t, err)
		assert.Equal(t, "builtin:b", tool.PackID)
	})

	t.Run("rejects duplicate names across packs", func(t *testing.T) {
		_, err := NewRegistry(slog.Default(),
			&BuiltinPack{ID: "builtin:a", Tools: []*BuiltinTool{createTestTool("echo")}},
			&BuiltinPack{ID: "builtin:b", Tools: []*BuiltinTool{createTestTool("echo")}},
		)
		require.ErrorIs(t, err, ErrToolCollision)
		assert.Contains(t, err.Error(), "builtin:a")
	})

	t.Run("rejects duplicate names within a pack", func(t *testing.T) {
		_, err := NewRegistry(slog.Default(),
			&BuiltinPack{ID: "builtin:a", Tools: []*BuiltinTool{createTestTool("x"), createTestTool("x")}},
		)
		assert.ErrorIs(t, err, ErrToolCollision)
	})

	t.Run("rejects tools without handlers", func(t *testing.T) {
		tool := createTestTool("broken")
		tool.Handler = nil
		_, err := NewRegistry(nil, &BuiltinPack{ID: "builtin:a", Tools: []*BuiltinTool{tool}})
		require.Error(t, err)
		assert.False(t, errors.Is(err, ErrToolCollision))
	})
}

func TestRegistryLookupMissing(t *testing.T) {
	registry, err := NewRegistry(slog.Default())
	require.NoError(t, err)

	tool, err := registry.Lookup("nope")
	assert.Nil(t, tool)
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestRegistryInputSchema(t *testing.T) {
	registry, err := NewRegistry(slog.Default(), &BuiltinPack{
		ID: "builtin:a",
		Tools: []*BuiltinTool{createTestTool("config_get",
			Param{Name: "key", Type: TypeString, Required: true, Description: "Key to read"},
		)},
	})
	require.NoError(t, err)

	tool, err := registry.Lookup("config_get")
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"object","properties":{"key":{"type":"string","description":"Key to read"}},"required":["key"]}`,
		string(tool.InputSchema()))
}

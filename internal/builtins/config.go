// ABOUTME: Config pack reads and writes persisted device configuration.
// ABOUTME: Values live in the store's KV table and survive restarts.

package builtins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/2389/tinymcp/internal/packs"
	"github.com/2389/tinymcp/internal/store"
)

// ConfigPack creates the config pack over kv.
func ConfigPack(kv store.KV) *packs.BuiltinPack {
	c := &configHandlers{kv: kv}
	return &packs.BuiltinPack{
		ID: "builtin:config",
		Tools: []*packs.BuiltinTool{
			{
				Definition: packs.ToolDefinition{
					Name:        "config_get",
					Description: "Read a configuration value",
					Schema: packs.Schema{Params: []packs.Param{
						{Name: "key", Type: packs.TypeString, Required: true, Description: "Configuration key"},
					}},
				},
				Handler: c.Get,
			},
			{
				Definition: packs.ToolDefinition{
					Name:        "config_set",
					Description: "Write a configuration value",
					Schema: packs.Schema{Params: []packs.Param{
						{Name: "key", Type: packs.TypeString, Required: true, Description: "Configuration key"},
						{Name: "value", Type: packs.TypeString, Required: true, Description: "Value to store"},
					}},
				},
				Handler: c.Set,
			},
			{
				Definition: packs.ToolDefinition{
					Name:        "config_list",
					Description: "List all configuration values",
				},
				Handler: c.List,
			},
		},
	}
}

type configHandlers struct {
	kv store.KV
}

type configGetInput struct {
	Key string `json:"key"`
}

func (c *configHandlers) Get(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in configGetInput
	if err := decodeInput(input, &in); err != nil {
		return nil, err
	}

	value, err := c.kv.Get(ctx, in.Key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("config key %q: %w", in.Key, err)
	}
	if err != nil {
		return nil, err
	}
	return ok("Configuration value retrieved", map[string]string{"key": in.Key, "value": value})
}

type configSetInput struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (c *configHandlers) Set(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var in configSetInput
	if err := decodeInput(input, &in); err != nil {
		return nil, err
	}

	if err := c.kv.Set(ctx, in.Key, in.Value); err != nil {
		return nil, err
	}
	return ok("Configuration value saved", map[string]string{"key": in.Key})
}

func (c *configHandlers) List(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	entries, err := c.kv.List(ctx)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(entries))
	for _, e := range entries {
		values[e.Key] = e.Value
	}
	return ok("Configuration listed", map[string]any{"values": values, "count": len(entries)})
}

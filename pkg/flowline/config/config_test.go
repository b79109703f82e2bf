package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Accessors(t *testing.T) {
	cfg := New(map[string]any{
		"name":     "orders",
		"workers":  4,
		"ratio":    0.5,
		"whole":    3.0,
		"enabled":  true,
		"interval": "250ms",
		"timeout":  2,
		"tags":     []any{"a", "b"},
		"mixed":    []any{"a", 1},
		"nested":   map[string]any{"key": "value"},
	})

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"string", cfg.String("name", ""), "orders"},
		{"string from int", cfg.String("workers", ""), "4"},
		{"string default", cfg.String("missing", "dflt"), "dflt"},
		{"int", cfg.Int("workers", 0), 4},
		{"int from whole float", cfg.Int("whole", 0), 3},
		{"int rejects fraction", cfg.Int("ratio", 7), 7},
		{"float", cfg.Float("ratio", 0), 0.5},
		{"float from int", cfg.Float("workers", 0), 4.0},
		{"bool", cfg.Bool("enabled", false), true},
		{"bool wrong type", cfg.Bool("name", true), true},
		{"duration string", cfg.Duration("interval", 0), 250 * time.Millisecond},
		{"duration seconds", cfg.Duration("timeout", 0), 2 * time.Second},
		{"duration invalid", cfg.Duration("name", time.Minute), time.Minute},
		{"string slice", cfg.StringSlice("tags", nil), []string{"a", "b"}},
		{"string slice mixed", cfg.StringSlice("mixed", []string{"x"}), []string{"x"}},
		{"sub", cfg.Sub("nested").String("key", ""), "value"},
		{"sub missing", cfg.Sub("missing").Has("key"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestConfig_ZeroValue(t *testing.T) {
	var cfg Config
	assert.False(t, cfg.Has("x"))
	assert.Equal(t, "d", cfg.String("x", "d"))
	assert.Equal(t, 5, cfg.Any("x", 5))
}

func TestConfig_Require(t *testing.T) {
	cfg := New(map[string]any{"a": 1})
	assert.NoError(t, cfg.Require("a"))

	err := cfg.Require("a", "b", "c")
	require.ErrorIs(t, err, ErrMissingSetting)
	assert.Contains(t, err.Error(), "[b c]")
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("schedule: \"@every 1s\"\nburst: 2\n"), 0o600))
	cfg, err := FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "@every 1s", cfg.String("schedule", ""))
	assert.Equal(t, 2, cfg.Int("burst", 0))

	jsonPath := filepath.Join(dir, "settings.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"burst": 3}`), 0o600))
	cfg, err = FromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Int("burst", 0))

	_, err = FromFile(filepath.Join(dir, "settings.toml"))
	assert.Error(t, err)

	badPath := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(badPath, []byte("x"), 0o600))
	_, err = FromFile(badPath)
	assert.ErrorContains(t, err, "unsupported config file extension")
}

func TestFromYAMLAndJSON(t *testing.T) {
	cfg, err := FromYAML([]byte("rate: 10"))
	require.NoError(t, err)
	assert.Equal(t, 10.0, cfg.Float("rate", 0))

	cfg, err = FromJSON([]byte(`{"rate": 10}`))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Int("rate", 0))

	_, err = FromYAML([]byte("a: [b"))
	assert.Error(t, err)
	_, err = FromJSON([]byte("{"))
	assert.Error(t, err)
}

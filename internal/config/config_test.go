package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/cobra"
)

type testOptions struct {
	Config string

	Name    string        `toml:"test.name" env:"TEST_NAME"`
	Enabled bool          `toml:"test.enabled" env:"TEST_ENABLED"`
	Count   int           `toml:"test.count" env:"TEST_COUNT"`
	Bitrate uint          `toml:"test.bitrate" env:"TEST_BITRATE"`
	Timeout time.Duration `toml:"test.timeout" env:"TEST_TIMEOUT"`
	Tags    []string      `toml:"test.tags" env:"TEST_TAGS"`
	Nested  string        `toml:"outer.inner.value" env:"NESTED"`
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const testTOML = `
[test]
name = "from file"
enabled = true
count = 42
bitrate = 4000
timeout = 1500
tags = ["a", "b"]

[outer.inner]
value = "deep"
`

func TestLoadConfigFromTOML(t *testing.T) {
	opts := &testOptions{Config: writeFile(t, testTOML)}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	want := testOptions{
		Config:  opts.Config,
		Name:    "from file",
		Enabled: true,
		Count:   42,
		Bitrate: 4000,
		Timeout: 1500 * time.Millisecond,
		Tags:    []string{"a", "b"},
		Nested:  "deep",
	}
	if !reflect.DeepEqual(*opts, want) {
		t.Errorf("got %+v\nwant %+v", *opts, want)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	t.Setenv("GSTGRAPH_TEST_NAME", "from env")
	t.Setenv("GSTGRAPH_TEST_TIMEOUT", "3s")
	t.Setenv("GSTGRAPH_TEST_TAGS", "x, y ,z")

	opts := &testOptions{Config: writeFile(t, testTOML)}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if opts.Name != "from env" {
		t.Errorf("Name = %q, want from env", opts.Name)
	}
	if opts.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", opts.Timeout)
	}
	if !reflect.DeepEqual(opts.Tags, []string{"x", "y", "z"}) {
		t.Errorf("Tags = %v", opts.Tags)
	}
	if opts.Count != 42 {
		t.Errorf("Count = %d, want 42 from file", opts.Count)
	}
}

func TestLoadConfigFlagsWin(t *testing.T) {
	t.Setenv("GSTGRAPH_TEST_NAME", "from env")

	opts := &testOptions{Config: writeFile(t, testTOML)}
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&opts.Name, "name", "", "")
	cmd.Flags().IntVar(&opts.Count, "count", 0, "")
	if err := cmd.Flags().Parse([]string{"--name", "from flag", "--count", "7"}); err != nil {
		t.Fatal(err)
	}

	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if opts.Name != "from flag" || opts.Count != 7 {
		t.Errorf("Name, Count = %q, %d; want flag values", opts.Name, opts.Count)
	}
	if !opts.Enabled {
		t.Error("Enabled not loaded from file")
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		toml string
		env  map[string]string
	}{
		{"bad toml", "[test\nname = 1", nil},
		{"bad bool env", "", map[string]string{"GSTGRAPH_TEST_ENABLED": "maybe"}},
		{"bad duration env", "", map[string]string{"GSTGRAPH_TEST_TIMEOUT": "soon"}},
		{"negative uint", "[test]\nbitrate = -1", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			opts := &testOptions{Config: writeFile(t, tt.toml)}
			if err := LoadConfig(opts, nil); err == nil {
				t.Error("LoadConfig() error = nil, want error")
			}
		})
	}

	if err := LoadConfig(testOptions{}, nil); err == nil {
		t.Error("LoadConfig(non-pointer) error = nil")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &testOptions{Config: filepath.Join(t.TempDir(), "absent.toml"), Name: "kept"}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if opts.Name != "kept" {
		t.Errorf("Name = %q, want kept", opts.Name)
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := map[string]string{
		"Port":               "port",
		"LoggingLevel":       "logging-level",
		"SessionStopTimeout": "session-stop-timeout",
	}
	for in, want := range tests {
		if got := fieldNameToFlag(in); got != want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestGetNestedValue(t *testing.T) {
	data := map[string]any{
		"a":    map[string]any{"b": map[string]any{"c": "deep"}, "s": "shallow"},
		"root": "top",
	}
	tests := []struct {
		path string
		want any
	}{
		{"root", "top"},
		{"a.s", "shallow"},
		{"a.b.c", "deep"},
		{"missing", nil},
		{"a.missing.c", nil},
		{"root.x", nil},
	}
	for _, tt := range tests {
		if got := getNestedValue(data, tt.path); got != tt.want {
			t.Errorf("getNestedValue(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestLoadLoggingConfig(t *testing.T) {
	path := writeFile(t, `
[logging]
level = "warn"
format = "json"
history_size = 50
gstreamer = "debug"

[logging.modules]
api = "error"
`)
	cfg := LoadLoggingConfig(path)

	if cfg.Level != "warn" || cfg.Format != "json" || cfg.HistorySize != 50 {
		t.Errorf("got level=%q format=%q history=%d", cfg.Level, cfg.Format, cfg.HistorySize)
	}
	want := map[string]string{"gstreamer": "debug", "api": "error"}
	if !reflect.DeepEqual(cfg.Modules, want) {
		t.Errorf("Modules = %v, want %v", cfg.Modules, want)
	}

	def := LoadLoggingConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if def.Level != "info" || def.Format != "text" {
		t.Errorf("defaults = %+v", def)
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dd0wney/timegraphdb/pkg/logging"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "timegraph.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Setenv(EnvDataDir, "")
	t.Setenv(EnvLogLevel, "")

	path := writeConfig(t, `
data_dir: /var/lib/timegraph
fill_factor: 4
compress_nodes: true
log_level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.FillFactor != 4 {
		t.Errorf("FillFactor = %d, want 4", cfg.FillFactor)
	}
	if cfg.MaxShuffleDistance != 225 {
		t.Errorf("MaxShuffleDistance = %d, want default 225", cfg.MaxShuffleDistance)
	}
	if !cfg.CompressNodes {
		t.Error("CompressNodes = false, want true")
	}
	if cfg.Level() != logging.DebugLevel {
		t.Errorf("Level() = %v, want DEBUG", cfg.Level())
	}
	if got := cfg.GraphPath(); got != "/var/lib/timegraph/database.graph" {
		t.Errorf("GraphPath() = %q", got)
	}
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv(EnvDataDir, "")
	t.Setenv(EnvLogLevel, "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if cfg != Default() {
		t.Errorf("Load(\"\") = %+v, want defaults", cfg)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvDataDir, dir)
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load(writeConfig(t, "data_dir: /elsewhere\n"))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.DataDir != dir {
		t.Errorf("DataDir = %q, want %q", cfg.DataDir, dir)
	}
	if cfg.Level() != logging.WarnLevel {
		t.Errorf("Level() = %v, want WARN", cfg.Level())
	}
}

func TestLoad_LogLevelSpellings(t *testing.T) {
	t.Setenv(EnvDataDir, "")

	tests := []struct {
		env  string
		want logging.Level
	}{
		{"warning", logging.WarnLevel},
		{"WARN", logging.WarnLevel},
		{"Info", logging.InfoLevel},
		{" debug ", logging.DebugLevel},
		{"ERROR", logging.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv(EnvLogLevel, tt.env)
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load() with %s=%q failed: %v", EnvLogLevel, tt.env, err)
			}
			if cfg.Level() != tt.want {
				t.Errorf("Level() = %v, want %v", cfg.Level(), tt.want)
			}
		})
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv(EnvDataDir, "")
	t.Setenv(EnvLogLevel, "")

	tests := []struct {
		name string
		body string
		want string
	}{
		{"zero fill factor", "fill_factor: 0\n", "FillFactor"},
		{"huge fill factor", "fill_factor: 5000\n", "FillFactor"},
		{"negative shuffle distance", "max_shuffle_distance: -1\n", "MaxShuffleDistance"},
		{"empty graph file", "graph_file: \"\"\n", "GraphFile"},
		{"unknown log level", "log_level: verbose\n", "LogLevel"},
		{"malformed yaml", "fill_factor: [\n", "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("Load() succeeded, want an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of a missing file succeeded")
	}
}

func TestPathsResolveAgainstDataDir(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/data"
	cfg.IndexFile = "/abs/unique.index"

	if got := cfg.IndexPath(); got != "/abs/unique.index" {
		t.Errorf("IndexPath() = %q, absolute names are kept", got)
	}
	if got := cfg.NodeIndexPath(); got != "/data/nodes.index" {
		t.Errorf("NodeIndexPath() = %q", got)
	}
	if got := cfg.NodeContentPath(); got != "/data/nodes.content" {
		t.Errorf("NodeContentPath() = %q", got)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv(EnvDataDir, "")
	t.Setenv(EnvLogLevel, "")

	cfg := Default()
	cfg.FillFactor = 7
	path := filepath.Join(t.TempDir(), "out.yaml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded != cfg {
		t.Errorf("Load(Save(cfg)) = %+v, want %+v", loaded, cfg)
	}
}

package transcode

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"min task size", func(c *Config) { c.MaxTaskSize = MinTaskSize }, true},
		{"max task size", func(c *Config) { c.MaxTaskSize = MaxTaskSize }, true},
		{"task size too small", func(c *Config) { c.MaxTaskSize = MinTaskSize - 1 }, false},
		{"task size too large", func(c *Config) { c.MaxTaskSize = MaxTaskSize + 1 }, false},
		{"negative aac bitrate", func(c *Config) { c.AACBitrate = -1 }, false},
		{"negative opus bitrate", func(c *Config) { c.OpusBitrate = -1 }, false},
		{"negative threads", func(c *Config) { c.DecoderThreads = -2 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.MaxTaskSize != DefaultMaxTaskSize || cfg.OpusBitrate != 64000 || !cfg.AudioTranscode || !cfg.TranscodeAAC || cfg.Demand {
		t.Errorf("DefaultConfig() = %+v", cfg)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}

	cfg, err := LoadConfig(write("ok.yaml", `
max_task_size: 50
demand: true
opus_bitrate: 32000
transcode_aac: false
preferred_encoders: [libfdk_aac, aac]
`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MaxTaskSize != 50 || !cfg.Demand || cfg.OpusBitrate != 32000 || cfg.TranscodeAAC {
		t.Errorf("cfg = %+v", cfg)
	}
	// Unset keys keep their defaults.
	if !cfg.AudioTranscode || !cfg.CheckNvidiaDev {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.PreferredEncoders, []string{"libfdk_aac", "aac"}) {
		t.Errorf("preferred encoders = %v", cfg.PreferredEncoders)
	}

	if _, err := LoadConfig(write("bounds.yaml", "max_task_size: 1\n")); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("out of bounds: err = %v", err)
	}
	if _, err := LoadConfig(write("bad.yaml", "max_task_size: [\n")); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("malformed: err = %v", err)
	}
	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: err = %v", err)
	}
}

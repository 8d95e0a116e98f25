package transcode

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDetectNvidia(t *testing.T) {
	log := newLogger(nil, "hwdetect")
	ok := func() error { return nil }
	fail := func() error { return errors.New("not found") }

	withDevice := t.TempDir()
	if err := os.WriteFile(filepath.Join(withDevice, "nvidia0"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	withoutDevice := t.TempDir()
	if err := os.WriteFile(filepath.Join(withoutDevice, "null"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		enabled bool
		dir     string
		load    func() error
		want    bool
	}{
		{"disabled", false, withDevice, ok, false},
		{"library missing", true, withDevice, fail, false},
		{"no device node", true, withoutDevice, ok, false},
		{"missing dev dir", true, filepath.Join(withoutDevice, "nope"), ok, false},
		{"available", true, withDevice, ok, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectNvidia(tt.enabled, tt.dir, tt.load, log); got != tt.want {
				t.Errorf("detectNvidia() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNvidiaAvailableCached(t *testing.T) {
	first := NvidiaAvailable(Config{CheckNvidiaDev: false}, nil)
	second := NvidiaAvailable(Config{CheckNvidiaDev: true}, nil)
	if first != second {
		t.Errorf("detection result changed between calls: %v then %v", first, second)
	}
}

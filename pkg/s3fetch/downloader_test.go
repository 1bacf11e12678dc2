package s3fetch

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultDownloaderConfig(t *testing.T) {
	cfg := DefaultDownloaderConfig()
	if cfg.Concurrency < 4 || cfg.Concurrency > 16 {
		t.Errorf("Concurrency = %d, want within [4, 16]", cfg.Concurrency)
	}
	if cfg.PartSize != 16*1024*1024 {
		t.Errorf("PartSize = %d, want 16MB", cfg.PartSize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestDownloaderConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     DownloaderConfig
		wantErr bool
	}{
		{"zero uses defaults", DownloaderConfig{}, false},
		{"negative concurrency", DownloaderConfig{Concurrency: -1}, true},
		{"tiny parts", DownloaderConfig{PartSize: 1024}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDownloaderConfig_WithDefaults(t *testing.T) {
	got := DownloaderConfig{PartSize: 32 << 20}.withDefaults()
	if got.PartSize != 32<<20 {
		t.Errorf("PartSize overridden: %d", got.PartSize)
	}
	if got.Concurrency != DefaultDownloaderConfig().Concurrency {
		t.Errorf("Concurrency = %d", got.Concurrency)
	}
	if got.TempDir != os.TempDir() {
		t.Errorf("TempDir = %q", got.TempDir)
	}
}

func TestTempFile_RemovedOnClose(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "dl-*.pbf")
	if err != nil {
		t.Fatal(err)
	}
	name := f.Name()
	tmp := &TempFile{File: f}

	fi, err := tmp.Stat()
	if err != nil || filepath.Base(fi.Name()) != filepath.Base(name) {
		t.Errorf("Stat = %v, %v", fi, err)
	}
	if err := tmp.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(name); !os.IsNotExist(err) {
		t.Errorf("temp file still present: %v", err)
	}
}

package config

import (
	"strings"
	"testing"
)

func TestValidatePortOutOfRangeIsError(t *testing.T) {
	cfg := Default()
	cfg.Port = 70000
	errs := cfg.Validate()
	if len(errs) == 0 {
		t.Fatal("expected error for out-of-range port")
	}
}

func TestValidateMaxClientsClamping(t *testing.T) {
	cfg := Default()
	cfg.MaxClients = 0
	errs := cfg.Validate()
	if len(errs) == 0 {
		t.Fatal("expected clamp warning for max_clients 0")
	}
	if cfg.MaxClients != 1 {
		t.Fatalf("MaxClients = %d, want 1 (clamped)", cfg.MaxClients)
	}

	cfg.MaxClients = 9999
	cfg.Validate()
	if cfg.MaxClients != maxClientsCap {
		t.Fatalf("MaxClients = %d, want %d (clamped)", cfg.MaxClients, maxClientsCap)
	}
}

func TestValidateUnknownLogLevelIsReported(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	errs := cfg.Validate()
	found := false
	for _, err := range errs {
		if strings.Contains(err.Error(), "log_level") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected error mentioning log_level")
	}
}

func TestValidateUnknownPaletteIsReported(t *testing.T) {
	cfg := Default()
	cfg.Palette = "rainbow"
	errs := cfg.Validate()
	found := false
	for _, err := range errs {
		if strings.Contains(err.Error(), "palette") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected error mentioning palette")
	}
}

func TestValidateFrameRateClamping(t *testing.T) {
	cfg := Default()
	cfg.FrameRate = 0
	cfg.Validate()
	if cfg.FrameRate != 1 {
		t.Fatalf("FrameRate = %d, want 1 (clamped)", cfg.FrameRate)
	}

	cfg.FrameRate = 1000
	cfg.Validate()
	if cfg.FrameRate != 60 {
		t.Fatalf("FrameRate = %d, want 60 (clamped)", cfg.FrameRate)
	}
}

func TestValidateMissingIdentityKeyWithEncryptionIsError(t *testing.T) {
	cfg := Default()
	cfg.EncryptionDisabled = false
	cfg.IdentityKeyPath = ""
	errs := cfg.Validate()
	found := false
	for _, err := range errs {
		if strings.Contains(err.Error(), "identity_key_path") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected error requiring identity_key_path when encryption is enabled")
	}
}

func TestValidConfigHasNoErrors(t *testing.T) {
	cfg := Default()
	cfg.EncryptionDisabled = true
	if errs := cfg.Validate(); len(errs) > 0 {
		t.Fatalf("valid config has errors: %v", errs)
	}
}

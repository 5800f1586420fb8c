package config

import (
	"fmt"
	"log/slog"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

var validPalettes = map[string]bool{
	"standard": true,
	"blocks":   true,
	"digital":  true,
	"minimal":  true,
	"cool":     true,
	"custom":   true,
}

// Validate checks the config for invalid values and returns all errors
// found. Dangerous zero-values that would panic downstream (zero frame
// rate, zero queue capacity) are clamped to safe defaults; clamps are
// still reported so the caller can log them.
func (c *Config) Validate() []error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range [1,65535]", c.Port))
	}

	if c.MaxClients < 1 {
		errs = append(errs, fmt.Errorf("max_clients %d is below minimum 1, clamping", c.MaxClients))
		c.MaxClients = 1
	} else if c.MaxClients > maxClientsCap {
		errs = append(errs, fmt.Errorf("max_clients %d exceeds maximum %d, clamping", c.MaxClients, maxClientsCap))
		c.MaxClients = maxClientsCap
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	if c.Palette != "" && !validPalettes[strings.ToLower(c.Palette)] {
		errs = append(errs, fmt.Errorf("palette %q is not a known palette", c.Palette))
	}

	if c.FrameRate < 1 {
		errs = append(errs, fmt.Errorf("frame_rate %d is below minimum 1, clamping", c.FrameRate))
		c.FrameRate = 1
	} else if c.FrameRate > 60 {
		errs = append(errs, fmt.Errorf("frame_rate %d exceeds maximum 60, clamping", c.FrameRate))
		c.FrameRate = 60
	}

	if c.AudioQueueSize < 1 {
		errs = append(errs, fmt.Errorf("audio_queue_size %d is below minimum 1, clamping", c.AudioQueueSize))
		c.AudioQueueSize = 1
	}

	if c.MaxPayloadBytes < 1024 {
		errs = append(errs, fmt.Errorf("max_payload_bytes %d is below minimum 1024, clamping", c.MaxPayloadBytes))
		c.MaxPayloadBytes = 1024
	}

	if !c.EncryptionDisabled && c.IdentityKeyPath == "" {
		errs = append(errs, fmt.Errorf("identity_key_path is required unless encryption_disabled is set"))
	}

	for _, err := range errs {
		slog.Warn("config validation", "error", err)
	}

	return errs
}

// Package config loads the server's runtime configuration: listening
// address, client limits, media/queue defaults, and the key/whitelist
// paths consumed by the handshake. Flag and file parsing is handled by
// viper; option storage and validation live here.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"runtime"

	"github.com/spf13/viper"
)

// Config holds every server option named in the wire/CLI contract.
type Config struct {
	BindAddress string `mapstructure:"bind_address"`
	Port        int    `mapstructure:"port"`
	MaxClients  int    `mapstructure:"max_clients"`

	AudioEnabled bool `mapstructure:"audio_enabled"`

	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`

	Palette string `mapstructure:"palette"`

	EncryptionDisabled bool   `mapstructure:"encryption_disabled"`
	IdentityKeyPath    string `mapstructure:"identity_key_path"`
	WhitelistPath      string `mapstructure:"whitelist_path"`

	FrameRate         int `mapstructure:"frame_rate"`
	AudioQueueSize    int `mapstructure:"audio_queue_size"`
	MaxPayloadBytes   int `mapstructure:"max_payload_bytes"`
	HandshakeTimeoutS int `mapstructure:"handshake_timeout_seconds"`
	KeepAliveTimeoutS int `mapstructure:"keep_alive_timeout_seconds"`

	// SkipKnownHosts bypasses the client-side known-hosts check. Mirrors the
	// ASCII_CHAT_SKIP_KNOWN_HOSTS environment toggle used by tests and CI.
	SkipKnownHosts bool `mapstructure:"skip_known_hosts"`

	// KeyfilePassphrase mirrors ASCII_CHAT_KEYFILE_PASSPHRASE. Nothing in
	// this server reads it: identity.LoadKey accepts only unencrypted keys
	// and never prompts.
	KeyfilePassphrase string `mapstructure:"keyfile_passphrase"`
}

const maxClientsCap = 32

// Default returns the configuration used when no file or flags override it.
func Default() *Config {
	return &Config{
		BindAddress: "::",
		Port:        9001,
		MaxClients:  maxClientsCap,

		AudioEnabled: true,

		LogLevel:      "info",
		LogFormat:     "text",
		LogMaxSizeMB:  50,
		LogMaxBackups: 3,

		Palette: "standard",

		FrameRate:         60,
		AudioQueueSize:    64,
		MaxPayloadBytes:   4 << 20,
		HandshakeTimeoutS: 10,
		KeepAliveTimeoutS: 30,
	}
}

// Load reads configuration from cfgFile (or the default search path) and
// environment variables (ASCII_CHAT_ prefix), overlaying onto Default().
// Fatal validation errors are returned so the caller can exit before
// acquiring any socket, per the Configuration error kind.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("ascii-chat-server")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("ASCII_CHAT")
	// Unmarshal only sees keys viper already knows, so bind every field's
	// key to let an environment variable set a value the file omits.
	t := reflect.TypeOf(*cfg)
	for i := 0; i < t.NumField(); i++ {
		if key := t.Field(i).Tag.Get("mapstructure"); key != "" {
			_ = viper.BindEnv(key)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("config: %d invalid value(s), first: %w", len(errs), errs[0])
	}

	return cfg, nil
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "ascii-chat")
	case "darwin":
		return "/Library/Application Support/ascii-chat"
	default:
		return "/etc/ascii-chat"
	}
}

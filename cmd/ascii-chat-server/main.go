package main

import (
	"crypto/ed25519"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zfogg/ascii-chat-server/internal/audit"
	"github.com/zfogg/ascii-chat-server/internal/config"
	"github.com/zfogg/ascii-chat-server/internal/identity"
	"github.com/zfogg/ascii-chat-server/internal/logging"
	"github.com/zfogg/ascii-chat-server/internal/render"
	"github.com/zfogg/ascii-chat-server/internal/secmem"
	"github.com/zfogg/ascii-chat-server/internal/server"
	"github.com/zfogg/ascii-chat-server/internal/stats"
)

var (
	version = "0.1.0"
	cfgFile string
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "ascii-chat-server",
	Short: "ASCII Chat server",
	Long:  "ascii-chat-server - multi-client real-time ASCII video/audio chat server",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the server",
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ascii-chat-server v%s\n", version)
	},
}

var keygenCmd = &cobra.Command{
	Use:   "keygen [path]",
	Short: "Generate a new server identity key",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if _, err := identity.GenerateAndSaveKey(args[0]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("Identity key written to %s\n", args[0])
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches /etc/ascii-chat)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(keygenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogging sets up structured logging from config. Call after
// config.Load(). Returns the underlying rotating writer (nil if logging to
// stdout only), so the caller can wire SIGHUP-triggered rotation.
func initLogging(cfg *config.Config) *logging.RotatingWriter {
	var output io.Writer = os.Stdout
	logFileFallback := false
	var rw *logging.RotatingWriter

	if cfg.LogFile != "" {
		var err error
		rw, err = logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v (logging to stdout)\n", cfg.LogFile, err)
			logFileFallback = true
			rw = nil
		} else {
			output = logging.TeeWriter(os.Stdout, rw)
		}
	}

	logging.Init(cfg.LogFormat, cfg.LogLevel, output)
	log = logging.L("main")

	if logFileFallback {
		log.Warn("log file fallback active, logging to stdout only", "requestedFile", cfg.LogFile)
	}
	return rw
}

func runServer() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logWriter := initLogging(cfg)
	if logWriter != nil {
		defer logWriter.Close()
	}

	var auditLogger *audit.Logger
	if cfg.LogFile != "" {
		auditLogger, err = audit.NewLogger(cfg.LogFile+".audit", cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			log.Warn("audit logger disabled", logging.KeyError, err.Error())
			auditLogger = nil
		} else {
			defer auditLogger.Close()
		}
	}

	var priv ed25519.PrivateKey
	if cfg.EncryptionDisabled && cfg.IdentityKeyPath == "" {
		log.Warn("encryption disabled and no identity key configured, generating ephemeral identity key")
		priv, err = identity.GenerateKey()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate ephemeral identity key: %v\n", err)
			os.Exit(1)
		}
	} else {
		loaded, loadErr := identity.LoadKey(cfg.IdentityKeyPath)
		if loadErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to load identity key: %v\n", loadErr)
			os.Exit(1)
		}
		priv = loaded
	}
	secureSeed := secmem.NewSecureString(string(priv.Seed()))
	defer secureSeed.Zero()

	wl, err := identity.LoadWhitelist(cfg.WhitelistPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load whitelist: %v\n", err)
		os.Exit(1)
	}

	log.Info("starting server",
		"version", version,
		"bind", cfg.BindAddress,
		"port", cfg.Port,
		"maxClients", cfg.MaxClients,
		"encryption", !cfg.EncryptionDisabled,
	)

	srv := server.New(cfg, priv, wl, render.Passthrough{}, auditLogger)
	if auditLogger != nil {
		auditLogger.Log(audit.EventServerStart, "", map[string]any{
			"version":    version,
			"maxClients": cfg.MaxClients,
		})
	}

	if err := srv.Listen(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind listening socket: %v\n", err)
		os.Exit(1)
	}

	go stats.Run(srv.ShutdownToken(), srv)
	go srv.Broadcast()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("shutting down")
		srv.ShutdownToken().Trigger()
		srv.Close()
	}()

	if logWriter != nil {
		hupChan := make(chan os.Signal, 1)
		signal.Notify(hupChan, syscall.SIGHUP)
		go func() {
			for range hupChan {
				if err := logWriter.Reopen(); err != nil {
					log.Error("log reopen on SIGHUP failed", logging.KeyError, err.Error())
					continue
				}
				log.Info("log file reopened on SIGHUP", "rotations", logWriter.RotationCount())
			}
		}()
	}

	srv.Serve()
	srv.Shutdown()

	if auditLogger != nil {
		auditLogger.Log(audit.EventServerStop, "", map[string]any{"version": version})
	}
	log.Info("server stopped")
}

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/arichat-ai/arichat/internal/auth"
	"github.com/arichat-ai/arichat/internal/config"
)

var (
	cfgFile     string
	serverFlag  string
	verboseFlag bool

	// Package-level version info, set by Execute().
	appVersion string
	appCommit  string
	appDate    string
)

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date

	rootCmd := &cobra.Command{
		Use:   "arichat",
		Short: "Terminal client for the Ari chat service",
		Long:  "arichat talks to an Ari server: sign in, chat with the assistant over WebSocket, and manage your conversations.",
		// Running arichat with no subcommand starts chat mode.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(0)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.config/arichat/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&serverFlag, "server", "s", "", "override server URL")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")

	// Subcommands
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newRegisterCmd())
	rootCmd.AddCommand(newWhoamiCmd())
	rootCmd.AddCommand(newProfileCmd())
	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newPasswdCmd())
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newAdminCmd())
	rootCmd.AddCommand(newVersionCmd(version, commit, date))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig loads configuration, applying CLI flag overrides.
func initConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// CLI flags override config values
	if serverFlag != "" {
		cfg.ServerURL = serverFlag
	}
	if verboseFlag {
		cfg.Verbose = true
	}

	return cfg
}

// newLogger builds the console logger. Debug level only with --verbose;
// everything goes to stderr so transcript output stays clean.
func newLogger(cfg *config.Config) zerolog.Logger {
	level := zerolog.WarnLevel
	if cfg.Verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

// newSession builds the API session with persisted credentials.
func newSession(cfg *config.Config, log zerolog.Logger) *auth.Session {
	credPath := cfg.CredentialsPath
	if credPath == "" {
		if dir, err := config.Dir(); err == nil {
			credPath = filepath.Join(dir, "credentials.yaml")
		}
	}
	var store *auth.TokenStore
	if credPath != "" {
		store = auth.NewTokenStore(credPath, log)
	}
	return auth.NewSession(auth.Options{
		BaseURL:    cfg.ServerURL,
		Store:      store,
		HTTPClient: &http.Client{Timeout: cfg.RequestTimeout()},
		Logger:     log,
	})
}

// requireAuth restores the persisted session and fails when nobody is
// signed in.
func requireAuth(ctx context.Context, s *auth.Session) error {
	if !s.Init(ctx) {
		return fmt.Errorf("not signed in, run `arichat login` first")
	}
	return nil
}

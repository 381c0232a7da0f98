package cmd

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arichat-ai/arichat/internal/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive configuration wizard",
		Long:  "Guides you through setting up arichat: point it at your Ari server and save the config.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit()
		},
	}
}

func runInit() error {
	fmt.Println("Welcome to arichat configuration wizard!")
	fmt.Println()

	cfg := config.DefaultConfig()

	server, err := promptLine(fmt.Sprintf("Server URL [%s]: ", cfg.ServerURL))
	if err != nil {
		return err
	}
	if server != "" {
		server = strings.TrimRight(server, "/")
		if u, perr := url.Parse(server); perr != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid server URL %q", server)
		}
		cfg.ServerURL = server
	}

	ws, err := promptLine("WebSocket URL (leave empty to derive from the server URL): ")
	if err != nil {
		return err
	}
	if ws != "" {
		if !strings.HasPrefix(ws, "ws://") && !strings.HasPrefix(ws, "wss://") {
			return fmt.Errorf("websocket URL must start with ws:// or wss://")
		}
		cfg.WebSocketURL = strings.TrimRight(ws, "/")
	}

	path, err := config.Save(cfg)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("Config saved to %s\n", path)
	fmt.Println("Next: run `arichat register` or `arichat login`.")
	return nil
}

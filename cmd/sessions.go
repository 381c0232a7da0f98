package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/arichat-ai/arichat/internal/chat"
	"github.com/arichat-ai/arichat/internal/tui"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage your conversations",
	}
	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsArchivedCmd())
	cmd.AddCommand(newSessionsHistoryCmd())
	cmd.AddCommand(newSessionsArchiveCmd())
	cmd.AddCommand(newSessionsDeleteCmd())
	return cmd
}

// withChatAPI handles the session/renderer boilerplate shared by every
// sessions subcommand.
func withChatAPI(fn func(ctx context.Context, api *chat.API, render *tui.Renderer) error) error {
	cfg := initConfig()
	log := newLogger(cfg)
	s := newSession(cfg, log)
	defer s.Close()
	ctx := context.Background()

	if err := requireAuth(ctx, s); err != nil {
		return err
	}

	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	return fn(ctx, chat.NewAPI(s), tui.NewRenderer(os.Stdout, width))
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withChatAPI(func(ctx context.Context, api *chat.API, render *tui.Renderer) error {
				convs, err := api.Active(ctx)
				if err != nil {
					return err
				}
				render.Conversations(convs)
				return nil
			})
		},
	}
}

func newSessionsArchivedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archived",
		Short: "List archived conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withChatAPI(func(ctx context.Context, api *chat.API, render *tui.Renderer) error {
				convs, err := api.Archived(ctx)
				if err != nil {
					return err
				}
				render.Conversations(convs)
				return nil
			})
		},
	}
}

func newSessionsHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "Print the transcript of a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withChatAPI(func(ctx context.Context, api *chat.API, render *tui.Renderer) error {
				msgs, err := api.Messages(ctx, id)
				if err != nil {
					return err
				}
				for _, m := range msgs {
					render.Message(m)
				}
				return nil
			})
		},
	}
}

func newSessionsArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <id>",
		Short: "Archive or unarchive a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withChatAPI(func(ctx context.Context, api *chat.API, render *tui.Renderer) error {
				conv, err := api.ToggleArchive(ctx, id)
				if err != nil {
					return err
				}
				if conv != nil && conv.IsArchived {
					render.Info(fmt.Sprintf("Conversation #%d archived.", id))
				} else {
					render.Info(fmt.Sprintf("Conversation #%d restored.", id))
				}
				return nil
			})
		},
	}
}

func newSessionsDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Permanently delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withChatAPI(func(ctx context.Context, api *chat.API, render *tui.Renderer) error {
				if !yes && !confirm(fmt.Sprintf("Delete conversation #%d and all its messages?", id)) {
					render.Info("Aborted.")
					return nil
				}
				if err := api.Delete(ctx, id); err != nil {
					return err
				}
				render.Info(fmt.Sprintf("Conversation #%d deleted.", id))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid conversation id %q", s)
	}
	return id, nil
}

func confirm(question string) bool {
	fmt.Printf("%s [y/N] ", question)
	answer, err := readLine()
	if err != nil {
		return false
	}
	return strings.ToLower(answer) == "y"
}

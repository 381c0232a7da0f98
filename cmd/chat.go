package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/arichat-ai/arichat/internal/chat"
	"github.com/arichat-ai/arichat/internal/tui"
)

func newChatCmd() *cobra.Command {
	var sessionID int64
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat (REPL) with the assistant",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(sessionID)
		},
	}
	cmd.Flags().Int64Var(&sessionID, "session", 0, "resume an existing conversation by id (0 = new)")
	return cmd
}

// runChat starts the interactive chat (REPL) mode.
func runChat(sessionID int64) error {
	cfg := initConfig()
	log := newLogger(cfg)
	s := newSession(cfg, log)
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := requireAuth(ctx, s); err != nil {
		return err
	}

	api := chat.NewAPI(s)
	conv, history, err := openConversation(ctx, api, sessionID)
	if err != nil {
		return err
	}

	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	render := tui.NewRenderer(os.Stdout, width)

	ctrl := chat.NewController(chat.ControllerOptions{
		Tokens:      s,
		WSBaseURL:   cfg.WebSocketURL,
		HTTPBaseURL: cfg.ServerURL,
		Logger:      log,
	})
	defer ctrl.Close()

	ctrl.Seed(history, conv)
	for _, m := range history {
		render.Message(m)
	}

	fmt.Printf("Conversation #%d", conv.ID)
	if conv.Title != "" {
		fmt.Printf(" · %s", conv.Title)
	}
	fmt.Println("  (/help for commands)")

	ctrl.Connect(conv.ID)

	// Event drain: the read loop delivers here, input stays on the main
	// goroutine.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range ctrl.Events() {
			switch ev.Type {
			case chat.EventMessage:
				if ev.Message != nil && ev.Message.Role != chat.RoleUser {
					render.Message(*ev.Message)
				}
			case chat.EventStatus, chat.EventDisconnected:
				render.Status(ev.Status)
			case chat.EventTitle:
				render.Info("✎ conversation renamed: " + ev.Title)
			}
		}
	}()

	err = inputLoop(ctx, ctrl, api, render, conv)
	ctrl.Close()
	wg.Wait()
	return err
}

// openConversation creates a fresh conversation or loads an existing
// one with its history.
func openConversation(ctx context.Context, api *chat.API, id int64) (*chat.Conversation, []chat.Message, error) {
	if id == 0 {
		conv, err := api.Create(ctx)
		if err != nil {
			return nil, nil, err
		}
		return conv, nil, nil
	}
	history, err := api.Messages(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return &chat.Conversation{ID: id, MessageCount: len(history)}, history, nil
}

func inputLoop(ctx context.Context, ctrl *chat.Controller, api *chat.API, render *tui.Renderer, conv *chat.Conversation) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		for {
			fmt.Print("\n> ")
			line, err := readLine()
			if err != nil {
				return
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil // EOF, ctrl-d
			}
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "/") {
				done, err := handleSlash(ctx, line, ctrl, api, render, conv)
				if err != nil {
					render.Error(err.Error())
				}
				if done {
					return nil
				}
				continue
			}
			ctrl.SendMessage(line)
		}
	}
}

// handleSlash runs one REPL command. Returns true when the REPL should
// exit.
func handleSlash(ctx context.Context, line string, ctrl *chat.Controller, api *chat.API, render *tui.Renderer, conv *chat.Conversation) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil

	case "/new":
		next, err := api.Create(ctx)
		if err != nil {
			return false, err
		}
		*conv = *next
		ctrl.Seed(nil, next)
		ctrl.Connect(next.ID)
		render.Info(fmt.Sprintf("Started conversation #%d", next.ID))
		return false, nil

	case "/archive":
		if _, err := api.ToggleArchive(ctx, conv.ID); err != nil {
			return false, err
		}
		render.Info("Conversation archived.")
		return true, nil

	case "/sessions":
		convs, err := api.Active(ctx)
		if err != nil {
			return false, err
		}
		render.Conversations(convs)
		return false, nil

	case "/help":
		render.Info("Commands: /new  /archive  /sessions  /quit")
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %q, try /help", fields[0])
	}
}

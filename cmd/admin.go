package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/arichat-ai/arichat/internal/admin"
	"github.com/arichat-ai/arichat/internal/auth"
	"github.com/arichat-ai/arichat/internal/tui"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Superuser panel (requires a superadmin account)",
	}
	cmd.AddCommand(newAdminUsersCmd())
	cmd.AddCommand(newAdminChatsCmd())
	cmd.AddCommand(newAdminMessagesCmd())
	cmd.AddCommand(newAdminErrorsCmd())
	cmd.AddCommand(newAdminEmailsCmd())
	cmd.AddCommand(newAdminSendEmailCmd())
	return cmd
}

// withAdmin signs in, checks the role locally before touching any panel
// endpoint, and hands over the client.
func withAdmin(fn func(ctx context.Context, cl *admin.Client, render *tui.Renderer) error) error {
	cfg := initConfig()
	log := newLogger(cfg)
	s := newSession(cfg, log)
	defer s.Close()
	ctx := context.Background()

	if err := requireAuth(ctx, s); err != nil {
		return err
	}
	if s.Role() != auth.RoleSuperAdmin {
		return fmt.Errorf("admin commands require a superadmin account (you are %s)", s.Role())
	}

	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	return fn(ctx, admin.NewClient(s), tui.NewRenderer(os.Stdout, width))
}

func newAdminUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(func(ctx context.Context, cl *admin.Client, render *tui.Renderer) error {
				users, err := cl.Users(ctx)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(users))
				for _, u := range users {
					rows = append(rows, []string{
						strconv.FormatInt(u.ID, 10),
						u.Email,
						u.FullName,
						strings.Join(u.Roles, ","),
						boolWord(u.IsActive, "active", "disabled"),
						lockState(u),
					})
				}
				render.Table([]string{"ID", "EMAIL", "NAME", "ROLES", "STATUS", "LOCK"}, rows)
				return nil
			})
		},
	}
	cmd.AddCommand(newAdminUserShowCmd())
	cmd.AddCommand(newAdminUserToggleCmd())
	cmd.AddCommand(newAdminUserResetPasswordCmd())
	cmd.AddCommand(newAdminUserUnlockCmd())
	cmd.AddCommand(newAdminUserDeleteCmd())
	return cmd
}

func newAdminUserShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one account in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withAdmin(func(ctx context.Context, cl *admin.Client, render *tui.Renderer) error {
				u, err := cl.User(ctx, id)
				if err != nil {
					return err
				}
				render.Info(fmt.Sprintf("Email:  %s", u.Email))
				render.Info(fmt.Sprintf("Name:   %s", u.FullName))
				render.Info(fmt.Sprintf("Roles:  %s", strings.Join(u.Roles, ", ")))
				render.Info(fmt.Sprintf("Status: %s", boolWord(u.IsActive, "active", "disabled")))
				if st := u.AccountStatus; st != nil {
					render.Info(fmt.Sprintf("Locked: %v (failed attempts: %d)", st.IsLocked, st.FailedAttempts))
					if st.LastLogin != nil {
						render.Info(fmt.Sprintf("Last login: %s", st.LastLogin.Format("2006-01-02 15:04")))
					}
				}
				if sec := u.Security; sec != nil {
					render.Info(fmt.Sprintf("Email verified: %v, 2FA: %v", sec.EmailVerified, sec.TwoFactorEnabled))
				}
				return nil
			})
		},
	}
}

func newAdminUserToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle-active <id>",
		Short: "Enable or disable an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withAdmin(func(ctx context.Context, cl *admin.Client, render *tui.Renderer) error {
				active, err := cl.ToggleActive(ctx, id)
				if err != nil {
					return err
				}
				render.Info(fmt.Sprintf("User #%d is now %s.", id, boolWord(active, "active", "disabled")))
				return nil
			})
		},
	}
}

func newAdminUserResetPasswordCmd() *cobra.Command {
	var sendEmail, requireChange bool
	cmd := &cobra.Command{
		Use:   "reset-password <id>",
		Short: "Set a new password for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withAdmin(func(ctx context.Context, cl *admin.Client, render *tui.Renderer) error {
				password, err := promptPassword("New password: ")
				if err != nil {
					return err
				}
				sent, err := cl.ResetPassword(ctx, id, admin.ResetPasswordRequest{
					Password:      password,
					SendEmail:     sendEmail,
					RequireChange: requireChange,
				})
				if err != nil {
					return err
				}
				msg := fmt.Sprintf("Password for user #%d reset.", id)
				if sent {
					msg += " Notification email sent."
				}
				render.Info(msg)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&sendEmail, "send-email", true, "notify the user by email")
	cmd.Flags().BoolVar(&requireChange, "require-change", true, "force a password change at next login")
	return cmd
}

func newAdminUserUnlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <id>",
		Short: "Unlock an account and clear failed login attempts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withAdmin(func(ctx context.Context, cl *admin.Client, render *tui.Renderer) error {
				unlocked := false
				if err := cl.UpdateSecurity(ctx, id, admin.SecurityPatch{IsLocked: &unlocked}); err != nil {
					return err
				}
				render.Info(fmt.Sprintf("User #%d unlocked.", id))
				return nil
			})
		},
	}
}

func newAdminUserDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Permanently delete an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withAdmin(func(ctx context.Context, cl *admin.Client, render *tui.Renderer) error {
				if !yes && !confirm(fmt.Sprintf("Delete user #%d with all their data?", id)) {
					render.Info("Aborted.")
					return nil
				}
				if err := cl.DeleteUser(ctx, id); err != nil {
					return err
				}
				render.Info(fmt.Sprintf("User #%d deleted.", id))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newAdminChatsCmd() *cobra.Command {
	var showID int64
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List conversations across all users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(func(ctx context.Context, cl *admin.Client, render *tui.Renderer) error {
				if showID != 0 {
					ch, err := cl.Chat(ctx, showID)
					if err != nil {
						return err
					}
					render.Info(fmt.Sprintf("#%d %q by %s (%d messages)", ch.ID, ch.Title, ch.User, ch.MessageCount))
					for _, m := range ch.Messages {
						render.Info(fmt.Sprintf("[%s] %s", m.Role, m.Content))
					}
					return nil
				}
				chats, err := cl.Chats(ctx)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(chats))
				for _, ch := range chats {
					rows = append(rows, []string{
						strconv.FormatInt(ch.ID, 10),
						ch.User,
						ch.Title,
						strconv.Itoa(ch.MessageCount),
						boolWord(ch.IsArchived, "archived", ""),
					})
				}
				render.Table([]string{"ID", "USER", "TITLE", "MSGS", "FLAGS"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&showID, "id", 0, "show one conversation with its messages")
	return cmd
}

func newAdminMessagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "messages",
		Short: "List recent messages across all conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(func(ctx context.Context, cl *admin.Client, render *tui.Renderer) error {
				msgs, err := cl.Messages(ctx)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(msgs))
				for _, m := range msgs {
					rows = append(rows, []string{
						m.ID.String(),
						m.Role,
						oneLine(m.Content, 60),
						m.TokensUsed.String(),
					})
				}
				render.Table([]string{"ID", "ROLE", "CONTENT", "TOKENS"}, rows)
				return nil
			})
		},
	}
}

func newAdminErrorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "errors",
		Short: "List server error logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(func(ctx context.Context, cl *admin.Client, render *tui.Renderer) error {
				logs, err := cl.ErrorLogs(ctx)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(logs))
				for _, e := range logs {
					rows = append(rows, []string{
						e.CreatedAt.Format("01-02 15:04"),
						e.Level,
						e.Method + " " + e.RequestPath,
						oneLine(e.Message, 70),
					})
				}
				render.Table([]string{"WHEN", "LEVEL", "REQUEST", "MESSAGE"}, rows)
				return nil
			})
		},
	}
}

func newAdminEmailsCmd() *cobra.Command {
	var status, email string
	var userID int64
	cmd := &cobra.Command{
		Use:   "emails",
		Short: "List outbound email logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withAdmin(func(ctx context.Context, cl *admin.Client, render *tui.Renderer) error {
				logs, err := cl.EmailLogs(ctx, admin.EmailLogFilter{
					UserID: userID,
					Email:  email,
					Status: status,
				})
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(logs))
				for _, e := range logs {
					rows = append(rows, []string{
						e.CreatedAt.Format("01-02 15:04"),
						e.ToEmail,
						oneLine(e.Subject, 40),
						e.Status,
					})
				}
				render.Table([]string{"WHEN", "TO", "SUBJECT", "STATUS"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, sent, failed)")
	cmd.Flags().StringVar(&email, "email", "", "filter by recipient address")
	cmd.Flags().Int64Var(&userID, "user", 0, "filter by recipient user id")
	return cmd
}

func newAdminSendEmailCmd() *cobra.Command {
	var to []int64
	var subject, message string
	cmd := &cobra.Command{
		Use:   "send-email",
		Short: "Send an email to a set of users",
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" || message == "" {
				return fmt.Errorf("--subject and --message are required")
			}
			return withAdmin(func(ctx context.Context, cl *admin.Client, render *tui.Renderer) error {
				err := cl.SendEmail(ctx, admin.SendEmailRequest{
					RecipientIDs: to,
					Subject:      subject,
					Message:      message,
				})
				if err != nil {
					return err
				}
				render.Info(fmt.Sprintf("Email queued for %d recipient(s).", len(to)))
				return nil
			})
		},
	}
	cmd.Flags().Int64SliceVar(&to, "to", nil, "recipient user ids (repeatable)")
	cmd.Flags().StringVar(&subject, "subject", "", "email subject")
	cmd.Flags().StringVar(&message, "message", "", "email body")
	return cmd
}

func boolWord(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}

func lockState(u admin.User) string {
	if u.AccountStatus != nil && u.AccountStatus.IsLocked {
		return "locked"
	}
	return ""
}

// oneLine collapses newlines and truncates for table cells.
func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

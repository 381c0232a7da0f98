package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/arichat-ai/arichat/internal/auth"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login [email]",
		Short: "Sign in and persist the session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := ""
			if len(args) == 1 {
				email = args[0]
			}
			return runLogin(email)
		},
	}
}

func runLogin(email string) error {
	cfg := initConfig()
	log := newLogger(cfg)
	s := newSession(cfg, log)
	defer s.Close()
	ctx := context.Background()

	var err error
	if email == "" {
		email, err = promptLine("Email: ")
		if err != nil {
			return err
		}
	}
	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}

	res := s.Login(ctx, email, password)
	if !res.Success {
		return fmt.Errorf("login failed: %s", res.Error)
	}

	fmt.Printf("Signed in as %s (%s)\n", res.User.Email, s.Role())
	if !s.IsEmailVerified() {
		fmt.Println("Your email is not verified yet. Run `arichat verify resend` to get a new link.")
	}
	return nil
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and discard stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := initConfig()
			log := newLogger(cfg)
			s := newSession(cfg, log)
			defer s.Close()

			s.Init(context.Background())
			s.Logout(context.Background())
			fmt.Println("Signed out.")
			return nil
		},
	}
}

func newRegisterCmd() *cobra.Command {
	var firstName, lastName string
	cmd := &cobra.Command{
		Use:   "register [email]",
		Short: "Create a new account",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := ""
			if len(args) == 1 {
				email = args[0]
			}
			return runRegister(email, firstName, lastName)
		},
	}
	cmd.Flags().StringVar(&firstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "last name")
	return cmd
}

func runRegister(email, firstName, lastName string) error {
	cfg := initConfig()
	log := newLogger(cfg)
	s := newSession(cfg, log)
	defer s.Close()
	ctx := context.Background()

	var err error
	if email == "" {
		email, err = promptLine("Email: ")
		if err != nil {
			return err
		}
	}
	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}
	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	res := s.Register(ctx, auth.RegisterPayload{
		Email:     email,
		Password:  password,
		FirstName: firstName,
		LastName:  lastName,
	})
	if !res.OK {
		return fmt.Errorf("registration failed: %s", res.Err)
	}

	fmt.Println("Account created. Check your inbox for the verification email, then run `arichat login`.")
	return nil
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := initConfig()
			log := newLogger(cfg)
			s := newSession(cfg, log)
			defer s.Close()
			ctx := context.Background()

			if err := requireAuth(ctx, s); err != nil {
				return err
			}
			u := s.User()
			fmt.Printf("Email:    %s\n", u.Email)
			if u.FullName != "" {
				fmt.Printf("Name:     %s\n", u.FullName)
			}
			fmt.Printf("Role:     %s\n", s.Role())
			fmt.Printf("Verified: %v\n", s.IsEmailVerified())
			fmt.Printf("Server:   %s\n", cfg.ServerURL)
			return nil
		},
	}
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Email verification helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "resend",
		Short: "Resend the verification email",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := initConfig()
			log := newLogger(cfg)
			s := newSession(cfg, log)
			defer s.Close()
			ctx := context.Background()

			if err := requireAuth(ctx, s); err != nil {
				return err
			}
			if s.IsEmailVerified() {
				fmt.Println("Your email is already verified.")
				return nil
			}
			if res := s.ResendVerification(ctx); !res.OK {
				return fmt.Errorf("resend failed: %s", res.Err)
			}
			fmt.Println("Verification email sent.")
			return nil
		},
	})
	return cmd
}

func newPasswdCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change the account password",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPasswd()
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "forgot [email]",
		Short: "Request a password reset email",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := initConfig()
			log := newLogger(cfg)
			s := newSession(cfg, log)
			defer s.Close()

			email := ""
			if len(args) == 1 {
				email = args[0]
			}
			var err error
			if email == "" {
				email, err = promptLine("Email: ")
				if err != nil {
					return err
				}
			}
			if res := s.ForgotPassword(context.Background(), email); !res.OK {
				return fmt.Errorf("request failed: %s", res.Err)
			}
			fmt.Println("If that address exists, a reset email is on its way.")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "reset <token>",
		Short: "Set a new password using a reset token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := initConfig()
			log := newLogger(cfg)
			s := newSession(cfg, log)
			defer s.Close()

			password, err := promptPassword("New password: ")
			if err != nil {
				return err
			}
			if res := s.ResetPassword(context.Background(), args[0], password); !res.OK {
				return fmt.Errorf("reset failed: %s", res.Err)
			}
			fmt.Println("Password updated. Run `arichat login` to sign in.")
			return nil
		},
	})
	return cmd
}

func runPasswd() error {
	cfg := initConfig()
	log := newLogger(cfg)
	s := newSession(cfg, log)
	defer s.Close()
	ctx := context.Background()

	if err := requireAuth(ctx, s); err != nil {
		return err
	}
	current, err := promptPassword("Current password: ")
	if err != nil {
		return err
	}
	next, err := promptPassword("New password: ")
	if err != nil {
		return err
	}
	confirm, err := promptPassword("Confirm new password: ")
	if err != nil {
		return err
	}
	if next != confirm {
		return fmt.Errorf("passwords do not match")
	}
	if res := s.ChangePassword(ctx, current, next); !res.OK {
		return fmt.Errorf("change failed: %s", res.Err)
	}
	fmt.Println("Password changed.")
	return nil
}

// promptLine reads one trimmed line from stdin.
func promptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	return readLine()
}

// promptPassword reads a password without echo when stdin is a
// terminal, falling back to a plain line otherwise (pipes, tests).
func promptPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}
	return readLine()
}

// stdin is shared by every prompt so buffered piped input is not lost
// between reads.
var stdin = bufio.NewReader(os.Stdin)

func readLine() (string, error) {
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newProfileCmd() *cobra.Command {
	var firstName, lastName string
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Update the account profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			if firstName == "" && lastName == "" {
				return fmt.Errorf("nothing to update, pass --first-name and/or --last-name")
			}
			cfg := initConfig()
			log := newLogger(cfg)
			s := newSession(cfg, log)
			defer s.Close()
			ctx := context.Background()

			if err := requireAuth(ctx, s); err != nil {
				return err
			}

			patch := map[string]string{}
			if firstName != "" {
				patch["first_name"] = firstName
			}
			if lastName != "" {
				patch["last_name"] = lastName
			}
			if res := s.UpdateProfile(ctx, patch); !res.OK {
				return fmt.Errorf("update failed: %s", res.Err)
			}
			if u := s.User(); u != nil && u.FullName != "" {
				fmt.Printf("Profile updated: %s\n", u.FullName)
			} else {
				fmt.Println("Profile updated.")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&firstName, "first-name", "", "new first name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "new last name")
	return cmd
}

package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/newport/internal/config"
	"github.com/example/newport/internal/database"
	"github.com/example/newport/internal/directory"
	"github.com/example/newport/internal/services"
)

func invitesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invites",
		Short: "Inspect and maintain family invitations",
	}

	cmd.AddCommand(invitesCleanupCmd())
	cmd.AddCommand(invitesSignCmd())
	cmd.AddCommand(invitesVerifyCmd())

	return cmd
}

func invitesCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Mark pending invitations past their expiry as expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			cfg := config.Load()
			db := database.Connect(cfg.DatabaseURL)
			invites := services.NewInviteService(db, directory.New(db), services.NewInviteSigner(cfg.InviteSecret), cfg.InviteBaseURL, cfg.InviteTTL)

			count, err := invites.ExpirePending(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Expired %d invitations\n", count)
			return nil
		},
	}

	cmd.Flags().Int("limit", 100, "Maximum invitations to expire in one run")
	return cmd
}

func invitesSignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign [invite-id] [expires-at-ms]",
		Short: "Print the signature for an invitation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := signerFromFlags(cmd)
			if err != nil {
				return err
			}
			expiresAt, err := parseMillis(args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signer.Sign(args[0], expiresAt))
			return nil
		},
	}

	cmd.Flags().String("secret", "", "Signing secret (defaults to INVITE_SECRET)")
	return cmd
}

func invitesVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [invite-id] [expires-at-ms] [signature]",
		Short: "Check an invitation signature",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := signerFromFlags(cmd)
			if err != nil {
				return err
			}
			expiresAt, err := parseMillis(args[1])
			if err != nil {
				return err
			}
			if !signer.Verify(args[0], expiresAt, args[2]) {
				return errors.New("signature does not match")
			}

			expiry := time.UnixMilli(expiresAt).UTC()
			state := "valid"
			if time.Now().After(expiry) {
				state = "valid but expired"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signature %s (expires %s)\n", state, expiry.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().String("secret", "", "Signing secret (defaults to INVITE_SECRET)")
	return cmd
}

func signerFromFlags(cmd *cobra.Command) (*services.InviteSigner, error) {
	secret, _ := cmd.Flags().GetString("secret")
	if secret == "" {
		secret = os.Getenv("INVITE_SECRET")
	}
	if secret == "" {
		return nil, errors.New("no signing secret: pass --secret or set INVITE_SECRET")
	}
	return services.NewInviteSigner(secret), nil
}

func parseMillis(value string) (int64, error) {
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid expiry %q: %w", value, err)
	}
	return ms, nil
}

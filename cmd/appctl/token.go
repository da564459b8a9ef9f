package main

import (
	"errors"
	"fmt"
	"time"

	"appshell/internal/auth"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var (
		sub, email, role, secret, audience string
		expiry                             time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token for the jwt auth provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = cfg.JWTSecret
			}
			if audience == "" {
				audience = cfg.JWTAudience
			}
			if secret == "" {
				return errors.New("no secret: set AUTH_JWT_SECRET or pass --secret")
			}

			id := uuid.New()
			if sub != "" {
				parsed, err := uuid.Parse(sub)
				if err != nil {
					return fmt.Errorf("--sub must be a UUID: %w", err)
				}
				id = parsed
			}

			p := auth.NewJWTProvider(secret, audience, expiry)
			if err := p.ValidateConfig(); err != nil {
				return err
			}
			token, err := p.GenerateToken(id, email, role)
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "sub: %s\nemail: %s\nrole: %s\nexpires in: %s\n\n%s\n", id, email, role, expiry, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&sub, "sub", "", "User id (random when empty)")
	cmd.Flags().StringVar(&email, "email", "dev@example.com", "Email claim")
	cmd.Flags().StringVar(&role, "role", "authenticated", "Role claim")
	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret (default AUTH_JWT_SECRET)")
	cmd.Flags().StringVar(&audience, "audience", "", "Audience (default AUTH_JWT_AUDIENCE)")
	cmd.Flags().DurationVar(&expiry, "expiry", 24*time.Hour, "Token lifetime")
	return cmd
}

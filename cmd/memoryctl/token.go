package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aiox-platform/usermemory/internal/auth"
)

func newTokenCommand() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for local testing",
		Long: `Mint a bearer token signed with AUTH_JWT_SECRET.

Production tokens are issued by the identity provider; this is for local
development and smoke tests.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			token, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenIssuer, cfg.Auth.TokenExpiry).GenerateToken(userID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id to put in the token (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

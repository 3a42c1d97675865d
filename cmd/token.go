package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"intellisurf/internal/pkg/jwt"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for a user",
	Long:  `Sign an access token with auth.jwt_secret, for local development and scripted clients.`,
	RunE:  runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	flags := tokenCmd.Flags()
	flags.String("user-id", "", "user id carried in the token (required)")
	flags.String("email", "", "user email")
	flags.String("name", "", "user display name")
	flags.Duration("expiry", 0, "token lifetime (default: auth.access_token_expiry)")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	flags := cmd.Flags()

	userID, _ := flags.GetString("user-id")
	if userID == "" {
		return errors.New("--user-id is required")
	}
	email, _ := flags.GetString("email")
	name, _ := flags.GetString("name")

	expiry, _ := flags.GetDuration("expiry")
	if expiry <= 0 {
		expiry = cfg.Auth.AccessTokenExpiry
	}
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}

	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is not configured (set INTELLISURF_AUTH_JWT_SECRET)")
	}

	token, err := jwt.NewJWT(cfg.Auth.JWTSecret, expiry).GenerateToken(userID, email, name)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

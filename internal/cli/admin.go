package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/auth"
	"quiz-attempt-service/internal/config"
	"quiz-attempt-service/internal/infra/postgres"
)

// NewCreateAdminCmd creates an admin account unless the username is taken.
func NewCreateAdminCmd(configPath *string) *cobra.Command {
	var in app.RegisterInput
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}
			db, err := postgres.Open(cmd.Context(), cfg.Postgres.URL)
			if err != nil {
				return err
			}
			defer db.Close()

			accounts := app.NewAccountService(app.AccountConfig{
				Store:  postgres.NewStore(db),
				Tokens: auth.NewTokens(cfg.Auth.JWTSecret, config.TTLDuration(cfg.Auth.TokenTTL, auth.DefaultTokenTTL)),
				Hasher: auth.Bcrypt{},
			})
			created, err := accounts.EnsureAdmin(cmd.Context(), in)
			if err != nil {
				return err
			}
			if !created {
				slog.InfoContext(cmd.Context(), "create-admin: user already exists", "username", in.Username)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Username, "username", "admin", "admin username")
	cmd.Flags().StringVar(&in.Email, "email", "", "admin email")
	cmd.Flags().StringVar(&in.Password, "password", "", "admin password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

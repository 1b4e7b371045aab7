package main

import (
	"fmt"
	"strings"

	"github.com/boddenberg/finance-dashboard-api/internal/domain"
	"github.com/boddenberg/finance-dashboard-api/internal/infra/observability"
	"github.com/boddenberg/finance-dashboard-api/internal/query"
	"github.com/boddenberg/finance-dashboard-api/internal/service"

	"github.com/spf13/cobra"
)

func seedCmd() *cobra.Command {
	var (
		username string
		email    string
		password string
		admin    bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a user and load the sample transactions",
		Long: `Create the given user when it does not exist yet, then load the embedded
sample transaction set into its account. Users that already own
transactions are left untouched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := observability.NewLogger(cfg.LogLevel)
			defer logger.Sync()
			metrics := observability.NewMetrics()

			be, err := openBackend(ctx, cfg, metrics, logger)
			if err != nil {
				return err
			}
			defer be.close()

			user, err := be.users.FindUserByEmailOrUsername(ctx, strings.ToLower(strings.TrimSpace(email)), strings.TrimSpace(username))
			if err != nil {
				return fmt.Errorf("look up user: %w", err)
			}
			if user == nil {
				role := domain.RoleUser
				if admin {
					role = domain.RoleAdmin
				}
				auth := service.NewAuthService(be.users, nil, cfg.JWTSecret, cfg.JWTExpiresIn, metrics, logger)
				user, err = auth.CreateUser(ctx, &domain.RegisterRequest{
					Username: username,
					Email:    email,
					Password: password,
				}, role)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", user.Username, user.Role)
			}

			onboarding := service.NewOnboardingService(be.users, be.txs, nil, logger)
			if err := onboarding.EnsureSampleData(ctx, user.ID); err != nil {
				return err
			}

			n, err := be.txs.Count(ctx, query.Predicate{Owner: user.ID})
			if err != nil {
				return fmt.Errorf("count transactions: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s owns %d transactions\n", user.Username, n)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "testuser", "username to create or reuse")
	cmd.Flags().StringVar(&email, "email", "testuser@example.com", "email to create or reuse")
	cmd.Flags().StringVar(&password, "password", "password123", "password for a newly created user")
	cmd.Flags().BoolVar(&admin, "admin", false, "create the user with the admin role")
	return cmd
}

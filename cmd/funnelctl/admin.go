package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aura-webinar/funnel/internal/auth"
	"github.com/aura-webinar/funnel/internal/models"
	"github.com/aura-webinar/funnel/internal/sessions"
	"github.com/aura-webinar/funnel/pkg/database"
	"github.com/aura-webinar/funnel/pkg/utils"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger(cmd)
		defer logger.Sync()
		_, pool, err := openDB(cmd.Context(), logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		return database.Migrate(cmd.Context(), pool, logger)
	},
}

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create a back-office user",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		name, _ := cmd.Flags().GetString("name")
		role, _ := cmd.Flags().GetString("role")
		if email == "" || len(password) < 8 {
			return errors.New("--email and a --password of at least 8 characters are required")
		}
		r := models.Role(role)
		if r != models.RoleAdmin && r != models.RoleEditor {
			return fmt.Errorf("unknown role %q", role)
		}

		logger := newLogger(cmd)
		defer logger.Sync()
		_, pool, err := openDB(cmd.Context(), logger)
		if err != nil {
			return err
		}
		defer pool.Close()

		hash, err := utils.HashPassword(password)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		u, err := auth.NewRepository(pool).Create(cmd.Context(), email, hash, name, r)
		if err != nil {
			return err
		}
		logger.Info("user created", zap.String("user_id", u.ID.String()), zap.String("role", string(u.Role)))
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep-sessions",
	Short: "Delete expired lead session bindings once",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger(cmd)
		defer logger.Sync()
		cfg, pool, err := openDB(cmd.Context(), logger)
		if err != nil {
			return err
		}
		defer pool.Close()
		svc := sessions.NewService(sessions.NewRepository(pool), nil, cfg.Session.TTL, cfg.Session.CacheTTL, logger)
		n, err := svc.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired sessions\n", n)
		return nil
	},
}

func init() {
	createAdminCmd.Flags().String("email", "", "Login email")
	createAdminCmd.Flags().String("password", "", "Initial password")
	createAdminCmd.Flags().String("name", "", "Full name")
	createAdminCmd.Flags().String("role", string(models.RoleAdmin), "admin or editor")
}

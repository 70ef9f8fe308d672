package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	rlrepo "github.com/ovaphlow/pitchfork/service-tips-go/internal/ratelimit/repo"
	userrepo "github.com/ovaphlow/pitchfork/service-tips-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-tips-go/pkg/database"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the users and rate_limits tables if they do not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			lg, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer lg.Sync()
			sugar := lg.Sugar()

			db, err := database.ConnectX(database.ConfigFromEnv())
			if err != nil {
				return fmt.Errorf("db connect: %w", err)
			}
			defer db.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := userrepo.NewUserRepo(db).EnsureTable(ctx); err != nil {
				return fmt.Errorf("ensure users table: %w", err)
			}
			if err := rlrepo.NewRepo(db).EnsureTable(ctx); err != nil {
				return fmt.Errorf("ensure rate_limits table: %w", err)
			}
			sugar.Info("schema is up to date")
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete rate-limit windows that have already ended",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.limiter.Sweep(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep rate limits: %w", err)
			}
			a.log.Infow("rate limit sweep done", "deleted", n)
			return nil
		},
	}
}

func orphansCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "orphans",
		Short: "List users whose payment account creation never finished",
		Long: `List users whose account creation marker is older than
ONBOARDING_RESERVATION_TTL. Each may own a provider account that is not
recorded locally; look it up by the user id in the account metadata.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, false)
			if err != nil {
				return err
			}
			defer a.Close()

			users, err := a.onboarding.Orphans(cmd.Context())
			if err != nil {
				return fmt.Errorf("list orphans: %w", err)
			}
			a.log.Infow("orphan scan done", "count", len(users))

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "USER\tEMAIL\tSTARTED")
			for _, u := range users {
				fmt.Fprintf(w, "%s\t%s\t%s\n", u.ID, u.Email, u.AccountCreationStartedAt.UTC().Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}

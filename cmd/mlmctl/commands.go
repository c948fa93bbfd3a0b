package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/HSouheill/barrim_mlm/app"
	"github.com/HSouheill/barrim_mlm/config"
	"github.com/HSouheill/barrim_mlm/middleware"
	"github.com/HSouheill/barrim_mlm/models"
)

var (
	cfg    config.Config
	logger *logrus.Logger

	referrerID   string
	referralCode string
	levels       int
	period       string
	limit        int
	tokenType    string
	tokenEmail   string
	tokenTTL     time.Duration
	timeout      time.Duration

	rootCmd = &cobra.Command{
		Use:          "mlmctl",
		Short:        "Operate the MLM placement tree and commission ledger",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			logger = config.NewLogger(cfg)
			logger.SetOutput(os.Stderr)
			return nil
		},
	}

	placeCmd = &cobra.Command{
		Use:   "place <participantId>",
		Short: "Place a participant under a referrer (or as the root)",
		Args:  cobra.ExactArgs(1),
		RunE:  runPlace,
	}

	distributeCmd = &cobra.Command{
		Use:   "distribute <sourceParticipantId> <amount> <transactionRef>",
		Short: "Distribute referral commissions for a transaction",
		Args:  cobra.ExactArgs(3),
		RunE:  runDistribute,
	}

	uplinesCmd = &cobra.Command{
		Use:   "uplines <participantId>",
		Short: "List a participant's ancestors, nearest first",
		Args:  cobra.ExactArgs(1),
		RunE:  runUplines,
	}

	downlinesCmd = &cobra.Command{
		Use:   "downlines <participantId>",
		Short: "List a participant's descendants grouped by level",
		Args:  cobra.ExactArgs(1),
		RunE:  runDownlines,
	}

	leaderboardCmd = &cobra.Command{
		Use:   "leaderboard",
		Short: "Show the top earners for a period",
		Args:  cobra.NoArgs,
		RunE:  runLeaderboard,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create the collections, tables and indexes of the configured storage",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}

	tokenCmd = &cobra.Command{
		Use:   "token <userId>",
		Short: "Sign a JWT for calling the HTTP API",
		Args:  cobra.ExactArgs(1),
		RunE:  runToken,
	}
)

func init() {
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", time.Minute, "overall command timeout")

	placeCmd.Flags().StringVar(&referrerID, "referrer", "", "participant id of the referrer")
	placeCmd.Flags().StringVar(&referralCode, "code", "", "referral code of the referrer")
	placeCmd.MarkFlagsMutuallyExclusive("referrer", "code")

	downlinesCmd.Flags().IntVar(&levels, "levels", 3, "number of levels to walk (1-10)")

	leaderboardCmd.Flags().StringVar(&period, "period", string(models.PeriodAll), "all, month or week")
	leaderboardCmd.Flags().IntVar(&limit, "limit", 10, "number of entries (1-100)")

	tokenCmd.Flags().StringVar(&tokenType, "type", middleware.UserTypeAdmin, "userType claim")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime, 0 for none")

	rootCmd.AddCommand(placeCmd, distributeCmd, uplinesCmd, downlinesCmd, leaderboardCmd, migrateCmd, tokenCmd)
}

// withServices opens the configured storage, runs fn and closes it again.
func withServices(cmd *cobra.Command, fn func(ctx context.Context, svc *app.Services) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	stores, err := app.OpenStores(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.Close(context.Background()); err != nil {
			logger.WithError(err).Warn("storage shutdown")
		}
	}()

	// mlmctl never touches the report cache; the server's invalidation and
	// TTLs take care of staleness.
	svc, err := app.NewServices(cfg, stores, nil, logger)
	if err != nil {
		return err
	}
	return fn(ctx, svc)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printFailure writes the {kind, detail} outcome of err and returns err so
// the exit status is non-zero.
func printFailure(cmd *cobra.Command, err error) error {
	if encErr := printJSON(cmd, models.NewOutcome(err)); encErr != nil {
		return encErr
	}
	return err
}

func runPlace(cmd *cobra.Command, args []string) error {
	return withServices(cmd, func(ctx context.Context, svc *app.Services) error {
		var (
			node models.TreeNode
			err  error
		)
		if referrerID != "" {
			node, err = svc.Placement.PlaceParticipant(ctx, args[0], referrerID)
		} else {
			node, err = svc.Placement.RegisterWithReferralCode(ctx, args[0], referralCode)
		}
		if err != nil {
			return printFailure(cmd, err)
		}
		return printJSON(cmd, node)
	})
}

func runDistribute(cmd *cobra.Command, args []string) error {
	amount, err := decimal.NewFromString(args[1])
	if err != nil {
		return fmt.Errorf("amount %q: %w", args[1], err)
	}
	return withServices(cmd, func(ctx context.Context, svc *app.Services) error {
		result, err := svc.Commissions.DistributeCommission(ctx, args[0], amount, args[2])
		if err != nil {
			return printFailure(cmd, err)
		}
		return printJSON(cmd, result)
	})
}

func runUplines(cmd *cobra.Command, args []string) error {
	return withServices(cmd, func(ctx context.Context, svc *app.Services) error {
		uplines, err := svc.Reporting.GetUplines(ctx, args[0])
		if err != nil {
			return printFailure(cmd, err)
		}
		return printJSON(cmd, uplines)
	})
}

func runDownlines(cmd *cobra.Command, args []string) error {
	return withServices(cmd, func(ctx context.Context, svc *app.Services) error {
		downlines, err := svc.Reporting.GetDownlines(ctx, args[0], levels, nil)
		if err != nil {
			return printFailure(cmd, err)
		}
		return printJSON(cmd, downlines)
	})
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	return withServices(cmd, func(ctx context.Context, svc *app.Services) error {
		board, err := svc.Reporting.Leaderboard(ctx, models.LeaderboardPeriod(period), limit)
		if err != nil {
			return printFailure(cmd, err)
		}
		return printJSON(cmd, board)
	})
}

func runMigrate(cmd *cobra.Command, args []string) error {
	// Opening the stores creates collections, tables and indexes.
	return withServices(cmd, func(ctx context.Context, svc *app.Services) error {
		logger.WithField("driver", cfg.StorageDriver).Info("storage schema is up to date")
		return nil
	})
}

func runToken(cmd *cobra.Command, args []string) error {
	token, err := middleware.GenerateJWT(cfg.JWTSecret, args[0], tokenEmail, tokenType, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

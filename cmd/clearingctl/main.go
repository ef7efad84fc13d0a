package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ariefcatur/renu-clearing/internal/app"
	"github.com/ariefcatur/renu-clearing/internal/config"
	"github.com/ariefcatur/renu-clearing/internal/failure"
	"github.com/ariefcatur/renu-clearing/internal/orders"
)

var Version = "dev"

// Ops is what the operator commands drive; *lifecycle.Service implements it.
type Ops interface {
	RequestPaymentLink(ctx context.Context, orderID int64) (string, error)
	ValidatePayment(ctx context.Context, orderID int64) error
	SyncStatus(ctx context.Context, orderID int64) (orders.State, error)
	MarkPaidFor(ctx context.Context, orderID int64) error
}

// Connect builds Ops and returns a cleanup func.
type Connect func(ctx context.Context) (Ops, func(), error)

func main() {
	_ = godotenv.Load()

	connect := func(ctx context.Context) (Ops, func(), error) {
		cfg := config.Load()
		cfg.ServiceName += "-ctl"
		ctx, cancel := context.WithCancel(ctx)
		a, err := app.New(ctx, cfg, prometheus.NewRegistry())
		if err != nil {
			cancel()
			return nil, nil, err
		}
		return a.Lifecycle, func() {
			a.Close()
			cancel()
		}, nil
	}

	if err := rootCmd(connect).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd(connect Connect) *cobra.Command {
	root := &cobra.Command{
		Use:           "clearingctl",
		Short:         "Operator tool for payment clearing and POS sync",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Duration("timeout", 30*time.Second, "Overall timeout per command")

	root.AddCommand(linkCmd(connect))
	root.AddCommand(validateCmd(connect))
	root.AddCommand(syncCmd(connect))
	root.AddCommand(paidCmd(connect))
	return root
}

// withOrder parses the order id and runs fn with connected Ops.
func withOrder(connect Connect, fn func(ctx context.Context, ops Ops, id int64, cmd *cobra.Command) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid order id %q", args[0])
		}
		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		ops, done, err := connect(ctx)
		if err != nil {
			return err
		}
		defer done()
		if err := fn(ctx, ops, id, cmd); err != nil {
			return fmt.Errorf("[%s] %w", failure.KindOf(err), err)
		}
		return nil
	}
}

func linkCmd(connect Connect) *cobra.Command {
	return &cobra.Command{
		Use:   "link [orderID]",
		Short: "Create a payment page link for an unpaid order",
		Args:  cobra.ExactArgs(1),
		RunE: withOrder(connect, func(ctx context.Context, ops Ops, id int64, cmd *cobra.Command) error {
			link, err := ops.RequestPaymentLink(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), link)
			return nil
		}),
	}
}

func validateCmd(connect Connect) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [orderID]",
		Short: "Check the order's transaction with its clearing provider",
		Args:  cobra.ExactArgs(1),
		RunE: withOrder(connect, func(ctx context.Context, ops Ops, id int64, cmd *cobra.Command) error {
			if err := ops.ValidatePayment(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "order %d: transaction ok\n", id)
			return nil
		}),
	}
}

func syncCmd(connect Connect) *cobra.Command {
	return &cobra.Command{
		Use:   "sync [orderID]",
		Short: "Poll the POS and apply the order status",
		Args:  cobra.ExactArgs(1),
		RunE: withOrder(connect, func(ctx context.Context, ops Ops, id int64, cmd *cobra.Command) error {
			st, err := ops.SyncStatus(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "order %d: %s\n", id, st)
			return nil
		}),
	}
}

func paidCmd(connect Connect) *cobra.Command {
	return &cobra.Command{
		Use:   "paid [orderID]",
		Short: "Validate the transaction and mark the order PAID_FOR",
		Args:  cobra.ExactArgs(1),
		RunE: withOrder(connect, func(ctx context.Context, ops Ops, id int64, cmd *cobra.Command) error {
			if err := ops.MarkPaidFor(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "order %d: %s\n", id, orders.StatePaidFor)
			return nil
		}),
	}
}

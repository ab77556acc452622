package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/newport/internal/services"
)

func paymentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payments",
		Short: "Payment support tools",
	}

	cmd.AddCommand(paymentsKeyCmd())
	return cmd
}

func paymentsKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key [payer-id] [amount]",
		Short: "Print the idempotency key a payment request would get",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			purpose, _ := cmd.Flags().GetString("purpose")
			dayFlag, _ := cmd.Flags().GetString("day")

			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}

			day := time.Now()
			if dayFlag != "" {
				parsed, err := time.Parse(time.DateOnly, dayFlag)
				if err != nil {
					return fmt.Errorf("invalid day %q: %w", dayFlag, err)
				}
				day = parsed
			}

			fmt.Fprintln(cmd.OutOrStdout(), services.IdempotencyKey(args[0], amount, purpose, day))
			return nil
		},
	}

	cmd.Flags().String("purpose", "utility", "Payment purpose")
	cmd.Flags().String("day", "", "Calendar day as YYYY-MM-DD (defaults to today)")
	return cmd
}

package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	payUserID    int64
	payInvoiceID string
	payAmount    string
	interestAt   string
)

var payCmd = &cobra.Command{
	Use:   "pay",
	Short: "Record a payment on an invoice",
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := decimal.NewFromString(payAmount)
		if err != nil {
			return fmt.Errorf("invalid amount %q: %w", payAmount, err)
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()

		svc, err := openServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		inv, err := svc.invoices.PayInvoice(ctx, payUserID, payInvoiceID, amount, svc.clock())
		if err != nil {
			return err
		}

		fmt.Printf("Invoice %s (%s)\n", inv.ID, inv.ReferenceMonth)
		fmt.Printf("  Total:   %s\n", inv.TotalAmount.StringFixed(2))
		fmt.Printf("  Paid:    %s\n", inv.PaidAmount.StringFixed(2))
		fmt.Printf("  Status:  %s\n", inv.Status)
		return nil
	},
}

var interestCmd = &cobra.Command{
	Use:   "interest",
	Short: "Show the overdue interest of an invoice",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext(cmd)
		defer cancel()

		svc, err := openServices(ctx)
		if err != nil {
			return err
		}
		defer svc.Close()

		at := svc.clock()
		if interestAt != "" {
			if at, err = time.Parse("2006-01-02", interestAt); err != nil {
				return fmt.Errorf("invalid --at, expected YYYY-MM-DD: %w", err)
			}
		}

		interest, err := svc.invoices.ComputeInterest(ctx, payUserID, payInvoiceID, at)
		if err != nil {
			return err
		}

		fmt.Printf("Interest on %s at %s: %s\n", payInvoiceID, at.Format("2006-01-02"), interest.StringFixed(2))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(payCmd)
	rootCmd.AddCommand(interestCmd)

	for _, c := range []*cobra.Command{payCmd, interestCmd} {
		c.Flags().Int64Var(&payUserID, "user-id", 0, "owner of the invoice")
		c.Flags().StringVar(&payInvoiceID, "invoice-id", "", "invoice ID")
		_ = c.MarkFlagRequired("user-id")
		_ = c.MarkFlagRequired("invoice-id")
	}
	payCmd.Flags().StringVar(&payAmount, "amount", "", "amount, e.g. 500.00")
	_ = payCmd.MarkFlagRequired("amount")
	interestCmd.Flags().StringVar(&interestAt, "at", "", "date to compute at (default today)")
}

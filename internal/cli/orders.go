package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fableworks/coinledger/internal/app/payment"
)

func init() {
	rootCmd.AddCommand(ordersCmd)
	ordersCmd.AddCommand(ordersListCmd)
	ordersCmd.AddCommand(ordersSweepCmd)
	ordersListCmd.Flags().IntP("limit", "n", 20, "Number of orders to show")
}

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Inspect and maintain payment orders",
}

var ordersListCmd = &cobra.Command{
	Use:   "list ACCOUNT_ID",
	Short: "List an account's orders, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		list, err := e.orders.List(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ORDER\tPRODUCT\tAMOUNT\tCOINS\tBONUS\tSTATUS\tCREATED")
		for _, o := range list {
			status := string(o.Status)
			if o.Mock {
				status += " (mock)"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
				o.OrderNo, o.ProductID, o.Amount, o.Coins, o.BonusCoins, status,
				o.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return tw.Flush()
	},
}

var ordersSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire pending orders past their payment window once",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		sw, err := payment.NewSweeper(e.orders, e.cfg.PayExpiry()+sweepGrace, e.cfg.SweepInterval(), e.log)
		if err != nil {
			return err
		}
		n := sw.Sweep(cmd.Context())
		fmt.Fprintf(os.Stdout, "Expired %d pending order(s)\n", n)
		return nil
	},
}

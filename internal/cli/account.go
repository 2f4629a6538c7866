package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountShowCmd)
	accountShowCmd.Flags().IntP("limit", "n", 20, "Number of transactions to show")
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Inspect accounts",
}

var accountShowCmd = &cobra.Command{
	Use:   "show ACCOUNT_ID",
	Short: "Show an account's balance and recent transactions",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountShow,
}

func runAccountShow(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	e, err := loadEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := cmd.Context()
	acct, err := e.ledger.Account(ctx, args[0])
	if err != nil {
		return err
	}
	txs, err := e.ledger.Transactions(ctx, acct.AccountID, limit)
	if err != nil {
		return err
	}
	summary, err := e.db.Summarize(ctx, acct.AccountID)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Account:      %s\n", acct.AccountID)
	if acct.Nickname != "" {
		fmt.Fprintf(os.Stdout, "Nickname:     %s\n", acct.Nickname)
	}
	fmt.Fprintf(os.Stdout, "Balance:      %d\n", acct.Balance)
	fmt.Fprintf(os.Stdout, "First charge: %v\n", acct.FirstCharge)
	if acct.InviterID != "" {
		fmt.Fprintf(os.Stdout, "Invited by:   %s\n", acct.InviterID)
	}
	if summary.Sum != acct.Balance || summary.LastBalance != acct.Balance {
		fmt.Fprintf(os.Stdout, "⚠️  Ledger mismatch: %d entries sum to %d, last snapshot %d\n",
			summary.Entries, summary.Sum, summary.LastBalance)
	}
	fmt.Fprintln(os.Stdout)

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tAMOUNT\tBALANCE\tORDER\tTIME\tDESCRIPTION")
	for _, tx := range txs {
		fmt.Fprintf(tw, "%d\t%s\t%+d\t%d\t%s\t%s\t%s\n",
			tx.ID, tx.Type, tx.Amount, tx.BalanceAfter, tx.OrderRef,
			tx.CreatedAt.Format("2006-01-02 15:04:05"), tx.Description)
	}
	return tw.Flush()
}

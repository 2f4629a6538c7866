package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		// Open migrates too; statements are idempotent.
		if err := e.db.Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "✅ Schema up to date at %s\n", e.db.Path())
		return nil
	},
}

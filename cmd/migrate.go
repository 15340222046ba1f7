package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wingleeio/chat-zeron/internal/config"
	"github.com/wingleeio/chat-zeron/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := database.Migrate(cfg.Postgres.URL); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		fmt.Println("migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

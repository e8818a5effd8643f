package cmd

import (
	"context"
	"os"

	"mod-update-notifier/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// seedCmd fills the mod store without notifying anyone
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Stores the current catalog without sending notifications",
	Long: `Fetches the catalog and records every mod as already announced. Run it
once before the first start so existing mods are not reported as new.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := bootstrap(configDir, false)
		defer a.Close()

		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.CycleTimeout)
		defer cancel()

		res, err := a.engine.Seed(ctx)
		if err != nil {
			logger.Log.Errorw("Seeding failed", zap.Error(err))
			return
		}
		printResult(os.Stdout, res)
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"mod-update-notifier/db"
	"mod-update-notifier/logger"
	"mod-update-notifier/ui"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// statusCmd shows what the mod store knows
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows the most recently released mods in the store",
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")

		s := openStores(configDir, false)
		defer s.Close()

		if err := printStatus(context.Background(), os.Stdout, s.mods, limit); err != nil {
			logger.Log.Fatalw("Failed to read mod store", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().IntP("limit", "n", 10, "Number of mods to list")
}

func printStatus(ctx context.Context, w io.Writer, mods *db.ModStore, limit int) error {
	total, err := mods.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %d mods tracked\n", ui.Header("Mod store"), total)
	if total == 0 {
		fmt.Fprintln(w, "  empty, run `seed` first")
		return nil
	}

	recent, err := mods.Recent(ctx, limit)
	if err != nil {
		return err
	}
	for _, m := range recent {
		if m.Version == "" {
			fmt.Fprintf(w, "  %s %s\n", ui.Faint(m.Name), ui.Faint("(no release)"))
			continue
		}
		fmt.Fprintf(w, "  %s %s by %s %s\n",
			ui.Colorize(m.Name, ui.ColorUpdated), m.Version, m.Owner,
			ui.Faint(m.ReleasedAt.UTC().Format("2006-01-02 15:04")))
	}
	return nil
}

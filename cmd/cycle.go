package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mod-update-notifier/logger"
	"mod-update-notifier/ui"
	"mod-update-notifier/updater"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cycleCmd runs a single update cycle
var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Runs one update cycle and prints its report",
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")
		runSingleCycle(asJSON)
	},
}

func init() {
	rootCmd.AddCommand(cycleCmd)
	cycleCmd.Flags().Bool("json", false, "Print the report as JSON")
}

func runSingleCycle(asJSON bool) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := bootstrap(configDir, false)
	defer a.Close()

	if err := a.scheduler.RunOnce(ctx); err != nil {
		logger.Log.Errorw("Update cycle failed", zap.Error(err))
	}
	res, ok := a.engine.LastResult()
	if !ok {
		return
	}
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(res)
		return
	}
	printResult(os.Stdout, res)
}

func printResult(w io.Writer, res updater.Result) {
	fmt.Fprintf(w, "%s %s\n", ui.Header("Cycle"), ui.Faint(res.CycleID))
	fmt.Fprintf(w, "  catalog: %d mods in %s\n", res.CatalogSize, res.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  %s  %s  %s  upserts: %d\n",
		ui.Count("created", res.Created, ui.ColorNew),
		ui.Count("updated", res.Bumped, ui.ColorUpdated),
		ui.Count("metadata", res.Metadata, ui.ColorMetadata),
		res.Upserts)
	fmt.Fprintf(w, "  %s  %s  %s\n",
		ui.Count("sent", res.MessagesSent, ui.ColorNew),
		ui.Count("failed", res.Failed(), ui.ColorFailed),
		ui.Count("skipped", res.Skipped, ui.ColorMetadata))
	for _, f := range res.Failures {
		fmt.Fprintf(w, "    %s server %d channel %s mod %s: %s\n",
			ui.Colorize(f.Kind, ui.ColorFailed), f.ServerID, f.ChannelID, f.Slug, f.Reason)
	}
	for _, a := range res.Anomalies {
		fmt.Fprintf(w, "  %s %s\n", ui.Colorize("anomaly", ui.ColorFailed), a)
	}
	switch {
	case res.Error != "":
		fmt.Fprintf(w, "  %s %s\n", ui.Colorize("error", ui.ColorFailed), res.Error)
	case res.Seeded:
		fmt.Fprintln(w, "  seeded, no notifications sent")
	case !res.Persisted && res.Upserts > 0:
		fmt.Fprintln(w, "  not persisted")
	}
}

package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/reel-cli/internal/pipeline"
)

var sweepStaleAfter time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Evict expired terminal runs and fail orphaned ones",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("sweep"); err != nil {
			return err
		}

		reg, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer reg.Close() //nolint:errcheck

		j := &pipeline.Janitor{
			Orchestrator: pipeline.NewOrchestrator(reg, pipeline.Options{}),
			Registry:     reg,
			TTL:          time.Duration(cfg.Store.TTLHours) * time.Hour,
			StaleAfter:   sweepStaleAfter,
		}
		res, err := j.Sweep(ctx)
		if err != nil {
			return eris.Wrap(err, "sweep")
		}

		zap.L().Info("sweep complete",
			zap.Int("orphaned", res.Orphaned),
			zap.Int("evicted", res.Evicted),
		)
		return json.NewEncoder(os.Stdout).Encode(res)
	},
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepStaleAfter, "stale-after", time.Hour, "fail pending or running runs not updated for this long (0 disables)")
	rootCmd.AddCommand(sweepCmd)
}

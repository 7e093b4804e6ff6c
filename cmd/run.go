package main

import (
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/reel-cli/internal/model"
	"github.com/sells-group/reel-cli/internal/pipeline"
)

var (
	runStyle    string
	runDuration int
	runVariant  string
)

var runCmd = &cobra.Command{
	Use:   "run <maps-url>",
	Short: "Run the pipeline for one restaurant and print the final status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		p, ok := env.Pipelines[runVariant]
		if !ok {
			return eris.Errorf("unknown variant %q (want one of %v)", runVariant, pipeline.Variants)
		}

		req := model.SourceRequest{
			SourceURL:       args[0],
			Style:           model.Style(runStyle),
			DurationSeconds: runDuration,
		}
		run, err := env.Orchestrator.RunSync(ctx, req, p)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("run finished",
			zap.String("run_id", run.ID),
			zap.String("variant", run.Variant),
			zap.String("status", string(run.Status)),
		)

		return printRun(os.Stdout, run)
	},
}

// printRun writes the projected status of run as indented JSON and returns
// an error when the run failed so the process exits non-zero.
func printRun(w io.Writer, run *model.RunState) error {
	view := pipeline.Project(run)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(view); err != nil {
		return eris.Wrap(err, "encode status")
	}
	if run.Status == model.RunStatusFailed && view.Error != nil {
		return eris.Errorf("run %s failed at %s: %s (%s)",
			run.ID, view.Error.StepName, view.Error.Message, view.Error.Category)
	}
	return nil
}

func init() {
	runCmd.Flags().StringVar(&runStyle, "style", "casual", "video style (casual, professional, trendy, elegant, fun, family, luxury, street_food)")
	runCmd.Flags().IntVar(&runDuration, "duration", 30, "target video duration in seconds")
	runCmd.Flags().StringVar(&runVariant, "variant", pipeline.VariantFull, "pipeline variant (full, script, analysis)")
	rootCmd.AddCommand(runCmd)
}

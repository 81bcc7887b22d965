package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/abhisek/examrun/internal/display"
	"github.com/abhisek/examrun/internal/module"
	"github.com/abhisek/examrun/internal/questionset"
	"github.com/abhisek/examrun/internal/session"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate <descriptor>",
	Short: "Run a module headless with an autopilot learner",
	Long: `Run a module attempt without a terminal UI. An autopilot answers the active
question set at a fixed interval; display updates go to the log. Useful for
checking descriptors, data sets and timer settings end to end.`,
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().Duration("interval", 200*time.Millisecond, "Time between autopilot answers")
	simulateCmd.Flags().Float64("accuracy", 0.7, "Probability of choosing the keyed answer")
	simulateCmd.Flags().Bool("idle", false, "Never answer, so timers decide the outcome")
	simulateCmd.Flags().Bool("save", false, "Store the result in the database")
	simulateCmd.Flags().Bool("json", false, "Print the full result as JSON")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	interval, _ := cmd.Flags().GetDuration("interval")
	accuracy, _ := cmd.Flags().GetFloat64("accuracy")
	idle, _ := cmd.Flags().GetBool("idle")
	save, _ := cmd.Flags().GetBool("save")
	asJSON, _ := cmd.Flags().GetBool("json")

	desc, err := module.LoadFile(args[0])
	if err != nil {
		return err
	}

	e, err := newEnv(cmd, envOpts{noStore: !save})
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	sessionID := uuid.NewString()
	cfg := e.sessionConfig(sessionID)
	cfg.Sink = e.sink(ctx, sessionID, display.NewLogSink(e.log))
	ctrl := session.New(desc, cfg)
	if err := ctrl.Start(ctx); err != nil {
		return err
	}

	pilot := questionset.Autopilot{Interval: interval, Accuracy: accuracy, Idle: idle, Log: e.log}
	go pilot.Drive(ctx, ctrl)

	// An interrupt cancels ctx, which ends the attempt as aborted.
	res, err := ctrl.Wait(context.Background())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		printResult(out, res)
	}

	if save {
		seq, err := e.store.ResultRepo().Save(context.Background(), res)
		if err != nil {
			return fmt.Errorf("save attempt: %w", err)
		}
		e.log.Info().Int64("sequence", seq).Str("session_id", res.SessionID).Msg("attempt saved")
	}
	return nil
}

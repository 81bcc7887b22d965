package cmd

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/abhisek/examrun/internal/app"
	"github.com/abhisek/examrun/internal/display"
	"github.com/abhisek/examrun/internal/module"
	"github.com/abhisek/examrun/internal/screens/exam"
	"github.com/abhisek/examrun/internal/session"
)

var runCmd = &cobra.Command{
	Use:   "run <descriptor>",
	Short: "Take a module attempt in the terminal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAttempt(cmd, args[0])
	},
}

// runAttempt loads the descriptor, builds the controller and launches the TUI.
func runAttempt(cmd *cobra.Command, path string) error {
	ctx := cmd.Context()
	desc, err := module.LoadFile(path)
	if err != nil {
		return err
	}

	e, err := newEnv(cmd, envOpts{tui: true})
	if err != nil {
		return err
	}
	defer e.Close()

	sessionID := uuid.NewString()
	mem := display.NewMemory()
	cfg := e.sessionConfig(sessionID)
	cfg.Sink = e.sink(ctx, sessionID, mem, display.NewLogSink(e.log))
	ctrl := session.New(desc, cfg)

	repo := e.store.ResultRepo()
	var (
		once    sync.Once
		saveErr error
	)
	save := func(res session.ModuleResult) error {
		once.Do(func() {
			_, saveErr = repo.Save(context.Background(), res)
		})
		return saveErr
	}

	scr := exam.New(exam.Options{Controller: ctrl, Display: mem, Save: save, Log: e.log})
	runErr := app.Run(scr, desc.ModuleName)

	// Ctrl+C leaves the attempt running: end it and keep what was answered.
	if ctrl.Status().State == session.StateRunning {
		ctrl.Quit()
	}
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	res, err := ctrl.Wait(waitCtx)
	if err != nil {
		// Never started, e.g. the descriptor was rejected.
		return runErr
	}
	if err := save(res); err != nil {
		return fmt.Errorf("save attempt: %w", err)
	}
	printResult(cmd.OutOrStdout(), res)
	return runErr
}

func printResult(w io.Writer, res session.ModuleResult) {
	state := "completed"
	switch {
	case res.TimedOut:
		state = "timed out"
	case res.Aborted:
		state = "ended early"
	}
	fmt.Fprintf(w, "%s (%s): %s\n", res.ModuleName, res.ModuleID, state)
	fmt.Fprintf(w, "  session   %s\n", res.SessionID)
	fmt.Fprintf(w, "  answered  %d/%d\n", res.AnsweredQuestions, res.TotalQuestions)
	fmt.Fprintf(w, "  correct   %d\n", res.CorrectCount())
	fmt.Fprintf(w, "  time      %d:%02d\n", res.TimeSpentSeconds/60, res.TimeSpentSeconds%60)
	for _, ref := range res.SkippedComponents {
		fmt.Fprintf(w, "  skipped   %s set %d: %s\n", ref.Type, ref.SetID, ref.Reason)
	}
}

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/examrun/internal/app"
	"github.com/abhisek/examrun/internal/module"
	retakescreen "github.com/abhisek/examrun/internal/screens/retake"
	"github.com/abhisek/examrun/internal/session"
	"github.com/abhisek/examrun/internal/store"
)

var retakeCmd = &cobra.Command{
	Use:   "retake <descriptor>",
	Short: "Review a stored attempt and re-answer its questions",
	Long: `Review the latest stored attempt of a module (or the one given by --session)
one question at a time. By default only incorrect answers are offered again.`,
	Args: cobra.ExactArgs(1),
	RunE: runRetake,
}

func init() {
	retakeCmd.Flags().Bool("all", false, "Offer every answered question, not only incorrect ones")
	retakeCmd.Flags().String("session", "", "Session ID of the attempt to review (default: latest)")
}

func runRetake(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	all, _ := cmd.Flags().GetBool("all")
	sessionID, _ := cmd.Flags().GetString("session")

	desc, err := module.LoadFile(args[0])
	if err != nil {
		return err
	}

	e, err := newEnv(cmd, envOpts{tui: true})
	if err != nil {
		return err
	}
	defer e.Close()

	repo := e.store.ResultRepo()
	var first *session.ModuleResult
	if sessionID != "" {
		first, err = repo.Get(ctx, sessionID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no stored attempt with session %s", sessionID)
		}
	} else {
		first, err = repo.Latest(ctx, desc.ModuleID)
		if err == nil && first == nil {
			return fmt.Errorf("no stored attempt of module %q; take it with `examrun run` first", desc.ModuleID)
		}
	}
	if err != nil {
		return fmt.Errorf("load attempt: %w", err)
	}

	coord, err := session.NewCoordinator(desc, *first, session.CoordinatorConfig{
		Registry:      e.registry,
		Logger:        e.log,
		OnlyIncorrect: !all,
		Prefetcher:    e.loader,
	})
	if errors.Is(err, session.ErrNothingToRetake) {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to review: every answer was correct.")
		return nil
	}
	if err != nil {
		return err
	}

	save := func(res session.RetakeResult) error {
		_, err := repo.SaveRetake(ctx, res)
		return err
	}
	scr := retakescreen.New(retakescreen.Options{Coordinator: coord, Save: save, Log: e.log})
	return app.Run(scr, desc.ModuleName)
}

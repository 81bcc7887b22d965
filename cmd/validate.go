package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/examrun/internal/module"
)

var validateCmd = &cobra.Command{
	Use:   "validate <descriptor>...",
	Short: "Check module descriptors and their question sets",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runValidate,
}

func init() {
	validateCmd.Flags().Bool("check-sets", true, "Also load every referenced question set")
}

func runValidate(cmd *cobra.Command, args []string) error {
	checkData, _ := cmd.Flags().GetBool("check-sets")

	e, err := newEnv(cmd, envOpts{noStore: true})
	if err != nil {
		return err
	}
	defer e.Close()

	out := cmd.OutOrStdout()
	failed := 0
	for _, path := range args {
		problems := validateDescriptor(cmd, e, path, checkData)
		if len(problems) == 0 {
			fmt.Fprintf(out, "✓ %s\n", path)
			continue
		}
		failed++
		fmt.Fprintf(out, "✗ %s\n", path)
		for _, p := range problems {
			fmt.Fprintf(out, "    %s\n", p)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d descriptors invalid", failed, len(args))
	}
	return nil
}

func validateDescriptor(cmd *cobra.Command, e *env, path string, checkData bool) []string {
	desc, err := module.LoadFile(path)
	if err != nil {
		return []string{err.Error()}
	}

	var problems []string
	if err := module.Validate(desc); err != nil {
		problems = append(problems, err.Error())
	}
	var mismatch *module.CountMismatchError
	if err := module.CheckQuestionCount(desc); errors.As(err, &mismatch) {
		msg := err.Error()
		if e.cfg.Session.AllowCountMismatch {
			msg += " (allowed by config)"
		}
		problems = append(problems, msg)
	}

	for i, c := range desc.Components {
		if _, ok := e.registry.Lookup(c.Type); !ok {
			problems = append(problems, fmt.Sprintf("component %d: unknown type %q", i, c.Type))
			continue
		}
		if !checkData || c.QuestionsPerSet <= 0 {
			continue
		}
		data, err := e.loader.Load(cmd.Context(), c.Type, c.SetID)
		if err != nil {
			problems = append(problems, fmt.Sprintf("component %d: %v", i, err))
			continue
		}
		if len(data.Items) < c.QuestionsPerSet {
			problems = append(problems, fmt.Sprintf("component %d: %s set %d has %d items, needs %d",
				i, c.Type, c.SetID, len(data.Items), c.QuestionsPerSet))
		}
	}
	return problems
}

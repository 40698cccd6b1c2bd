package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/idris/kestrel/pkg/agent"
	"github.com/spf13/cobra"
)

var (
	runMaxSteps int
	runYes      bool
)

var runCmd = &cobra.Command{
	Use:   "run [goal]",
	Short: "Run a single agent goal and print the result",
	Long: `Run executes one agent goal to completion, printing each step as it
happens and the final result. Destructive tool calls prompt for
confirmation unless --yes is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVar(&runMaxSteps, "max-steps", 0, "maximum reasoning steps (server clamps apply)")
	runCmd.Flags().BoolVarP(&runYes, "yes", "y", false, "auto-confirm destructive tool calls")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	goal := strings.Join(args, " ")

	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// One synchronous sweep so routing sees real availability.
	rt.router.CheckAll(ctx)

	var overrides *agent.ConfigOverrides
	if runMaxSteps > 0 {
		overrides = &agent.ConfigOverrides{MaxSteps: &runMaxSteps}
	}

	cbs := &agent.Callbacks{
		OnStep: func(step agent.Step) {
			if step.Tool != "" {
				fmt.Fprintf(os.Stderr, "[%d] %s -> %s\n", step.Index, step.Tool, firstLine(step.Observation))
			} else if step.Thought != "" {
				fmt.Fprintf(os.Stderr, "[%d] %s\n", step.Index, firstLine(step.Thought))
			}
		},
		OnConfirmAction: func(tool string, params map[string]any) bool {
			if runYes {
				return true
			}
			fmt.Fprintf(os.Stderr, "Tool %q wants to run with %v. Proceed? [y/N] ", tool, params)
			reader := bufio.NewReader(os.Stdin)
			line, _ := reader.ReadString('\n')
			answer := strings.ToLower(strings.TrimSpace(line))
			return answer == "y" || answer == "yes"
		},
	}

	run, err := rt.orchestrator.Run(ctx, goal, overrides, cbs)
	if err != nil {
		return err
	}

	if saveErr := rt.store.Save(ctx, run); saveErr != nil {
		log := rt.logger()
		log.Warn().Err(saveErr).Msg("Failed to persist run")
	}

	switch run.Status {
	case agent.StatusFailed:
		return fmt.Errorf("run failed: %s", run.Error)
	case agent.StatusMaxSteps:
		fmt.Fprintln(os.Stderr, "(step limit reached)")
	}

	fmt.Println(run.Result)
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boshu2/driftwatch/internal/contract"
	"github.com/boshu2/driftwatch/internal/taskgraph"
)

var (
	ensureApply    bool
	ensureOnlyOpen bool
)

var ensureContractsCmd = &cobra.Command{
	Use:   "ensure-contracts",
	Short: "Add default contracts to tasks missing one",
	Long: `Find tasks without a contract block and prepend a default contract to
their descriptions. Without --apply this only lists what would change.

The default contract takes the task title as its objective and leaves
touch empty, so scope checking stays off until someone narrows it.

Examples:
  driftwatch ensure-contracts
  driftwatch ensure-contracts --apply --only-open`,
	Args: cobra.NoArgs,
	RunE: runEnsureContracts,
}

func init() {
	ensureContractsCmd.Flags().BoolVar(&ensureApply, "apply", false, "Write the new contract blocks (default: dry run)")
	ensureContractsCmd.Flags().BoolVar(&ensureOnlyOpen, "only-open", false, "Restrict to open tasks (default: open and in-progress)")
	rootCmd.AddCommand(ensureContractsCmd)
}

func runEnsureContracts(cmd *cobra.Command, args []string) error {
	env, err := newAppEnv()
	if err != nil {
		return err
	}

	statuses := []string{taskgraph.StatusOpen, taskgraph.StatusInProgress}
	if ensureOnlyOpen {
		statuses = []string{taskgraph.StatusOpen}
	}

	changed := 0
	for _, status := range statuses {
		tasks, err := env.graph.ListTasks(status)
		if err != nil {
			return err
		}
		for _, task := range tasks {
			if _, count := contract.Extract(task.Description); count > 0 {
				continue
			}
			changed++
			if !ensureApply {
				fmt.Printf("would add contract to %s (%s)\n", task.ID, task.Title)
				continue
			}
			ctr := contract.Default(task.Title, nil)
			updated := contract.ReplaceBlock(task.Description, ctr)
			if err := env.graph.SetDescription(task.ID, updated); err != nil {
				return fmt.Errorf("update task %s: %w", task.ID, err)
			}
			fmt.Printf("added contract to %s (%s)\n", task.ID, task.Title)
		}
	}

	if changed == 0 {
		fmt.Println("all tasks have contracts")
	} else if !ensureApply {
		fmt.Printf("%d tasks missing contracts; re-run with --apply\n", changed)
	}
	return nil
}

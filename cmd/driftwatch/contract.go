package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boshu2/driftwatch/internal/contract"
)

var contractCmd = &cobra.Command{
	Use:   "contract",
	Short: "View and edit task contracts",
}

var contractShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Print a task's contract block",
	Long: `Print the canonical rendering of the contract embedded in a task
description. Tasks without a contract print the defaults that checks
would apply.`,
	Args: cobra.ExactArgs(1),
	RunE: runContractShow,
}

var contractSetTouchCmd = &cobra.Command{
	Use:   "set-touch <task-id> <glob>...",
	Short: "Replace a contract's touch globs",
	Long: `Rewrite the touch list of a task's contract in place. The rest of the
contract and all free text around the block are preserved. A task
without a contract gets a default one with the given globs.

Examples:
  driftwatch contract set-touch wg-042 'src/**' 'internal/**/*.go'`,
	Args: cobra.MinimumNArgs(2),
	RunE: runContractSetTouch,
}

func init() {
	contractCmd.AddCommand(contractShowCmd)
	contractCmd.AddCommand(contractSetTouchCmd)
	rootCmd.AddCommand(contractCmd)
}

func runContractShow(cmd *cobra.Command, args []string) error {
	env, err := newAppEnv()
	if err != nil {
		return err
	}
	task, err := env.graph.GetTask(args[0])
	if err != nil {
		return err
	}

	ctr, found, err := contract.ParseDescription(task.Description)
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprintf(os.Stderr, "task %s has no contract; showing defaults\n", task.ID)
		ctr = contract.Default(task.Title, nil)
	}
	fmt.Print(contract.Render(ctr))
	return nil
}

func runContractSetTouch(cmd *cobra.Command, args []string) error {
	env, err := newAppEnv()
	if err != nil {
		return err
	}
	taskID, globs := args[0], args[1:]
	task, err := env.graph.GetTask(taskID)
	if err != nil {
		return err
	}

	ctr, found, err := contract.ParseDescription(task.Description)
	if err != nil {
		return err
	}
	if !found {
		ctr = contract.Default(task.Title, nil)
	}

	updated := contract.ReplaceBlock(task.Description, ctr.WithTouch(globs))
	if err := env.graph.SetDescription(taskID, updated); err != nil {
		return err
	}
	fmt.Printf("updated touch for %s (%d globs)\n", taskID, len(globs))
	return nil
}

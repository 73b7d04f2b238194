package main

import (
	"strings"
	"testing"

	"github.com/boshu2/driftwatch/internal/contract"
)

func TestContractSetTouch(t *testing.T) {
	ctr := contract.Default("tighten parser", []string{"old/**"})
	writeWorkgraph(t, map[string]any{
		"id": "T1", "title": "Parser", "status": "in-progress",
		"description": "Intro text.\n" + contract.RenderBlock(ctr) + "\nOutro.",
	})

	if err := runContractSetTouch(contractSetTouchCmd, []string{"T1", "src/**", "pkg/**"}); err != nil {
		t.Fatalf("set-touch error = %v", err)
	}

	env, err := newAppEnv()
	if err != nil {
		t.Fatal(err)
	}
	task, err := env.graph.GetTask("T1")
	if err != nil {
		t.Fatal(err)
	}

	updated, found, err := contract.ParseDescription(task.Description)
	if err != nil || !found {
		t.Fatalf("ParseDescription: found=%v err=%v", found, err)
	}
	if len(updated.Touch) != 2 || updated.Touch[0] != "src/**" {
		t.Errorf("touch = %v, want [src/** pkg/**]", updated.Touch)
	}
	if !strings.Contains(task.Description, "Intro text.") || !strings.Contains(task.Description, "Outro.") {
		t.Errorf("surrounding text lost:\n%s", task.Description)
	}
}

func TestContractSetTouchWithoutContract(t *testing.T) {
	writeWorkgraph(t, map[string]any{
		"id": "T1", "title": "Parser", "status": "in-progress",
		"description": "No block here.",
	})

	if err := runContractSetTouch(contractSetTouchCmd, []string{"T1", "src/**"}); err != nil {
		t.Fatalf("set-touch error = %v", err)
	}

	env, _ := newAppEnv()
	task, err := env.graph.GetTask("T1")
	if err != nil {
		t.Fatal(err)
	}
	ctr, found, err := contract.ParseDescription(task.Description)
	if err != nil || !found {
		t.Fatalf("ParseDescription: found=%v err=%v", found, err)
	}
	if ctr.Objective != "Parser" {
		t.Errorf("objective = %q, want task title", ctr.Objective)
	}
}

func TestEnsureContractsDryRunAndApply(t *testing.T) {
	writeWorkgraph(t,
		map[string]any{"id": "bare", "title": "Bare", "status": "open", "description": "plain"},
		map[string]any{"id": "covered", "title": "Covered", "status": "in-progress",
			"description": contract.RenderBlock(contract.Default("covered", nil))},
		map[string]any{"id": "finished", "title": "Done", "status": "done", "description": "plain"},
	)

	// Dry run leaves the graph untouched.
	ensureApply = false
	t.Cleanup(func() { ensureApply = false })
	if err := runEnsureContracts(ensureContractsCmd, nil); err != nil {
		t.Fatalf("dry run error = %v", err)
	}
	env, _ := newAppEnv()
	task, _ := env.graph.GetTask("bare")
	if _, count := contract.Extract(task.Description); count != 0 {
		t.Fatal("dry run modified the task")
	}

	ensureApply = true
	if err := runEnsureContracts(ensureContractsCmd, nil); err != nil {
		t.Fatalf("apply error = %v", err)
	}

	task, _ = env.graph.GetTask("bare")
	ctr, found, err := contract.ParseDescription(task.Description)
	if err != nil || !found {
		t.Fatalf("bare task still has no contract: found=%v err=%v", found, err)
	}
	if ctr.Objective != "Bare" {
		t.Errorf("objective = %q, want task title", ctr.Objective)
	}
	if !strings.Contains(task.Description, "plain") {
		t.Error("original description text lost")
	}

	// Done tasks are left alone.
	task, _ = env.graph.GetTask("finished")
	if _, count := contract.Extract(task.Description); count != 0 {
		t.Error("done task was given a contract")
	}
}

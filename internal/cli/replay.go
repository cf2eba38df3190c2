package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/vireosec/hd4-controller/internal/classifier"
	"github.com/vireosec/hd4-controller/internal/config"
	"github.com/vireosec/hd4-controller/internal/replay"
)

// #region replay-cmd

var replayCmd = &cobra.Command{
	Use:   "replay <fixture.json>",
	Short: "Replay a recorded fixture through a fresh in-memory pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		fx, err := replay.LoadFixture(args[0])
		if err != nil {
			return err
		}

		rep, err := replay.Run(cmd.Context(), cfg, fx, slog.Default())
		if err != nil {
			return err
		}

		fmt.Printf("fixture:     %s\n", rep.Name)
		fmt.Printf("cycles:      %d\n", rep.Cycles)
		fmt.Printf("escalations: %s\n", color.RedString("%d", rep.Escalations))
		fmt.Printf("degraded:    %d\n", rep.Degraded)
		for level, n := range rep.Levels {
			fmt.Printf("level %-9s %d\n", level+":", n)
		}
		for _, env := range rep.Envelopes {
			fmt.Printf("  fire %s %s (%s) key=%s\n",
				env.Fire.TriggerCode, env.Fire.Action, env.Fire.Severity, env.TriggerKey)
		}
		if len(rep.Violations) > 0 {
			fmt.Println(color.RedString("invariant violations:"))
			for _, v := range rep.Violations {
				fmt.Printf("  %s\n", v)
			}
			return fmt.Errorf("%d invariant violations", len(rep.Violations))
		}
		return nil
	},
}

// #endregion replay-cmd

// #region export-fixture

var exportFixtureCmd = &cobra.Command{
	Use:   "export-fixture <path>",
	Short: "Write a template replay fixture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t0 := time.Now().UTC().Truncate(time.Second)
		fx := replay.Fixture{
			Name: "template",
			Triggers: []replay.TriggerDef{
				{Key: "edr.proc.spawn", Hash: "hash-proc", ToolID: "edr"},
			},
			Steps: []replay.Step{
				{
					TriggerKey: "edr.proc.spawn",
					At:         t0,
					Verdict: &classifier.Verdict{
						TacticLabel: "execution",
						Confidence:  0.9,
						ThreatScore: 0.8,
						IsThreat:    true,
					},
				},
				{TriggerKey: "edr.proc.spawn", At: t0.Add(30 * time.Second)}, // outage step
			},
		}
		if err := replay.SaveFixture(args[0], fx); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", args[0])
		return nil
	},
}

// #endregion export-fixture

package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/vireosec/hd4-controller/internal/config"
	"github.com/vireosec/hd4-controller/internal/correlate"
	"github.com/vireosec/hd4-controller/internal/entity"
	"github.com/vireosec/hd4-controller/internal/store"
)

// #region inspect-cmd

var (
	inspectLimit     int
	inspectDecisions bool
	inspectEdgesKey  string
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Show persisted entities and recent decisions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		st, err := store.NewStore(cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		entities, err := st.ListEntities(inspectLimit)
		if err != nil {
			return err
		}
		if len(entities) == 0 {
			fmt.Println("no entities persisted")
		}
		for _, e := range entities {
			fmt.Printf("%s  %-28s phase=%-8s posterior=%.4f intensity=%.4f archetype=%d\n",
				levelColor(e.Belief.Level)(fmt.Sprintf("%-8s", e.Belief.Level)),
				e.TriggerKey, e.Phase,
				e.Belief.Posterior.Float(), e.Intensity.Float(),
				e.Routing.ArchetypeID)
		}

		if inspectDecisions {
			decisions, err := st.ListDecisions(inspectLimit)
			if err != nil {
				return err
			}
			if len(decisions) > 0 {
				fmt.Println()
				fmt.Println("recent decisions:")
			}
			for _, d := range decisions {
				marker := " "
				if d.Degraded {
					marker = "~"
				}
				fmt.Printf("%s %-9s %-28s %s\n", marker, d.Decision, d.TriggerKey, d.Reason)
			}
		}

		if inspectEdgesKey != "" {
			graph, err := correlate.NewGraph(st.DB(), 0)
			if err != nil {
				return err
			}
			edges, err := graph.Neighbors(cmd.Context(), inspectEdgesKey, time.Now(), inspectLimit)
			if err != nil {
				return err
			}
			fmt.Println()
			fmt.Printf("co-activations of %s:\n", inspectEdgesKey)
			for _, e := range edges {
				fmt.Printf("  %-28s weight=%.3f\n", e.Other(inspectEdgesKey), e.Weight)
			}
		}
		return nil
	},
}

// levelColor picks the sprint function for a threat level.
func levelColor(l entity.ThreatLevel) func(a ...interface{}) string {
	switch l {
	case entity.ThreatCritical:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case entity.ThreatHigh:
		return color.New(color.FgRed).SprintFunc()
	case entity.ThreatMedium:
		return color.New(color.FgYellow).SprintFunc()
	default:
		return color.New(color.FgGreen).SprintFunc()
	}
}

func init() {
	inspectCmd.Flags().IntVar(&inspectLimit, "limit", 50, "max rows to show")
	inspectCmd.Flags().BoolVar(&inspectDecisions, "decisions", false, "also show the decision log")
	inspectCmd.Flags().StringVar(&inspectEdgesKey, "edges", "", "show co-activation edges for a trigger key")
}

// #endregion inspect-cmd

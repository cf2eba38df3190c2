package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vireosec/hd4-controller/internal/config"
	"github.com/vireosec/hd4-controller/internal/correlate"
	"github.com/vireosec/hd4-controller/internal/store"
	"github.com/vireosec/hd4-controller/internal/trigger"
)

// #region init-db

var initTriggersPath string

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the database schema and optionally load trigger definitions",
	Long: "Creates all controller tables in HD4_DB_PATH. With --triggers, loads\n" +
		"a JSON array of definitions into the trigger registry:\n\n" +
		`  [{"key":"edr.proc.spawn","hash":"...","tool_id":"edr","description":"..."}]`,
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

		registry, err := trigger.NewRegistry(st.DB())
		if err != nil {
			return err
		}
		if _, err := correlate.NewGraph(st.DB(), 0); err != nil {
			return err
		}

		if initTriggersPath != "" {
			data, err := os.ReadFile(initTriggersPath)
			if err != nil {
				return fmt.Errorf("read triggers: %w", err)
			}
			var defs []struct {
				Key         string `json:"key"`
				Hash        string `json:"hash"`
				ToolID      string `json:"tool_id"`
				Description string `json:"description"`
			}
			if err := json.Unmarshal(data, &defs); err != nil {
				return fmt.Errorf("parse triggers: %w", err)
			}
			for _, d := range defs {
				err := registry.Register(trigger.Definition{
					Key:         d.Key,
					Hash:        d.Hash,
					ToolID:      d.ToolID,
					Description: d.Description,
				})
				if err != nil {
					return err
				}
			}
			fmt.Printf("registered %d triggers\n", len(defs))
		}

		fmt.Printf("database ready at %s (%d triggers)\n", cfg.DBPath, registry.Len())
		return nil
	},
}

func init() {
	initDBCmd.Flags().StringVar(&initTriggersPath, "triggers", "", "JSON file of trigger definitions to register")
}

// #endregion init-db

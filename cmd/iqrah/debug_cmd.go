package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iqrahapp/iqrah-core/internal/model"
)

// debugCmd exposes read-only introspection over a user's memory state,
// mirroring the teacher's stats/query debug surface rather than a
// Datalog query language — there is no logic-programming kernel here.
var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "read-only introspection (energy snapshots) for debugging",
}

var debugEnergyCmd = &cobra.Command{
	Use:   "energy",
	Short: "print a user's memory state for one content key",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		node, err := a.content.GetNode(model.NodeID(flagNodeID))
		if err != nil {
			return err
		}
		st, found, err := a.memory.GetState(flagUserID, model.NodeID(flagNodeID))
		if err != nil {
			return err
		}
		if !found {
			fmt.Printf("node %d (%s): never introduced\n", node.ID, node.Ukey)
			return nil
		}
		return printJSON(struct {
			Node  model.Node        `json:"node"`
			State model.MemoryState `json:"state"`
		}{node, st})
	},
}

func init() {
	debugEnergyCmd.Flags().StringVar(&flagUserID, "user", "", "user id")
	debugEnergyCmd.Flags().Int64Var(&flagNodeID, "node", 0, "content key")
	debugEnergyCmd.MarkFlagRequired("user")
	debugEnergyCmd.MarkFlagRequired("node")

	debugCmd.AddCommand(debugEnergyCmd)
}

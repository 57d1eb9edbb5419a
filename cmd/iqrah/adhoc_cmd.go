package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iqrahapp/iqrah-core/internal/model"
)

// adhocCmd runs ad-hoc review outside any session plan. Since each CLI
// invocation is a separate process, "review" takes the whole queue and
// its grades in one call rather than exposing start/submit as separate
// subcommands the way session does — there is no session id to carry
// state across invocations.
var adhocCmd = &cobra.Command{
	Use:   "adhoc",
	Short: "grade content keys outside of any session plan",
}

var (
	flagAdhocNodes  []int64
	flagAdhocGrades []int
)

var adhocReviewCmd = &cobra.Command{
	Use:   "review",
	Short: "grade a queue of content keys in order; no session or bandit rows are touched",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(flagAdhocNodes) != len(flagAdhocGrades) {
			return fmt.Errorf("adhoc: --nodes and --grades must have the same length (%d vs %d)", len(flagAdhocNodes), len(flagAdhocGrades))
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		nodeIDs := make([]model.NodeID, len(flagAdhocNodes))
		for i, n := range flagAdhocNodes {
			nodeIDs[i] = model.NodeID(n)
		}

		h := a.engine.StartAdhoc(flagUserID, nodeIDs)
		ctx := context.Background()
		for _, grade := range flagAdhocGrades {
			if err := a.engine.SubmitAdhoc(ctx, h, grade, nowMs()); err != nil {
				return err
			}
		}
		fmt.Printf("reviewed %d items\n", len(flagAdhocNodes))
		return nil
	},
}

func init() {
	adhocReviewCmd.Flags().StringVar(&flagUserID, "user", "", "user id")
	adhocReviewCmd.Flags().Int64SliceVar(&flagAdhocNodes, "nodes", nil, "content keys to review, in order")
	adhocReviewCmd.Flags().IntSliceVar(&flagAdhocGrades, "grades", nil, "grade per node, same order as --nodes")
	adhocReviewCmd.MarkFlagRequired("user")
	adhocReviewCmd.MarkFlagRequired("nodes")
	adhocReviewCmd.MarkFlagRequired("grades")

	adhocCmd.AddCommand(adhocReviewCmd)
}

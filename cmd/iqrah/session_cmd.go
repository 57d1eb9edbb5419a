package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/iqrahapp/iqrah-core/internal/model"
	"github.com/iqrahapp/iqrah-core/internal/validate"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "persistent review session lifecycle",
}

var (
	flagUserID      string
	flagGoalID      string
	flagGoalType    string
	flagGoalGroup   string
	flagGoalMembers []int64
	flagSessionSize int
	flagSessionID   string
	flagNodeID      int64
	flagGrade       int
	flagDurationMs  int64
)

type submitDTO struct {
	SessionID string `validate:"required"`
	NodeID    int64  `validate:"required,gte=1"`
	Grade     int    `validate:"gte=0,lte=3"`
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "select a bandit arm, schedule a plan, and persist a new active session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		members := make([]model.NodeID, len(flagGoalMembers))
		for i, m := range flagGoalMembers {
			members[i] = model.NodeID(m)
		}
		goal := model.Goal{ID: flagGoalID, Type: model.GoalType(flagGoalType), Group: flagGoalGroup, Members: members}

		sess, err := a.engine.StartSession(context.Background(), flagUserID, goal, flagSessionSize, nowMs())
		if err != nil {
			return err
		}
		return printJSON(sess)
	},
}

var sessionNextCmd = &cobra.Command{
	Use:   "next",
	Short: "print the next unanswered item and its generated exercise",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		item, data, err := a.engine.GetNextItem(flagSessionID)
		if err != nil {
			return err
		}
		if item == nil {
			fmt.Println("no more items")
			return nil
		}
		return printJSON(struct {
			Item     *model.SessionItem `json:"item"`
			Exercise interface{}        `json:"exercise"`
		}{item, data})
	},
}

var sessionSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "grade the current item: FSRS update, propagation, and bookkeeping run in one transaction",
	RunE: func(cmd *cobra.Command, args []string) error {
		dto := submitDTO{SessionID: flagSessionID, NodeID: flagNodeID, Grade: flagGrade}
		if err := validate.Struct(dto); err != nil {
			return err
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		return a.engine.Submit(context.Background(), flagSessionID, model.NodeID(flagNodeID), flagGrade, flagDurationMs, nowMs())
	},
}

var sessionCompleteCmd = &cobra.Command{
	Use:   "complete",
	Short: "finalize a session and reward the bandit arm selected at start",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		summary, err := a.engine.CompleteSession(context.Background(), flagSessionID)
		if err != nil {
			return err
		}
		return printJSON(summary)
	},
}

var sessionResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "return the caller's open session and its next item, if any",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		sess, item, data, err := a.engine.ResumeActiveSession(flagUserID)
		if err != nil {
			return err
		}
		if sess == nil {
			fmt.Println("no active session")
			return nil
		}
		return printJSON(struct {
			Session  *model.Session      `json:"session"`
			Item     *model.SessionItem  `json:"item,omitempty"`
			Exercise interface{}         `json:"exercise,omitempty"`
		}{sess, item, data})
	},
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func init() {
	sessionStartCmd.Flags().StringVar(&flagUserID, "user", "", "user id")
	sessionStartCmd.Flags().StringVar(&flagGoalID, "goal", "", "goal id")
	sessionStartCmd.Flags().StringVar(&flagGoalType, "goal-type", string(model.GoalCustom), "goal type (surah, root, theme, custom)")
	sessionStartCmd.Flags().StringVar(&flagGoalGroup, "group", "memorization", "bandit context group")
	sessionStartCmd.Flags().Int64SliceVar(&flagGoalMembers, "members", nil, "goal member node ids")
	sessionStartCmd.Flags().IntVar(&flagSessionSize, "size", 20, "target session size")
	sessionStartCmd.MarkFlagRequired("user")
	sessionStartCmd.MarkFlagRequired("goal")

	sessionNextCmd.Flags().StringVar(&flagSessionID, "session", "", "session id")
	sessionNextCmd.MarkFlagRequired("session")

	sessionSubmitCmd.Flags().StringVar(&flagSessionID, "session", "", "session id")
	sessionSubmitCmd.Flags().Int64Var(&flagNodeID, "node", 0, "content key being graded")
	sessionSubmitCmd.Flags().IntVar(&flagGrade, "grade", -1, "grade: 0=Again 1=Hard 2=Good 3=Easy")
	sessionSubmitCmd.Flags().Int64Var(&flagDurationMs, "duration-ms", 0, "time spent answering, in milliseconds")
	sessionSubmitCmd.MarkFlagRequired("session")
	sessionSubmitCmd.MarkFlagRequired("node")
	sessionSubmitCmd.MarkFlagRequired("grade")

	sessionCompleteCmd.Flags().StringVar(&flagSessionID, "session", "", "session id")
	sessionCompleteCmd.MarkFlagRequired("session")

	sessionResumeCmd.Flags().StringVar(&flagUserID, "user", "", "user id")
	sessionResumeCmd.MarkFlagRequired("user")

	sessionCmd.AddCommand(sessionStartCmd, sessionNextCmd, sessionSubmitCmd, sessionCompleteCmd, sessionResumeCmd)
}

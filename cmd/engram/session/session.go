// Package sessioncmder provides the session command for managing the active
// recording session persisted in the .engram/ directory.
package sessioncmder

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/engram/pkg/cliui"
	"github.com/papercomputeco/engram/pkg/dotdir"
)

const sessionLongDesc string = `Manage the active recording session.

Recording commands resolve their session id from .engram/session.json so
events from successive invocations group under one session.

  engram session start    Open a new session (replacing any active one)
  engram session end      Close the active session
  engram session status   Show the active session`

const sessionShortDesc string = "Manage the active recording session"

func NewSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: sessionShortDesc,
		Long:  sessionLongDesc,
	}

	cmd.AddCommand(newStartCmd())
	cmd.AddCommand(newEndCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

func newStartCmd() *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Open a new recording session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			state := &dotdir.SessionState{
				SessionID: uuid.NewString(),
				ProjectID: projectID,
				StartedAt: time.Now().UTC(),
			}

			if err := dotdir.NewManager().SaveSession(state, configDir); err != nil {
				return err
			}

			fmt.Printf("  %s Started session %s\n",
				cliui.SuccessMark,
				cliui.ValueStyle.Render(state.SessionID),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Project id to record under")

	return cmd
}

func newEndCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "end",
		Short: "Close the active recording session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			m := dotdir.NewManager()
			state, err := m.LoadSessionState(configDir)
			if err != nil {
				return err
			}
			if state == nil {
				fmt.Printf("  %s\n", cliui.DimStyle.Render("No active session."))
				return nil
			}

			if err := m.ClearSession(configDir); err != nil {
				return err
			}

			fmt.Printf("  %s Ended session %s %s\n",
				cliui.SuccessMark,
				cliui.ValueStyle.Render(state.SessionID),
				cliui.DimStyle.Render(fmt.Sprintf("(open %s)", cliui.FormatDuration(time.Since(state.StartedAt)))),
			)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active recording session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			state, err := dotdir.NewManager().LoadSessionState(configDir)
			if err != nil {
				return err
			}
			if state == nil {
				fmt.Printf("  %s\n", cliui.DimStyle.Render("No active session."))
				return nil
			}

			fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("session"), cliui.ValueStyle.Render(state.SessionID))
			if state.ProjectID != "" {
				fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("project"), cliui.ValueStyle.Render(state.ProjectID))
			}
			fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("started"), cliui.ValueStyle.Render(state.StartedAt.Format(time.RFC3339)))
			return nil
		},
	}
}

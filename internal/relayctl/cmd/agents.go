package cmd

import (
	"fmt"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
)

// NewCmdAgents creates the `relayctl agents` command.
func NewCmdAgents(serverAddr, token *string) *cobra.Command {
	var showRunners bool

	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List the pooled agents on a relayd",
		Example: heredoc.Doc(`
			# List pooled agents
			relayctl agents

			# Include the runner pool
			relayctl agents --runners`),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewRelayClient(*serverAddr, *token, nil)

			agents, err := client.ListAgents(cmd.Context())
			if err != nil {
				return fmt.Errorf("list agents: %w", err)
			}

			table := uitable.New()
			table.MaxColWidth = 60
			table.AddRow("ID", "TYPE", "CONFIG HASH", "LAST ACTIVITY")
			for _, a := range agents {
				table.AddRow(a["id"], a["agent_type"], a["config_hash"], a["last_activity"])
			}
			fmt.Println(table)

			if !showRunners {
				return nil
			}

			runners, err := client.ListRunners(cmd.Context())
			if err != nil {
				return fmt.Errorf("list runners: %w", err)
			}

			fmt.Println()
			rt := uitable.New()
			rt.MaxColWidth = 60
			rt.AddRow("ID", "AGENT", "SESSIONS", "LAST ACTIVITY")
			for _, r := range runners {
				rt.AddRow(r["id"], r["agent_id"], r["session_count"], r["last_activity"])
			}
			fmt.Println(rt)
			return nil
		},
	}

	cmd.Flags().BoolVar(&showRunners, "runners", false, "Also list the runner pool.")

	return cmd
}

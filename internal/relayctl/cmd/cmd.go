package cmd

import (
	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"
)

// NewDefaultRelayCtlCommand creates the `relayctl` root command.
func NewDefaultRelayCtlCommand() *cobra.Command {
	var serverAddr string
	var token string

	cmds := &cobra.Command{
		Use:   "relayctl",
		Short: "relayctl talks to a running relayd",
		Long: heredoc.Doc(`
			relayctl is the operator CLI for the relay runtime.

			It can run interactive conversations against relayd (including
			approving tool proposals from the terminal) and inspect the
			pooled agents and runners.`),
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	flags := cmds.PersistentFlags()
	flags.StringVarP(&serverAddr, "server", "s", "http://127.0.0.1:11700", "Address of the relayd API.")
	flags.StringVar(&token, "token", "", "Bearer token for the relayd API.")

	cmds.AddCommand(NewCmdChat(&serverAddr, &token))
	cmds.AddCommand(NewCmdAgents(&serverAddr, &token))

	return cmds
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"magpie/internal/ipc"
)

func newPlatformsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "platforms",
		Short: "List registered platforms in resolution order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Platforms()
				if err != nil {
					return err
				}

				rows := make([][]string, 0, len(resp.Platforms))
				for _, info := range resp.Platforms {
					rows = append(rows, []string{
						info.ID,
						info.Name,
						info.Auth,
						strings.Join(info.Capabilities, ", "),
						yesNo(info.HasAPIKey),
					})
				}

				stdout := cmd.OutOrStdout()
				if len(rows) == 0 {
					fmt.Fprintln(stdout, "No platforms registered")
					return nil
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"ID", "Name", "Auth", "Capabilities", "Credential"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

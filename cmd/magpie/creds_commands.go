package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"magpie/internal/ipc"
)

func newCredsCommand(ctx *commandContext) *cobra.Command {
	credsCmd := &cobra.Command{
		Use:   "creds",
		Short: "Manage platform credentials",
	}

	var validity string
	setCmd := &cobra.Command{
		Use:   "set <platform> <token>",
		Short: "Store a credential for a platform",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			platformID := strings.TrimSpace(args[0])
			token := strings.TrimSpace(args[1])
			if platformID == "" || token == "" {
				return errors.New("platform and token are required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.CredentialSet(platformID, token, validity); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored credential for %s\n", platformID)
				return nil
			})
		},
	}
	setCmd.Flags().StringVar(&validity, "validity", "unchecked", "Credential validity: valid, invalid, or unchecked")

	rmCmd := &cobra.Command{
		Use:   "rm <platform>",
		Short: "Remove a stored credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			platformID := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.CredentialRemove(platformID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed credential for %s\n", platformID)
				return nil
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.CredentialList()
				if err != nil {
					return err
				}

				stdout := cmd.OutOrStdout()
				if len(resp.Credentials) == 0 {
					fmt.Fprintln(stdout, "No credentials stored")
					return nil
				}
				rows := make([][]string, 0, len(resp.Credentials))
				for _, info := range resp.Credentials {
					rows = append(rows, []string{
						info.Platform,
						info.Validity,
						info.UpdatedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"Platform", "Validity", "Updated"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	credsCmd.AddCommand(setCmd)
	credsCmd.AddCommand(rmCmd)
	credsCmd.AddCommand(listCmd)
	return credsCmd
}

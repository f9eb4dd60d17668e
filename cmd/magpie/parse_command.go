package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"magpie/internal/ipc"
)

func newParseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "parse <url>",
		Short: "Resolve a URL to its platform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := strings.TrimSpace(args[0])
			if url == "" {
				return errors.New("url is required")
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Parse(url)
				if err != nil {
					return err
				}
				info := resp.Platform

				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Platform:     %s (%s)\n", info.Name, info.ID)
				fmt.Fprintf(stdout, "Auth:         %s\n", info.Auth)
				fmt.Fprintf(stdout, "Credential:   %s\n", yesNo(info.HasAPIKey))
				if len(info.Capabilities) > 0 {
					fmt.Fprintf(stdout, "Capabilities: %s\n", strings.Join(info.Capabilities, ", "))
				}
				return nil
			})
		},
	}
}

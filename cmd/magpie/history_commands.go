package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"magpie/internal/ipc"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List completed downloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.HistoryList()
				if err != nil {
					return err
				}

				stdout := cmd.OutOrStdout()
				if len(resp.Entries) == 0 {
					fmt.Fprintln(stdout, "History is empty")
					return nil
				}

				rows := make([][]string, 0, len(resp.Entries))
				for _, entry := range resp.Entries {
					title := entry.Title
					if title == "" {
						title = "-"
					}
					rows = append(rows, []string{
						entry.Folder,
						title,
						entry.Platform,
						formatSize(entry.Size),
						entry.CreatedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprintln(stdout, renderTable(
					[]string{"Folder", "Title", "Platform", "Size", "Completed"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm <folder>",
		Short: "Remove a history entry and its downloaded files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			folder := strings.TrimSpace(args[0])
			if folder == "" {
				return errors.New("folder is required")
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.HistoryRemove(folder)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", resp.Removed)
				return nil
			})
		},
	}

	historyCmd.AddCommand(rmCmd)
	return historyCmd
}

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"magpie/internal/ipc"
)

const daemonStartTimeout = 10 * time.Second

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the magpie daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()

			if client, err := ipc.Dial(ctx.socketPath()); err == nil {
				defer client.Close()
				resp, err := client.Start()
				if err != nil {
					return err
				}
				if resp.Started {
					fmt.Fprintln(stdout, "Daemon started")
				} else {
					fmt.Fprintln(stdout, "Daemon already running")
				}
				return nil
			}

			fmt.Fprintln(stdout, "Daemon not running, launching...")
			if err := launchDaemon(ctx); err != nil {
				return err
			}
			if err := waitForSocket(ctx.socketPath(), daemonStartTimeout); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Daemon started")
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the magpie daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			client, err := ipc.Dial(ctx.socketPath())
			if err != nil {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			defer client.Close()
			if _, err := client.Stop(); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and job status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			var status *ipc.StatusResponse
			err := ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				if err != nil {
					return err
				}
				status = resp
				return nil
			})
			if err != nil {
				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderStatusLine("Daemon", statusWarn, "Not running", colorize))
				return nil
			}

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(stdout, line)
			}
			if status.Running {
				fmt.Fprintln(stdout, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
			} else {
				fmt.Fprintln(stdout, renderStatusLine("Daemon", statusWarn, "Stopped", colorize))
			}
			fmt.Fprintln(stdout, renderStatusLine("Ledger", statusInfo, status.LedgerDBPath, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Lock", statusInfo, status.LockPath, colorize))
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Jobs", colorize) {
				fmt.Fprintln(stdout, line)
			}
			rows := buildJobStatusRows(status.JobStats)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "No jobs tracked")
			} else {
				fmt.Fprintln(stdout, renderTable([]string{"State", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
			}
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Ledger", colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout, renderStatusLine("Entries", statusInfo, strconv.FormatInt(status.LedgerCount, 10), colorize))
			fmt.Fprintln(stdout, renderStatusLine("Total size", statusInfo, formatSize(status.LedgerSize), colorize))
			return nil
		},
	}

	return []*cobra.Command{startCmd, stopCmd, statusCmd}
}

func buildJobStatusRows(stats map[string]int) [][]string {
	states := make([]string, 0, len(stats))
	for state, count := range stats {
		if count == 0 {
			continue
		}
		states = append(states, state)
	}
	sort.Strings(states)

	rows := make([][]string, 0, len(states))
	for _, state := range states {
		rows = append(rows, []string{state, strconv.Itoa(stats[state])})
	}
	return rows
}

func launchDaemon(ctx *commandContext) error {
	exe, err := daemonExecutable()
	if err != nil {
		return err
	}
	cmd := exec.Command(exe)
	if ctx.configFlag != nil {
		if path := strings.TrimSpace(*ctx.configFlag); path != "" {
			cmd.Env = append(os.Environ(), "MAGPIE_CONFIG="+path)
		}
	}
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch magpied: %w", err)
	}
	return cmd.Process.Release()
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "magpied")
		if _, statErr := os.Stat(candidate); statErr == nil {
			return candidate, nil
		}
	}
	path, err := exec.LookPath("magpied")
	if err != nil {
		return "", fmt.Errorf("locate magpied executable: %w", err)
	}
	return path, nil
}

func waitForSocket(socket string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		client, err := ipc.Dial(socket)
		if err == nil {
			client.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("daemon did not come up within %s", timeout)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

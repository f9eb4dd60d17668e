package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/spf13/cobra"

	"magpie/internal/broadcast"
	"magpie/internal/daemon"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream job events from the daemon until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			socket := daemon.EventSocketPath(cfg)
			conn, err := net.DialTimeout("unix", socket, 2*time.Second)
			if err != nil {
				return wrapDialError(err, socket)
			}
			defer conn.Close()

			go func() {
				<-cmd.Context().Done()
				conn.Close()
			}()

			stdout := cmd.OutOrStdout()
			scanner := bufio.NewScanner(conn)
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)
			for scanner.Scan() {
				line := bytes.TrimSpace(scanner.Bytes())
				if len(line) == 0 {
					continue
				}
				var event broadcast.Event
				if err := json.Unmarshal(line, &event); err != nil {
					continue
				}
				printWatchEvent(stdout, event)
			}
			if cmd.Context().Err() != nil {
				return nil
			}
			return scanner.Err()
		},
	}
}

func printWatchEvent(out io.Writer, event broadcast.Event) {
	stamp := event.Timestamp.Local().Format("15:04:05")
	switch event.Kind {
	case broadcast.KindProgress:
		if event.Percent > 0 {
			fmt.Fprintf(out, "%s %s %-12s %5.1f%%\n", stamp, shortJobID(event.JobID), event.Status, event.Percent)
		} else {
			fmt.Fprintf(out, "%s %s %s\n", stamp, shortJobID(event.JobID), event.Status)
		}
	case broadcast.KindComplete:
		fmt.Fprintf(out, "%s %s completed\n", stamp, shortJobID(event.JobID))
	case broadcast.KindError:
		fmt.Fprintf(out, "%s %s failed (%s): %s\n", stamp, shortJobID(event.JobID), event.ErrorKind, event.Message)
	}
}

func shortJobID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"magpie/internal/broadcast"
)

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var metadataOnly bool
	var outputDir string

	cmd := &cobra.Command{
		Use:   "download <url>",
		Short: "Download a URL and stream progress until the job finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := strings.TrimSpace(args[0])
			if url == "" {
				return errors.New("url is required")
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			payload := map[string]any{"url": url}
			if metadataOnly {
				payload["download_files"] = false
			}
			if dir := strings.TrimSpace(outputDir); dir != "" {
				payload["output_dir"] = dir
			}
			body, err := json.Marshal(payload)
			if err != nil {
				return err
			}

			endpoint := fmt.Sprintf("http://%s/api/download", cfg.Paths.APIBind)
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, endpoint, bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			if token := strings.TrimSpace(cfg.Paths.APIToken); token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("contact daemon API at %s: %w", cfg.Paths.APIBind, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return apiError(resp)
			}

			return streamJobEvents(cmd.OutOrStdout(), resp.Body)
		},
	}

	cmd.Flags().BoolVar(&metadataOnly, "metadata-only", false, "Resolve metadata without downloading files")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory to place downloaded files in")
	return cmd
}

func streamJobEvents(out io.Writer, body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var event broadcast.Event
		if err := json.Unmarshal(line, &event); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}

		switch event.Kind {
		case broadcast.KindProgress:
			printProgress(out, event)
		case broadcast.KindComplete:
			printComplete(out, event)
			return nil
		case broadcast.KindError:
			fmt.Fprintf(out, "Failed (%s): %s\n", event.ErrorKind, event.Message)
			return fmt.Errorf("download failed: %s", event.Message)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read event stream: %w", err)
	}
	return errors.New("event stream ended before the job finished")
}

func printProgress(out io.Writer, event broadcast.Event) {
	if event.Percent > 0 {
		fmt.Fprintf(out, "  %-12s %5.1f%%\n", event.Status, event.Percent)
		return
	}
	fmt.Fprintf(out, "  %s\n", event.Status)
}

func printComplete(out io.Writer, event broadcast.Event) {
	fmt.Fprintln(out, "Completed")
	if event.Result == nil {
		return
	}
	res := event.Result
	if res.Title != "" {
		fmt.Fprintf(out, "  Title:    %s\n", res.Title)
	}
	fmt.Fprintf(out, "  Platform: %s\n", res.Platform)
	if res.ContentType != "" {
		fmt.Fprintf(out, "  Type:     %s\n", res.ContentType)
	}
	if res.Size > 0 {
		fmt.Fprintf(out, "  Size:     %s\n", formatSize(res.Size))
	}
	if res.Path != "" {
		fmt.Fprintf(out, "  Path:     %s\n", res.Path)
	}
	if res.Degraded {
		fmt.Fprintln(out, "  Note:     completed without credentials; some content may be missing")
	}
}

func apiError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("%s (%s)", payload.Error, payload.Kind)
	}
	return fmt.Errorf("daemon API returned %s", resp.Status)
}

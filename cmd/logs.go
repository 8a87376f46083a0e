// File: cmd/logs.go
package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
)

func newLogsCmd() *cobra.Command {
	var follow bool
	var path string

	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the run log",
		Long:  `Prints the rotating log file written during runs. With --follow it keeps printing new lines until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if path == "" {
				cfg, err := getConfigFromContext(ctx)
				if err != nil {
					return err
				}
				path = cfg.Logger.LogFile
			}
			if path == "" {
				return fmt.Errorf("no log file configured (logger.log_file)")
			}
			return printLog(ctx, cmd.OutOrStdout(), path, follow)
		},
	}

	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing lines as they are written")
	logsCmd.Flags().StringVar(&path, "file", "", "log file to read (default is logger.log_file)")
	return logsCmd
}

// printLog copies the log at path to w. When follow is set it waits for new
// lines, across rotations, until ctx is done.
func printLog(ctx context.Context, w io.Writer, path string, follow bool) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    follow,
		ReOpen:    follow,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() {
		_ = t.Stop()
		t.Cleanup()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				return fmt.Errorf("failed to read log file: %w", line.Err)
			}
			if _, err := fmt.Fprintln(w, line.Text); err != nil {
				return err
			}
		}
	}
}

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rescp17/preservicaUploader/internal/util"
	"github.com/rescp17/preservicaUploader/pkg/transfer"
	"github.com/rescp17/preservicaUploader/pkg/uploader"
)

type uploadOptions struct {
	folder        string
	concurrency   int
	thresholdMB   int64
	includeHidden bool
}

func newUploadCmd(root *rootOptions) *cobra.Command {
	opts := &uploadOptions{}
	cmd := &cobra.Command{
		Use:   "upload <local-path>",
		Short: "Upload a file or folder without the interactive UI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			tc := cfg.TransferConfig()
			if cmd.Flags().Changed("concurrency") {
				tc.MaxConcurrency = opts.concurrency
			}
			if cmd.Flags().Changed("threshold") {
				tc.ThresholdBytes = opts.thresholdMB * 1024 * 1024
			}
			if cmd.Flags().Changed("include-hidden") {
				tc.IncludeHidden = opts.includeHidden
			}
			if err := tc.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			app := uploader.NewApp(tc, newClient(cfg), stagerFactory(cfg))
			return runUpload(ctx, cmd.OutOrStdout(), app, args[0], opts.folder)
		},
	}
	cmd.Flags().StringVar(&opts.folder, "folder", "", "Reference of the destination Preservica folder")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "Number of parallel uploads (default from PRESERVICA_CONCURRENCY)")
	cmd.Flags().Int64Var(&opts.thresholdMB, "threshold", 0, "Size in MB at which files are staged through S3 (default from PRESERVICA_S3_THRESHOLD)")
	cmd.Flags().BoolVar(&opts.includeHidden, "include-hidden", false, "Upload dot-files and dot-directories")
	_ = cmd.MarkFlagRequired("folder")
	return cmd
}

func runUpload(ctx context.Context, out io.Writer, app *uploader.App, localPath, folderRef string) error {
	folder, err := app.CheckDestination(ctx, folderRef)
	if err != nil {
		return err
	}
	slog.Info("Uploading into folder", "ref", folder.Ref, "title", folder.Title)

	job, err := app.Prepare(localPath, folderRef)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Uploading %d file(s) in %d folder(s), %s (%d staged)\n",
		job.TotalFiles(), len(job.RemoteFoldersToCreate), util.FormatSize(job.TotalBytes), len(job.StagedUnits()))

	run, err := app.Start(ctx, job)
	if err != nil {
		return err
	}

	var width func() int
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		width = func() int { return terminalWidth(f) }
	}
	follow(out, run, width)
	result := run.Wait()

	renderManifest(out, result)
	if len(result.Succeeded) > 0 {
		fmt.Fprintln(out, "\nCheck the Preservica console for ingest progress.")
	}
	return result.Err()
}

// follow prints notable events as they happen. With a terminal width it also
// redraws a single status line until the job finishes.
func follow(out io.Writer, run *transfer.JobRun, width func() int) {
	var tick <-chan time.Time
	if width != nil {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		tick = ticker.C
	}

	// the feed is closed once every unit is terminal
	for feed := run.Progress().Events(); feed != nil; {
		select {
		case ev, ok := <-feed:
			if !ok {
				feed = nil
				continue
			}
			msg, notable := ev.Notable()
			if !notable {
				continue
			}
			slog.Warn("Upload event", "event", ev.Kind, "message", msg)
			if width != nil {
				fmt.Fprintf(out, "\r%s\r%s\n", util.PadRight("", width()-1), msg)
			} else {
				fmt.Fprintln(out, msg)
			}
		case <-tick:
			fmt.Fprintf(out, "\r%s", progressLine(run.Progress().Snapshot(), width()))
		}
	}
	<-run.Done()
	if width != nil {
		fmt.Fprintf(out, "\r%s\n", progressLine(run.Progress().Snapshot(), width()))
	}
}

func terminalWidth(f *os.File) int {
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

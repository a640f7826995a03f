package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/rescp17/preservicaUploader/internal/util"
	"github.com/rescp17/preservicaUploader/pkg/archive"
	"github.com/rescp17/preservicaUploader/pkg/transfer"
)

// progressLine renders a one-line job summary padded to width so it
// overwrites the previous line.
func progressLine(s transfer.ProgressSnapshot, width int) string {
	done := s.Counts[transfer.StateSucceeded] + s.Counts[transfer.StateFailed] + s.Counts[transfer.StateCancelled]
	line := fmt.Sprintf("%5.1f%%  %d/%d files  %s / %s  %s",
		s.Fraction*100, done, s.TotalUnits,
		util.FormatSize(s.TransferredBytes), util.FormatSize(s.TotalBytes),
		util.FormatRate(s.Rate))
	if s.ETA > 0 {
		line += "  ETA " + s.ETA.Round(time.Second).String()
	}
	if width <= 1 {
		return line
	}
	return util.FitLine(line, width-1)
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

// renderManifest prints one row per unit followed by the totals.
func renderManifest(w io.Writer, r *transfer.JobResult) {
	table := newTable(w, "File", "Pathway", "Size", "State", "Attempts", "Detail")
	for _, o := range r.Outcomes() {
		detail := o.Reason
		if o.Receipt != nil && detail == "" {
			detail = o.Receipt.Reference
		}
		table.Append([]string{
			joinRemote(o.RemoteRelDir, o.Name),
			o.Pathway.String(),
			util.FormatSize(o.SizeBytes),
			o.State.String(),
			strconv.Itoa(o.Attempts),
			detail,
		})
	}
	table.Render()

	for _, f := range r.FolderErrors {
		fmt.Fprintf(w, "folder %s: %v\n", f.RelPath, f.Err)
	}
	for _, s := range r.Skipped {
		fmt.Fprintf(w, "skipped %s: %s\n", s.Path, s.Reason)
	}
	fmt.Fprintf(w, "\n%d succeeded, %d failed, %d cancelled; %s of %s in %s\n",
		len(r.Succeeded), len(r.Failed), len(r.Cancelled),
		util.FormatSize(r.TransferredBytes()), util.FormatSize(r.TotalBytes),
		r.Duration.Round(time.Millisecond))
}

// renderEntities lists archive children.
func renderEntities(w io.Writer, entities []archive.Entity) {
	table := newTable(w, "Reference", "Type", "Title")
	for _, e := range entities {
		kind := "asset"
		if e.IsFolder() {
			kind = "folder"
		}
		table.Append([]string{e.Ref, kind, e.Title})
	}
	table.Render()
}

func joinRemote(dir, name string) string {
	if dir == "" || dir == "." {
		return name
	}
	return dir + "/" + name
}

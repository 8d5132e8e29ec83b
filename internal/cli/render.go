package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/roach88/tally/internal/engine"
	"github.com/roach88/tally/internal/model"
)

// timeLayout renders commit timestamps in UTC.
const timeLayout = "2006-01-02 15:04:05"

func formatTime(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(timeLayout)
}

func printCommit(w io.Writer, c model.Commit) {
	fmt.Fprintf(w, "%s  %s  %-16s %s\n", c.ShortHash(), formatTime(c.Timestamp), c.Author, c.Message)
}

func printCommits(w io.Writer, commits []model.Commit) {
	if len(commits) == 0 {
		fmt.Fprintln(w, "No history.")
		return
	}
	for _, c := range commits {
		printCommit(w, c)
	}
}

func printDetails(w io.Writer, d engine.CommitDetails) {
	c := d.Commit
	fmt.Fprintf(w, "commit %s\n", c.Hash)
	if c.ParentHash != "" {
		fmt.Fprintf(w, "parent %s\n", c.ParentHash)
	}
	fmt.Fprintf(w, "seq    %d\n", c.Seq)
	fmt.Fprintf(w, "author %s\n", c.Author)
	fmt.Fprintf(w, "date   %s\n", formatTime(c.Timestamp))
	fmt.Fprintf(w, "device %s\n", c.DeviceFingerprint)
	fmt.Fprintf(w, "\n    %s\n\n", c.Message)
	for _, ch := range d.Changes {
		fmt.Fprintf(w, "  %s %s  %s\n", ch.EntityType, ch.EntityID, engine.FormatChangeDescription(ch))
	}
}

func printRecords(w io.Writer, records []model.ChangeRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No changes.")
		return
	}
	for _, r := range records {
		fmt.Fprintf(w, "%s  %s  %-16s %s\n",
			model.ShortHash(r.CommitHash), formatTime(r.Timestamp), r.Author, engine.FormatChangeDescription(r.Change))
	}
}

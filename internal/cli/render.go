package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/ZetoOfficial/bluewave/internal/models"
)

func renderEdges(w io.Writer, edges []models.Edge) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range edges {
		following := ""
		if e.CanUnfollow() {
			following = "following"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.DID, e.Handle, e.Label(), following)
	}
	return tw.Flush()
}

// renderLedger writes one line per item followed by a summary line.
func renderLedger(w io.Writer, ledger models.Ledger) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, item := range ledger {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", item.Ordinal+1, item.Outcome, item.DID, item.Label, item.Reason)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	counts := ledger.Counts()
	_, err := fmt.Fprintf(w, "succeeded=%d failed=%d skipped=%d\n",
		counts[models.OutcomeSucceeded], counts[models.OutcomeFailed], counts[models.OutcomeSkipped])
	return err
}

func renderRows(w io.Writer, rows []map[string]interface{}) error {
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fields := make([]string, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, fmt.Sprintf("%s=%v", k, row[k]))
		}
		if _, err := fmt.Fprintln(w, strings.Join(fields, " ")); err != nil {
			return err
		}
	}
	return nil
}

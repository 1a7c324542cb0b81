package main

import (
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
)

func printSummary(w io.Writer, results []jobResult) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Job", "Table", "Loaded", "Updated", "Dropped", "Elapsed", "Status"})
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = "FAILED: " + r.Err.Error()
		}
		table.Append([]string{
			r.Job,
			r.Table,
			strconv.FormatInt(r.Loaded, 10),
			strconv.FormatInt(r.Updated, 10),
			strconv.FormatInt(r.Dropped, 10),
			r.Elapsed.Truncate(time.Millisecond).String(),
			status,
		})
	}
	table.Render()
}

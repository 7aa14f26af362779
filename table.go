package casjobs

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

// JobInfoTable renders a job listing as a plain-text table, one row per
// job. Handy for interactive sessions and log dumps.
func JobInfoTable(w io.Writer, jobs []JobInfo) {
	table := tablewriter.NewWriter(w)
	table.Header("Job", "Task", "Status", "Context", "Rows", "Submitted", "Output")

	for _, job := range jobs {
		table.Append(
			job.JobID.String(),
			job.TaskName,
			job.Status.String(),
			job.Context,
			strconv.FormatInt(job.Rows, 10),
			job.TimeSubmit,
			job.OutputLoc,
		)
	}

	table.Render()
}

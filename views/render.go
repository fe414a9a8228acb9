package views

import (
	"fmt"
	"io"
	"text/tabwriter"

	"xdao.co/taskledger/model"
)

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// RenderTasks writes rows as an aligned table.
func RenderTasks(w io.Writer, rows []model.TaskRow) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tDATA ID\tPARAMETERS\tSTATUS\tRESULT")
	for _, r := range rows {
		status := "Pending"
		result := "-"
		if r.Completed {
			status = "Completed"
			result = dash(r.ResultCID)
			if r.ResultURL != "" {
				result = r.ResultURL
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.Index, r.DataID, dash(r.Parameters), status, result)
	}
	return tw.Flush()
}

// RenderRoles writes role rows as an aligned table. Expired rows stay
// visible and are marked.
func RenderRoles(w io.Writer, rows []model.RoleRow) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROLE\tACCOUNT\tDESCRIPTION\tEXPIRATION\tSTATUS")
	for _, r := range rows {
		status := "Active"
		if r.Expired {
			status = "Expired"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.RoleID, r.Account, r.Description, r.Expiration, status)
	}
	return tw.Flush()
}

// RenderSummary writes a one-line status distribution.
func RenderSummary(w io.Writer, s Summary) error {
	_, err := fmt.Fprintf(w, "%d tasks: %d completed, %d open\n", s.Total, s.Completed, s.Open)
	return err
}

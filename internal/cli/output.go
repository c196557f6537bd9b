package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/your-org/facegate/internal/models"
	"github.com/your-org/facegate/pkg/dto"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRecords(w io.Writer, records []models.EnrollmentRecord) error {
	if jsonOutput {
		resp := make([]dto.RecordResponse, 0, len(records))
		for i := range records {
			resp = append(resp, dto.NewRecordResponse(&records[i]))
		}
		return printJSON(w, dto.RecordListResponse{Records: resp, Total: len(resp)})
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "IDENTITY\tNAME\tDESCRIPTOR\tENROLLED")
	for i := range records {
		r := &records[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Identity, r.FullName, yesNo(r.HasDescriptor()), r.EnrolledAt.Format("2006-01-02 15:04"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d record(s)\n", len(records))
	return nil
}

func printRecord(w io.Writer, rec *models.EnrollmentRecord) error {
	resp := dto.NewRecordResponse(rec)
	if jsonOutput {
		return printJSON(w, resp)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Identity:\t%s\n", resp.Identity)
	fmt.Fprintf(tw, "Name:\t%s\n", resp.FullName)
	if resp.Phone != "" {
		fmt.Fprintf(tw, "Phone:\t%s\n", resp.Phone)
	}
	if resp.Address != "" {
		fmt.Fprintf(tw, "Address:\t%s\n", resp.Address)
	}
	if resp.EnrolledBy != "" {
		fmt.Fprintf(tw, "Enrolled by:\t%s\n", resp.EnrolledBy)
	}
	fmt.Fprintf(tw, "Descriptor:\t%s\n", yesNo(resp.HasDescriptor))
	fmt.Fprintf(tw, "Verified:\t%s\n", yesNo(resp.Flags.Verified))
	fmt.Fprintf(tw, "Suspended:\t%s\n", yesNo(resp.Flags.Suspended))
	fmt.Fprintf(tw, "Enrolled at:\t%s\n", resp.EnrolledAt)
	return tw.Flush()
}

func printOutcome(w io.Writer, out *models.Outcome, threshold float64) error {
	resp := dto.NewOutcomeResponse(out, threshold)
	if jsonOutput {
		return printJSON(w, resp)
	}

	switch {
	case resp.Distance == nil:
		fmt.Fprintf(w, "%s (%s)\n", resp.Decision, resp.Reason)
	case resp.FullName != "":
		fmt.Fprintf(w, "%s %s (%s) distance=%.4f threshold=%.2f\n", resp.Decision, resp.Identity, resp.FullName, *resp.Distance, threshold)
	default:
		fmt.Fprintf(w, "%s %s distance=%.4f threshold=%.2f\n", resp.Decision, resp.Identity, *resp.Distance, threshold)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

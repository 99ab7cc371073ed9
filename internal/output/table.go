package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kursadbilgin/mailrunner/internal/domain"
)

const rule = "============================================================"

func WriteRunTable(w io.Writer, runs []domain.Run) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tSTATUS\tTOTAL\tSUCCESS\tFAILED\tSTARTED\tFINISHED")
	for _, r := range runs {
		finished := "-"
		if r.FinishedAt != nil {
			finished = formatTime(*r.FinishedAt)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.ID, r.Status, r.TotalRecipients, r.SuccessCount, r.FailureCount, formatTime(r.StartedAt), finished)
	}
	_ = tw.Flush()
}

func WriteDeliveryTable(w io.Writer, deliveries []domain.Delivery) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "#\tEMAIL\tNAME\tSUCCESS\tATTEMPTS\tERROR")
	for _, d := range deliveries {
		errMsg := "-"
		if d.ErrorMessage != nil {
			errMsg = *d.ErrorMessage
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%t\t%d\t%s\n",
			d.Position+1, d.RecipientEmail, dash(d.RecipientName), d.Success, d.Attempts, errMsg)
	}
	_ = tw.Flush()
}

// WriteStudentTable prints students in the order given.
func WriteStudentTable(w io.Writer, students []domain.Student) {
	if len(students) == 0 {
		_, _ = fmt.Fprintln(w, "No students found on record")
		return
	}
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tAGE\tCLASS\tPHONE")
	for _, s := range students {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Name, s.Age, s.Class, s.Phone)
	}
	_ = tw.Flush()
}

// WriteRunSummary prints the end-of-run counts and the first failures.
func WriteRunSummary(w io.Writer, runID string, summary domain.RunSummary, failures []domain.FailureRecord) {
	_, _ = fmt.Fprintf(w, "Run %s\n", runID)
	_, _ = fmt.Fprintf(w, "  Total:      %d\n", summary.Total)
	_, _ = fmt.Fprintf(w, "  Successful: %d\n", summary.Successful)
	_, _ = fmt.Fprintf(w, "  Failed:     %d\n", summary.Failed)
	if rate, ok := summary.SuccessRate(); ok {
		_, _ = fmt.Fprintf(w, "  Success rate: %.1f%%\n", rate)
	}
	if len(failures) == 0 {
		return
	}

	_, _ = fmt.Fprintln(w, "Failed recipients:")
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	for _, f := range failures {
		_, _ = fmt.Fprintf(tw, "  %s\t%s\t%s\n", f.Email, dash(f.Name), f.Error)
	}
	_ = tw.Flush()
}

func WriteWeatherReport(w io.Writer, report *domain.WeatherReport) {
	location := report.City
	if report.Country != "" {
		location += ", " + report.Country
	}

	_, _ = fmt.Fprintln(w, rule)
	_, _ = fmt.Fprintf(w, "Weather for %s\n", location)
	_, _ = fmt.Fprintln(w, rule)
	_, _ = fmt.Fprintln(w, "Temperature:")
	_, _ = fmt.Fprintf(w, "  Current: %.1f°C\n", report.Temperature)
	_, _ = fmt.Fprintf(w, "  Feels like: %.1f°C\n", report.FeelsLike)
	_, _ = fmt.Fprintln(w, "Conditions:")
	_, _ = fmt.Fprintf(w, "  %s: %s\n", report.Condition, report.Description)
	_, _ = fmt.Fprintln(w, "Humidity:")
	_, _ = fmt.Fprintf(w, "  %d%%\n", report.Humidity)
	_, _ = fmt.Fprintln(w, "Wind:")
	_, _ = fmt.Fprintf(w, "  Speed: %.1f m/s\n", report.WindSpeed)
	if report.WindDegrees != nil {
		_, _ = fmt.Fprintf(w, "  Direction: %.0f°\n", *report.WindDegrees)
	}
	_, _ = fmt.Fprintln(w, "Additional info:")
	_, _ = fmt.Fprintf(w, "  Pressure: %d hPa\n", report.Pressure)
	_, _ = fmt.Fprintf(w, "  Cloud cover: %d%%\n", report.CloudCover)
	if report.VisibilityKM != nil {
		_, _ = fmt.Fprintf(w, "  Visibility: %.1f km\n", *report.VisibilityKM)
	}
	_, _ = fmt.Fprintln(w, rule)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

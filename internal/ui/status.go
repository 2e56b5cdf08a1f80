// Package ui renders terminal views of reports and their jobs.
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/joshsymonds/advisor/internal/database"
	"github.com/joshsymonds/advisor/internal/models"
)

// Style definitions.
var (
	CriticalColor = lipgloss.Color("#FF0000")
	HighColor     = lipgloss.Color("#FFA500")
	MediumColor   = lipgloss.Color("#FFFF00")
	LowColor      = lipgloss.Color("#0000FF")
	InfoColor     = lipgloss.Color("#808080")
	SuccessColor  = lipgloss.Color("#00FF00")
	ActiveColor   = lipgloss.Color("#00FFFF")

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ActiveColor).
			MarginBottom(1)

	LabelStyle = lipgloss.NewStyle().Bold(true).Width(15)
	InfoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
	ErrorStyle = lipgloss.NewStyle().Foreground(CriticalColor)
)

const timeLayout = "2006-01-02 15:04:05"

// SeverityStyle returns the badge style for a severity level.
func SeverityStyle(severity string) lipgloss.Style {
	base := lipgloss.NewStyle().
		Bold(true).
		Padding(0, 2)

	switch strings.ToUpper(severity) {
	case "CRITICAL":
		return base.Background(lipgloss.Color("197")).Foreground(lipgloss.Color("15"))
	case "HIGH":
		return base.Background(lipgloss.Color("208")).Foreground(lipgloss.Color("15"))
	case "MEDIUM":
		return base.Background(lipgloss.Color("214")).Foreground(lipgloss.Color("15"))
	case "LOW":
		return base.Background(lipgloss.Color("148")).Foreground(lipgloss.Color("15"))
	default:
		return base.Background(lipgloss.Color("240")).Foreground(lipgloss.Color("15"))
	}
}

// StatusStyle colors a report status.
func StatusStyle(status models.ReportStatus) lipgloss.Style {
	var color lipgloss.Color
	switch status {
	case models.StatusCompleted:
		color = SuccessColor
	case models.StatusProcessing, models.StatusGenerating:
		color = ActiveColor
	case models.StatusFailed:
		color = CriticalColor
	case models.StatusCancelled:
		color = HighColor
	default:
		color = InfoColor
	}
	return lipgloss.NewStyle().Foreground(color).Bold(true)
}

// ReportTable renders one row per report.
func ReportTable(reports []*models.Report) string {
	if len(reports) == 0 {
		return InfoStyle.Render("No reports found.")
	}

	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, []string{
			r.ID,
			truncate(r.Title, 30),
			string(r.ReportType),
			string(r.Status),
			fmt.Sprintf("%d/%d", r.RetryCount, models.MaxRetries),
			r.UpdatedAt.Local().Format(timeLayout),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("ID", "TITLE", "TYPE", "STATUS", "RETRIES", "UPDATED").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			style := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return style.Bold(true).Foreground(ActiveColor)
			}
			if col == 3 {
				return style.Inherit(StatusStyle(models.ReportStatus(rows[row][3])))
			}
			return style
		})
	return t.String()
}

// ReportDetail renders one report with its stored counts and artifacts.
// counts may be nil before ingest.
func ReportDetail(r *models.Report, counts *database.RecommendationCounts, artifacts []models.Artifact) string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render(fmt.Sprintf("Report %s", r.ID)))
	b.WriteString("\n")

	field := func(label, value string) {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			LabelStyle.Render(label+":"),
			InfoStyle.Render(value)))
		b.WriteString("\n")
	}

	if r.Title != "" {
		field("Title", r.Title)
	}
	field("Type", string(r.ReportType))
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		LabelStyle.Render("Status:"),
		StatusStyle(r.Status).Render(string(r.Status))))
	b.WriteString("\n")
	field("Retries", fmt.Sprintf("%d of %d", r.RetryCount, models.MaxRetries))
	field("Created", r.CreatedAt.Local().Format(timeLayout))
	for _, ts := range []struct {
		at    *time.Time
		label string
	}{
		{r.UploadedAt, "Uploaded"},
		{r.ProcessingStartedAt, "Processing"},
		{r.GeneratingStartedAt, "Generating"},
		{r.CompletedAt, "Completed"},
		{r.FailedAt, "Failed"},
		{r.CancelledAt, "Cancelled"},
	} {
		if ts.at != nil {
			field(ts.label, ts.at.Local().Format(timeLayout))
		}
	}
	if r.SourceRef != "" {
		field("Source", r.SourceRef)
	}
	if r.ErrorMessage != "" {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			LabelStyle.Render("Error:"),
			ErrorStyle.Render(r.ErrorMessage)))
		b.WriteString("\n")
	}

	if counts != nil && counts.Total > 0 {
		b.WriteString("\n")
		b.WriteString(TitleStyle.Render(fmt.Sprintf("Recommendations (%d, %d warnings)", counts.Total, counts.Warnings)))
		b.WriteString("\n")
		for _, c := range models.Categories() {
			if n := counts.ByCategory[c]; n > 0 {
				field(string(c), fmt.Sprintf("%d", n))
			}
		}
		for _, c := range models.CommitmentCategories() {
			if n := counts.ByCommitment[c]; n > 0 && c != models.CommitmentUncategorized {
				field("Commitment", fmt.Sprintf("%s: %d", c.Label(), n))
			}
		}
	}

	if len(artifacts) > 0 {
		b.WriteString("\n")
		b.WriteString(TitleStyle.Render("Artifacts"))
		b.WriteString("\n")
		for _, a := range artifacts {
			field(string(a.ReportType), fmt.Sprintf("%s (%s, %d charts)", a.PDFRef, a.Engine, a.ChartCount))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, maxWidth int) string {
	r := []rune(s)
	if len(r) <= maxWidth {
		return s
	}
	if maxWidth < 3 {
		return string(r[:maxWidth])
	}
	return string(r[:maxWidth-3]) + "..."
}

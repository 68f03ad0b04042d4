package reporter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/panicsave/panicsave/internal/database"
	"github.com/panicsave/panicsave/internal/models"
	"github.com/panicsave/panicsave/pkg/utils"
)

// Reporter builds save history reports from the journal
type Reporter struct {
	repo *database.Repository
	now  func() time.Time
}

// New creates a new reporter
func New(repo *database.Repository) *Reporter {
	return &Reporter{
		repo: repo,
		now:  time.Now,
	}
}

// GenerateReport generates a report for the specified period
func (r *Reporter) GenerateReport(periodType string) (*models.Report, error) {
	period, err := Period(periodType, r.now())
	if err != nil {
		return nil, err
	}

	// Counts and sums come from SQL, derived fields are computed here
	summaries, err := r.repo.GetSaveSummarySince(period.Start)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get save summary")
	}

	var total, failures int
	var totalMs int64
	for i := range summaries {
		if summaries[i].SaveCount > 0 {
			summaries[i].AvgDurationMs = float64(summaries[i].TotalMs) / float64(summaries[i].SaveCount)
		}
		total += summaries[i].SaveCount
		failures += summaries[i].FailureCount
		totalMs += summaries[i].TotalMs
	}

	if total > 0 {
		for i := range summaries {
			summaries[i].Percentage = (float64(summaries[i].SaveCount) / float64(total)) * 100.0
		}
	}

	report := &models.Report{
		Period:      *period,
		Targets:     summaries,
		TotalSaves:  total,
		Failures:    failures,
		GeneratedAt: r.now(),
	}
	if total > 0 {
		report.AvgDurationMs = float64(totalMs) / float64(total)
	}

	latest, err := r.repo.GetLatestSave()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get latest save")
	}
	report.LastSave = latest

	return report, nil
}

// Period calculates the time range of a report relative to now
func Period(periodType string, now time.Time) (*models.ReportPeriod, error) {
	var start, end time.Time

	switch periodType {
	case "day", "today", "":
		periodType = "day"
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		end = start.AddDate(0, 0, 1)

	case "week":
		// Start of week (Monday)
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7 // Sunday = 7
		}
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -(weekday - 1))
		end = start.AddDate(0, 0, 7)

	case "month":
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		end = start.AddDate(0, 1, 0)

	default:
		return nil, fmt.Errorf("invalid period type: %s (valid: day, week, month)", periodType)
	}

	return &models.ReportPeriod{
		Start: start,
		End:   end,
		Type:  periodType,
	}, nil
}

// FormatReportText formats the report as human-readable text
func (r *Reporter) FormatReportText(report *models.Report) string {
	output := fmt.Sprintf("Save Report - %s\n", report.Period.Type)
	output += fmt.Sprintf("Period: %s to %s\n",
		report.Period.Start.Format("2006-01-02 15:04"),
		report.Period.End.Format("2006-01-02 15:04"))
	output += fmt.Sprintf("Saves: %d (%d failed), average %.0fms\n",
		report.TotalSaves, report.Failures, report.AvgDurationMs)

	if report.LastSave != nil {
		ago := report.GeneratedAt.Sub(report.LastSave.Timestamp)
		output += fmt.Sprintf("Last save: %s ago, focus went to %s\n",
			utils.FormatRoundedUnit(int64(ago.Seconds())),
			orUnknown(report.LastSave.TargetApp))
	}
	output += "\n"

	if len(report.Targets) == 0 {
		output += "No saves recorded for this period.\n"
		return output
	}

	output += fmt.Sprintf("%-30s %8s %8s %10s %9s\n", "Focus went to", "Saves", "Failed", "Avg", "Percent")
	output += fmt.Sprintf("%s\n", "--------------------------------------------------------------------------------")

	for _, target := range report.Targets {
		output += fmt.Sprintf("%-30s %8d %8d %10s %8.1f%%\n",
			truncate(orUnknown(target.TargetApp), 30),
			target.SaveCount,
			target.FailureCount,
			utils.FormatMillis(int64(target.AvgDurationMs)),
			target.Percentage)
	}

	return output
}

// FormatReportJSON formats the report as JSON
func (r *Reporter) FormatReportJSON(report *models.Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal JSON")
	}
	return string(data), nil
}

func orUnknown(s string) string {
	if s == "" {
		return "(unknown)"
	}
	return s
}

// truncate truncates a string to the specified length
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

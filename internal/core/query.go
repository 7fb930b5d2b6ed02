package core

import (
	"slices"
	"strings"
)

// StatusFilterAll disables status filtering in FilterAndSort.
const StatusFilterAll = "all"

// FilterAndSort selects jobs for display. statusFilter is "all" (or empty)
// or an exact status; searchText matches file name or id case-insensitively.
// The result is ordered newest first, keeping input order for equal
// timestamps. jobs itself is not reordered.
func FilterAndSort(jobs []PrintJob, statusFilter, searchText string) []PrintJob {
	needle := strings.ToLower(searchText)

	out := make([]PrintJob, 0, len(jobs))
	for _, job := range jobs {
		if statusFilter != "" && statusFilter != StatusFilterAll && string(job.Status) != statusFilter {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(job.FileName), needle) &&
			!strings.Contains(strings.ToLower(job.ID), needle) {
			continue
		}
		out = append(out, job)
	}

	slices.SortStableFunc(out, func(a, b PrintJob) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return out
}

type JobStats struct {
	ByStatus map[JobStatus]int `json:"by_status"`
	Total    int               `json:"total"`
	Revenue  float64           `json:"revenue"`
	Open     int               `json:"open"`
}

// CountByStatus summarises a snapshot for the dashboard. Revenue sums the
// amounts of charged jobs; Open counts jobs not yet in a terminal status.
func CountByStatus(jobs []PrintJob) JobStats {
	stats := JobStats{ByStatus: make(map[JobStatus]int, len(AllStatuses))}
	for _, s := range AllStatuses {
		stats.ByStatus[s] = 0
	}
	for _, job := range jobs {
		stats.ByStatus[job.Status]++
		stats.Total++
		if !job.Status.Terminal() {
			stats.Open++
		}
		if job.Status.Charged() && job.PaymentAmount != nil {
			stats.Revenue += *job.PaymentAmount
		}
	}
	return stats
}

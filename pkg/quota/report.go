package quota

import "github.com/panelstack/quotad/pkg/model"

// OverflowEntry names one resource whose usage broke its non-zero limit.
type OverflowEntry struct {
	Resource model.ResourceType `json:"resource"`
	Used     int                `json:"used"`
	Limit    int                `json:"limit"`
}

type OverflowReport struct {
	Entries []OverflowEntry `json:"entries"`
}

func (r OverflowReport) Overflowing() bool {
	return len(r.Entries) > 0
}

func (r OverflowReport) Has(t model.ResourceType) bool {
	for _, entry := range r.Entries {
		if entry.Resource == t {
			return true
		}
	}
	return false
}

func buildReport(types []model.ResourceType, used, limits model.ResourceVector) OverflowReport {
	var report OverflowReport
	for _, t := range types {
		limit := limits.Get(t)
		if model.ExceedsCeiling(limit, used.Get(t)) {
			report.Entries = append(report.Entries, OverflowEntry{
				Resource: t,
				Used:     used.Get(t),
				Limit:    limit,
			})
		}
	}
	return report
}

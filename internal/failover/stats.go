package failover

import "time"

// Stats aggregates RTO compliance over the attempt history.
type Stats struct {
	TotalAttempts     int           `json:"total_attempts"`
	Succeeded         int           `json:"succeeded"`
	Failed            int           `json:"failed"`
	RTOCompliant      int           `json:"rto_compliant"`
	SuccessRate       float64       `json:"success_rate"`
	RTOComplianceRate float64       `json:"rto_compliance_rate"`
	AverageDuration   time.Duration `json:"average_duration"`
	WorstDuration     time.Duration `json:"worst_duration"`
}

// ComputeStats aggregates metrics over a set of finalized attempts.
func ComputeStats(attempts []Attempt) Stats {
	stats := Stats{
		TotalAttempts:     len(attempts),
		SuccessRate:       100.0,
		RTOComplianceRate: 100.0,
	}
	if len(attempts) == 0 {
		return stats
	}

	var total time.Duration
	for _, a := range attempts {
		if a.Success {
			stats.Succeeded++
		} else {
			stats.Failed++
		}
		if a.RTOMet {
			stats.RTOCompliant++
		}

		d := time.Duration(a.DurationSeconds) * time.Second
		total += d
		if d > stats.WorstDuration {
			stats.WorstDuration = d
		}
	}

	stats.SuccessRate = float64(stats.Succeeded) / float64(stats.TotalAttempts) * 100
	stats.RTOComplianceRate = float64(stats.RTOCompliant) / float64(stats.TotalAttempts) * 100
	stats.AverageDuration = total / time.Duration(stats.TotalAttempts)

	return stats
}

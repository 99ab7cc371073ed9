package domain

import "time"

// DeliveryResult is the outcome of one recipient's attempt sequence.
type DeliveryResult struct {
	RecipientEmail string
	RecipientName  string
	Success        bool
	ErrorMessage   string
	Attempts       int
	Timestamp      time.Time
}

// FailureRecord identifies a recipient whose delivery was exhausted.
type FailureRecord struct {
	Email string
	Name  string
	Error string
}

func FailureFromResult(result DeliveryResult) FailureRecord {
	return FailureRecord{
		Email: result.RecipientEmail,
		Name:  result.RecipientName,
		Error: result.ErrorMessage,
	}
}

// RunSummary holds the counts reported at the end of a run.
type RunSummary struct {
	Total      int
	Successful int
	Failed     int
}

func SummarizeResults(results []DeliveryResult) RunSummary {
	summary := RunSummary{Total: len(results)}
	for _, result := range results {
		if result.Success {
			summary.Successful++
		}
	}
	summary.Failed = summary.Total - summary.Successful
	return summary
}

// SuccessRate returns the percentage of successful deliveries. ok is false
// when nothing was processed.
func (s RunSummary) SuccessRate() (rate float64, ok bool) {
	if s.Total == 0 {
		return 0, false
	}
	return float64(s.Successful) / float64(s.Total) * 100, true
}

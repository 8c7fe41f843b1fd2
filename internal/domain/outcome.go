package domain

// ChannelOutcome is the final result of one channel's attempt sequence
// within a single job.
type ChannelOutcome struct {
	Channel   Channel
	Delivered bool
	Attempts  int
	LastError string
}

// DispatchResult aggregates the per-channel outcomes of one job.
type DispatchResult struct {
	Status     Status
	RetryCount int
	Outcomes   []ChannelOutcome
}

// AggregateOutcomes computes the job-level result: any delivered channel
// makes the job "sent"; only when every channel is exhausted is it
// "failed". The reported retry count is the attempt count of the last
// evaluated channel, matching the record's single retry_count field.
// Per-channel truth is preserved in the outcomes themselves.
func AggregateOutcomes(outcomes []ChannelOutcome) DispatchResult {
	result := DispatchResult{
		Status:   StatusFailed,
		Outcomes: outcomes,
	}

	for _, outcome := range outcomes {
		if outcome.Delivered {
			result.Status = StatusSent
		}
	}
	if len(outcomes) > 0 {
		result.RetryCount = outcomes[len(outcomes)-1].Attempts
	}

	return result
}

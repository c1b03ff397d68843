package contributions

import "context"

// Stats summarises processing outcomes across all contributions.
type Stats struct {
	Total             int     `json:"total"`
	Processing        int     `json:"processing"`
	Processed         int     `json:"processed"`
	Failed            int     `json:"failed"`
	NeedsReview       int     `json:"needsReview"`
	LowConfidence     int     `json:"lowConfidence"`
	SuccessRate       float64 `json:"successRate"`
	CandidatesCreated int     `json:"candidatesCreated"`
	BundlesSkipped    int64   `json:"bundlesSkipped"`
}

// Stats counts contributions by status. BundlesSkipped covers this process only.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	counts, err := s.Repo.CountByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		Processing:     counts[StatusProcessing],
		Processed:      counts[StatusProcessed],
		Failed:         counts[StatusFailed] + counts[StatusUploadFailed],
		NeedsReview:    counts[StatusManualReview],
		LowConfidence:  counts[StatusLowConfidence],
		BundlesSkipped: s.bundlesSkipped.Load(),
	}
	for _, n := range counts {
		st.Total += n
	}
	if st.Total > 0 {
		st.SuccessRate = float64(st.Processed) / float64(st.Total) * 100
	}
	if s.Candidates != nil {
		n, err := s.Candidates.Count(ctx)
		if err != nil {
			return Stats{}, err
		}
		st.CandidatesCreated = n
	}
	return st, nil
}

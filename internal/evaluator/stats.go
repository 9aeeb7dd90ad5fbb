package evaluator

// Stats is a snapshot of evaluator activity.
type Stats struct {
	Total        int            `json:"total_evaluations"`
	Successful   int            `json:"successful_evaluations"`
	Failed       int            `json:"failed_evaluations"`
	AverageScore float64        `json:"average_score"`
	HighQuality  int            `json:"high_quality_responses"`
	Distribution map[string]int `json:"score_distribution"`
	SuccessRate  float64        `json:"success_rate"`
	QualityRate  float64        `json:"quality_rate"`
}

func newStats() Stats {
	return Stats{Distribution: map[string]int{"excellent": 0, "good": 0, "regular": 0, "poor": 0}}
}

// record counts an evaluation. Fallback evaluations only count as failures
// so they do not skew the averages.
func (e *Evaluator) record(r Result, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.Total++
	if !ok {
		e.stats.Failed++
		return
	}
	e.stats.Successful++
	n := float64(e.stats.Successful)
	e.stats.AverageScore = (e.stats.AverageScore*(n-1) + r.Overall()) / n
	e.stats.Distribution[r.Grade()]++
	if r.IsHighQuality(e.threshold) {
		e.stats.HighQuality++
	}
}

// Stats returns a copy of the current counters.
func (e *Evaluator) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.stats
	out.Distribution = make(map[string]int, len(e.stats.Distribution))
	for k, v := range e.stats.Distribution {
		out.Distribution[k] = v
	}
	if out.Total > 0 {
		out.SuccessRate = float64(out.Successful) / float64(out.Total) * 100
	}
	if out.Successful > 0 {
		out.QualityRate = float64(out.HighQuality) / float64(out.Successful) * 100
	}
	return out
}

// ResetStats zeroes every counter.
func (e *Evaluator) ResetStats() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats = newStats()
}

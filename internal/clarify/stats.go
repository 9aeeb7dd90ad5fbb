package clarify

// Stats is a snapshot of clarifier activity.
type Stats struct {
	Total            int     `json:"total_clarifications"`
	Successful       int     `json:"successful_clarifications"`
	Failed           int     `json:"failed_clarifications"`
	AverageQuestions float64 `json:"average_questions_per_clarification"`
	SuccessRate      float64 `json:"success_rate"`
}

func (c *Clarifier) record(set Set, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Total++
	if !ok {
		c.stats.Failed++
		return
	}
	c.stats.Successful++
	n := float64(c.stats.Successful)
	c.stats.AverageQuestions = (c.stats.AverageQuestions*(n-1) + float64(set.Len())) / n
}

// Stats returns a copy of the current counters.
func (c *Clarifier) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.stats
	if out.Total > 0 {
		out.SuccessRate = float64(out.Successful) / float64(out.Total) * 100
	}
	return out
}

// ResetStats zeroes every counter.
func (c *Clarifier) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = Stats{}
}

package classifier

// Stats is a snapshot of classifier activity since start or the last reset.
type Stats struct {
	Total       int            `json:"total_classifications"`
	Successful  int            `json:"successful_classifications"`
	Failed      int            `json:"failed_classifications"`
	Categories  map[string]int `json:"category_distribution"`
	Strategies  map[string]int `json:"strategy_distribution"`
	SuccessRate float64        `json:"success_rate"`
}

func newStats() Stats {
	s := Stats{
		Categories: make(map[string]int, len(Categories)),
		Strategies: make(map[string]int, len(Strategies)),
	}
	for _, c := range Categories {
		s.Categories[c.String()] = 0
	}
	for _, st := range Strategies {
		s.Strategies[st.String()] = 0
	}
	return s
}

func (c *Classifier) record(cls Classification, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Total++
	if ok {
		c.stats.Successful++
	} else {
		c.stats.Failed++
	}
	c.stats.Categories[cls.Category.String()]++
	c.stats.Strategies[cls.Strategy.String()]++
}

// Stats returns a copy of the current counters.
func (c *Classifier) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.stats
	out.Categories = make(map[string]int, len(c.stats.Categories))
	for k, v := range c.stats.Categories {
		out.Categories[k] = v
	}
	out.Strategies = make(map[string]int, len(c.stats.Strategies))
	for k, v := range c.stats.Strategies {
		out.Strategies[k] = v
	}
	if out.Total > 0 {
		out.SuccessRate = float64(out.Successful) / float64(out.Total) * 100
	}
	return out
}

// ResetStats zeroes every counter.
func (c *Classifier) ResetStats() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = newStats()
}

package scanner

import (
	"sync"
)

// DefaultDisplayThreshold is the minimum probability shown as an opportunity.
const DefaultDisplayThreshold = 80

type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// TierOf classifies a probability for display.
func TierOf(probability int) Tier {
	switch {
	case probability >= 90:
		return TierHigh
	case probability >= 80:
		return TierMedium
	default:
		return TierLow
	}
}

// Opportunity is a ranked result above the display threshold.
type Opportunity struct {
	Result
	Tier Tier `json:"tier"`
}

// Board stores scan reports in memory for quick inspection.
type Board struct {
	mu      sync.Mutex
	history []Report
	keep    int
}

// NewBoard creates an empty board retaining up to keep past reports.
func NewBoard(keep int) *Board {
	if keep < 1 {
		keep = 1
	}
	return &Board{history: make([]Report, 0, keep), keep: keep}
}

// Record stores a report as the latest.
func (b *Board) Record(r Report) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.history) == b.keep {
		b.history = append(b.history[:0], b.history[1:]...)
	}
	b.history = append(b.history, r)
}

// Latest returns the most recent report.
func (b *Board) Latest() (Report, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.history) == 0 {
		return Report{}, false
	}
	return b.history[len(b.history)-1], true
}

// History returns a copy of the retained reports, oldest first.
func (b *Board) History() []Report {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Report, len(b.history))
	copy(out, b.history)
	return out
}

// Opportunities returns ranked results with probability >= threshold from
// the latest report. threshold <= 0 uses the display threshold.
func (b *Board) Opportunities(threshold int) []Opportunity {
	if threshold <= 0 {
		threshold = DefaultDisplayThreshold
	}
	rep, ok := b.Latest()
	if !ok {
		return nil
	}
	out := make([]Opportunity, 0, len(rep.Ranked))
	for _, r := range rep.Ranked {
		if r.Prediction.Probability >= threshold {
			out = append(out, Opportunity{Result: r, Tier: TierOf(r.Prediction.Probability)})
		}
	}
	return out
}

// Reset clears all stored reports.
func (b *Board) Reset() {
	b.mu.Lock()
	b.history = b.history[:0]
	b.mu.Unlock()
}

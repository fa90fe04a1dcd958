package fit

import (
	"log/slog"
	"math"
)

// ProgressTracker records the best error reported during a search and notices stalls.
// It only observes; the search always runs its full budget.
type ProgressTracker struct {
	threshold       float64
	history         []float64
	lastSignificant float64 // last error that was a significant improvement
	staleCount      int     // reports since lastSignificant
}

// NewProgressTracker creates a tracker. threshold is the relative improvement a report
// must show to reset the stale counter (0.001 = 0.1%).
func NewProgressTracker(threshold float64) *ProgressTracker {
	return &ProgressTracker{
		threshold:       threshold,
		lastSignificant: math.Inf(1),
	}
}

// Update records a reported best error and returns the current stale count.
func (p *ProgressTracker) Update(iteration int, bestError float64) int {
	p.history = append(p.history, bestError)

	if len(p.history) == 1 {
		p.lastSignificant = bestError
		return 0
	}

	improved := p.lastSignificant - bestError
	if improved > 0 && (p.lastSignificant == 0 || improved/p.lastSignificant >= p.threshold) {
		p.lastSignificant = bestError
		p.staleCount = 0
		return 0
	}

	p.staleCount++
	slog.Debug("No significant error improvement",
		"iteration", iteration,
		"best_error", bestError,
		"last_significant", p.lastSignificant,
		"stale_count", p.staleCount,
	)
	return p.staleCount
}

// BestError returns the last recorded error, or +Inf before any report.
func (p *ProgressTracker) BestError() float64 {
	if len(p.history) == 0 {
		return math.Inf(1)
	}
	return p.history[len(p.history)-1]
}

// History returns a copy of every recorded error.
func (p *ProgressTracker) History() []float64 {
	return append([]float64{}, p.history...)
}

// StaleCount returns the number of reports without significant improvement.
func (p *ProgressTracker) StaleCount() int {
	return p.staleCount
}

// Monotone reports whether the recorded errors never increased.
func (p *ProgressTracker) Monotone() bool {
	for i := 1; i < len(p.history); i++ {
		if p.history[i] > p.history[i-1] {
			return false
		}
	}
	return true
}

// Package analysis reports how stream B's pacing compares with stream A's
// between consecutive sync points.
package analysis

import (
	"math"

	"github.com/roach88/lockstep/internal/timeline"
)

// Tempo classifies how many steps B spends on one segment against A.
// A shorter segment means B moves through that phase in fewer frames.
type Tempo string

const (
	// TempoShorter: B covers the segment in under 90% of A's steps.
	TempoShorter Tempo = "shorter"
	// TempoEven: within 90%..110%.
	TempoEven Tempo = "even"
	// TempoLonger: B needs over 110% of A's steps.
	TempoLonger Tempo = "longer"
)

// Classification thresholds in percent.
const (
	ShorterBelow = 90
	LongerAbove  = 110
)

// Color returns the display color for the tempo class.
func (t Tempo) Color() string {
	switch t {
	case TempoShorter:
		return "#3b82f6"
	case TempoLonger:
		return "#f59e0b"
	}
	return "#10b981"
}

// Segment is the span between two consecutive sync points.
type Segment struct {
	From    string
	To      string
	DeltaA  int
	DeltaB  int
	Ratio   float64
	Percent int
	Tempo   Tempo
}

// Segments computes one Segment per consecutive pair of sync points.
// Pairs where A does not advance are skipped. Fewer than two points yields
// nil.
func Segments(points []timeline.SyncPoint) []Segment {
	if len(points) < 2 {
		return nil
	}

	var out []Segment
	for i := 0; i+1 < len(points); i++ {
		from, to := points[i], points[i+1]
		deltaA := to.StepA - from.StepA
		deltaB := to.StepB - from.StepB
		if deltaA == 0 {
			continue
		}
		ratio := float64(deltaB) / float64(deltaA)
		pct := int(math.Round(ratio * 100))
		out = append(out, Segment{
			From:    from.Label,
			To:      to.Label,
			DeltaA:  deltaA,
			DeltaB:  deltaB,
			Ratio:   ratio,
			Percent: pct,
			Tempo:   classify(pct),
		})
	}
	return out
}

func classify(pct int) Tempo {
	switch {
	case pct < ShorterBelow:
		return TempoShorter
	case pct > LongerAbove:
		return TempoLonger
	}
	return TempoEven
}

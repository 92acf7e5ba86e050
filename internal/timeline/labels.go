package timeline

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultLabelOrder is the canonical swing-phase ordering. Event labels
// outside the configured order are rejected by AddEvent.
var DefaultLabelOrder = []string{
	LabelStart,
	"Address",
	"Top",
	"Downswing",
	"Impact",
	"Finish",
	LabelEnd,
}

// palette assigns display colors by canonical rank.
var palette = []string{
	"#6b7280",
	"#3b82f6",
	"#8b5cf6",
	"#f59e0b",
	"#ef4444",
	"#10b981",
	"#ec4899",
	"#14b8a6",
}

// labelOrder ranks labels. Start is always first and End always last,
// whatever the configured order says.
type labelOrder struct {
	labels []string
	rank   map[string]int
}

func newLabelOrder(labels []string) *labelOrder {
	o := &labelOrder{rank: make(map[string]int)}
	o.add(LabelStart)
	for _, l := range labels {
		l = NormalizeLabel(l)
		if l == "" || l == LabelStart || l == LabelEnd {
			continue
		}
		o.add(l)
	}
	o.add(LabelEnd)
	return o
}

func (o *labelOrder) add(label string) {
	if _, dup := o.rank[label]; dup {
		return
	}
	o.rank[label] = len(o.labels)
	o.labels = append(o.labels, label)
}

// rankOf returns the canonical rank of label and whether it is known.
func (o *labelOrder) rankOf(label string) (int, bool) {
	r, ok := o.rank[label]
	return r, ok
}

// color returns the deterministic display color for label.
func (o *labelOrder) color(label string) string {
	r, ok := o.rank[label]
	if !ok {
		return palette[0]
	}
	return palette[r%len(palette)]
}

// NormalizeLabel trims and NFC-normalizes a label so visually identical
// labels compare equal.
func NormalizeLabel(label string) string {
	return norm.NFC.String(strings.TrimSpace(label))
}

func isAnchor(label string) bool {
	return label == LabelStart || label == LabelEnd
}

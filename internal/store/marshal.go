package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/lockstep/internal/timeline"
)

type previewJSON struct {
	Stream  string  `json:"stream"`
	Step    int     `json:"step"`
	Seconds float64 `json:"seconds"`
}

type rateJSON struct {
	Rate float64 `json:"rate"`
}

type updateJSON struct {
	Reason string `json:"reason"`
}

// marshalMeta converts notification metadata to JSON TEXT.
// nil metadata is stored as NULL.
func marshalMeta(meta any) (sql.NullString, error) {
	var v any
	switch m := meta.(type) {
	case nil:
		return sql.NullString{}, nil
	case timeline.PreviewMeta:
		v = previewJSON{Stream: string(m.Stream), Step: m.Step, Seconds: m.Seconds}
	case timeline.RateMeta:
		v = rateJSON{Rate: m.Rate}
	case timeline.UpdateMeta:
		v = updateJSON{Reason: m.Reason}
	default:
		return sql.NullString{}, fmt.Errorf("marshal meta: unsupported type %T", meta)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return sql.NullString{}, fmt.Errorf("marshal meta: %w", err)
	}
	// Encoder adds a trailing newline
	return sql.NullString{String: strings.TrimSpace(buf.String()), Valid: true}, nil
}

// unmarshalMeta restores typed metadata for action from its JSON TEXT.
func unmarshalMeta(action timeline.Action, data sql.NullString) (any, error) {
	if !data.Valid || data.String == "" {
		return nil, nil
	}

	switch action {
	case timeline.ActionPreview:
		var p previewJSON
		if err := json.Unmarshal([]byte(data.String), &p); err != nil {
			return nil, fmt.Errorf("unmarshal preview meta: %w", err)
		}
		return timeline.PreviewMeta{Stream: timeline.StreamID(p.Stream), Step: p.Step, Seconds: p.Seconds}, nil
	case timeline.ActionRate:
		var r rateJSON
		if err := json.Unmarshal([]byte(data.String), &r); err != nil {
			return nil, fmt.Errorf("unmarshal rate meta: %w", err)
		}
		return timeline.RateMeta{Rate: r.Rate}, nil
	case timeline.ActionUpdate:
		var u updateJSON
		if err := json.Unmarshal([]byte(data.String), &u); err != nil {
			return nil, fmt.Errorf("unmarshal update meta: %w", err)
		}
		return timeline.UpdateMeta{Reason: u.Reason}, nil
	}
	return nil, fmt.Errorf("unmarshal meta: action %q carries no metadata", action)
}

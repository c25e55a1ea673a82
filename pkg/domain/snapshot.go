package domain

import "time"

// Snapshot is the persisted form of a session document. Stores serialize it
// as-is; the State map holds only JSON-representable values.
type Snapshot struct {
	// SessionID is the identifier of the session the document belonged to.
	SessionID string `json:"session_id"`

	// Title is the document title at capture time.
	Title string `json:"title,omitempty"`

	// State holds the document's key/value contents.
	State map[string]any `json:"state"`

	// Revision is the document revision counter at capture time.
	Revision int64 `json:"revision"`

	// SavedAt records when the snapshot was taken.
	SavedAt time.Time `json:"saved_at"`
}

// Clone returns a deep copy of the snapshot. Stores use it to isolate their
// internal record from caller mutation.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.State = CloneMap(s.State)
	return out
}

// CloneMap deep-copies a state map. Nested map[string]any and []any values are
// copied recursively; all other values are assumed immutable and shared.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		return CloneMap(vv)
	case []any:
		out := make([]any, len(vv))
		for i, e := range vv {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

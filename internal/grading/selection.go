package grading

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ParseSelection decodes caller-supplied choice ids. It accepts a JSON array of
// integers, integral-valued numbers and numeric strings. Any malformed input
// yields nil, which graders treat as "nothing selected".
func ParseSelection(raw json.RawMessage) []int64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var items []any
	if err := dec.Decode(&items); err != nil {
		return nil
	}

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		id, ok := parseID(item)
		if !ok {
			return nil
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}
	return ids
}

func parseID(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		if id, err := t.Int64(); err == nil {
			return id, true
		}
		f, err := t.Float64()
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, false
		}
		return int64(f), true
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, false
		}
		return id, true
	default:
		return 0, false
	}
}

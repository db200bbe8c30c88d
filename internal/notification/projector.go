package notification

// Filter selects what a screen shows. Zero values mean "any".
type Filter struct {
	Kind       Kind
	Priority   Priority
	UnreadOnly bool
	Limit      int
}

type Summary struct {
	Total      int              `json:"total"`
	Unread     int              `json:"unread"`
	ByKind     map[Kind]int     `json:"byKind"`
	ByPriority map[Priority]int `json:"byPriority"`
}

// Project filters records without reordering them. It never touches its
// input and does no I/O, so it is safe to rerun on every store change.
func Project(records []Record, f Filter) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if f.Kind != "" && r.Kind != f.Kind {
			continue
		}
		if f.Priority != "" && r.Priority != f.Priority {
			continue
		}
		if f.UnreadOnly && r.IsRead {
			continue
		}
		out = append(out, r)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

func Summarize(records []Record) Summary {
	s := Summary{
		ByKind:     make(map[Kind]int),
		ByPriority: make(map[Priority]int),
	}
	for _, r := range records {
		s.Total++
		if !r.IsRead {
			s.Unread++
		}
		s.ByKind[r.Kind]++
		s.ByPriority[r.Priority]++
	}
	return s
}

package audit

import "sort"

// Summary aggregates a set of records for display.
type Summary struct {
	Total         int
	Errors        int
	Alerts        int
	BySensitivity map[string]int
	ByMethod      map[string]int
	ByTag         map[string]int
	First         string
	Last          string
}

func Summarize(records []Record) Summary {
	s := Summary{
		BySensitivity: map[string]int{},
		ByMethod:      map[string]int{},
		ByTag:         map[string]int{},
	}
	for _, r := range records {
		s.Total++
		if r.Analysis.HasError {
			s.Errors++
		}
		if Evaluate(r) != nil {
			s.Alerts++
		}
		s.BySensitivity[string(r.Analysis.SensitivityLevel)]++
		s.ByMethod[r.Request.Method]++
		for _, t := range r.Tags {
			s.ByTag[t]++
		}
	}
	if len(records) > 0 {
		s.First = records[0].Timestamp
		s.Last = records[len(records)-1].Timestamp
	}
	return s
}

// Counted is one entry of a count table.
type Counted struct {
	Key   string
	Count int
}

// Top returns the entries of m ordered by count, then key.
func Top(m map[string]int, n int) []Counted {
	out := make([]Counted, 0, len(m))
	for k, v := range m {
		out = append(out, Counted{k, v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

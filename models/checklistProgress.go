package models

// Progress is round(100 * responded / total), 0 for an empty list.
// It only reaches 100 once every item is responded.
func Progress(items []ChecklistResponseItem) int {
	total := len(items)
	if total == 0 {
		return 0
	}
	responded := 0
	for _, item := range items {
		if item.Responded {
			responded++
		}
	}
	// round half up in integers
	pct := (200*responded + total) / (2 * total)
	if responded < total && pct > 99 {
		pct = 99
	}
	return pct
}

// RequiredUnanswered counts required items still unanswered.
func RequiredUnanswered(items []ChecklistResponseItem) int {
	n := 0
	for _, item := range items {
		if item.Required && !item.Responded {
			n++
		}
	}
	return n
}

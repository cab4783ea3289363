package model

import "dayplanner/internal/calendar"

// InstanceKey identifies one occurrence of a pattern.
type InstanceKey struct {
	PatternID int64
	Date      calendar.Date
}

// InstanceSet is a set of occurrences, used to look up stored instances and
// skip exceptions in bulk.
type InstanceSet map[InstanceKey]struct{}

func (s InstanceSet) Add(patternID int64, d calendar.Date) {
	s[InstanceKey{PatternID: patternID, Date: d}] = struct{}{}
}

func (s InstanceSet) Has(patternID int64, d calendar.Date) bool {
	_, ok := s[InstanceKey{PatternID: patternID, Date: d}]
	return ok
}

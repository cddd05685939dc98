package agent

import (
	"slices"

	"github.com/scylladb/go-set/strset"
)

func sortedList(s *strset.Set) []string {
	list := s.List()
	slices.Sort(list)
	return list
}

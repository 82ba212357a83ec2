package compare

import (
	"manuscripts/api/internal/manuscript"
)

// Summary counts the change records in a merged tree.
type Summary struct {
	Inserted int `json:"inserted"`
	Deleted  int `json:"deleted"`
	Updated  int `json:"updated"`
}

func (s Summary) Total() int {
	return s.Inserted + s.Deleted + s.Updated
}

// Summarize counts node annotations and tracked text runs below n.
func Summarize(n *manuscript.Node) Summary {
	var s Summary
	n.Walk(func(node *manuscript.Node) bool {
		for _, change := range manuscript.TrackedChanges(node.Attrs) {
			s.add(change.Operation)
		}
		for _, mark := range node.Marks {
			if change, ok := manuscript.MarkTrackedChange(mark); ok {
				s.add(change.Operation)
			}
		}
		return true
	})
	return s
}

func (s *Summary) add(op manuscript.Operation) {
	switch op {
	case manuscript.OperationInsert:
		s.Inserted++
	case manuscript.OperationDelete:
		s.Deleted++
	case manuscript.OperationSet:
		s.Updated++
	}
}

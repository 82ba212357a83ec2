package compare

import (
	"manuscripts/api/internal/manuscript"
)

// mergeTable diffs two tables cell by cell. Rows and cells are aligned by position;
// surplus rows or cells on either side become inserts or deletes.
func mergeTable(r *run, entry *Entry) (*manuscript.Node, error) {
	original, comparison := entry.Original, entry.Comparison
	rows := make([]*manuscript.Node, 0, max(len(original.Content), len(comparison.Content)))
	for i := 0; i < len(original.Content) || i < len(comparison.Content); i++ {
		var from, to *manuscript.Node
		if i < len(original.Content) {
			from = original.Content[i]
		}
		if i < len(comparison.Content) {
			to = comparison.Content[i]
		}
		switch {
		case to == nil:
			rows = append(rows, r.deleted(from, cloneContent(from.Content)))
		case from == nil:
			rows = append(rows, r.inserted(to, cloneContent(to.Content)))
		default:
			rows = append(rows, r.mergeRow(from, to))
		}
	}
	return r.withSetIfChanged(comparison.WithContent(rows), original, comparison), nil
}

func (r *run) mergeRow(original, comparison *manuscript.Node) *manuscript.Node {
	if original.Equal(comparison) {
		return comparison.Clone()
	}
	cells := make([]*manuscript.Node, 0, max(len(original.Content), len(comparison.Content)))
	for i := 0; i < len(original.Content) || i < len(comparison.Content); i++ {
		var from, to *manuscript.Node
		if i < len(original.Content) {
			from = original.Content[i]
		}
		if i < len(comparison.Content) {
			to = comparison.Content[i]
		}
		switch {
		case to == nil:
			cells = append(cells, r.deleted(from, cloneContent(from.Content)))
		case from == nil:
			cells = append(cells, r.inserted(to, cloneContent(to.Content)))
		case from.Equal(to):
			cells = append(cells, to.Clone())
		default:
			merged := r.compareText(from, to, to.Type)
			cells = append(cells, r.withSetIfChanged(merged, from, to))
		}
	}
	return r.withSetIfChanged(comparison.WithContent(cells), original, comparison)
}

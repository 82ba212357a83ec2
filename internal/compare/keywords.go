package compare

import (
	"manuscripts/api/internal/manuscript"
)

// mergeKeywordSection merges the top-level keywords section. A section present on one
// side only is annotated as a whole, and so is every keyword in it, so that a review
// never shows a new section holding unannotated keywords.
func mergeKeywordSection(r *run, entry *Entry) (*manuscript.Node, error) {
	switch entry.Status {
	case StatusInserted:
		return r.markKeywordTree(entry.Comparison, manuscript.OperationInsert), nil
	case StatusDeleted:
		return r.markKeywordTree(entry.Original, manuscript.OperationDelete), nil
	}
	return r.rebuildEntry(entry)
}

// mergeKeywords pairs the groups and title of two keyword sections.
func mergeKeywords(r *run, entry *Entry) (*manuscript.Node, error) {
	children := r.distribute(entry.Original.Content, entry.Comparison.Content)
	content := make([]*manuscript.Node, 0, children.Len())
	for _, child := range children.Entries() {
		switch child.Status {
		case StatusInserted:
			content = append(content, r.markKeywordTree(child.Comparison, manuscript.OperationInsert))
		case StatusDeleted:
			content = append(content, r.markKeywordTree(child.Original, manuscript.OperationDelete))
		default:
			merged, err := r.rebuildEntry(child)
			if err != nil {
				return nil, err
			}
			content = append(content, merged)
		}
	}
	return entry.Comparison.WithContent(content), nil
}

// mergeKeywordGroup diffs keywords by identity only. Keywords hold no attributes
// beyond their id, so a matched keyword is never a modification.
func mergeKeywordGroup(r *run, entry *Entry) (*manuscript.Node, error) {
	var content []*manuscript.Node
	for _, child := range entry.Comparison.Content {
		if child != nil && child.Type != manuscript.TypeKeyword {
			content = append(content, child.Clone())
		}
	}
	content = append(content, r.mergeItems(entry.Original.Content, entry.Comparison.Content, manuscript.TypeKeyword, false)...)
	return entry.Comparison.WithContent(content), nil
}

// markKeywordTree annotates n and every keyword below it with op.
func (r *run) markKeywordTree(n *manuscript.Node, op manuscript.Operation) *manuscript.Node {
	content := make([]*manuscript.Node, 0, len(n.Content))
	for _, child := range n.Content {
		if child == nil {
			continue
		}
		switch {
		case child.Type == manuscript.TypeKeyword:
			content = append(content, r.markOne(child, cloneContent(child.Content), op))
		case child.Type.IsInline() || child.Type.IsTextBlock():
			content = append(content, child.Clone())
		default:
			content = append(content, r.markKeywordTree(child, op))
		}
	}
	return r.markOne(n, content, op)
}

func (r *run) markOne(n *manuscript.Node, content []*manuscript.Node, op manuscript.Operation) *manuscript.Node {
	if op == manuscript.OperationDelete {
		return r.deleted(n, content)
	}
	return r.inserted(n, content)
}

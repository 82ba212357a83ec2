package compare

import (
	"manuscripts/api/internal/manuscript"
)

// CompareAttrs diffs the itemType children of two wrapper versions by identity and
// attributes. Either version may be nil. Matched items whose attributes differ get a
// set record, unmatched items an insert or delete record. Other children are carried
// over unannotated ahead of the items.
func (e *Engine) CompareAttrs(wrapperAttrs manuscript.Attrs, original, comparison *manuscript.Node, itemType, wrapperType manuscript.NodeType) *manuscript.Node {
	return e.newRun().compareAttrs(wrapperAttrs, original, comparison, itemType, wrapperType)
}

func (r *run) compareAttrs(wrapperAttrs manuscript.Attrs, original, comparison *manuscript.Node, itemType, wrapperType manuscript.NodeType) *manuscript.Node {
	var content []*manuscript.Node
	base := comparison
	if base == nil {
		base = original
	}
	for _, child := range childrenOf(base) {
		if child != nil && child.Type != itemType {
			content = append(content, child.Clone())
		}
	}
	content = append(content, r.mergeItems(childrenOf(original), childrenOf(comparison), itemType, true)...)
	return &manuscript.Node{Type: wrapperType, Attrs: wrapperAttrs.Clone(), Content: content}
}

// mergeItems pairs the itemType nodes of two sibling lists. Output keeps the original
// order with deletions in place and appends comparison-only items at the end. With
// withAttrs unset, matched items are carried over without attribute comparison.
func (r *run) mergeItems(original, comparison []*manuscript.Node, itemType manuscript.NodeType, withAttrs bool) []*manuscript.Node {
	originalItems := itemsOf(original, itemType)
	comparisonItems := itemsOf(comparison, itemType)

	comparisonKeys := newKeyer("comparison", r.engine.strict)
	byKey := make(map[string]*manuscript.Node, len(comparisonItems))
	keys := make([]string, len(comparisonItems))
	for i, item := range comparisonItems {
		key, _ := comparisonKeys.next(item)
		keys[i] = key
		byKey[key] = item
	}

	out := make([]*manuscript.Node, 0, len(originalItems)+len(comparisonItems))
	matched := make(map[string]bool, len(originalItems))
	originalKeys := newKeyer("original", r.engine.strict)
	for _, item := range originalItems {
		key, byID := originalKeys.next(item)
		counterpart, ok := byKey[key]
		if !ok {
			out = append(out, r.deleted(item, cloneContent(item.Content)))
			continue
		}
		matched[key] = true
		if !byID {
			r.ordinalMatches++
		}
		merged := counterpart.Clone()
		if withAttrs {
			merged = r.withSetIfChanged(merged, item, counterpart)
		}
		out = append(out, merged)
	}
	for i, item := range comparisonItems {
		if matched[keys[i]] {
			continue
		}
		out = append(out, r.inserted(item, cloneContent(item.Content)))
	}
	return out
}

func itemsOf(nodes []*manuscript.Node, itemType manuscript.NodeType) []*manuscript.Node {
	var out []*manuscript.Node
	for _, n := range nodes {
		if n != nil && n.Type == itemType {
			out = append(out, n)
		}
	}
	return out
}

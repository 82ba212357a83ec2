package compare

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"manuscripts/api/internal/manuscript"
)

// topLevel overrides the rebuild dispatch for direct children of the manuscript.
// Entries of any other type are rebuilt like nested nodes.
var topLevel = map[manuscript.NodeType]strategy{
	manuscript.TypeContributors: mergeCollection(manuscript.TypeContributor),
	manuscript.TypeAffiliations: mergeCollection(manuscript.TypeAffiliation),
	manuscript.TypeSupplements:  mergeCollection(manuscript.TypeSupplement),
	manuscript.TypeComments:     mergeCollection(manuscript.TypeComment),
	manuscript.TypeKeywords:     mergeKeywordSection,
}

// CompareDocuments loads two snapshots and merges them. original is the baseline.
func (e *Engine) CompareDocuments(original, comparison manuscript.Snapshot) (*manuscript.Node, error) {
	from, err := original.Document()
	if err != nil {
		return nil, errors.Wrap(err, "load original")
	}
	to, err := comparison.Document()
	if err != nil {
		return nil, errors.Wrap(err, "load comparison")
	}
	return e.CompareTrees(from, to)
}

// CompareTrees merges two manuscript trees into one annotated manuscript carrying
// the comparison document's attributes.
func (e *Engine) CompareTrees(original, comparison *manuscript.Node) (*manuscript.Node, error) {
	if original == nil || comparison == nil {
		return nil, errors.Wrap(manuscript.ErrMalformedTree, "compare: missing document")
	}
	// Records already present in the inputs describe edits relative to some other
	// baseline; only this comparison's changes may appear in the result.
	original = manuscript.StripTracking(original)
	comparison = manuscript.StripTracking(comparison)

	start := e.now()
	r := e.newRun()
	m := r.distribute(original.Content, comparison.Content)

	content := make([]*manuscript.Node, 0, m.Len())
	for _, entry := range m.Entries() {
		merge, ok := topLevel[entry.Node().Type]
		if !ok {
			merge = (*run).rebuildEntry
		}
		merged, err := merge(r, entry)
		if err != nil {
			return nil, errors.Wrapf(err, "merge %s", entry.Key)
		}
		content = append(content, merged)
	}

	e.logger.Debug("documents compared",
		zap.Int("top_level_entries", m.Len()),
		zap.Int("ordinal_matches", r.ordinalMatches),
		zap.Duration("elapsed", e.now().Sub(start)),
	)
	return &manuscript.Node{
		Type:    manuscript.TypeManuscript,
		Attrs:   comparison.Attrs.Clone(),
		Content: content,
	}, nil
}

// mergeCollection diffs a flat collection wrapper present on either or both sides.
// A wrapper present on one side only is annotated itself, and compareAttrs annotates
// each of its items.
func mergeCollection(itemType manuscript.NodeType) strategy {
	return func(r *run, entry *Entry) (*manuscript.Node, error) {
		if entry.Status == StatusUnchanged && entry.Original.Equal(entry.Comparison) {
			return entry.Comparison.Clone(), nil
		}
		base := entry.Node()
		merged := r.compareAttrs(base.Attrs, entry.Original, entry.Comparison, itemType, base.Type)
		switch entry.Status {
		case StatusInserted:
			merged.Attrs = manuscript.WithTrackedChange(merged.Attrs, r.change(manuscript.OperationInsert, base.ID(), nil))
		case StatusDeleted:
			merged.Attrs = manuscript.WithTrackedChange(merged.Attrs,
				r.change(manuscript.OperationDelete, base.ID(), base.Attrs.Without(manuscript.AttrDataTracked)))
		}
		return merged, nil
	}
}

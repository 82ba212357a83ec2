package compare

import (
	"github.com/cockroachdb/errors"

	"manuscripts/api/internal/manuscript"
)

// strategy merges an unchanged entry, one whose node exists in both versions.
type strategy func(r *run, entry *Entry) (*manuscript.Node, error)

// strategies covers the whole vocabulary. It is filled in init because the
// strategies themselves recurse through it.
var strategies map[manuscript.NodeType]strategy

func init() {
	strategies = map[manuscript.NodeType]strategy{
		manuscript.TypeManuscript:   mergeDefault,
		manuscript.TypeTitle:        mergeText,
		manuscript.TypeContributors: mergeItemsWith(manuscript.TypeContributor),
		manuscript.TypeContributor:  mergeLeaf,
		manuscript.TypeAffiliations: mergeItemsWith(manuscript.TypeAffiliation),
		manuscript.TypeAffiliation:  mergeLeaf,
		manuscript.TypeKeywords:     mergeKeywords,
		manuscript.TypeKeywordGroup: mergeKeywordGroup,
		manuscript.TypeKeyword:      mergeText,
		manuscript.TypeSupplements:  mergeItemsWith(manuscript.TypeSupplement),
		manuscript.TypeSupplement:   mergeLeaf,
		manuscript.TypeComments:     mergeItemsWith(manuscript.TypeComment),
		manuscript.TypeComment:      mergeLeaf,
		manuscript.TypeAbstracts:    mergeDefault,
		manuscript.TypeBody:         mergeDefault,
		manuscript.TypeBackmatter:   mergeDefault,

		manuscript.TypeSection:           mergeDefault,
		manuscript.TypeSectionTitle:      mergeText,
		manuscript.TypeParagraph:         mergeParagraph,
		manuscript.TypeBlockquoteElement: mergeDefault,
		manuscript.TypeList:              mergeDefault,
		manuscript.TypeListItem:          mergeDefault,
		manuscript.TypeBoxElement:        mergeDefault,

		// Figure and table elements have no merge of their own: each distributed
		// part (figure, figcaption, listing, table) uses its own strategy below.
		manuscript.TypeFigureElement: mergeNested,
		manuscript.TypeFigure:        mergeLeaf,
		manuscript.TypeFigcaption:    mergeNested,
		manuscript.TypeCaptionTitle:  mergeText,
		manuscript.TypeCaption:       mergeText,
		manuscript.TypeAltText:       mergeText,
		manuscript.TypeLongDesc:      mergeText,
		manuscript.TypeListing:       mergeLeaf,

		manuscript.TypeTableElement: mergeNested,
		manuscript.TypeTable:        mergeTable,
		manuscript.TypeTableRow:     mergeNested,
		manuscript.TypeTableCell:    mergeParagraph,
		manuscript.TypeTableHeader:  mergeParagraph,

		manuscript.TypeEquationElement: mergeItemsWith(manuscript.TypeEquation),
		manuscript.TypeEquation:        mergeLeaf,

		manuscript.TypeBibliographySection: mergeDefault,
		manuscript.TypeBibliographyElement: mergeItemsWith(manuscript.TypeBibliographyItem),
		manuscript.TypeBibliographyItem:    mergeLeaf,

		manuscript.TypeFootnotesSection: mergeDefault,
		manuscript.TypeFootnotesElement: mergeDefault,
		manuscript.TypeFootnote:         mergeDefault,

		manuscript.TypeText:           mergeLeaf,
		manuscript.TypeHardBreak:      mergeLeaf,
		manuscript.TypeCitation:       mergeLeaf,
		manuscript.TypeCrossReference: mergeLeaf,
		manuscript.TypeInlineEquation: mergeLeaf,
		manuscript.TypeInlineFootnote: mergeLeaf,
	}
}

// Rebuild reconstructs the merged node for key from a distribution map.
func (e *Engine) Rebuild(key string, m *Map) (*manuscript.Node, error) {
	return e.newRun().rebuild(key, m)
}

func (r *run) rebuild(key string, m *Map) (*manuscript.Node, error) {
	entry, ok := m.Get(key)
	if !ok {
		return nil, errors.Wrapf(ErrNodeNotFound, "rebuild %q", key)
	}
	return r.rebuildEntry(entry)
}

func (r *run) rebuildEntry(entry *Entry) (*manuscript.Node, error) {
	switch entry.Status {
	case StatusDeleted:
		content, err := r.rebuildChildren(entry, entry.Original)
		if err != nil {
			return nil, err
		}
		return r.deleted(entry.Original, content), nil
	case StatusInserted:
		content, err := r.rebuildChildren(entry, entry.Comparison)
		if err != nil {
			return nil, err
		}
		return r.inserted(entry.Comparison, content), nil
	}

	if entry.Children == nil && entry.Original.Equal(entry.Comparison) {
		return entry.Comparison.Clone(), nil
	}
	merge, ok := strategies[entry.Comparison.Type]
	if !ok {
		merge = mergeDefault
	}
	return merge(r, entry)
}

// rebuildChildren rebuilds the distributed children of entry, or copies the content
// of fallback when nothing was distributed.
func (r *run) rebuildChildren(entry *Entry, fallback *manuscript.Node) ([]*manuscript.Node, error) {
	if entry.Children == nil {
		return cloneContent(fallback.Content), nil
	}
	return r.rebuildMap(entry.Children)
}

func (r *run) rebuildMap(m *Map) ([]*manuscript.Node, error) {
	content := make([]*manuscript.Node, 0, m.Len())
	for _, key := range m.Keys() {
		child, err := r.rebuild(key, m)
		if err != nil {
			return nil, err
		}
		content = append(content, child)
	}
	return content, nil
}

// mergeDefault passes the comparison node through with its distributed children
// rebuilt. Attribute changes are not annotated.
func mergeDefault(r *run, entry *Entry) (*manuscript.Node, error) {
	content, err := r.rebuildChildren(entry, entry.Comparison)
	if err != nil {
		return nil, err
	}
	return entry.Comparison.WithContent(content), nil
}

// mergeLeaf keeps the comparison node and records attribute changes.
func mergeLeaf(r *run, entry *Entry) (*manuscript.Node, error) {
	return r.withSetIfChanged(entry.Comparison.Clone(), entry.Original, entry.Comparison), nil
}

// mergeNested distributes the children of a container that is not distributed up
// front and rebuilds them, recording attribute changes on the container.
func mergeNested(r *run, entry *Entry) (*manuscript.Node, error) {
	children := entry.Children
	if children == nil {
		children = r.distribute(entry.Original.Content, entry.Comparison.Content)
	}
	content, err := r.rebuildMap(children)
	if err != nil {
		return nil, err
	}
	return r.withSetIfChanged(entry.Comparison.WithContent(content), entry.Original, entry.Comparison), nil
}

func mergeText(r *run, entry *Entry) (*manuscript.Node, error) {
	return r.compareText(entry.Original, entry.Comparison, entry.Comparison.Type), nil
}

// mergeParagraph diffs the text and records attribute changes.
func mergeParagraph(r *run, entry *Entry) (*manuscript.Node, error) {
	merged := r.compareText(entry.Original, entry.Comparison, entry.Comparison.Type)
	return r.withSetIfChanged(merged, entry.Original, entry.Comparison), nil
}

func mergeItemsWith(itemType manuscript.NodeType) strategy {
	return func(r *run, entry *Entry) (*manuscript.Node, error) {
		c := entry.Comparison
		return r.compareAttrs(c.Attrs, entry.Original, c, itemType, c.Type), nil
	}
}

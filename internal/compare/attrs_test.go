package compare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"manuscripts/api/internal/manuscript"
)

func TestCompareAttrsCoversSetDeleteInsert(t *testing.T) {
	e := newTestEngine()
	original := manuscript.New(manuscript.TypeBibliographyElement, attrs("be"),
		item(manuscript.TypeBibliographyItem, "a", "x", 1),
		item(manuscript.TypeBibliographyItem, "b"),
	)
	comparison := manuscript.New(manuscript.TypeBibliographyElement, attrs("be"),
		item(manuscript.TypeBibliographyItem, "a", "x", 2),
		item(manuscript.TypeBibliographyItem, "c"),
	)

	merged := e.CompareAttrs(comparison.Attrs, original, comparison,
		manuscript.TypeBibliographyItem, manuscript.TypeBibliographyElement)

	require.Len(t, merged.Content, 3)

	a, b, c := merged.Content[0], merged.Content[1], merged.Content[2]
	assert.Equal(t, "a", a.ID())
	assert.Equal(t, 2, a.Attrs["x"])
	require.Equal(t, []manuscript.Operation{manuscript.OperationSet}, operations(a))
	assert.Equal(t, 1, manuscript.TrackedChanges(a.Attrs)[0].OldAttrs["x"])

	assert.Equal(t, "b", b.ID())
	require.Equal(t, []manuscript.Operation{manuscript.OperationDelete}, operations(b))
	assert.Equal(t, "b", manuscript.TrackedChanges(b.Attrs)[0].OldAttrs["id"])

	assert.Equal(t, "c", c.ID())
	require.Equal(t, []manuscript.Operation{manuscript.OperationInsert}, operations(c))
	assert.Nil(t, manuscript.TrackedChanges(c.Attrs)[0].OldAttrs)

	assert.Empty(t, manuscript.TrackedChanges(original.Content[0].Attrs), "input must not be modified")
}

func TestCompareAttrsUnchangedItemsPassThrough(t *testing.T) {
	e := newTestEngine()
	wrapper := manuscript.New(manuscript.TypeEquationElement, attrs("ee"),
		item(manuscript.TypeEquation, "eq", "contents", "x^2"),
	)

	merged := e.CompareAttrs(wrapper.Attrs, wrapper, wrapper.Clone(),
		manuscript.TypeEquation, manuscript.TypeEquationElement)

	require.Len(t, merged.Content, 1)
	assert.Empty(t, operations(merged.Content[0]))
	assert.True(t, merged.Equal(wrapper))
}

func TestCompareAttrsMissingSide(t *testing.T) {
	e := newTestEngine()
	wrapper := manuscript.New(manuscript.TypeAffiliations, attrs("affs"),
		item(manuscript.TypeAffiliation, "aff1"),
		item(manuscript.TypeAffiliation, "aff2"),
	)

	inserted := e.CompareAttrs(wrapper.Attrs, nil, wrapper, manuscript.TypeAffiliation, manuscript.TypeAffiliations)
	deleted := e.CompareAttrs(wrapper.Attrs, wrapper, nil, manuscript.TypeAffiliation, manuscript.TypeAffiliations)

	for _, child := range inserted.Content {
		assert.Equal(t, []manuscript.Operation{manuscript.OperationInsert}, operations(child))
	}
	for _, child := range deleted.Content {
		assert.Equal(t, []manuscript.Operation{manuscript.OperationDelete}, operations(child))
	}
	assert.Len(t, inserted.Content, 2)
	assert.Len(t, deleted.Content, 2)
}

func TestCompareAttrsEmitsInsertionsAfterOriginalOrder(t *testing.T) {
	e := newTestEngine()
	original := manuscript.New(manuscript.TypeContributors, attrs("cs"),
		item(manuscript.TypeContributor, "c1"),
		item(manuscript.TypeContributor, "c2"),
	)
	comparison := manuscript.New(manuscript.TypeContributors, attrs("cs"),
		item(manuscript.TypeContributor, "c3"),
		item(manuscript.TypeContributor, "c2"),
		item(manuscript.TypeContributor, "c1"),
	)

	merged := e.CompareAttrs(comparison.Attrs, original, comparison,
		manuscript.TypeContributor, manuscript.TypeContributors)

	var ids []string
	for _, child := range merged.Content {
		ids = append(ids, child.ID())
	}
	assert.Equal(t, []string{"c1", "c2", "c3"}, ids)
}

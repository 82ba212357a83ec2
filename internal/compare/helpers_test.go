package compare

import (
	"fmt"
	"strings"
	"time"

	"manuscripts/api/internal/manuscript"
)

func newTestEngine(opts ...Option) *Engine {
	counter := 0
	base := []Option{
		WithIDGenerator(func() string {
			counter++
			return fmt.Sprintf("change-%d", counter)
		}),
		WithClock(func() time.Time { return time.UnixMilli(1700000000000) }),
	}
	return New(append(base, opts...)...)
}

func attrs(id string, kv ...any) manuscript.Attrs {
	a := manuscript.Attrs{}
	if id != "" {
		a[manuscript.AttrID] = id
	}
	for i := 0; i+1 < len(kv); i += 2 {
		a[kv[i].(string)] = kv[i+1]
	}
	return a
}

func para(id, text string) *manuscript.Node {
	return textBlock(manuscript.TypeParagraph, id, text)
}

func textBlock(t manuscript.NodeType, id, text string) *manuscript.Node {
	n := manuscript.New(t, attrs(id))
	if text != "" {
		n.Content = []*manuscript.Node{manuscript.NewText(text)}
	}
	return n
}

func item(t manuscript.NodeType, id string, kv ...any) *manuscript.Node {
	return manuscript.New(t, attrs(id, kv...))
}

func doc(children ...*manuscript.Node) *manuscript.Node {
	return manuscript.New(manuscript.TypeManuscript, attrs("MPManuscript:1"), children...)
}

// sampleDocument exercises every strategy with no change records in it.
func sampleDocument() *manuscript.Node {
	return doc(
		textBlock(manuscript.TypeTitle, "title-1", "A study of things"),
		manuscript.New(manuscript.TypeContributors, attrs("contributors-1"),
			item(manuscript.TypeContributor, "c1", "given", "Ada", "family", "Lovelace"),
			item(manuscript.TypeContributor, "c2", "given", "Alan", "family", "Turing"),
		),
		manuscript.New(manuscript.TypeAffiliations, attrs("affiliations-1"),
			item(manuscript.TypeAffiliation, "aff1", "institution", "Analytical Society"),
		),
		manuscript.New(manuscript.TypeKeywords, attrs("keywords-1"),
			textBlock(manuscript.TypeSectionTitle, "kt", "Keywords"),
			manuscript.New(manuscript.TypeKeywordGroup, attrs("kg1"),
				textBlock(manuscript.TypeKeyword, "k1", "engines"),
				textBlock(manuscript.TypeKeyword, "k2", "looms"),
			),
		),
		manuscript.New(manuscript.TypeAbstracts, attrs("abstracts-1"),
			manuscript.New(manuscript.TypeSection, attrs("abs-s1"),
				textBlock(manuscript.TypeSectionTitle, "abs-t1", "Abstract"),
				para("abs-p1", "We describe engines."),
			),
		),
		manuscript.New(manuscript.TypeBody, attrs("body-1"),
			manuscript.New(manuscript.TypeSection, attrs("s1"),
				textBlock(manuscript.TypeSectionTitle, "t1", "Introduction"),
				manuscript.New(manuscript.TypeParagraph, attrs("p1"),
					manuscript.NewText("Engines "),
					manuscript.NewText("compute", manuscript.Mark{Type: manuscript.MarkItalic}),
					manuscript.NewText(" numbers "),
					manuscript.New(manuscript.TypeCitation, attrs("cit1", "rids", []any{"b1"})),
					manuscript.NewText("."),
				),
				para("p2", "Second paragraph."),
			),
			manuscript.New(manuscript.TypeFigureElement, attrs("fe1"),
				item(manuscript.TypeFigure, "f1", "src", "engine.png"),
				manuscript.New(manuscript.TypeFigcaption, attrs(""),
					textBlock(manuscript.TypeCaptionTitle, "", "Figure 1"),
					textBlock(manuscript.TypeCaption, "", "An engine."),
				),
			),
			manuscript.New(manuscript.TypeTableElement, attrs("te1"),
				manuscript.New(manuscript.TypeTable, attrs("tab1"),
					manuscript.New(manuscript.TypeTableRow, attrs(""),
						textBlock(manuscript.TypeTableHeader, "", "Name"),
						textBlock(manuscript.TypeTableHeader, "", "Year"),
					),
					manuscript.New(manuscript.TypeTableRow, attrs(""),
						textBlock(manuscript.TypeTableCell, "", "Difference engine"),
						textBlock(manuscript.TypeTableCell, "", "1822"),
					),
				),
			),
			manuscript.New(manuscript.TypeEquationElement, attrs("ee1"),
				item(manuscript.TypeEquation, "eq1", "contents", "e=mc^2"),
			),
		),
		manuscript.New(manuscript.TypeBackmatter, attrs("backmatter-1"),
			manuscript.New(manuscript.TypeBibliographySection, attrs("bs1"),
				textBlock(manuscript.TypeSectionTitle, "bt1", "References"),
				manuscript.New(manuscript.TypeBibliographyElement, attrs("be1"),
					item(manuscript.TypeBibliographyItem, "b1", "title", "Sketch of the analytical engine"),
					item(manuscript.TypeBibliographyItem, "b2", "title", "On computable numbers"),
				),
			),
		),
	)
}

// find returns the first node below n with the given id.
func find(n *manuscript.Node, id string) *manuscript.Node {
	var found *manuscript.Node
	n.Walk(func(node *manuscript.Node) bool {
		if found != nil {
			return false
		}
		if node.ID() == id {
			found = node
			return false
		}
		return true
	})
	return found
}

func findType(n *manuscript.Node, t manuscript.NodeType) *manuscript.Node {
	var found *manuscript.Node
	n.Walk(func(node *manuscript.Node) bool {
		if found != nil {
			return false
		}
		if node.Type == t {
			found = node
			return false
		}
		return true
	})
	return found
}

func operations(n *manuscript.Node) []manuscript.Operation {
	var ops []manuscript.Operation
	for _, change := range manuscript.TrackedChanges(n.Attrs) {
		ops = append(ops, change.Operation)
	}
	return ops
}

// sideText concatenates the text runs of a merged text block, leaving out runs
// carrying the skip mark.
func sideText(n *manuscript.Node, skip manuscript.MarkType) string {
	var b strings.Builder
	for _, child := range n.Content {
		if !child.IsText() || hasMark(child, skip) {
			continue
		}
		b.WriteString(child.Text)
	}
	return b.String()
}

func hasMark(n *manuscript.Node, t manuscript.MarkType) bool {
	for _, mark := range n.Marks {
		if mark.Type == t {
			return true
		}
	}
	return false
}

// Package manuscript defines the structured manuscript tree: the closed node-type
// vocabulary, the JSON node model, and the dataTracked change records attached to nodes
// and text marks.
package manuscript

// NodeType is a tag from the fixed manuscript vocabulary.
type NodeType string

const (
	TypeManuscript NodeType = "manuscript"

	TypeTitle        NodeType = "title"
	TypeContributors NodeType = "contributors"
	TypeContributor  NodeType = "contributor"
	TypeAffiliations NodeType = "affiliations"
	TypeAffiliation  NodeType = "affiliation"
	TypeKeywords     NodeType = "keywords"
	TypeKeywordGroup NodeType = "keyword_group"
	TypeKeyword      NodeType = "keyword"
	TypeSupplements  NodeType = "supplements"
	TypeSupplement   NodeType = "supplement"
	TypeComments     NodeType = "comments"
	TypeComment      NodeType = "comment"

	TypeAbstracts  NodeType = "abstracts"
	TypeBody       NodeType = "body"
	TypeBackmatter NodeType = "backmatter"

	TypeSection           NodeType = "section"
	TypeSectionTitle      NodeType = "section_title"
	TypeParagraph         NodeType = "paragraph"
	TypeBlockquoteElement NodeType = "blockquote_element"
	TypeList              NodeType = "list"
	TypeListItem          NodeType = "list_item"
	TypeBoxElement        NodeType = "box_element"

	TypeFigureElement NodeType = "figure_element"
	TypeFigure        NodeType = "figure"
	TypeFigcaption    NodeType = "figcaption"
	TypeCaptionTitle  NodeType = "caption_title"
	TypeCaption       NodeType = "caption"
	TypeAltText       NodeType = "alt_text"
	TypeLongDesc      NodeType = "long_desc"
	TypeListing       NodeType = "listing"

	TypeTableElement NodeType = "table_element"
	TypeTable        NodeType = "table"
	TypeTableRow     NodeType = "table_row"
	TypeTableCell    NodeType = "table_cell"
	TypeTableHeader  NodeType = "table_header"

	TypeEquationElement NodeType = "equation_element"
	TypeEquation        NodeType = "equation"

	TypeBibliographySection NodeType = "bibliography_section"
	TypeBibliographyElement NodeType = "bibliography_element"
	TypeBibliographyItem    NodeType = "bibliography_item"

	TypeFootnotesSection NodeType = "footnotes_section"
	TypeFootnotesElement NodeType = "footnotes_element"
	TypeFootnote         NodeType = "footnote"

	TypeText           NodeType = "text"
	TypeHardBreak      NodeType = "hard_break"
	TypeCitation       NodeType = "citation"
	TypeCrossReference NodeType = "cross_reference"
	TypeInlineEquation NodeType = "inline_equation"
	TypeInlineFootnote NodeType = "inline_footnote"
)

// NodeSpec describes how a node type behaves inside the tree.
type NodeSpec struct {
	Type NodeType
	// Inline nodes live inside text blocks.
	Inline bool
	// TextBlock nodes hold inline content (text runs and inline atoms).
	TextBlock bool
	// Distribute marks containers whose block children are matched individually
	// when two trees are compared.
	Distribute bool
	// Atom nodes are leaves without editable content.
	Atom bool
}

var vocabulary = []NodeSpec{
	{Type: TypeManuscript},

	{Type: TypeTitle, TextBlock: true},
	{Type: TypeContributors},
	{Type: TypeContributor, Atom: true},
	{Type: TypeAffiliations},
	{Type: TypeAffiliation, Atom: true},
	{Type: TypeKeywords},
	{Type: TypeKeywordGroup},
	{Type: TypeKeyword, TextBlock: true},
	{Type: TypeSupplements},
	{Type: TypeSupplement, Atom: true},
	{Type: TypeComments},
	{Type: TypeComment, Atom: true},

	{Type: TypeAbstracts, Distribute: true},
	{Type: TypeBody, Distribute: true},
	{Type: TypeBackmatter, Distribute: true},

	{Type: TypeSection, Distribute: true},
	{Type: TypeSectionTitle, TextBlock: true},
	{Type: TypeParagraph, TextBlock: true},
	{Type: TypeBlockquoteElement, Distribute: true},
	{Type: TypeList, Distribute: true},
	{Type: TypeListItem, Distribute: true},
	{Type: TypeBoxElement, Distribute: true},

	{Type: TypeFigureElement, Distribute: true},
	{Type: TypeFigure, Atom: true},
	{Type: TypeFigcaption},
	{Type: TypeCaptionTitle, TextBlock: true},
	{Type: TypeCaption, TextBlock: true},
	{Type: TypeAltText, TextBlock: true},
	{Type: TypeLongDesc, TextBlock: true},
	{Type: TypeListing, Atom: true},

	{Type: TypeTableElement},
	{Type: TypeTable},
	{Type: TypeTableRow},
	{Type: TypeTableCell, TextBlock: true},
	{Type: TypeTableHeader, TextBlock: true},

	{Type: TypeEquationElement},
	{Type: TypeEquation, Atom: true},

	{Type: TypeBibliographySection, Distribute: true},
	{Type: TypeBibliographyElement},
	{Type: TypeBibliographyItem, Atom: true},

	{Type: TypeFootnotesSection, Distribute: true},
	{Type: TypeFootnotesElement, Distribute: true},
	{Type: TypeFootnote, Distribute: true},

	{Type: TypeText, Inline: true},
	{Type: TypeHardBreak, Inline: true, Atom: true},
	{Type: TypeCitation, Inline: true, Atom: true},
	{Type: TypeCrossReference, Inline: true, Atom: true},
	{Type: TypeInlineEquation, Inline: true, Atom: true},
	{Type: TypeInlineFootnote, Inline: true, Atom: true},
}

var specsByType = func() map[NodeType]NodeSpec {
	specs := make(map[NodeType]NodeSpec, len(vocabulary))
	for _, spec := range vocabulary {
		specs[spec.Type] = spec
	}
	return specs
}()

// Spec returns the spec registered for t.
func Spec(t NodeType) (NodeSpec, bool) {
	spec, ok := specsByType[t]
	return spec, ok
}

// NodeTypes returns the whole vocabulary in declaration order.
func NodeTypes() []NodeType {
	types := make([]NodeType, 0, len(vocabulary))
	for _, spec := range vocabulary {
		types = append(types, spec.Type)
	}
	return types
}

func (t NodeType) Known() bool {
	_, ok := specsByType[t]
	return ok
}

func (t NodeType) IsInline() bool {
	return specsByType[t].Inline
}

func (t NodeType) IsTextBlock() bool {
	return specsByType[t].TextBlock
}

func (t NodeType) Distributes() bool {
	return specsByType[t].Distribute
}

// MarkType is a tag from the fixed mark vocabulary.
type MarkType string

const (
	MarkBold          MarkType = "bold"
	MarkItalic        MarkType = "italic"
	MarkUnderline     MarkType = "underline"
	MarkStrikethrough MarkType = "strikethrough"
	MarkSubscript     MarkType = "subscript"
	MarkSuperscript   MarkType = "superscript"
	MarkSmallCaps     MarkType = "smallcaps"
	MarkCode          MarkType = "code"
	MarkLink          MarkType = "link"
	MarkTrackedInsert MarkType = "tracked_insert"
	MarkTrackedDelete MarkType = "tracked_delete"
)

var markTypes = map[MarkType]struct{}{
	MarkBold:          {},
	MarkItalic:        {},
	MarkUnderline:     {},
	MarkStrikethrough: {},
	MarkSubscript:     {},
	MarkSuperscript:   {},
	MarkSmallCaps:     {},
	MarkCode:          {},
	MarkLink:          {},
	MarkTrackedInsert: {},
	MarkTrackedDelete: {},
}

func (t MarkType) Known() bool {
	_, ok := markTypes[t]
	return ok
}

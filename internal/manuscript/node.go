package manuscript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Node is one element of a manuscript tree. The JSON shape matches the editor's
// serialized form.
type Node struct {
	Type    NodeType `json:"type"`
	Attrs   Attrs    `json:"attrs,omitempty"`
	Content []*Node  `json:"content,omitempty"`
	Text    string   `json:"text,omitempty"`
	Marks   []Mark   `json:"marks,omitempty"`
}

// Mark is inline formatting applied to a text node.
type Mark struct {
	Type  MarkType `json:"type"`
	Attrs Attrs    `json:"attrs,omitempty"`
}

// Attrs is the flat attribute set of a node or mark.
type Attrs map[string]any

const (
	AttrID          = "id"
	AttrObjectID    = "objectId"
	AttrDataTracked = "dataTracked"
)

// ID returns the node identity: attrs.id, falling back to attrs.objectId.
func (a Attrs) ID() string {
	for _, key := range []string{AttrID, AttrObjectID} {
		value, ok := a[key]
		if !ok || value == nil {
			continue
		}
		if s, ok := value.(string); ok {
			if strings.TrimSpace(s) != "" {
				return s
			}
			continue
		}
		return fmt.Sprint(value)
	}
	return ""
}

// Clone deep-copies the attribute set.
func (a Attrs) Clone() Attrs {
	if a == nil {
		return nil
	}
	out := make(Attrs, len(a))
	for key, value := range a {
		out[key] = cloneValue(value)
	}
	return out
}

// Without returns a copy with the given keys removed.
func (a Attrs) Without(keys ...string) Attrs {
	out := a.Clone()
	if out == nil {
		out = Attrs{}
	}
	for _, key := range keys {
		delete(out, key)
	}
	return out
}

// EqualIgnoringTracked compares two attribute sets by canonical JSON, ignoring
// dataTracked.
func (a Attrs) EqualIgnoringTracked(other Attrs) bool {
	left := canonicalJSON(a.Without(AttrDataTracked))
	right := canonicalJSON(other.Without(AttrDataTracked))
	return left != nil && right != nil && bytes.Equal(left, right)
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return map[string]any(Attrs(v).Clone())
	case Attrs:
		return v.Clone()
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), v...)
	case []TrackedChange:
		out := make([]TrackedChange, len(v))
		for i, change := range v {
			out[i] = change.Clone()
		}
		return out
	case TrackedChange:
		return v.Clone()
	default:
		return v
	}
}

// Clone deep-copies the node and its subtree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		Type:  n.Type,
		Attrs: n.Attrs.Clone(),
		Text:  n.Text,
		Marks: CloneMarks(n.Marks),
	}
	if len(n.Content) > 0 {
		out.Content = make([]*Node, len(n.Content))
		for i, child := range n.Content {
			out.Content[i] = child.Clone()
		}
	}
	return out
}

// CloneMarks deep-copies a mark list.
func CloneMarks(marks []Mark) []Mark {
	if len(marks) == 0 {
		return nil
	}
	out := make([]Mark, len(marks))
	for i, mark := range marks {
		out[i] = Mark{Type: mark.Type, Attrs: mark.Attrs.Clone()}
	}
	return out
}

// WithContent returns a shallow copy of n holding content instead of n's children.
func (n *Node) WithContent(content []*Node) *Node {
	return &Node{
		Type:    n.Type,
		Attrs:   n.Attrs.Clone(),
		Content: content,
		Text:    n.Text,
		Marks:   CloneMarks(n.Marks),
	}
}

// ID returns the node identity, or "" when the node carries none.
func (n *Node) ID() string {
	if n == nil {
		return ""
	}
	return n.Attrs.ID()
}

func (n *Node) IsText() bool {
	return n != nil && n.Type == TypeText
}

// Equal reports whether two subtrees serialize identically.
func (n *Node) Equal(other *Node) bool {
	if n == nil || other == nil {
		return n == other
	}
	left := canonicalJSON(n)
	right := canonicalJSON(other)
	return left != nil && right != nil && bytes.Equal(left, right)
}

// TextContent concatenates the text of every descendant text node.
func (n *Node) TextContent() string {
	if n == nil {
		return ""
	}
	if n.IsText() {
		return n.Text
	}
	var b strings.Builder
	for _, child := range n.Content {
		b.WriteString(child.TextContent())
	}
	return b.String()
}

// Walk visits n and every descendant depth first. Returning false skips the
// children of the visited node.
func (n *Node) Walk(visit func(*Node) bool) {
	if n == nil {
		return
	}
	if !visit(n) {
		return
	}
	for _, child := range n.Content {
		child.Walk(visit)
	}
}

// NewText creates a text node.
func NewText(text string, marks ...Mark) *Node {
	return &Node{Type: TypeText, Text: text, Marks: CloneMarks(marks)}
}

// New creates a node with the given attributes and children.
func New(t NodeType, attrs Attrs, content ...*Node) *Node {
	return &Node{Type: t, Attrs: attrs, Content: content}
}

func canonicalJSON(value any) []byte {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	// Round-trip through a generic value so typed and decoded attributes compare alike.
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil
	}
	normalized, err := json.Marshal(generic)
	if err != nil {
		return nil
	}
	return normalized
}

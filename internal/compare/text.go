package compare

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"manuscripts/api/internal/manuscript"
)

// firstPlaceholder is the first rune handed to inline atoms while diffing. The
// supplementary private use area never occurs in manuscript prose.
const firstPlaceholder = rune(0xF0000)

// CompareText diffs the inline content of two text blocks at character granularity
// and returns a wrapperType node holding equal, deleted and inserted runs.
func (e *Engine) CompareText(original, comparison *manuscript.Node, wrapperType manuscript.NodeType) *manuscript.Node {
	return e.newRun().compareText(original, comparison, wrapperType)
}

// inlineSeq is a text block flattened to one rune per character. Inline atoms occupy
// a single placeholder rune.
type inlineSeq struct {
	runes []rune
	marks [][]manuscript.Mark
	atoms []*manuscript.Node
}

// placeholders assigns one rune per distinct inline atom, skipping runes that the
// compared text already uses.
type placeholders struct {
	next  rune
	used  map[rune]bool
	byKey map[string]rune
}

func newPlaceholders(nodes ...*manuscript.Node) *placeholders {
	p := &placeholders{next: firstPlaceholder, used: make(map[rune]bool), byKey: make(map[string]rune)}
	for _, n := range nodes {
		if n == nil {
			continue
		}
		for _, child := range n.Content {
			for _, ch := range child.Text {
				if ch >= firstPlaceholder {
					p.used[ch] = true
				}
			}
		}
	}
	return p
}

func (p *placeholders) runeFor(atom *manuscript.Node) rune {
	key := atomKey(atom)
	if ch, ok := p.byKey[key]; ok {
		return ch
	}
	for p.used[p.next] {
		p.next++
	}
	ch := p.next
	p.next++
	p.byKey[key] = ch
	return ch
}

// atomKey identifies an inline atom by type and attributes. Pending change records
// are not part of the identity.
func atomKey(atom *manuscript.Node) string {
	raw, err := json.Marshal(atom.Attrs.Without(manuscript.AttrDataTracked))
	if err != nil {
		return string(atom.Type)
	}
	return string(atom.Type) + string(raw)
}

func (p *placeholders) flatten(n *manuscript.Node) inlineSeq {
	var seq inlineSeq
	if n == nil {
		return seq
	}
	for _, child := range n.Content {
		if child == nil {
			continue
		}
		if child.IsText() {
			for _, ch := range child.Text {
				seq.runes = append(seq.runes, ch)
				seq.marks = append(seq.marks, child.Marks)
				seq.atoms = append(seq.atoms, nil)
			}
			continue
		}
		seq.runes = append(seq.runes, p.runeFor(child))
		seq.marks = append(seq.marks, nil)
		seq.atoms = append(seq.atoms, child)
	}
	return seq
}

func (r *run) compareText(original, comparison *manuscript.Node, wrapperType manuscript.NodeType) *manuscript.Node {
	table := newPlaceholders(original, comparison)
	from := table.flatten(original)
	to := table.flatten(comparison)

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = r.engine.diffTimeout
	diffs := dmp.DiffMain(string(from.runes), string(to.runes), false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var content []*manuscript.Node
	fromPos, toPos := 0, 0
	for _, d := range diffs {
		n := utf8.RuneCountInString(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			content = append(content, r.emitRuns(to, toPos, toPos+n, "")...)
			fromPos += n
			toPos += n
		case diffmatchpatch.DiffDelete:
			content = append(content, r.emitRuns(from, fromPos, fromPos+n, manuscript.OperationDelete)...)
			fromPos += n
		case diffmatchpatch.DiffInsert:
			content = append(content, r.emitRuns(to, toPos, toPos+n, manuscript.OperationInsert)...)
			toPos += n
		}
	}

	attrsFrom := comparison
	if attrsFrom == nil {
		attrsFrom = original
	}
	out := &manuscript.Node{Type: wrapperType, Content: content}
	if attrsFrom != nil {
		out.Attrs = attrsFrom.Attrs.Clone()
	}
	return out
}

// emitRuns turns seq[start:end] into text nodes, one per stretch of identical marks.
// With a non-empty op every text run gets its own tracking mark and every atom its
// own node annotation.
func (r *run) emitRuns(seq inlineSeq, start, end int, op manuscript.Operation) []*manuscript.Node {
	if end > len(seq.runes) {
		end = len(seq.runes)
	}
	var out []*manuscript.Node
	var text []rune
	var marks []manuscript.Mark

	flush := func() {
		if len(text) == 0 {
			return
		}
		node := manuscript.NewText(string(text), marks...)
		if op != "" {
			node.Marks = append(node.Marks, r.trackingMark(op))
		}
		out = append(out, node)
		text = nil
	}

	for i := start; i < end; i++ {
		if atom := seq.atoms[i]; atom != nil {
			flush()
			out = append(out, r.emitAtom(atom, op))
			continue
		}
		if len(text) > 0 && !sameMarks(marks, seq.marks[i]) {
			flush()
		}
		if len(text) == 0 {
			marks = seq.marks[i]
		}
		text = append(text, seq.runes[i])
	}
	flush()
	return out
}

func (r *run) emitAtom(atom *manuscript.Node, op manuscript.Operation) *manuscript.Node {
	switch op {
	case manuscript.OperationInsert:
		return r.inserted(atom, cloneContent(atom.Content))
	case manuscript.OperationDelete:
		return r.deleted(atom, cloneContent(atom.Content))
	default:
		return atom.Clone()
	}
}

func (r *run) trackingMark(op manuscript.Operation) manuscript.Mark {
	markType := manuscript.MarkTrackedInsert
	if op == manuscript.OperationDelete {
		markType = manuscript.MarkTrackedDelete
	}
	return manuscript.Mark{
		Type:  markType,
		Attrs: manuscript.Attrs{manuscript.AttrDataTracked: r.change(op, "", nil)},
	}
}

func sameMarks(a, b []manuscript.Mark) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 || &a[0] == &b[0] {
		return true
	}
	for i := range a {
		if a[i].Type != b[i].Type || !a[i].Attrs.EqualIgnoringTracked(b[i].Attrs) {
			return false
		}
	}
	return true
}

package manuscript

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// ErrMalformedTree indicates a serialized tree that does not decode into a valid
	// manuscript tree.
	ErrMalformedTree = errors.New("malformed manuscript tree")
	// ErrUnknownNodeType indicates a node or mark type outside the vocabulary.
	ErrUnknownNodeType = errors.New("unknown node type")
)

// Snapshot is a named, timestamped serialization of a whole manuscript tree.
type Snapshot struct {
	ID        string          `json:"_id"`
	Name      string          `json:"name"`
	CreatedAt time.Time       `json:"createdAt"`
	Snapshot  json.RawMessage `json:"snapshot"`
}

// Document loads and validates the tree wrapped by the snapshot.
func (s Snapshot) Document() (*Node, error) {
	doc, err := Load(s.Snapshot)
	if err != nil {
		return nil, errors.Wrapf(err, "load snapshot %s", s.ID)
	}
	return doc, nil
}

// Load decodes a serialized manuscript tree and checks it against the vocabulary.
func Load(raw []byte) (*Node, error) {
	if len(raw) == 0 {
		return nil, errors.WithHint(ErrMalformedTree, "snapshot payload is empty")
	}
	var root Node
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode manuscript tree"), ErrMalformedTree)
	}
	if root.Type != TypeManuscript {
		return nil, errors.Wrapf(ErrMalformedTree, "root node is %q, want %q", root.Type, TypeManuscript)
	}
	if err := Validate(&root); err != nil {
		return nil, err
	}
	return &root, nil
}

// Validate walks the tree and reports the first structural violation.
func Validate(root *Node) error {
	return validate(root, "$")
}

func validate(n *Node, path string) error {
	if n == nil {
		return errors.Wrapf(ErrMalformedTree, "%s: null node", path)
	}
	if !n.Type.Known() {
		return errors.Wrapf(ErrUnknownNodeType, "%s: %q", path, n.Type)
	}
	if n.IsText() {
		if n.Text == "" {
			return errors.Wrapf(ErrMalformedTree, "%s: empty text node", path)
		}
		if len(n.Content) > 0 {
			return errors.Wrapf(ErrMalformedTree, "%s: text node with children", path)
		}
		for _, mark := range n.Marks {
			if !mark.Type.Known() {
				return errors.Wrapf(ErrUnknownNodeType, "%s: mark %q", path, mark.Type)
			}
		}
		return nil
	}
	if n.Text != "" {
		return errors.Wrapf(ErrMalformedTree, "%s: %s node carries text", path, n.Type)
	}
	inlineParent := n.Type.IsTextBlock()
	for i, child := range n.Content {
		childPath := path + "." + string(n.Type) + "[" + strconv.Itoa(i) + "]"
		if child == nil {
			return errors.Wrapf(ErrMalformedTree, "%s: null node", childPath)
		}
		if child.Type.Known() && child.Type.IsInline() != inlineParent {
			return errors.Wrapf(ErrMalformedTree, "%s: %s not allowed in %s", childPath, child.Type, n.Type)
		}
		if err := validate(child, childPath); err != nil {
			return err
		}
	}
	return nil
}

package compare

import (
	"fmt"

	"manuscripts/api/internal/manuscript"
)

// Key derives the identity key of a node: "{type}:{id}" when the node carries an id
// or objectId, "{type}:{ordinal}" otherwise. Ordinal keys are only stable while the
// sibling order is.
func Key(n *manuscript.Node, ordinal int) string {
	key, _ := identity(n, ordinal)
	return key
}

func identity(n *manuscript.Node, ordinal int) (string, bool) {
	if id := n.ID(); id != "" {
		return fmt.Sprintf("%s:%s", n.Type, id), true
	}
	return fmt.Sprintf("%s:%d", n.Type, ordinal), false
}

// keyer hands out identity keys for one side of a sibling list. Ordinals count
// siblings of the same type; repeated identities get a "#n" suffix so every node
// keeps its own key.
type keyer struct {
	side     string
	strict   bool
	ordinals map[manuscript.NodeType]int
	seen     map[string]int
}

func newKeyer(side string, strict bool) *keyer {
	return &keyer{
		side:     side,
		strict:   strict,
		ordinals: make(map[manuscript.NodeType]int),
		seen:     make(map[string]int),
	}
}

func (k *keyer) next(n *manuscript.Node) (string, bool) {
	ordinal := k.ordinals[n.Type]
	k.ordinals[n.Type] = ordinal + 1

	key, byID := identity(n, ordinal)
	if !byID && k.strict {
		key += "@" + k.side
	}
	count := k.seen[key]
	k.seen[key] = count + 1
	if count > 0 {
		key = fmt.Sprintf("%s#%d", key, count+1)
	}
	return key, byID
}

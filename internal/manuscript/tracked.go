package manuscript

import (
	"encoding/json"
)

// Operation is the kind of pending edit a TrackedChange records.
type Operation string

const (
	OperationInsert Operation = "insert"
	OperationDelete Operation = "delete"
	OperationSet    Operation = "set"
)

const StatusPending = "pending"

// TrackedChange is one dataTracked record. Inserts carry no prior state; deletes and
// sets carry the attributes the node had in the baseline.
type TrackedChange struct {
	ID        string    `json:"id"`
	Operation Operation `json:"operation"`
	Status    string    `json:"status"`
	NodeID    string    `json:"nodeId,omitempty"`
	OldAttrs  Attrs     `json:"oldAttrs,omitempty"`
	CreatedAt int64     `json:"createdAt"`
}

func (c TrackedChange) Clone() TrackedChange {
	c.OldAttrs = c.OldAttrs.Clone()
	return c
}

// TrackedChanges decodes attrs.dataTracked. Values built in memory and values decoded
// from JSON are both accepted.
func TrackedChanges(attrs Attrs) []TrackedChange {
	raw, ok := attrs[AttrDataTracked]
	if !ok || raw == nil {
		return nil
	}
	switch v := raw.(type) {
	case []TrackedChange:
		return v
	case TrackedChange:
		return []TrackedChange{v}
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var changes []TrackedChange
	if err := json.Unmarshal(encoded, &changes); err == nil {
		return changes
	}
	var single TrackedChange
	if err := json.Unmarshal(encoded, &single); err == nil && single.Operation != "" {
		return []TrackedChange{single}
	}
	return nil
}

// WithTrackedChange returns a copy of attrs with change appended to dataTracked.
func WithTrackedChange(attrs Attrs, change TrackedChange) Attrs {
	out := attrs.Clone()
	if out == nil {
		out = Attrs{}
	}
	existing := TrackedChanges(attrs)
	changes := make([]TrackedChange, 0, len(existing)+1)
	for _, item := range existing {
		changes = append(changes, item.Clone())
	}
	out[AttrDataTracked] = append(changes, change)
	return out
}

// MarkTrackedChange returns the change carried by a tracked_insert/tracked_delete mark.
func MarkTrackedChange(mark Mark) (TrackedChange, bool) {
	if mark.Type != MarkTrackedInsert && mark.Type != MarkTrackedDelete {
		return TrackedChange{}, false
	}
	changes := TrackedChanges(mark.Attrs)
	if len(changes) == 0 {
		return TrackedChange{}, false
	}
	return changes[0], true
}

// HasTracking reports whether any node or mark in the subtree carries a change record.
func HasTracking(n *Node) bool {
	found := false
	n.Walk(func(node *Node) bool {
		if found {
			return false
		}
		if len(TrackedChanges(node.Attrs)) > 0 {
			found = true
			return false
		}
		for _, mark := range node.Marks {
			if _, ok := MarkTrackedChange(mark); ok {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// StripTracking returns a copy of the subtree with every change record removed:
// attrs.dataTracked on nodes and the tracked_insert/tracked_delete marks on text.
func StripTracking(n *Node) *Node {
	if n == nil {
		return nil
	}
	out := &Node{Type: n.Type, Text: n.Text}
	if _, ok := n.Attrs[AttrDataTracked]; ok {
		out.Attrs = n.Attrs.Without(AttrDataTracked)
	} else {
		out.Attrs = n.Attrs.Clone()
	}
	for _, mark := range n.Marks {
		if mark.Type == MarkTrackedInsert || mark.Type == MarkTrackedDelete {
			continue
		}
		out.Marks = append(out.Marks, Mark{Type: mark.Type, Attrs: mark.Attrs.Clone()})
	}
	if len(n.Content) > 0 {
		out.Content = make([]*Node, len(n.Content))
		for i, child := range n.Content {
			out.Content[i] = StripTracking(child)
		}
	}
	return out
}

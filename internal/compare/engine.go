// Package compare merges two versions of a manuscript tree into one tree annotated with
// insert, delete and set change records, ready for side-by-side review.
//
// The engine works in two phases. Distribution matches the nodes of both versions by
// identity and classifies them as unchanged, inserted or deleted. Rebuilding walks the
// resulting comparison map and dispatches every matched pair to a merge strategy chosen
// by node type: text diffing for text blocks, cell-by-cell diffing for tables,
// attribute diffing for flat collections, structural pass-through otherwise.
//
// An Engine holds no per-call state and may be shared between goroutines.
package compare

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"manuscripts/api/internal/manuscript"
)

// ErrNodeNotFound reports a comparison map lookup for a key it does not hold. It
// indicates a defect in the caller, not bad input.
var ErrNodeNotFound = errors.New("node not found")

// Engine compares manuscript trees.
type Engine struct {
	newID       func() string
	now         func() time.Time
	logger      *zap.Logger
	strict      bool
	diffTimeout time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator replaces the UUIDv4 generator used for change record ids.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// WithClock replaces the clock used to stamp change records.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithStrictIdentity disables positional pairing: siblings without an id are never
// considered the same node, so they always surface as a delete plus an insert.
func WithStrictIdentity(strict bool) Option {
	return func(e *Engine) {
		e.strict = strict
	}
}

// WithDiffTimeout bounds the time spent in a single character diff. Zero means no limit.
func WithDiffTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout >= 0 {
			e.diffTimeout = timeout
		}
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{
		newID:       uuid.NewString,
		now:         time.Now,
		logger:      zap.NewNop(),
		diffTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Fingerprint names the options that shape the merged tree. Results computed by
// engines with different fingerprints must not be reused for one another.
func (e *Engine) Fingerprint() string {
	mode := "ordinal"
	if e.strict {
		mode = "strict"
	}
	return mode + "-" + e.diffTimeout.String()
}

// run carries the state of a single comparison.
type run struct {
	engine         *Engine
	ordinalMatches int
}

func (e *Engine) newRun() *run {
	return &run{engine: e}
}

func (r *run) change(op manuscript.Operation, nodeID string, oldAttrs manuscript.Attrs) manuscript.TrackedChange {
	return manuscript.TrackedChange{
		ID:        r.engine.newID(),
		Operation: op,
		Status:    manuscript.StatusPending,
		NodeID:    nodeID,
		OldAttrs:  oldAttrs,
		CreatedAt: r.engine.now().UnixMilli(),
	}
}

// annotate copies n with content as its children and change appended to its
// dataTracked list.
func annotate(n *manuscript.Node, content []*manuscript.Node, change manuscript.TrackedChange) *manuscript.Node {
	out := n.WithContent(content)
	out.Attrs = manuscript.WithTrackedChange(n.Attrs, change)
	return out
}

func (r *run) inserted(n *manuscript.Node, content []*manuscript.Node) *manuscript.Node {
	return annotate(n, content, r.change(manuscript.OperationInsert, n.ID(), nil))
}

func (r *run) deleted(n *manuscript.Node, content []*manuscript.Node) *manuscript.Node {
	return annotate(n, content, r.change(manuscript.OperationDelete, n.ID(), n.Attrs.Without(manuscript.AttrDataTracked)))
}

// withSetIfChanged annotates merged with a set record when the attributes of the two
// versions differ.
func (r *run) withSetIfChanged(merged, original, comparison *manuscript.Node) *manuscript.Node {
	if original == nil || comparison == nil || original.Attrs.EqualIgnoringTracked(comparison.Attrs) {
		return merged
	}
	merged.Attrs = manuscript.WithTrackedChange(merged.Attrs,
		r.change(manuscript.OperationSet, comparison.ID(), original.Attrs.Without(manuscript.AttrDataTracked)))
	return merged
}

func cloneContent(nodes []*manuscript.Node) []*manuscript.Node {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]*manuscript.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

package neolink

import (
	"context"

	"github.com/saulfrancisco-ruizacevedo/go-neolink/graph"
)

// otherNodeTypeFilter accepts edges whose far node carries label and passes
// the optional accept predicate. It reads but never writes.
type otherNodeTypeFilter struct {
	ownerID string
	label   string
	accept  func(*graph.Node) bool
}

func newOtherNodeTypeFilter(ownerID string, t *NodeType, accept func(*graph.Node) bool) otherNodeTypeFilter {
	return otherNodeTypeFilter{ownerID: ownerID, label: t.Name, accept: accept}
}

// Accept loads the far node of e and reports whether it qualifies. The loaded
// node is returned so callers need not fetch it again.
func (f otherNodeTypeFilter) Accept(ctx context.Context, tx graph.Tx, e *graph.Edge) (bool, *graph.Node, error) {
	other, err := tx.Node(ctx, e.OtherID(f.ownerID))
	if err != nil {
		return false, nil, err
	}
	if f.accept != nil && !f.accept(other) {
		return false, other, nil
	}
	return other.HasLabel(f.label), other, nil
}

package models

import (
	"time"
)

// Position is the side of its parent a node is attached to.
type Position string

const (
	PositionLeft  Position = "left"
	PositionRight Position = "right"
)

// Valid reports whether p is one of the two binary positions.
func (p Position) Valid() bool {
	return p == PositionLeft || p == PositionRight
}

// TreeNode is a participant's place in the binary placement tree.
// One node per participant; nodes are never removed.
type TreeNode struct {
	NodeID                string    `json:"nodeId" bson:"_id"`
	ParticipantID         string    `json:"participantId" bson:"participantId"`
	ParentNodeID          *string   `json:"parentNodeId,omitempty" bson:"parentNodeId"`
	ReferrerParticipantID string    `json:"referrerParticipantId,omitempty" bson:"referrerParticipantId,omitempty"`
	Level                 int       `json:"level" bson:"level"`
	Position              *Position `json:"position,omitempty" bson:"position,omitempty"`
	LeftChildCount        int       `json:"leftChildCount" bson:"leftChildCount"`
	RightChildCount       int       `json:"rightChildCount" bson:"rightChildCount"`
	Root                  bool      `json:"-" bson:"root,omitempty"` // only set on the root, backs the unique root index
	CreatedAt             time.Time `json:"createdAt" bson:"createdAt"`
}

// IsRoot reports whether the node has no parent.
func (n TreeNode) IsRoot() bool {
	return n.ParentNodeID == nil
}

// DirectChildCount is the number of children attached on both sides.
func (n TreeNode) DirectChildCount() int {
	return n.LeftChildCount + n.RightChildCount
}

// NextPosition applies the spillover rule: left while the left side is not
// larger than the right side, right otherwise.
func (n TreeNode) NextPosition() Position {
	if n.LeftChildCount <= n.RightChildCount {
		return PositionLeft
	}
	return PositionRight
}

// Descendant is a node found below another, with its distance from it.
type Descendant struct {
	Node          TreeNode `json:"node"`
	RelativeLevel int      `json:"relativeLevel"`
}

// NewNodeInput carries what the tree store needs to insert a node.
type NewNodeInput struct {
	ParticipantID         string
	ParentNodeID          *string
	ReferrerParticipantID string
	Level                 int
	Position              *Position
}

// PositionPtr returns a pointer to p, for optional position fields.
func PositionPtr(p Position) *Position {
	return &p
}

package store

import (
	"context"

	"github.com/pkg/errors"
)

// ErrEmptyIDList is returned when a delete would not be scoped to any line.
var ErrEmptyIDList = errors.New("no conversation line ids to delete")

// ConversationLine is one archived chat message waiting in the backlog.
type ConversationLine struct {
	ID      int32
	User    string
	Content string
	// CreatedTs is unix seconds. Zero lets the database default it to the insert time.
	CreatedTs int64
}

type FindConversationLine struct {
	IDList []int32
	Limit  *int
	// ClaimableBefore keeps unclaimed lines and lines whose claim was stamped before it.
	ClaimableBefore *int64
}

type DeleteConversationLine struct {
	IDList []int32
	// ClaimID, when set, only deletes lines still held by that claim.
	ClaimID string
}

// ClaimConversationLines marks the claimable backlog as in flight.
// Claimed lines are skipped by later claims until released, deleted or stale.
type ClaimConversationLines struct {
	ClaimID string
	// ClaimedTs stamps the claim, unix seconds.
	ClaimedTs int64
	// StaleBefore makes claims stamped before it claimable again.
	StaleBefore int64
}

// DrainFunc is called with the locked backlog in insertion order.
// Returning false leaves the backlog untouched. Returning true deletes (or claims) exactly
// the lines passed in. Returning an error rolls the transaction back.
type DrainFunc func(ctx context.Context, lines []*ConversationLine) (bool, error)

// LineIDs returns the ids of lines, preserving order.
func LineIDs(lines []*ConversationLine) []int32 {
	ids := make([]int32, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ID)
	}
	return ids
}

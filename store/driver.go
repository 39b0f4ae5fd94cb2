package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// ConversationLine model related methods.
	CreateConversationLine(ctx context.Context, create *ConversationLine) (*ConversationLine, error)
	ListConversationLines(ctx context.Context, find *FindConversationLine) ([]*ConversationLine, error)
	DeleteConversationLines(ctx context.Context, delete *DeleteConversationLine) error

	// DrainConversationLines reads the whole backlog and deletes exactly the lines it read,
	// inside one transaction that holds the backlog lock while visit runs.
	DrainConversationLines(ctx context.Context, visit DrainFunc) error
	// ClaimConversationLines reads the claimable backlog under the backlog lock and, if visit
	// returns true, stamps exactly those lines with the claim. The transaction is short;
	// the caller works on the claimed lines outside of it.
	ClaimConversationLines(ctx context.Context, claim *ClaimConversationLines, visit DrainFunc) error
	// ReleaseConversationLines makes the lines held by claimID claimable again.
	ReleaseConversationLines(ctx context.Context, claimID string) error

	// SystemSetting model related methods.
	UpsertSystemSetting(ctx context.Context, upsert *SystemSetting) (*SystemSetting, error)
	ListSystemSettings(ctx context.Context, find *FindSystemSetting) ([]*SystemSetting, error)
}

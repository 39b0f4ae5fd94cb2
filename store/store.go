package store

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hrygo/chatdigest/internal/profile"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) CreateConversationLine(ctx context.Context, create *ConversationLine) (*ConversationLine, error) {
	return s.driver.CreateConversationLine(ctx, create)
}

func (s *Store) ListConversationLines(ctx context.Context, find *FindConversationLine) ([]*ConversationLine, error) {
	return s.driver.ListConversationLines(ctx, find)
}

func (s *Store) DeleteConversationLines(ctx context.Context, delete *DeleteConversationLine) error {
	if len(delete.IDList) == 0 {
		return ErrEmptyIDList
	}
	return s.driver.DeleteConversationLines(ctx, delete)
}

func (s *Store) DrainConversationLines(ctx context.Context, visit DrainFunc) error {
	return s.driver.DrainConversationLines(ctx, visit)
}

func (s *Store) ClaimConversationLines(ctx context.Context, claim *ClaimConversationLines, visit DrainFunc) error {
	if claim.ClaimID == "" {
		return errors.New("claim id is required")
	}
	return s.driver.ClaimConversationLines(ctx, claim, visit)
}

func (s *Store) ReleaseConversationLines(ctx context.Context, claimID string) error {
	if claimID == "" {
		return errors.New("claim id is required")
	}
	return s.driver.ReleaseConversationLines(ctx, claimID)
}

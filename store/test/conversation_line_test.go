package test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/chatdigest/store"
)

func createTestingLines(ctx context.Context, t *testing.T, ts *store.Store, n int) []*store.ConversationLine {
	t.Helper()
	lines := make([]*store.ConversationLine, 0, n)
	for i := 0; i < n; i++ {
		line, err := ts.CreateConversationLine(ctx, &store.ConversationLine{
			User:    fmt.Sprintf("user-%d", i),
			Content: fmt.Sprintf("message %d", i),
		})
		require.NoError(t, err)
		lines = append(lines, line)
	}
	return lines
}

func TestConversationLineStore(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	line, err := ts.CreateConversationLine(ctx, &store.ConversationLine{
		User:    "Alice",
		Content: "hello",
	})
	require.NoError(t, err)
	assert.NotZero(t, line.ID)
	assert.NotZero(t, line.CreatedTs)

	stamped, err := ts.CreateConversationLine(ctx, &store.ConversationLine{
		User:      "Bob",
		Content:   "hi",
		CreatedTs: 1700000000,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), stamped.CreatedTs)
	assert.Greater(t, stamped.ID, line.ID)

	list, err := ts.ListConversationLines(ctx, &store.FindConversationLine{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Alice", list[0].User)
	assert.Equal(t, "hello", list[0].Content)
	assert.Equal(t, "Bob", list[1].User)

	limit := 1
	list, err = ts.ListConversationLines(ctx, &store.FindConversationLine{Limit: &limit})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, line.ID, list[0].ID)

	list, err = ts.ListConversationLines(ctx, &store.FindConversationLine{IDList: []int32{stamped.ID}})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Bob", list[0].User)

	require.NoError(t, ts.DeleteConversationLines(ctx, &store.DeleteConversationLine{IDList: []int32{line.ID}}))
	list, err = ts.ListConversationLines(ctx, &store.FindConversationLine{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, stamped.ID, list[0].ID)
}

func TestConversationLineDeleteScopedToIDs(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)
	lines := createTestingLines(ctx, t, ts, 4)

	err := ts.DeleteConversationLines(ctx, &store.DeleteConversationLine{})
	assert.ErrorIs(t, err, store.ErrEmptyIDList)

	// Ids that do not exist are ignored.
	require.NoError(t, ts.DeleteConversationLines(ctx, &store.DeleteConversationLine{
		IDList: []int32{lines[0].ID, lines[2].ID, 99999},
	}))
	list, err := ts.ListConversationLines(ctx, &store.FindConversationLine{})
	require.NoError(t, err)
	assert.Equal(t, []int32{lines[1].ID, lines[3].ID}, store.LineIDs(list))
}

func TestDrainConversationLines(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes what it read", func(t *testing.T) {
		ts := NewTestingStore(ctx, t)
		lines := createTestingLines(ctx, t, ts, 3)

		var seen []*store.ConversationLine
		err := ts.DrainConversationLines(ctx, func(_ context.Context, backlog []*store.ConversationLine) (bool, error) {
			seen = backlog
			return true, nil
		})
		require.NoError(t, err)
		assert.Equal(t, store.LineIDs(lines), store.LineIDs(seen))

		list, err := ts.ListConversationLines(ctx, &store.FindConversationLine{})
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("keeps backlog when declined", func(t *testing.T) {
		ts := NewTestingStore(ctx, t)
		createTestingLines(ctx, t, ts, 2)

		err := ts.DrainConversationLines(ctx, func(context.Context, []*store.ConversationLine) (bool, error) {
			return false, nil
		})
		require.NoError(t, err)

		list, err := ts.ListConversationLines(ctx, &store.FindConversationLine{})
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		ts := NewTestingStore(ctx, t)
		createTestingLines(ctx, t, ts, 3)
		boom := errors.New("boom")

		err := ts.DrainConversationLines(ctx, func(context.Context, []*store.ConversationLine) (bool, error) {
			return true, boom
		})
		assert.ErrorIs(t, err, boom)

		list, err := ts.ListConversationLines(ctx, &store.FindConversationLine{})
		require.NoError(t, err)
		assert.Len(t, list, 3)
	})

	t.Run("empty backlog", func(t *testing.T) {
		ts := NewTestingStore(ctx, t)
		called := false
		err := ts.DrainConversationLines(ctx, func(_ context.Context, backlog []*store.ConversationLine) (bool, error) {
			called = true
			assert.Empty(t, backlog)
			return true, nil
		})
		require.NoError(t, err)
		assert.True(t, called)
	})
}

func TestDrainConversationLinesConcurrent(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)
	lines := createTestingLines(ctx, t, ts, 5)

	var (
		mu      sync.Mutex
		drained [][]int32
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			return ts.DrainConversationLines(gctx, func(_ context.Context, backlog []*store.ConversationLine) (bool, error) {
				if len(backlog) == 0 {
					return false, nil
				}
				mu.Lock()
				drained = append(drained, store.LineIDs(backlog))
				mu.Unlock()
				return true, nil
			})
		})
	}
	require.NoError(t, g.Wait())

	// Exactly one drain observes the backlog and no line is read twice.
	require.Len(t, drained, 1)
	assert.Equal(t, store.LineIDs(lines), drained[0])
}

func claimAll(claimed *[]*store.ConversationLine) store.DrainFunc {
	return func(_ context.Context, backlog []*store.ConversationLine) (bool, error) {
		*claimed = backlog
		return len(backlog) > 0, nil
	}
}

func TestClaimConversationLines(t *testing.T) {
	ctx := context.Background()

	t.Run("claimed lines are hidden from the next claim", func(t *testing.T) {
		ts := NewTestingStore(ctx, t)
		lines := createTestingLines(ctx, t, ts, 3)

		var first []*store.ConversationLine
		require.NoError(t, ts.ClaimConversationLines(ctx, &store.ClaimConversationLines{ClaimID: "c1", ClaimedTs: 1000, StaleBefore: 900}, claimAll(&first)))
		assert.Equal(t, store.LineIDs(lines), store.LineIDs(first))

		late := createTestingLines(ctx, t, ts, 1)
		var second []*store.ConversationLine
		require.NoError(t, ts.ClaimConversationLines(ctx, &store.ClaimConversationLines{ClaimID: "c2", ClaimedTs: 1001, StaleBefore: 901}, claimAll(&second)))
		assert.Equal(t, store.LineIDs(late), store.LineIDs(second))

		// Claimed lines are still listed and still drained.
		list, err := ts.ListConversationLines(ctx, &store.FindConversationLine{})
		require.NoError(t, err)
		assert.Len(t, list, 4)
	})

	t.Run("release makes lines claimable again", func(t *testing.T) {
		ts := NewTestingStore(ctx, t)
		lines := createTestingLines(ctx, t, ts, 3)

		var claimed []*store.ConversationLine
		require.NoError(t, ts.ClaimConversationLines(ctx, &store.ClaimConversationLines{ClaimID: "c1", ClaimedTs: 1000, StaleBefore: 900}, claimAll(&claimed)))
		require.NoError(t, ts.ReleaseConversationLines(ctx, "c1"))

		var again []*store.ConversationLine
		require.NoError(t, ts.ClaimConversationLines(ctx, &store.ClaimConversationLines{ClaimID: "c2", ClaimedTs: 1001, StaleBefore: 901}, claimAll(&again)))
		assert.Equal(t, store.LineIDs(lines), store.LineIDs(again))
	})

	t.Run("stale claims are claimable", func(t *testing.T) {
		ts := NewTestingStore(ctx, t)
		lines := createTestingLines(ctx, t, ts, 2)

		var claimed []*store.ConversationLine
		require.NoError(t, ts.ClaimConversationLines(ctx, &store.ClaimConversationLines{ClaimID: "c1", ClaimedTs: 1000, StaleBefore: 900}, claimAll(&claimed)))

		var again []*store.ConversationLine
		require.NoError(t, ts.ClaimConversationLines(ctx, &store.ClaimConversationLines{ClaimID: "c2", ClaimedTs: 2000, StaleBefore: 1500}, claimAll(&again)))
		assert.Equal(t, store.LineIDs(lines), store.LineIDs(again))

		// The stale owner can no longer delete lines it lost.
		require.NoError(t, ts.DeleteConversationLines(ctx, &store.DeleteConversationLine{IDList: store.LineIDs(lines), ClaimID: "c1"}))
		list, err := ts.ListConversationLines(ctx, &store.FindConversationLine{})
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})

	t.Run("declined claim leaves lines unclaimed", func(t *testing.T) {
		ts := NewTestingStore(ctx, t)
		lines := createTestingLines(ctx, t, ts, 2)

		require.NoError(t, ts.ClaimConversationLines(ctx, &store.ClaimConversationLines{ClaimID: "c1", ClaimedTs: 1000, StaleBefore: 900}, func(context.Context, []*store.ConversationLine) (bool, error) {
			return false, nil
		}))

		var claimed []*store.ConversationLine
		require.NoError(t, ts.ClaimConversationLines(ctx, &store.ClaimConversationLines{ClaimID: "c2", ClaimedTs: 1001, StaleBefore: 901}, claimAll(&claimed)))
		assert.Equal(t, store.LineIDs(lines), store.LineIDs(claimed))
	})

	t.Run("delete scoped to claim", func(t *testing.T) {
		ts := NewTestingStore(ctx, t)
		createTestingLines(ctx, t, ts, 2)

		var claimed []*store.ConversationLine
		require.NoError(t, ts.ClaimConversationLines(ctx, &store.ClaimConversationLines{ClaimID: "c1", ClaimedTs: 1000, StaleBefore: 900}, claimAll(&claimed)))
		late := createTestingLines(ctx, t, ts, 1)

		ids := append(store.LineIDs(claimed), late[0].ID)
		require.NoError(t, ts.DeleteConversationLines(ctx, &store.DeleteConversationLine{IDList: ids, ClaimID: "c1"}))

		list, err := ts.ListConversationLines(ctx, &store.FindConversationLine{})
		require.NoError(t, err)
		assert.Equal(t, store.LineIDs(late), store.LineIDs(list))
	})

	t.Run("empty claim id", func(t *testing.T) {
		ts := NewTestingStore(ctx, t)
		err := ts.ClaimConversationLines(ctx, &store.ClaimConversationLines{}, claimAll(new([]*store.ConversationLine)))
		assert.Error(t, err)
		assert.Error(t, ts.ReleaseConversationLines(ctx, ""))
	})
}

func TestClaimConversationLinesConcurrent(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)
	lines := createTestingLines(ctx, t, ts, 5)

	var (
		mu      sync.Mutex
		claimed [][]int32
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 4; i++ {
		claim := &store.ClaimConversationLines{ClaimID: fmt.Sprintf("c%d", i), ClaimedTs: 1000, StaleBefore: 900}
		g.Go(func() error {
			return ts.ClaimConversationLines(gctx, claim, func(_ context.Context, backlog []*store.ConversationLine) (bool, error) {
				if len(backlog) == 0 {
					return false, nil
				}
				mu.Lock()
				claimed = append(claimed, store.LineIDs(backlog))
				mu.Unlock()
				return true, nil
			})
		})
	}
	require.NoError(t, g.Wait())

	require.Len(t, claimed, 1)
	assert.Equal(t, store.LineIDs(lines), claimed[0])
}

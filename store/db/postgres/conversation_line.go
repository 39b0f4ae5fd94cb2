package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/hrygo/chatdigest/store"
)

// backlogLockKey identifies the transaction-scoped advisory lock that serializes drains.
const backlogLockKey int64 = 0x63686174646967

func (d *DB) CreateConversationLine(ctx context.Context, create *store.ConversationLine) (*store.ConversationLine, error) {
	fields := []string{"user_name", "content"}
	args := []any{create.User, create.Content}
	if create.CreatedTs != 0 {
		fields, args = append(fields, "created_ts"), append(args, create.CreatedTs)
	}

	stmt := `INSERT INTO conversation_line (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id, created_ts`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID, &create.CreatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to create conversation line")
	}
	return create, nil
}

func (d *DB) ListConversationLines(ctx context.Context, find *store.FindConversationLine) ([]*store.ConversationLine, error) {
	return listConversationLines(ctx, d.db, find)
}

func (d *DB) DeleteConversationLines(ctx context.Context, delete *store.DeleteConversationLine) error {
	return deleteConversationLines(ctx, d.db, delete.IDList, delete.ClaimID)
}

func (d *DB) DrainConversationLines(ctx context.Context, visit store.DrainFunc) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start drain transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", backlogLockKey); err != nil {
		return errors.Wrap(err, "failed to lock conversation backlog")
	}
	lines, err := listConversationLines(ctx, tx, &store.FindConversationLine{})
	if err != nil {
		return err
	}
	drain, err := visit(ctx, lines)
	if err != nil {
		return err
	}
	if drain && len(lines) > 0 {
		if err := deleteConversationLines(ctx, tx, store.LineIDs(lines), ""); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit drain transaction")
	}
	return nil
}

func (d *DB) ClaimConversationLines(ctx context.Context, claim *store.ClaimConversationLines, visit store.DrainFunc) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to start claim transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", backlogLockKey); err != nil {
		return errors.Wrap(err, "failed to lock conversation backlog")
	}
	lines, err := listConversationLines(ctx, tx, &store.FindConversationLine{ClaimableBefore: &claim.StaleBefore})
	if err != nil {
		return err
	}
	take, err := visit(ctx, lines)
	if err != nil {
		return err
	}
	if take && len(lines) > 0 {
		stmt := `UPDATE conversation_line SET claim_id = $1, claimed_ts = $2 WHERE id = ANY($3)`
		if _, err := tx.ExecContext(ctx, stmt, claim.ClaimID, claim.ClaimedTs, toInt64Array(store.LineIDs(lines))); err != nil {
			return errors.Wrap(err, "failed to claim conversation lines")
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit claim transaction")
	}
	return nil
}

func (d *DB) ReleaseConversationLines(ctx context.Context, claimID string) error {
	stmt := `UPDATE conversation_line SET claim_id = '', claimed_ts = 0 WHERE claim_id = $1`
	if _, err := d.db.ExecContext(ctx, stmt, claimID); err != nil {
		return errors.Wrapf(err, "failed to release claim %s", claimID)
	}
	return nil
}

func listConversationLines(ctx context.Context, q queryer, find *store.FindConversationLine) ([]*store.ConversationLine, error) {
	where, args := []string{"1 = 1"}, []any{}
	if len(find.IDList) > 0 {
		where, args = append(where, "id = ANY("+placeholder(len(args)+1)+")"), append(args, toInt64Array(find.IDList))
	}
	if find.ClaimableBefore != nil {
		where, args = append(where, "(claim_id = '' OR claimed_ts < "+placeholder(len(args)+1)+")"), append(args, *find.ClaimableBefore)
	}

	query := `SELECT id, user_name, content, created_ts FROM conversation_line WHERE ` + strings.Join(where, " AND ") + ` ORDER BY id ASC`
	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversation lines")
	}
	defer rows.Close()

	list := make([]*store.ConversationLine, 0)
	for rows.Next() {
		line := &store.ConversationLine{}
		if err := rows.Scan(&line.ID, &line.User, &line.Content, &line.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation line")
		}
		list = append(list, line)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate conversation lines")
	}
	return list, nil
}

func deleteConversationLines(ctx context.Context, q queryer, ids []int32, claimID string) error {
	if len(ids) == 0 {
		return store.ErrEmptyIDList
	}
	stmt, args := `DELETE FROM conversation_line WHERE id = ANY($1)`, []any{toInt64Array(ids)}
	if claimID != "" {
		stmt, args = stmt+` AND claim_id = $2`, append(args, claimID)
	}
	if _, err := q.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrap(err, "failed to delete conversation lines")
	}
	return nil
}

func toInt64Array(ids []int32) pq.Int64Array {
	array := make(pq.Int64Array, 0, len(ids))
	for _, id := range ids {
		array = append(array, int64(id))
	}
	return array
}

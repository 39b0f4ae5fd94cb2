package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/chatdigest/store"
)

func (d *DB) CreateConversationLine(ctx context.Context, create *store.ConversationLine) (*store.ConversationLine, error) {
	fields := []string{"`user_name`", "`content`"}
	args := []any{create.User, create.Content}
	if create.CreatedTs != 0 {
		fields, args = append(fields, "`created_ts`"), append(args, create.CreatedTs)
	}

	stmt := "INSERT INTO `conversation_line` (" + strings.Join(fields, ", ") + ") VALUES (" + placeholders(len(args)) + ") RETURNING `id`, `created_ts`"
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

	lines, err := listConversationLines(ctx, tx, &store.FindConversationLine{ClaimableBefore: &claim.StaleBefore})
	if err != nil {
		return err
	}
	take, err := visit(ctx, lines)
	if err != nil {
		return err
	}
	if take && len(lines) > 0 {
		ids := store.LineIDs(lines)
		args := []any{claim.ClaimID, claim.ClaimedTs}
		for _, id := range ids {
			args = append(args, id)
		}
		stmt := "UPDATE `conversation_line` SET `claim_id` = ?, `claimed_ts` = ? WHERE `id` IN (" + placeholders(len(ids)) + ")"
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return errors.Wrap(err, "failed to claim conversation lines")
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit claim transaction")
	}
	return nil
}

func (d *DB) ReleaseConversationLines(ctx context.Context, claimID string) error {
	stmt := "UPDATE `conversation_line` SET `claim_id` = '', `claimed_ts` = 0 WHERE `claim_id` = ?"
	if _, err := d.db.ExecContext(ctx, stmt, claimID); err != nil {
		return errors.Wrapf(err, "failed to release claim %s", claimID)
	}
	return nil
}

func listConversationLines(ctx context.Context, q queryer, find *store.FindConversationLine) ([]*store.ConversationLine, error) {
	where, args := []string{"1 = 1"}, []any{}
	if len(find.IDList) > 0 {
		where = append(where, "`id` IN ("+placeholders(len(find.IDList))+")")
		for _, id := range find.IDList {
			args = append(args, id)
		}
	}
	if find.ClaimableBefore != nil {
		where, args = append(where, "(`claim_id` = '' OR `claimed_ts` < ?)"), append(args, *find.ClaimableBefore)
	}

	query := "SELECT `id`, `user_name`, `content`, `created_ts` FROM `conversation_line` WHERE " + strings.Join(where, " AND ") + " ORDER BY `id` ASC"
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
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	stmt := "DELETE FROM `conversation_line` WHERE `id` IN (" + placeholders(len(ids)) + ")"
	if claimID != "" {
		stmt, args = stmt+" AND `claim_id` = ?", append(args, claimID)
	}
	if _, err := q.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrap(err, "failed to delete conversation lines")
	}
	return nil
}

package sqlite

import (
	"context"
	"fmt"

	"github.com/fableworks/coinledger/internal/domain"
)

// ─── Invitation Operations ──────────────────────────────────────────────────

func getInvitation(ctx context.Context, q querier, inviteeID string) (domain.Invitation, bool, error) {
	var (
		inv                domain.Invitation
		inviterR, inviteeR int
		created            string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, inviter_id, invitee_id, inviter_rewarded, invitee_rewarded, created_at
		FROM invitations WHERE invitee_id = ?
	`, inviteeID).Scan(&inv.ID, &inv.InviterID, &inv.InviteeID, &inviterR, &inviteeR, &created)
	if isNoRows(err) {
		return domain.Invitation{}, false, nil
	}
	if err != nil {
		return domain.Invitation{}, false, fmt.Errorf("get invitation: %w", err)
	}
	inv.InviterRewarded = inviterR == 1
	inv.InviteeRewarded = inviteeR == 1
	inv.CreatedAt = parseTime(created)
	return inv, true, nil
}

// Invitation returns the invitation recorded for inviteeID, if any.
func (db *DB) Invitation(ctx context.Context, inviteeID string) (domain.Invitation, bool, error) {
	return getInvitation(ctx, db.db, inviteeID)
}

// Invitation reads the invitee's invitation inside the transaction.
func (tx *Tx) Invitation(ctx context.Context, inviteeID string) (domain.Invitation, bool, error) {
	return getInvitation(ctx, tx.tx, inviteeID)
}

// MarkInvitationRewarded records the invitation with both reward flags set.
// An existing row for the invitee keeps its original inviter.
func (tx *Tx) MarkInvitationRewarded(ctx context.Context, inviterID, inviteeID string) error {
	_, err := tx.tx.ExecContext(ctx, `
		INSERT INTO invitations (inviter_id, invitee_id, inviter_rewarded, invitee_rewarded, created_at)
		VALUES (?, ?, 1, 1, ?)
		ON CONFLICT(invitee_id) DO UPDATE SET
			inviter_rewarded = 1,
			invitee_rewarded = 1
	`, inviterID, inviteeID, formatTime(tx.now))
	if err != nil {
		return fmt.Errorf("record invitation: %w", err)
	}
	return nil
}

// CountInvitations returns how many accounts inviterID has invited.
func (db *DB) CountInvitations(ctx context.Context, inviterID string) (int64, error) {
	var n int64
	err := db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM invitations WHERE inviter_id = ?`, inviterID).Scan(&n)
	return n, err
}

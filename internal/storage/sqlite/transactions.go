package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zhouzirui/finchat/backend/internal/model/ledger"
)

// CreateTransactions persists txs and their share sub-records in one
// database transaction.
func (s *Store) CreateTransactions(ctx context.Context, txs []ledger.Transaction) error {
	if len(txs) == 0 {
		return errors.New("no transactions to create")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insertTx, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (
			id, user_id, kind, amount, total_amount, description, category_id,
			payment_method, card_id, date, installment_index, installment_total,
			parent_id, source, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = insertTx.Close() }()

	insertShare, err := tx.PrepareContext(ctx, `
		INSERT INTO transaction_shares (transaction_id, user_id, amount, division, value)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = insertShare.Close() }()

	for _, t := range txs {
		var (
			cardID, parentID sql.NullString
			index, total     sql.NullInt64
		)
		if t.CardID != "" {
			cardID = sql.NullString{String: t.CardID, Valid: true}
		}
		if t.Installment != nil {
			index = sql.NullInt64{Int64: int64(t.Installment.Index), Valid: true}
			total = sql.NullInt64{Int64: int64(t.Installment.Total), Valid: true}
			parentID = sql.NullString{String: t.Installment.ParentID, Valid: true}
		}
		createdAt := t.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}

		if _, err := insertTx.ExecContext(ctx,
			t.ID, t.UserID, string(t.Kind), t.Amount, t.TotalAmount, t.Description, t.CategoryID,
			string(t.PaymentMethod), cardID, t.Date.UTC(), index, total,
			parentID, t.Source, createdAt.UTC(),
		); err != nil {
			return fmt.Errorf("failed to insert transaction %s: %w", t.ID, err)
		}

		if t.Share == nil {
			continue
		}
		var value any
		if t.Share.Value != nil {
			value = t.Share.Value.String()
		}
		if _, err := insertShare.ExecContext(ctx,
			t.ID, t.Share.UserID, t.Share.Amount, string(t.Share.Division), value,
		); err != nil {
			return fmt.Errorf("failed to insert share for %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transactions: %w", err)
	}
	return nil
}

// ListTransactions returns the user's records, oldest date first.
func (s *Store) ListTransactions(ctx context.Context, userID string) ([]ledger.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.user_id, t.kind, t.amount, t.total_amount, t.description, t.category_id,
			t.payment_method, t.card_id, t.date, t.installment_index, t.installment_total,
			t.parent_id, t.source, t.created_at,
			sh.user_id, sh.amount, sh.division, sh.value
		FROM transactions t
		LEFT JOIN transaction_shares sh ON sh.transaction_id = t.id
		WHERE t.user_id = ?
		ORDER BY t.date, t.installment_index, t.rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ledger.Transaction
	for rows.Next() {
		var (
			t                                    ledger.Transaction
			kind, method                         string
			cardID, parentID                     sql.NullString
			index, total                         sql.NullInt64
			shareUser, shareDivision, shareValue sql.NullString
			shareAmount                          decimal.NullDecimal
		)
		if err := rows.Scan(
			&t.ID, &t.UserID, &kind, &t.Amount, &t.TotalAmount, &t.Description, &t.CategoryID,
			&method, &cardID, &t.Date, &index, &total,
			&parentID, &t.Source, &t.CreatedAt,
			&shareUser, &shareAmount, &shareDivision, &shareValue,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		t.Kind = ledger.Kind(kind)
		t.PaymentMethod = ledger.PaymentMethod(method)
		t.CardID = cardID.String
		if index.Valid {
			t.Installment = &ledger.Installment{Index: int(index.Int64), Total: int(total.Int64), ParentID: parentID.String}
		}
		if shareUser.Valid {
			t.Share = &ledger.Share{
				UserID:   shareUser.String,
				Amount:   shareAmount.Decimal,
				Division: ledger.DivisionKind(shareDivision.String),
			}
			if shareValue.Valid {
				if v, err := decimal.NewFromString(shareValue.String); err == nil {
					t.Share.Value = &v
				}
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountRecentTransactions counts the logical transactions userID created
// through source since the given time. An installment plan counts once.
func (s *Store) CountRecentTransactions(ctx context.Context, userID, source string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE user_id = ? AND source = ? AND created_at >= ?
			AND (installment_index IS NULL OR installment_index = 1)`,
		userID, source, since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}

// CountRecentSharedTransactions counts the shared transactions userID created
// since the given time. An installment plan counts once.
func (s *Store) CountRecentSharedTransactions(ctx context.Context, userID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions t
		JOIN transaction_shares sh ON sh.transaction_id = t.id
		WHERE t.user_id = ? AND t.created_at >= ?
			AND (t.installment_index IS NULL OR t.installment_index = 1)`,
		userID, since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count shared transactions: %w", err)
	}
	return n, nil
}

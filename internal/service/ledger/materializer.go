// Package ledger turns a confirmed candidate into persisted transaction
// records, applying share splits and installment schedules.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/finchat/backend/internal/model/intake"
	model "github.com/zhouzirui/finchat/backend/internal/model/ledger"
)

// Writer persists a batch of records atomically.
type Writer interface {
	CreateTransactions(ctx context.Context, txs []model.Transaction) error
}

// Materializer builds and persists the records for a confirmed candidate.
type Materializer struct {
	writer Writer
	now    func() time.Time
	newID  func() string
}

// NewMaterializer creates a materializer writing through w.
func NewMaterializer(w Writer) *Materializer {
	return &Materializer{
		writer: w,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Materialize builds the records for pending and persists them in one batch.
// Persistence failures are reported as PersistenceError.
func (m *Materializer) Materialize(ctx context.Context, userID string, pending *intake.PendingTransaction) ([]model.Transaction, error) {
	txs, err := m.Build(userID, pending)
	if err != nil {
		return nil, err
	}
	if err := m.writer.CreateTransactions(ctx, txs); err != nil {
		return nil, intake.NewError(intake.ErrPersistence, "", err)
	}
	return txs, nil
}

// Build computes the records without persisting them. A shared candidate
// yields a share sub-record on every installment.
func (m *Materializer) Build(userID string, pending *intake.PendingTransaction) ([]model.Transaction, error) {
	if pending == nil {
		return nil, fmt.Errorf("no pending transaction")
	}
	ex := pending.Extracted

	split, err := SplitAmount(ex.Amount, ex.Share)
	if err != nil {
		return nil, err
	}

	var otherID string
	if ex.Share != nil {
		if pending.SharedWith == nil {
			return nil, intake.NewError(intake.ErrShareTargetNotFound, "", nil)
		}
		otherID = pending.SharedWith.ID
	}

	count := 1
	method := ex.PaymentMethod
	if ex.Installments != nil && ex.Installments.Count > 1 {
		count = ex.Installments.Count
		method = model.PaymentCredit
	}

	var cardID string
	if pending.Card != nil {
		cardID = pending.Card.ID
	}

	selfParts := InstallmentAmounts(split.Self, count)
	otherParts := InstallmentAmounts(split.Other, count)

	now := m.now()
	txs := make([]model.Transaction, count)
	for i := 0; i < count; i++ {
		tx := model.Transaction{
			ID:            m.newID(),
			UserID:        userID,
			Kind:          ex.Kind,
			Amount:        selfParts[i],
			TotalAmount:   selfParts[i].Add(otherParts[i]),
			Description:   ex.Description,
			CategoryID:    pending.Category.ID,
			PaymentMethod: method,
			CardID:        cardID,
			Date:          AddMonths(now, i),
			Source:        model.SourceWhatsApp,
			CreatedAt:     now,
		}
		if count > 1 {
			tx.Installment = &model.Installment{Index: i + 1, Total: count, ParentID: txs[0].ID}
			if i == 0 {
				tx.Installment.ParentID = tx.ID
			}
		}
		if ex.Share != nil {
			tx.Share = &model.Share{
				UserID:   otherID,
				Amount:   otherParts[i],
				Division: ex.Share.Division,
				Value:    ex.Share.Value,
			}
		}
		txs[i] = tx
	}
	return txs, nil
}

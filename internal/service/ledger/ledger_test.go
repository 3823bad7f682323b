package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/finchat/backend/internal/model/intake"
	model "github.com/zhouzirui/finchat/backend/internal/model/ledger"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr(v decimal.Decimal) *decimal.Decimal { return &v }

func TestSplitHalfSumsExactly(t *testing.T) {
	for _, total := range []string{"100", "0.01", "33.33", "10.05", "999.99", "1234.57"} {
		split, err := SplitAmount(d(total), &intake.ShareSpec{Division: model.DivisionHalf})
		require.NoError(t, err)
		assert.True(t, split.Self.Add(split.Other).Equal(d(total)), total)
		assert.True(t, split.Self.Sub(split.Other).Abs().LessThanOrEqual(d("0.01")), total)
	}
}

func TestSplitPercentage(t *testing.T) {
	split, err := SplitAmount(d("100"), &intake.ShareSpec{Division: model.DivisionPercentage, Value: ptr(d("60"))})
	require.NoError(t, err)
	assert.Equal(t, "60.00", split.Self.StringFixed(2))
	assert.Equal(t, "40.00", split.Other.StringFixed(2))

	_, err = SplitAmount(d("100"), &intake.ShareSpec{Division: model.DivisionPercentage, Value: ptr(d("120"))})
	assert.Error(t, err)
}

func TestSplitFixed(t *testing.T) {
	split, err := SplitAmount(d("10"), &intake.ShareSpec{Division: model.DivisionFixed, Value: ptr(d("6"))})
	require.NoError(t, err)
	assert.Equal(t, "6.00", split.Self.StringFixed(2))
	assert.Equal(t, "4.00", split.Other.StringFixed(2))

	_, err = SplitAmount(d("10"), &intake.ShareSpec{Division: model.DivisionFixed, Value: ptr(d("15"))})
	assert.Error(t, err)
	assert.Equal(t, intake.ReasonInvalidShare, intake.ReasonOf(err))

	_, err = SplitAmount(d("10"), &intake.ShareSpec{Division: model.DivisionFixed, Value: ptr(d("-1"))})
	assert.Error(t, err)
}

func TestInstallmentAmounts(t *testing.T) {
	parts := InstallmentAmounts(d("100"), 3)
	require.Len(t, parts, 3)
	assert.Equal(t, "33.33", parts[0].StringFixed(2))
	assert.Equal(t, "33.33", parts[1].StringFixed(2))
	assert.Equal(t, "33.34", parts[2].StringFixed(2))
}

func TestAddMonthsClampsDay(t *testing.T) {
	jan31 := time.Date(2025, time.January, 31, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, time.February, 28, 12, 0, 0, 0, time.UTC), AddMonths(jan31, 1))
	assert.Equal(t, time.Date(2025, time.March, 31, 12, 0, 0, 0, time.UTC), AddMonths(jan31, 2))
	assert.Equal(t, time.Date(2026, time.January, 31, 12, 0, 0, 0, time.UTC), AddMonths(jan31, 12))
}

type memoryWriter struct {
	saved [][]model.Transaction
	err   error
}

func (w *memoryWriter) CreateTransactions(_ context.Context, txs []model.Transaction) error {
	if w.err != nil {
		return w.err
	}
	w.saved = append(w.saved, txs)
	return nil
}

func newTestMaterializer(w Writer) *Materializer {
	m := NewMaterializer(w)
	m.now = func() time.Time { return time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC) }
	seq := 0
	m.newID = func() string {
		seq++
		return "tx-" + string(rune('0'+seq))
	}
	return m
}

func TestMaterializeInstallmentsSelfOnly(t *testing.T) {
	w := &memoryWriter{}
	m := newTestMaterializer(w)

	pending := &intake.PendingTransaction{
		Extracted: intake.ExtractedTransaction{
			Kind:          model.Expense,
			Amount:        d("600"),
			Description:   "Notebook",
			PaymentMethod: model.PaymentPix,
			Installments:  &intake.InstallmentSpec{Count: 3},
		},
		Category: model.Category{ID: "cat-1"},
		Card:     &model.Card{ID: "card-1"},
	}

	txs, err := m.Materialize(context.Background(), "user-1", pending)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	require.Len(t, w.saved, 1)

	for i, tx := range txs {
		assert.Equal(t, "200.00", tx.Amount.StringFixed(2))
		assert.Equal(t, model.PaymentCredit, tx.PaymentMethod)
		assert.Equal(t, "card-1", tx.CardID)
		require.NotNil(t, tx.Installment)
		assert.Equal(t, i+1, tx.Installment.Index)
		assert.Equal(t, 3, tx.Installment.Total)
		assert.Equal(t, "tx-1", tx.Installment.ParentID)
		assert.Equal(t, time.Month(3+i), tx.Date.Month())
		assert.Nil(t, tx.Share)
	}
}

func TestMaterializeSharedInstallments(t *testing.T) {
	m := newTestMaterializer(&memoryWriter{})

	pending := &intake.PendingTransaction{
		Extracted: intake.ExtractedTransaction{
			Kind:         model.Expense,
			Amount:       d("100"),
			Description:  "Jantar",
			Share:        &intake.ShareSpec{Target: "@bia", Division: model.DivisionPercentage, Value: ptr(d("60"))},
			Installments: &intake.InstallmentSpec{Count: 2},
		},
		Category:   model.Category{ID: "cat-1"},
		SharedWith: &model.User{ID: "bia"},
	}

	txs, err := m.Materialize(context.Background(), "user-1", pending)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	selfSum, otherSum := decimal.Zero, decimal.Zero
	for _, tx := range txs {
		require.NotNil(t, tx.Share)
		assert.Equal(t, "bia", tx.Share.UserID)
		assert.Equal(t, "30.00", tx.Amount.StringFixed(2))
		assert.Equal(t, "20.00", tx.Share.Amount.StringFixed(2))
		assert.Equal(t, "50.00", tx.TotalAmount.StringFixed(2))
		selfSum = selfSum.Add(tx.Amount)
		otherSum = otherSum.Add(tx.Share.Amount)
	}
	assert.True(t, selfSum.Add(otherSum).Equal(d("100")))
}

func TestMaterializeSingleRecord(t *testing.T) {
	m := newTestMaterializer(&memoryWriter{})

	txs, err := m.Materialize(context.Background(), "user-1", &intake.PendingTransaction{
		Extracted: intake.ExtractedTransaction{Kind: model.Income, Amount: d("3500"), Description: "Salário", PaymentMethod: model.PaymentTransfer},
		Category:  model.Category{ID: "inc"},
	})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Nil(t, txs[0].Installment)
	assert.Equal(t, model.PaymentTransfer, txs[0].PaymentMethod)
	assert.Equal(t, model.SourceWhatsApp, txs[0].Source)
}

func TestMaterializeSharedWithoutResolvedUser(t *testing.T) {
	m := newTestMaterializer(&memoryWriter{})

	_, err := m.Materialize(context.Background(), "user-1", &intake.PendingTransaction{
		Extracted: intake.ExtractedTransaction{Kind: model.Expense, Amount: d("10"), Description: "Café", Share: &intake.ShareSpec{Target: "x", Division: model.DivisionHalf}},
	})
	assert.Equal(t, intake.ErrShareTargetNotFound, intake.KindOf(err))
}

func TestMaterializePersistenceError(t *testing.T) {
	m := newTestMaterializer(&memoryWriter{err: errors.New("disk full")})

	_, err := m.Materialize(context.Background(), "user-1", &intake.PendingTransaction{
		Extracted: intake.ExtractedTransaction{Kind: model.Expense, Amount: d("10"), Description: "Café"},
	})
	assert.Equal(t, intake.ErrPersistence, intake.KindOf(err))
}

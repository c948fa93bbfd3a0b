package repositories

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HSouheill/barrim_mlm/models"
)

var commissionRowColumns = []string{
	"entry_id", "beneficiary_id", "source_participant_id", "amount", "rate",
	"level", "commission_type", "transaction_ref", "created_at",
}

func TestPostgresCommissionLedger_Record(t *testing.T) {
	db, mock := newMockDB(t)
	ledger := NewPostgresCommissionLedger(db)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO mlm_commissions`)).
		WithArgs(sqlmock.AnyArg(), "A", "source", "10", "0.1", 1, "referral", "tx-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO mlm_commissions`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "mlm_commissions_beneficiary_tx_key"})

	id, err := ledger.RecordCommission(ctx, referralEntry("A", "tx-1", "10.00", 1))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = ledger.RecordCommission(ctx, referralEntry("A", "tx-1", "10.00", 1))
	assert.ErrorIs(t, err, models.ErrDuplicateCommission)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCommissionLedger_SumByParticipant(t *testing.T) {
	db, mock := newMockDB(t)
	ledger := NewPostgresCommissionLedger(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM mlm_commissions WHERE beneficiary_id = $1 AND commission_type = $2 GROUP BY level`)).
		WithArgs("A", "referral").
		WillReturnRows(sqlmock.NewRows([]string{"level", "count", "sum"}).
			AddRow(1, 2, "20.00").
			AddRow(2, 1, "2.50"))

	referral := models.CommissionReferral
	summary, err := ledger.SumByParticipant(context.Background(), "A", models.CommissionFilter{Type: &referral})
	require.NoError(t, err)
	assert.EqualValues(t, 3, summary.Count)
	assert.True(t, decimal.RequireFromString("22.50").Equal(summary.TotalAmount))
	require.Len(t, summary.PerLevel, 2)
	assert.Equal(t, 2, summary.PerLevel[1].Level)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCommissionLedger_ListByParticipant(t *testing.T) {
	db, mock := newMockDB(t)
	ledger := NewPostgresCommissionLedger(db)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM mlm_commissions WHERE beneficiary_id = $1`)).
		WithArgs("A").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY created_at DESC, entry_id DESC LIMIT $2 OFFSET $3`)).
		WithArgs("A", 5, 10).
		WillReturnRows(sqlmock.NewRows(commissionRowColumns).
			AddRow("e-2", "A", "S", "1.00", "0.1", 1, "referral", "tx-2", created).
			AddRow("e-1", "A", "S", "2.00", "0.05", 2, "referral", nil, created.Add(-time.Hour)))

	page, err := ledger.ListByParticipant(context.Background(), "A", 3, 5, models.CommissionFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 12, page.Total)
	assert.Equal(t, 3, page.TotalPages())
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "tx-2", page.Entries[0].TransactionRef)
	assert.Empty(t, page.Entries[1].TransactionRef)
	assert.Equal(t, models.CommissionReferral, page.Entries[1].CommissionType)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCommissionLedger_Leaderboard(t *testing.T) {
	db, mock := newMockDB(t)
	ledger := NewPostgresCommissionLedger(db)
	now := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return now }

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE created_at >= $1 GROUP BY beneficiary_id ORDER BY total DESC, beneficiary_id ASC LIMIT $2`)).
		WithArgs(now.AddDate(0, 0, -7), 3).
		WillReturnRows(sqlmock.NewRows([]string{"beneficiary_id", "total", "count"}).
			AddRow("B", "55.00", 2).
			AddRow("D", "55.00", 1))

	board, err := ledger.Leaderboard(context.Background(), models.PeriodWeek, 3)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, "B", board[0].ParticipantID)
	assert.EqualValues(t, 2, board[0].TransactionCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

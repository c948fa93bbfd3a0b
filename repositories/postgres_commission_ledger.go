package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/HSouheill/barrim_mlm/models"
)

const commissionColumns = `entry_id, beneficiary_id, source_participant_id, amount, rate, level, commission_type, transaction_ref, created_at`

// PostgresCommissionLedger stores commission entries in mlm_commissions.
type PostgresCommissionLedger struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresCommissionLedger(db *sql.DB) *PostgresCommissionLedger {
	return &PostgresCommissionLedger{db: db, now: time.Now}
}

func (l *PostgresCommissionLedger) RecordCommission(ctx context.Context, entry models.CommissionEntry) (string, error) {
	if err := validateEntry(entry); err != nil {
		return "", err
	}
	entry.EntryID = uuid.NewString()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = l.now().UTC().Truncate(time.Microsecond)
	}
	var ref sql.NullString
	if entry.TransactionRef != "" {
		ref = sql.NullString{String: entry.TransactionRef, Valid: true}
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO mlm_commissions (`+commissionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.EntryID, entry.BeneficiaryID, entry.SourceParticipantID, entry.Amount, entry.Rate,
		entry.Level, string(entry.CommissionType), ref, entry.CreatedAt)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return "", fmt.Errorf("beneficiary %s, transaction %s: %w", entry.BeneficiaryID, entry.TransactionRef, models.ErrDuplicateCommission)
		}
		return "", sqlError("insert commission", err)
	}
	return entry.EntryID, nil
}

func commissionWhere(participantID string, filter models.CommissionFilter) *whereBuilder {
	w := &whereBuilder{}
	w.add("beneficiary_id = $%d", participantID)
	if filter.Type != nil {
		w.add("commission_type = $%d", string(*filter.Type))
	}
	if filter.From != nil {
		w.add("created_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		w.add("created_at < $%d", *filter.To)
	}
	return w
}

func (l *PostgresCommissionLedger) SumByParticipant(ctx context.Context, participantID string, filter models.CommissionFilter) (models.CommissionSummary, error) {
	w := commissionWhere(participantID, filter)
	rows, err := l.db.QueryContext(ctx,
		`SELECT level, COUNT(*), COALESCE(SUM(amount), 0) FROM mlm_commissions`+w.clause()+` GROUP BY level ORDER BY level`,
		w.args...)
	if err != nil {
		return models.CommissionSummary{}, sqlError("sum commissions", err)
	}
	defer rows.Close()

	summary := models.CommissionSummary{TotalAmount: decimal.Zero, PerLevel: []models.LevelBreakdown{}}
	for rows.Next() {
		var b models.LevelBreakdown
		if err := rows.Scan(&b.Level, &b.Count, &b.Amount); err != nil {
			return models.CommissionSummary{}, sqlError("scan commission sum", err)
		}
		summary.Count += b.Count
		summary.TotalAmount = summary.TotalAmount.Add(b.Amount)
		summary.PerLevel = append(summary.PerLevel, b)
	}
	if err := rows.Err(); err != nil {
		return models.CommissionSummary{}, sqlError("sum commissions", err)
	}
	return summary, nil
}

func (l *PostgresCommissionLedger) ListByParticipant(ctx context.Context, participantID string, page, pageSize int, filter models.CommissionFilter) (models.CommissionPage, error) {
	page, pageSize = normalizePage(page, pageSize)
	w := commissionWhere(participantID, filter)

	var total int64
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mlm_commissions`+w.clause(), w.args...).Scan(&total); err != nil {
		return models.CommissionPage{}, sqlError("count commissions", err)
	}

	where := w.clause()
	limit := w.placeholder(pageSize)
	offset := w.placeholder((page - 1) * pageSize)
	entries, err := l.query(ctx,
		`SELECT `+commissionColumns+` FROM mlm_commissions`+where+
			` ORDER BY created_at DESC, entry_id DESC LIMIT `+limit+` OFFSET `+offset,
		w.args...)
	if err != nil {
		return models.CommissionPage{}, err
	}
	return models.CommissionPage{Entries: entries, Total: total, Page: page, PageSize: pageSize}, nil
}

func (l *PostgresCommissionLedger) Leaderboard(ctx context.Context, period models.LeaderboardPeriod, limit int) ([]models.LeaderboardEntry, error) {
	since, ok := period.Since(l.now())
	if !ok {
		return nil, fmt.Errorf("leaderboard period %q: %w", period, models.ErrInvalidInput)
	}
	w := &whereBuilder{}
	if since != nil {
		w.add("created_at >= $%d", *since)
	}
	where := w.clause()
	lim := w.placeholder(clampLimit(limit))

	rows, err := l.db.QueryContext(ctx,
		`SELECT beneficiary_id, SUM(amount) AS total, COUNT(*) FROM mlm_commissions`+where+
			` GROUP BY beneficiary_id ORDER BY total DESC, beneficiary_id ASC LIMIT `+lim,
		w.args...)
	if err != nil {
		return nil, sqlError("leaderboard", err)
	}
	defer rows.Close()

	out := []models.LeaderboardEntry{}
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.ParticipantID, &e.TotalAmount, &e.TransactionCount); err != nil {
			return nil, sqlError("scan leaderboard", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, sqlError("leaderboard", err)
	}
	return out, nil
}

func (l *PostgresCommissionLedger) GetByTransaction(ctx context.Context, transactionRef string) ([]models.CommissionEntry, error) {
	return l.query(ctx,
		`SELECT `+commissionColumns+` FROM mlm_commissions WHERE transaction_ref = $1 ORDER BY level`,
		transactionRef)
}

func (l *PostgresCommissionLedger) query(ctx context.Context, query string, args ...interface{}) ([]models.CommissionEntry, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sqlError("find commissions", err)
	}
	defer rows.Close()

	entries := []models.CommissionEntry{}
	for rows.Next() {
		var (
			e     models.CommissionEntry
			ctype string
			ref   sql.NullString
		)
		if err := rows.Scan(&e.EntryID, &e.BeneficiaryID, &e.SourceParticipantID, &e.Amount, &e.Rate,
			&e.Level, &ctype, &ref, &e.CreatedAt); err != nil {
			return nil, sqlError("scan commission", err)
		}
		e.CommissionType = models.CommissionType(ctype)
		e.TransactionRef = ref.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, sqlError("find commissions", err)
	}
	return entries, nil
}

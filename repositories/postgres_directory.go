package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/HSouheill/barrim_mlm/models"
)

// PostgresParticipantDirectory reads participants from the users table.
type PostgresParticipantDirectory struct {
	db *sql.DB
}

func NewPostgresParticipantDirectory(db *sql.DB) *PostgresParticipantDirectory {
	return &PostgresParticipantDirectory{db: db}
}

func (d *PostgresParticipantDirectory) GetParticipant(ctx context.Context, participantID string) (models.Participant, error) {
	var (
		p    models.Participant
		code sql.NullString
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT id, full_name, email, referral_code, is_active, last_activity_at, created_at
		FROM users
		WHERE id = $1
	`, participantID).Scan(&p.ID, &p.FullName, &p.Email, &code, &p.IsActive, &p.LastActivityAt, &p.CreatedAt)
	if err != nil {
		return models.Participant{}, sqlError(fmt.Sprintf("participant %s", participantID), err)
	}
	p.ReferralCode = code.String
	return p, nil
}

func (d *PostgresParticipantDirectory) ResolveByReferralCode(ctx context.Context, code string) (string, error) {
	var id string
	err := d.db.QueryRowContext(ctx, `SELECT id FROM users WHERE referral_code = $1`, code).Scan(&id)
	if err != nil {
		return "", sqlError(fmt.Sprintf("referral code %s", code), err)
	}
	return id, nil
}

func (d *PostgresParticipantDirectory) ParticipantExists(ctx context.Context, participantID string) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, participantID).Scan(&exists)
	if err != nil {
		return false, sqlError("participant exists", err)
	}
	return exists, nil
}

func (d *PostgresParticipantDirectory) IsActive(ctx context.Context, participantID string) (bool, error) {
	var active bool
	err := d.db.QueryRowContext(ctx, `SELECT is_active FROM users WHERE id = $1`, participantID).Scan(&active)
	if err != nil {
		return false, sqlError(fmt.Sprintf("participant %s", participantID), err)
	}
	return active, nil
}

func (d *PostgresParticipantDirectory) ReferralCodeInUse(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE referral_code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, sqlError("referral code in use", err)
	}
	return exists, nil
}

func (d *PostgresParticipantDirectory) AssignReferralCode(ctx context.Context, participantID, code string) (string, error) {
	res, err := d.db.ExecContext(ctx, `
		UPDATE users SET referral_code = $2
		WHERE id = $1 AND (referral_code IS NULL OR referral_code = '')
	`, participantID, code)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return "", fmt.Errorf("referral code %s already assigned: %w", code, models.ErrInvalidInput)
		}
		return "", sqlError("assign referral code", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return code, nil
	}
	p, err := d.GetParticipant(ctx, participantID)
	if err != nil {
		return "", err
	}
	return p.ReferralCode, nil
}

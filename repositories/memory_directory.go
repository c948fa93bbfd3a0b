package repositories

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/HSouheill/barrim_mlm/models"
)

// MemoryParticipantDirectory stands in for user management when running
// with STORAGE_DRIVER=memory and in tests.
type MemoryParticipantDirectory struct {
	mu           sync.RWMutex
	participants map[string]models.Participant
	codes        map[string]string
	autoRegister bool
}

func NewMemoryParticipantDirectory() *MemoryParticipantDirectory {
	return &MemoryParticipantDirectory{
		participants: make(map[string]models.Participant),
		codes:        make(map[string]string),
	}
}

// EnableAutoRegister makes ParticipantExists register unknown ids as active
// participants, so a memory-backed server accepts placements without a
// user-management system behind it.
func (d *MemoryParticipantDirectory) EnableAutoRegister() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.autoRegister = true
}

// Upsert registers or replaces a participant.
func (d *MemoryParticipantDirectory) Upsert(p models.Participant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if old, ok := d.participants[p.ID]; ok && old.ReferralCode != "" {
		delete(d.codes, old.ReferralCode)
	}
	d.participants[p.ID] = p
	if p.ReferralCode != "" {
		d.codes[p.ReferralCode] = p.ID
	}
}

func (d *MemoryParticipantDirectory) GetParticipant(ctx context.Context, participantID string) (models.Participant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.participants[participantID]
	if !ok {
		return models.Participant{}, fmt.Errorf("participant %s: %w", participantID, models.ErrNotFound)
	}
	return p, nil
}

func (d *MemoryParticipantDirectory) ResolveByReferralCode(ctx context.Context, code string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.codes[code]
	if !ok {
		return "", fmt.Errorf("referral code %s: %w", code, models.ErrNotFound)
	}
	return id, nil
}

func (d *MemoryParticipantDirectory) ParticipantExists(ctx context.Context, participantID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.participants[participantID]; ok {
		return true, nil
	}
	if !d.autoRegister || participantID == "" {
		return false, nil
	}
	now := time.Now().UTC()
	d.participants[participantID] = models.Participant{
		ID:             participantID,
		FullName:       participantID,
		IsActive:       true,
		LastActivityAt: now,
		CreatedAt:      now,
	}
	return true, nil
}

func (d *MemoryParticipantDirectory) IsActive(ctx context.Context, participantID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.participants[participantID]
	if !ok {
		return false, fmt.Errorf("participant %s: %w", participantID, models.ErrNotFound)
	}
	return p.IsActive, nil
}

func (d *MemoryParticipantDirectory) ReferralCodeInUse(ctx context.Context, code string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.codes[code]
	return ok, nil
}

func (d *MemoryParticipantDirectory) AssignReferralCode(ctx context.Context, participantID, code string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.participants[participantID]
	if !ok {
		return "", fmt.Errorf("participant %s: %w", participantID, models.ErrNotFound)
	}
	if p.ReferralCode != "" {
		return p.ReferralCode, nil
	}
	if _, taken := d.codes[code]; taken {
		return "", fmt.Errorf("referral code %s already assigned: %w", code, models.ErrInvalidInput)
	}
	p.ReferralCode = code
	d.participants[participantID] = p
	d.codes[code] = participantID
	return code, nil
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/HSouheill/barrim_mlm/models"
	"github.com/HSouheill/barrim_mlm/repositories"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type fixture struct {
	tree        *repositories.MemoryTreeStore
	ledger      *repositories.MemoryCommissionLedger
	directory   *repositories.MemoryParticipantDirectory
	placement   *PlacementService
	commissions *CommissionService
	reporting   *ReportingService
}

// newFixture wires the services on memory stores with every id in
// participants registered as an active participant.
func newFixture(t *testing.T, participants ...string) *fixture {
	t.Helper()
	f := &fixture{
		tree:      repositories.NewMemoryTreeStore(),
		ledger:    repositories.NewMemoryCommissionLedger(),
		directory: repositories.NewMemoryParticipantDirectory(),
	}
	for _, id := range participants {
		f.register(id, true)
	}
	log := quietLogger()
	f.placement = NewPlacementService(f.tree, f.directory, 5*time.Second, log)
	f.commissions = NewCommissionService(f.tree, f.ledger, DefaultRateTable(), DefaultCommissionDepth, 5*time.Second, log)
	f.reporting = NewReportingService(f.tree, f.ledger, f.directory, nil, time.Minute, time.Minute, log)
	return f
}

func (f *fixture) register(id string, active bool) {
	f.registerSeen(id, active, time.Now().UTC())
}

// registerSeen registers id with its last activity at lastActivity.
func (f *fixture) registerSeen(id string, active bool, lastActivity time.Time) {
	f.directory.Upsert(models.Participant{
		ID:             id,
		FullName:       "Participant " + id,
		IsActive:       active,
		LastActivityAt: lastActivity,
		CreatedAt:      lastActivity,
	})
}

func (f *fixture) place(t *testing.T, participantID, referrerID string) models.TreeNode {
	t.Helper()
	node, err := f.placement.PlaceParticipant(context.Background(), participantID, referrerID)
	require.NoError(t, err)
	return node
}

// chain places ids as a single line, each under the previous one, and
// returns the ids.
func (f *fixture) chain(t *testing.T, ids ...string) []string {
	t.Helper()
	for i, id := range ids {
		referrer := ""
		if i > 0 {
			referrer = ids[i-1]
		}
		f.place(t, id, referrer)
	}
	return ids
}

func chainIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("P%d", i)
	}
	return ids
}

// memoryCache is a ReportCache that round-trips values through JSON like the
// Redis implementation does.
type memoryCache struct {
	mu      sync.Mutex
	values  map[string][]byte
	gets    int
	hits    int
	deleted []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{values: make(map[string][]byte)}
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	raw, ok := c.values[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = raw
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.values, k)
	}
	c.deleted = append(c.deleted, keys...)
	return nil
}

func (c *memoryCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.values[key]
	return ok
}

type recordingInvalidator struct {
	mu  sync.Mutex
	ids [][]string
}

func (r *recordingInvalidator) InvalidateParticipants(ctx context.Context, ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, ids)
}

package services

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"order-of-ash/config"
	"order-of-ash/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"github.com/tonkeeper/tongo"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testWallet = "0:e2d41ed396a9f1ba03839d63c5650fafc6fd9b2c2e5e6b7a2bbd0c1e5b1e3e3f"

// newTestDB opens a file-backed SQLite store with a single connection so transactions serialize.
// SQLite drops FOR UPDATE, so concurrency tests here exercise the processed check inside the
// transaction, not the postgres row locks.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "ash.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// scriptedRandom replays fixed draws; once exhausted it returns 0.99 and 0.
type scriptedRandom struct {
	mu     sync.Mutex
	floats []float64
	ints   []int
}

func (r *scriptedRandom) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.floats) == 0 {
		return 0.99
	}
	v := r.floats[0]
	r.floats = r.floats[1:]
	return v
}

func (r *scriptedRandom) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ints) == 0 {
		return 0
	}
	v := r.ints[0]
	r.ints = r.ints[1:]
	return v % n
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var baseTime = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

type fixture struct {
	db       *gorm.DB
	rules    config.GameRules
	clock    *fixedClock
	rng      *scriptedRandom
	invoices *InvoiceService
	players  *PlayerService
	referral *ReferralService
	final    *FinalService
	stats    *StatsService
}

func newFixture(t *testing.T, mutate ...func(*config.GameRules)) *fixture {
	t.Helper()
	rules := config.DefaultGameRules()
	for _, m := range mutate {
		m(&rules)
	}
	db := newTestDB(t)
	lg := zap.NewNop()
	clock := &fixedClock{now: baseTime}
	rng := &scriptedRandom{}

	wallet, err := tongo.ParseAccountID(testWallet)
	require.NoError(t, err)

	inv := NewInvoiceService(db, rules, PaymentTarget{Wallet: wallet, AmountNano: 500_000_000}, lg)
	inv.Rand = rng
	inv.Now = clock.Now
	players := NewPlayerService(db, rules, lg)
	players.Now = clock.Now
	final := NewFinalService(db, rules, lg)
	final.Now = clock.Now

	return &fixture{
		db:       db,
		rules:    rules,
		clock:    clock,
		rng:      rng,
		invoices: inv,
		players:  players,
		referral: NewReferralService(db, rules, lg),
		final:    final,
		stats:    NewStatsService(db, lg),
	}
}

func (f *fixture) seedPlayer(t *testing.T, id int64, name string, fragments ...int) *models.Player {
	t.Helper()
	p := &models.Player{
		ID:           id,
		Name:         name,
		Fragments:    models.FragmentSet(fragments),
		ReferralCode: NewReferralCode(name),
		Timestamps:   models.Timestamps{CreatedAt: baseTime},
	}
	if p.Fragments == nil {
		p.Fragments = models.FragmentSet{}
	}
	require.NoError(t, f.db.Create(p).Error)
	return p
}

func (f *fixture) reload(t *testing.T, id int64) models.Player {
	t.Helper()
	var p models.Player
	require.NoError(t, f.db.Where("id = ?", id).First(&p).Error)
	return p
}

// paidInvoice creates an invoice for the player and marks it paid.
func (f *fixture) paidInvoice(t *testing.T, playerID int64) string {
	t.Helper()
	created, err := f.invoices.Create(t.Context(), playerID)
	require.NoError(t, err)
	changed, err := f.invoices.MarkPaid(t.Context(), created.InvoiceID, "hash-"+created.MatchToken)
	require.NoError(t, err)
	require.True(t, changed)
	return created.InvoiceID
}

package s3blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/laybot/internal/domain"
)

type memBucket struct {
	mu        sync.Mutex
	objects   map[string][]byte
	multipart int
	putErr    error
}

func newMemBucket() *memBucket { return &memBucket{objects: map[string][]byte{}} }

func (b *memBucket) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if b.putErr != nil {
		return b.putErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[path] = raw
	return nil
}

func (b *memBucket) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	b.multipart++
	return b.Put(ctx, path, data, "")
}

func (b *memBucket) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (b *memBucket) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for p, raw := range b.objects {
		if strings.HasPrefix(p, prefix) {
			out = append(out, domain.BlobInfo{Path: p, Size: int64(len(raw))})
		}
	}
	return out, nil
}

func (b *memBucket) Exists(_ context.Context, path string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[path]
	return ok, nil
}

type settledBets struct {
	recs      []domain.BetRecord
	deletedAt []time.Time
}

func (s *settledBets) ListSettledBefore(_ context.Context, before time.Time) ([]domain.BetRecord, error) {
	var out []domain.BetRecord
	for _, r := range s.recs {
		if r.SettledAt != nil && r.SettledAt.Before(before) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *settledBets) DeleteSettledBefore(_ context.Context, before time.Time) (int64, error) {
	s.deletedAt = append(s.deletedAt, before)
	var kept []domain.BetRecord
	var n int64
	for _, r := range s.recs {
		if r.SettledAt != nil && r.SettledAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.recs = kept
	return n, nil
}

type auditLog struct{ events []string }

func (a *auditLog) Log(_ context.Context, event string, _ map[string]any) error {
	a.events = append(a.events, event)
	return nil
}

func (a *auditLog) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func settled(betID string, at time.Time) domain.BetRecord {
	return domain.BetRecord{
		ID: "r-" + betID, BetID: betID, MarketID: "1.1", Side: domain.OrderSideLay,
		Stake: decimal.NewFromInt(2), Odds: decimal.NewFromFloat(4), Liability: decimal.NewFromInt(6),
		Result: domain.BetResultWon, ProfitLoss: decimal.RequireFromString("1.9"),
		PlacedAt: at.Add(-time.Hour), SettledAt: &at,
	}
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func lines(t *testing.T, b *memBucket, path string) []string {
	t.Helper()
	raw, ok := b.objects[path]
	require.True(t, ok, "missing %s", path)
	return strings.Split(strings.TrimSpace(string(raw)), "\n")
}

func TestArchiveBetsPartitionsBySettlementMonth(t *testing.T) {
	jan := time.Date(2026, 1, 20, 18, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 3, 15, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 3, 30, 15, 0, 0, 0, time.UTC)
	bets := &settledBets{recs: []domain.BetRecord{settled("a", jan), settled("b", feb), settled("c", feb), settled("d", recent)}}
	bucket := newMemBucket()
	audit := &auditLog{}

	arch := NewBetArchiver(bucket, bets, audit, quietLogger())
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	n, err := arch.ArchiveBets(context.Background(), cutoff)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	assert.Len(t, lines(t, bucket, "archive/bets/2026-01.jsonl"), 1)
	feb2 := lines(t, bucket, "archive/bets/2026-02.jsonl")
	require.Len(t, feb2, 2)
	assert.Contains(t, feb2[0], `"bet_id":"b"`)

	require.Len(t, bets.recs, 1, "recent bet stays in the ledger")
	assert.Equal(t, "d", bets.recs[0].BetID)
	assert.Equal(t, []string{"archive.bets"}, audit.events)
}

func TestArchiveBetsAppendsWithoutDuplicates(t *testing.T) {
	feb := time.Date(2026, 2, 3, 15, 0, 0, 0, time.UTC)
	bucket := newMemBucket()
	bucket.objects["archive/bets/2026-02.jsonl"] = []byte(`{"bet_id":"old"}` + "\n" + `{"bet_id":"b"}`)

	bets := &settledBets{recs: []domain.BetRecord{settled("b", feb), settled("c", feb)}}
	arch := NewBetArchiver(bucket, bets, nil, quietLogger())

	n, err := arch.ArchiveBets(context.Background(), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got := lines(t, bucket, "archive/bets/2026-02.jsonl")
	require.Len(t, got, 3)
	assert.Equal(t, `{"bet_id":"old"}`, got[0])
	assert.Equal(t, `{"bet_id":"b"}`, got[1])
	assert.Contains(t, got[2], `"bet_id":"c"`)
	assert.Empty(t, bets.recs)
}

func TestArchiveBetsUploadFailureKeepsLedger(t *testing.T) {
	feb := time.Date(2026, 2, 3, 15, 0, 0, 0, time.UTC)
	bucket := newMemBucket()
	bucket.putErr = errors.New("access denied")
	bets := &settledBets{recs: []domain.BetRecord{settled("b", feb)}}
	audit := &auditLog{}

	_, err := NewBetArchiver(bucket, bets, audit, quietLogger()).
		ArchiveBets(context.Background(), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.Len(t, bets.recs, 1)
	assert.Empty(t, bets.deletedAt)
	assert.Empty(t, audit.events)
}

func TestArchiveBetsNothingToDo(t *testing.T) {
	bets := &settledBets{}
	n, err := NewBetArchiver(newMemBucket(), bets, nil, quietLogger()).
		ArchiveBets(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, bets.deletedAt)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "http://localhost:9000", normaliseEndpoint("http://localhost:9000", true))
}

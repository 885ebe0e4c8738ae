package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/laybot/internal/domain"
)

// multipartThreshold is the payload size above which archives go through the
// multipart uploader.
const multipartThreshold = 16 * 1024 * 1024

// BetArchiveStore is the slice of the bet store the archiver needs.
type BetArchiveStore interface {
	ListSettledBefore(ctx context.Context, before time.Time) ([]domain.BetRecord, error)
	DeleteSettledBefore(ctx context.Context, before time.Time) (int64, error)
}

// Bucket stores archive files.
type Bucket interface {
	domain.BlobWriter
	domain.BlobReader
}

// BetArchiver implements domain.Archiver. Settled bets are appended as JSONL
// to archive/bets/YYYY-MM.jsonl, partitioned by settlement month, and removed
// from the ledger only after every upload has succeeded. Rows already present
// in a month file are not written twice, so a run interrupted before the
// delete can be repeated safely.
type BetArchiver struct {
	bucket Bucket
	bets   BetArchiveStore
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewBetArchiver creates a BetArchiver. audit may be nil.
func NewBetArchiver(bucket Bucket, bets BetArchiveStore, audit domain.AuditStore, logger *slog.Logger) *BetArchiver {
	return &BetArchiver{
		bucket: bucket,
		bets:   bets,
		audit:  audit,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveBets archives every bet settled before the cutoff and returns the
// number of rows written to the bucket.
func (a *BetArchiver) ArchiveBets(ctx context.Context, before time.Time) (int64, error) {
	recs, err := a.bets.ListSettledBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive bets query: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}

	byMonth := make(map[string][]domain.BetRecord)
	for _, rec := range recs {
		at := before
		if rec.SettledAt != nil {
			at = *rec.SettledAt
		}
		path := archivePath("bets", at)
		byMonth[path] = append(byMonth[path], rec)
	}
	paths := make([]string, 0, len(byMonth))
	for p := range byMonth {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var written int64
	for _, path := range paths {
		n, err := a.appendMonth(ctx, path, byMonth[path])
		if err != nil {
			return written, err
		}
		written += n
	}

	deleted, err := a.bets.DeleteSettledBefore(ctx, before)
	if err != nil {
		return written, fmt.Errorf("s3blob: archive bets delete: %w", err)
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.bets", map[string]any{
			"paths":   paths,
			"count":   written,
			"deleted": deleted,
			"before":  before.UTC().Format(time.RFC3339),
		}); err != nil {
			return written, fmt.Errorf("s3blob: archive bets audit log: %w", err)
		}
	}

	a.logger.InfoContext(ctx, "bets archived",
		slog.Int64("count", written),
		slog.Int64("deleted", deleted),
		slog.Time("before", before),
	)
	return written, nil
}

// appendMonth merges recs into the month file at path, skipping bet IDs it
// already holds.
func (a *BetArchiver) appendMonth(ctx context.Context, path string, recs []domain.BetRecord) (int64, error) {
	existing, seen, err := a.load(ctx, path)
	if err != nil {
		return 0, err
	}

	fresh := make([]domain.BetRecord, 0, len(recs))
	for _, rec := range recs {
		if _, dup := seen[rec.BetID]; dup {
			continue
		}
		seen[rec.BetID] = struct{}{}
		fresh = append(fresh, rec)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	lines, err := marshalJSONL(fresh)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive bets marshal: %w", err)
	}
	payload := append(existing, lines...)

	if len(payload) > multipartThreshold {
		err = a.bucket.PutMultipart(ctx, path, bytes.NewReader(payload), minPartSize)
	} else {
		err = a.bucket.Put(ctx, path, bytes.NewReader(payload), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive bets upload: %w", err)
	}
	return int64(len(fresh)), nil
}

// load returns the current contents of a month file and the bet IDs in it.
func (a *BetArchiver) load(ctx context.Context, path string) ([]byte, map[string]struct{}, error) {
	seen := make(map[string]struct{})
	ok, err := a.bucket.Exists(ctx, path)
	if err != nil {
		return nil, nil, fmt.Errorf("s3blob: archive bets: %w", err)
	}
	if !ok {
		return nil, seen, nil
	}

	body, err := a.bucket.Get(ctx, path)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, seen, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("s3blob: archive bets: %w", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, nil, fmt.Errorf("s3blob: read %s: %w", path, err)
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var row struct {
			BetID string `json:"bet_id"`
		}
		if json.Unmarshal(sc.Bytes(), &row) == nil && row.BetID != "" {
			seen[row.BetID] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("s3blob: scan %s: %w", path, err)
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	return data, seen, nil
}

// archivePath builds the key of a month file, e.g. archive/bets/2026-01.jsonl.
func archivePath(kind string, at time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, at.UTC().Format("2006-01"))
}

// marshalJSONL encodes records one compact JSON object per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*BetArchiver)(nil)

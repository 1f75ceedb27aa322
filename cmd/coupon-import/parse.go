package main

import (
	"bufio"
	"context"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/xenking/loja-api/internal/domain/coupon"
)

const fieldSep = ";"

// parseLine parses one definition. ok is false for blank and comment lines.
// Field rules beyond syntax are left to coupon.Importer.
func parseLine(line string) (d coupon.Definition, ok bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return d, false, nil
	}

	parts := strings.SplitN(line, fieldSep, 6)
	if len(parts) < 5 {
		return d, false, errors.Errorf("want at least 5 fields, got %d", len(parts))
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	d.Code = coupon.NormalizeCode(parts[0])
	d.Type = coupon.Type(strings.ToLower(parts[1]))
	if d.Value, err = decimal.NewFromString(parts[2]); err != nil {
		return d, false, errors.Wrap(err, "value")
	}
	if d.ExpiresAt, err = parseExpiry(parts[3]); err != nil {
		return d, false, errors.Wrap(err, "expires")
	}
	if d.MaxUses, err = strconv.Atoi(parts[4]); err != nil {
		return d, false, errors.Wrap(err, "max uses")
	}
	if len(parts) == 6 {
		d.Description = parts[5]
	}
	return d, true, nil
}

// parseExpiry accepts RFC 3339 timestamps and plain days, which expire at
// the last second of that day in UTC.
func parseExpiry(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.Add(24*time.Hour - time.Second), nil
	}
	return time.Parse(time.RFC3339, s)
}

// dedup remembers codes across files. A bloom filter hit counts as seen, so
// a false positive drops a code at the configured rate.
type dedup struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
}

func newDedup(capacity uint, fpr float64) *dedup {
	return &dedup{filter: bloom.NewWithEstimates(capacity, fpr)}
}

// add records code and reports whether it was new.
func (d *dedup) add(code string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return !d.filter.TestOrAddString(code)
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

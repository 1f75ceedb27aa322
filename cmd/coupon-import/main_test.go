package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/loja-api/internal/domain/coupon"
)

func writeGz(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestParseLine(t *testing.T) {
	d, ok, err := parseLine(" welcome10 ; Percentage ; 10 ; 2027-01-31 ; 100 ; Boas-vindas; 10% ")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "WELCOME10", d.Code)
	assert.Equal(t, coupon.TypePercentage, d.Type)
	assert.Equal(t, "10", d.Value.String())
	assert.Equal(t, time.Date(2027, 1, 31, 23, 59, 59, 0, time.UTC), d.ExpiresAt)
	assert.Equal(t, 100, d.MaxUses)
	assert.Equal(t, "Boas-vindas; 10%", d.Description)

	d, ok, err = parseLine("FRETE;fixed_amount;15.00;2027-01-31T12:00:00Z;1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, d.Description)
	assert.Equal(t, time.Date(2027, 1, 31, 12, 0, 0, 0, time.UTC), d.ExpiresAt)

	for _, skip := range []string{"", "   ", "# CODE;TYPE;VALUE"} {
		_, ok, err = parseLine(skip)
		require.NoError(t, err)
		assert.False(t, ok)
	}

	for _, bad := range []string{
		"ONLY;three;fields",
		"CODE;percentage;ten;2027-01-31;1",
		"CODE;percentage;10;31/01/2027;1",
		"CODE;percentage;10;2027-01-31;many",
	} {
		_, _, err = parseLine(bad)
		assert.Error(t, err, bad)
	}
}

func TestDedup(t *testing.T) {
	d := newDedup(1000, 0.0001)
	assert.True(t, d.add("WELCOME10"))
	assert.False(t, d.add("WELCOME10"))
	assert.True(t, d.add("FRETE"))
}

type recordingSink struct {
	mu    sync.Mutex
	codes []string
}

func (s *recordingSink) sink(_ context.Context, d coupon.Definition) error {
	if d.Type == "bogo" {
		return &coupon.DefinitionError{Field: "type", Reason: "must be percentage or fixed_amount"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = append(s.codes, d.Code)
	return nil
}

func TestImportFiles(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeGz(t, dir, "a.gz",
			"# exported 2026-10-01",
			"WELCOME10;percentage;10;2027-01-31;100",
			"FRETE;fixed_amount;15;2027-01-31;50",
			"broken line",
		),
		writeGz(t, dir, "b.gz",
			"welcome10;percentage;20;2027-01-31;100",
			"BOGO;bogo;1;2027-01-31;1",
			"NATAL;percentage;25;2026-12-31;10",
		),
	}

	var (
		st   stats
		sink recordingSink
	)
	err := importFiles(context.Background(), files, options{workers: 3}, newDedup(1000, 0.0001), sink.sink, &st)
	require.NoError(t, err)

	sort.Strings(sink.codes)
	assert.Equal(t, []string{"FRETE", "NATAL", "WELCOME10"}, sink.codes)
	assert.EqualValues(t, 5, st.lines.Load())
	assert.EqualValues(t, 1, st.duplicates.Load())
	assert.EqualValues(t, 1, st.malformed.Load())
	assert.EqualValues(t, 1, st.rejected.Load())
	assert.EqualValues(t, 3, st.imported.Load())
}

func TestImportFiles_SinkFailureAborts(t *testing.T) {
	dir := t.TempDir()
	path := writeGz(t, dir, "a.gz",
		"WELCOME10;percentage;10;2027-01-31;100",
		"FRETE;fixed_amount;15;2027-01-31;50",
	)
	boom := errors.New("connection refused")

	var st stats
	err := importFiles(context.Background(), []string{path}, options{workers: 1}, newDedup(1000, 0.0001),
		func(context.Context, coupon.Definition) error { return boom }, &st)
	require.ErrorIs(t, err, boom)
	assert.Zero(t, st.imported.Load())
}

func TestStreamGzFile_Missing(t *testing.T) {
	err := streamGzFile(context.Background(), filepath.Join(t.TempDir(), "nope.gz"), func(string) error { return nil })
	require.Error(t, err)
}

package storage

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/shelfscan/internal/config"
	"github.com/lehigh-university-libraries/shelfscan/internal/models"
)

func sampleRecord(id string) *models.Record {
	r := models.NewRecord(id)
	r.Codes.UPC = "194735256921"
	r.Item.Series = "J-IMPORTS"
	r.Media = append(r.Media, models.MediaEntry{Key: "items/" + id + "/a.jpg", Side: "front", Camera: 1})
	r.Meta.CreatedAt = "2026-10-16T10:00:00.000Z"
	r.Meta.UpdatedAt = "2026-10-16T10:00:00.000Z"
	models.Normalize(r)
	return r
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(ctx, "H10011")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Put(ctx, "H10011", sampleRecord("H10011")))

			got, err := s.Get(ctx, "H10011")
			require.NoError(t, err)
			assert.Equal(t, sampleRecord("H10011"), got)

			updated := got.Clone()
			updated.Codes.EAN = "4006381333931"
			require.NoError(t, s.Put(ctx, "H10011", updated))

			got, err = s.Get(ctx, "H10011")
			require.NoError(t, err)
			assert.Equal(t, "4006381333931", got.Codes.EAN)
		})
	}
}

func TestStoreIsolation(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			r := sampleRecord("A1")
			require.NoError(t, s.Put(ctx, "A1", r))
			r.Codes.UPC = "mutated"

			got, err := s.Get(ctx, "A1")
			require.NoError(t, err)
			assert.Equal(t, "194735256921", got.Codes.UPC)

			got.Item.Series = "changed"
			again, err := s.Get(ctx, "A1")
			require.NoError(t, err)
			assert.Equal(t, "J-IMPORTS", again.Item.Series)
		})
	}
}

func TestStoreList(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"C3", "A1", "B2"} {
				require.NoError(t, s.Put(ctx, id, sampleRecord(id)))
			}
			records, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, records, 3)
			assert.Equal(t, "A1", records[0].Identifier)
			assert.Equal(t, "C3", records[2].Identifier)
		})
	}
}

func TestSQLiteReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "records.db")

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "A1", sampleRecord("A1")))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, "A1", got.Identifier)
}

func TestOpen(t *testing.T) {
	s, err := Open(config.StoreConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = Open(config.StoreConfig{Backend: "postgres"})
	assert.Error(t, err)
}

func TestExportParquet(t *testing.T) {
	records := []*models.Record{sampleRecord("A1"), sampleRecord("B2")}

	var buf bytes.Buffer
	require.NoError(t, ExportParquet(&buf, records))

	rows, err := parquet.Read[ExportRow](bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "A1", rows[0].Identifier)
	assert.Equal(t, "194735256921", rows[0].UPC)
	assert.Equal(t, int64(1), rows[0].MediaCount)
	assert.Contains(t, rows[1].Record, `"identifier":"B2"`)
}

func TestExportJSONL(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportJSONL(&buf, []*models.Record{sampleRecord("A1"), sampleRecord("B2")}))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"identifier":"A1"`)
}

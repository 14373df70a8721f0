package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestFileBackend_WritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(FileBackendConfig{Directory: dir}, nil)
	require.NoError(t, err)

	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, b.Write(context.Background(), Entry{ID: "a", Tool: "analyze_image", Success: true, Timestamp: ts}))
	require.NoError(t, b.Write(context.Background(), Entry{ID: "b", Tool: "analyze_image", Error: "bad", Timestamp: ts}))
	require.NoError(t, b.Close())

	files, err := filepath.Glob(filepath.Join(dir, "audit_2026-03-01_*.jsonl"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	f, err := os.Open(files[0])
	require.NoError(t, err)
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestFileBackend_RotatesOnDateChange(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(FileBackendConfig{Directory: dir}, nil)
	require.NoError(t, err)
	defer b.Close()

	day1 := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	require.NoError(t, b.Write(context.Background(), Entry{ID: "a", Timestamp: day1}))
	require.NoError(t, b.Write(context.Background(), Entry{ID: "b", Timestamp: day1.Add(2 * time.Hour)}))

	files, err := filepath.Glob(filepath.Join(dir, "*.jsonl"))
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "audit.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return db
}

func TestSQLBackend_WriteAndRecent(t *testing.T) {
	db := openSQLite(t)
	b, err := NewSQLBackend(db, true)
	require.NoError(t, err)
	assert.Equal(t, "sql", b.Name())

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"first", "second", "third"} {
		require.NoError(t, b.Write(context.Background(), Entry{
			ID: id, Tool: "analyze_image", Success: i != 1, Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	recs, err := b.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "third", recs[0].ID)
	assert.Equal(t, "second", recs[1].ID)
	assert.False(t, recs[1].Success)

	var count int64
	require.NoError(t, db.Model(&Record{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestSQLBackend_DuplicateIDFailsButLogSwallows(t *testing.T) {
	b, err := NewSQLBackend(openSQLite(t), true)
	require.NoError(t, err)

	l := NewLog(LogConfig{Backends: []Backend{b}, AsyncWorkers: 1}, nil)
	l.Record(Entry{ID: "dup", Tool: "analyze_image"})
	l.Record(Entry{ID: "dup", Tool: "analyze_image"})
	require.NoError(t, l.Close())

	assert.Equal(t, 2, l.Len())
	assert.Equal(t, int64(1), l.Summary(0).BackendErrors["sql"])
}

func TestNewSQLBackend_NilDB(t *testing.T) {
	_, err := NewSQLBackend(nil, true)
	assert.Error(t, err)
}

func TestMongoBackend_UnreachableServerIsSwallowed(t *testing.T) {
	client, err := mongo.Connect(options.Client().
		ApplyURI("mongodb://127.0.0.1:1").
		SetServerSelectionTimeout(100 * time.Millisecond))
	require.NoError(t, err)

	b, err := NewMongoBackend(client, "", "", true)
	require.NoError(t, err)
	assert.Equal(t, "mongo", b.Name())

	l := NewLog(LogConfig{Backends: []Backend{b}, AsyncWorkers: 1, WriteTimeout: time.Second}, nil)
	l.Record(Entry{Tool: "upload_to_supabase", Success: true})
	require.NoError(t, l.Close())

	assert.Equal(t, 1, l.Len())
	assert.Equal(t, int64(1), l.Summary(0).BackendErrors["mongo"])
}

func TestNewMongoBackend_NilClient(t *testing.T) {
	_, err := NewMongoBackend(nil, "db", "c", false)
	assert.Error(t, err)
}

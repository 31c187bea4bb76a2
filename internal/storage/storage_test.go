/*
Package storage provides tests for the storage layer.
*/
package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/khanglvm/casebank/internal/model"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	storage := NewStorage(filepath.Join(t.TempDir(), "nested", DatabaseFile))
	if err := storage.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { storage.Close() })
	return storage
}

func testExample(id string) model.StoredExample {
	now := time.Date(2026, 2, 1, 10, 30, 0, 123456789, time.UTC)
	return model.StoredExample{
		RequestID:      id,
		RequestText:    "As a user, I want to log in",
		Output:         []model.TestCase{{ID: "TC-1", Title: "Valid login", Steps: "1. Enter credentials", Expected: "Dashboard shown"}},
		Domain:         "identity/auth",
		Complexity:     "low",
		ActorRoles:     []string{"user"},
		ActionKeywords: []string{"login"},
		QualityScore:   model.DefaultQuality,
		Source:         model.SourceGenerated,
		CreatedAt:      now,
		LastUpdatedAt:  now,
	}
}

// TestInit verifies database initialization and schema creation.
func TestInit(t *testing.T) {
	storage := newTestStorage(t)

	// Verify database file exists
	if _, err := os.Stat(storage.Path()); os.IsNotExist(err) {
		t.Error("Database file not created")
	}

	// Re-running migrations on an open database is a no-op
	if err := storage.runMigrations(); err != nil {
		t.Errorf("second migration run failed: %v", err)
	}
}

func TestInit_InvalidPath(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	// A regular file cannot be a parent directory
	storage := NewStorage(filepath.Join(file, "sub", DatabaseFile))
	if err := storage.Init(); err == nil {
		t.Error("expected Init to fail for an unusable path")
	}

	if _, err := storage.ListExamples(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestInsertAndGetExample(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()
	ex := testExample("req-1")

	if err := storage.InsertExample(ctx, ex, []float32{0.6, 0.8}, "hashing-v1-2"); err != nil {
		t.Fatalf("InsertExample failed: %v", err)
	}

	got, err := storage.GetExample(ctx, "req-1")
	if err != nil {
		t.Fatalf("GetExample failed: %v", err)
	}

	if got.RequestText != ex.RequestText {
		t.Errorf("expected text %q, got %q", ex.RequestText, got.RequestText)
	}
	if len(got.Output) != 1 || got.Output[0].Title != "Valid login" {
		t.Errorf("expected output to round-trip, got %+v", got.Output)
	}
	if got.CorrectedOutput != nil {
		t.Errorf("expected no correction, got %+v", got.CorrectedOutput)
	}
	if !got.CreatedAt.Equal(ex.CreatedAt) {
		t.Errorf("expected created_at %v, got %v", ex.CreatedAt, got.CreatedAt)
	}
	if len(got.ActorRoles) != 1 || got.ActorRoles[0] != "user" {
		t.Errorf("expected actor roles [user], got %v", got.ActorRoles)
	}

	vectors, err := storage.ListVectors(ctx)
	if err != nil {
		t.Fatalf("ListVectors failed: %v", err)
	}
	if len(vectors) != 1 || vectors[0].RequestID != "req-1" || vectors[0].Version != "hashing-v1-2" {
		t.Fatalf("unexpected vectors: %+v", vectors)
	}
	if vectors[0].Vector[0] != 0.6 || vectors[0].Vector[1] != 0.8 {
		t.Errorf("expected vector to round-trip, got %v", vectors[0].Vector)
	}
}

func TestInsertExample_Duplicate(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	if err := storage.InsertExample(ctx, testExample("dup"), []float32{1}, "v"); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	err := storage.InsertExample(ctx, testExample("dup"), []float32{1}, "v")
	if !errors.Is(err, model.ErrAlreadyRecorded) {
		t.Errorf("expected ErrAlreadyRecorded, got %v", err)
	}

	count, _ := storage.CountExamples(ctx)
	if count != 1 {
		t.Errorf("expected 1 example, got %d", count)
	}
}

func TestInsertExample_InvalidVectorLeavesNothing(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	// NaN cannot be encoded, so nothing may be written
	nan := float32(0)
	nan = nan / nan
	if err := storage.InsertExample(ctx, testExample("bad"), []float32{nan}, "v"); err == nil {
		t.Fatal("expected encoding error")
	}

	if _, err := storage.GetExample(ctx, "bad"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound after failed insert, got %v", err)
	}
}

func TestGetExample_NotFound(t *testing.T) {
	storage := newTestStorage(t)

	if _, err := storage.GetExample(context.Background(), "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListExamples_InsertionOrder(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	ids := []string{"c", "a", "b"}
	for _, id := range ids {
		if err := storage.InsertExample(ctx, testExample(id), []float32{1}, "v"); err != nil {
			t.Fatalf("insert %s failed: %v", id, err)
		}
	}

	examples, err := storage.ListExamples(ctx)
	if err != nil {
		t.Fatalf("ListExamples failed: %v", err)
	}
	for i, id := range ids {
		if examples[i].RequestID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, examples[i].RequestID)
		}
	}
}

func TestApplyFeedback(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	ex := testExample("req-1")
	if err := storage.InsertExample(ctx, ex, []float32{1}, "v"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	correction := []model.TestCase{{ID: "TC-1", Title: "Valid login with MFA"}}
	ex.QualityScore = 4.0
	ex.FeedbackCount = 1
	ex.CorrectedOutput = correction
	ex.LastUpdatedAt = ex.LastUpdatedAt.Add(time.Hour)

	fb := model.FeedbackRecord{
		RequestID:       "req-1",
		Rating:          5,
		Comments:        "missing MFA",
		CorrectedOutput: correction,
		CreatedAt:       ex.LastUpdatedAt,
	}
	if err := storage.ApplyFeedback(ctx, ex, fb); err != nil {
		t.Fatalf("ApplyFeedback failed: %v", err)
	}

	got, _ := storage.GetExample(ctx, "req-1")
	if got.QualityScore != 4.0 || got.FeedbackCount != 1 {
		t.Errorf("expected quality 4.0 / count 1, got %f / %d", got.QualityScore, got.FeedbackCount)
	}
	if len(got.CorrectedOutput) != 1 || got.CorrectedOutput[0].Title != "Valid login with MFA" {
		t.Errorf("expected correction stored, got %+v", got.CorrectedOutput)
	}

	log, err := storage.ListFeedback(ctx, time.Time{})
	if err != nil {
		t.Fatalf("ListFeedback failed: %v", err)
	}
	if len(log) != 1 || log[0].Comments != "missing MFA" || log[0].Rating != 5 {
		t.Errorf("unexpected feedback log: %+v", log)
	}

	count, _ := storage.CountFeedback(ctx)
	if count != 1 {
		t.Errorf("expected 1 feedback row, got %d", count)
	}
}

func TestApplyFeedback_NotFound(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	ex := testExample("ghost")
	err := storage.ApplyFeedback(ctx, ex, model.FeedbackRecord{RequestID: "ghost", Rating: 3, CreatedAt: time.Now()})
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	count, _ := storage.CountFeedback(ctx)
	if count != 0 {
		t.Errorf("expected no feedback rows after failed apply, got %d", count)
	}
}

func TestListFeedback_Since(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	ex := testExample("req-1")
	if err := storage.InsertExample(ctx, ex, []float32{1}, "v"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		ex.FeedbackCount = i + 1
		fb := model.FeedbackRecord{RequestID: "req-1", Rating: float64(i + 2), CreatedAt: base.AddDate(0, 0, i*7)}
		if err := storage.ApplyFeedback(ctx, ex, fb); err != nil {
			t.Fatalf("ApplyFeedback failed: %v", err)
		}
	}

	recent, err := storage.ListFeedback(ctx, base.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("ListFeedback failed: %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("expected 2 recent feedback rows, got %d", len(recent))
	}
}

func TestListFeedback_SinceSubSecond(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	ex := testExample("req-1")
	if err := storage.InsertExample(ctx, ex, []float32{1}, "v"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	for i, at := range []time.Time{base, base.Add(500 * time.Millisecond), base.Add(time.Second)} {
		ex.FeedbackCount = i + 1
		fb := model.FeedbackRecord{RequestID: "req-1", Rating: 3, CreatedAt: at}
		if err := storage.ApplyFeedback(ctx, ex, fb); err != nil {
			t.Fatalf("ApplyFeedback failed: %v", err)
		}
	}

	tests := []struct {
		since time.Time
		want  int
	}{
		{base, 3},
		{base.Add(time.Nanosecond), 2},
		{base.Add(500 * time.Millisecond), 2},
		{base.Add(600 * time.Millisecond), 1},
		{base.Add(time.Second), 1},
	}
	for _, tt := range tests {
		got, err := storage.ListFeedback(ctx, tt.since)
		if err != nil {
			t.Fatalf("ListFeedback failed: %v", err)
		}
		if len(got) != tt.want {
			t.Errorf("since %s: expected %d rows, got %d", tt.since.Format(time.RFC3339Nano), tt.want, len(got))
		}
	}
}

func TestParseTime_TrimmedFraction(t *testing.T) {
	want := time.Date(2026, 2, 1, 12, 0, 0, 500000000, time.UTC)
	for _, s := range []string{"2026-02-01T12:00:00.5Z", formatTime(want)} {
		got, err := parseTime(s)
		if err != nil {
			t.Fatalf("parseTime(%q) failed: %v", s, err)
		}
		if !got.Equal(want) {
			t.Errorf("parseTime(%q) = %v, want %v", s, got, want)
		}
	}
	if got := formatTime(want); got != "2026-02-01T12:00:00.500000000Z" {
		t.Errorf("formatTime = %q", got)
	}
}

func TestMeta(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	if _, ok, err := storage.GetMeta(ctx, MetaEmbeddingModel); err != nil || ok {
		t.Errorf("expected missing meta, got ok=%v err=%v", ok, err)
	}

	if err := storage.SetMeta(ctx, MetaEmbeddingModel, "hashing-v1-384"); err != nil {
		t.Fatalf("SetMeta failed: %v", err)
	}
	if err := storage.SetMeta(ctx, MetaEmbeddingModel, "ollama-nomic-768"); err != nil {
		t.Fatalf("SetMeta overwrite failed: %v", err)
	}

	value, ok, err := storage.GetMeta(ctx, MetaEmbeddingModel)
	if err != nil || !ok || value != "ollama-nomic-768" {
		t.Errorf("expected overwritten value, got %q ok=%v err=%v", value, ok, err)
	}
}

func TestReplaceVectors(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := storage.InsertExample(ctx, testExample(id), []float32{1, 0}, "old"); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	err := storage.ReplaceVectors(ctx, []VectorRecord{
		{RequestID: "a", Vector: []float32{0, 1, 0}, Version: "new"},
		{RequestID: "b", Vector: []float32{1, 0, 0}, Version: "new"},
	})
	if err != nil {
		t.Fatalf("ReplaceVectors failed: %v", err)
	}

	vectors, _ := storage.ListVectors(ctx)
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	for _, v := range vectors {
		if v.Version != "new" || len(v.Vector) != 3 {
			t.Errorf("expected new 3-dim vector for %s, got %+v", v.RequestID, v)
		}
	}

	version, _, _ := storage.GetMeta(ctx, MetaEmbeddingModel)
	dim, _, _ := storage.GetMeta(ctx, MetaDimension)
	if version != "new" || dim != "3" {
		t.Errorf("expected meta new/3, got %s/%s", version, dim)
	}
}

func TestClear(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	if err := storage.InsertExample(ctx, testExample("a"), []float32{1}, "v"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := storage.SetMeta(ctx, MetaEmbeddingModel, "v"); err != nil {
		t.Fatalf("SetMeta failed: %v", err)
	}

	if err := storage.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	count, _ := storage.CountExamples(ctx)
	vectors, _ := storage.ListVectors(ctx)
	if count != 0 || len(vectors) != 0 {
		t.Errorf("expected empty store, got %d examples / %d vectors", count, len(vectors))
	}
	if _, ok, _ := storage.GetMeta(ctx, MetaEmbeddingModel); !ok {
		t.Error("expected meta to survive Clear")
	}
}

func TestReopen_Durable(t *testing.T) {
	path := filepath.Join(t.TempDir(), DatabaseFile)
	ctx := context.Background()

	first := NewStorage(path)
	if err := first.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := first.InsertExample(ctx, testExample("persisted"), []float32{1}, "v"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	first.Close()

	second := NewStorage(path)
	if err := second.Init(); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer second.Close()

	if _, err := second.GetExample(ctx, "persisted"); err != nil {
		t.Errorf("expected example after reopen, got %v", err)
	}
}

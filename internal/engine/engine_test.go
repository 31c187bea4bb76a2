package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanglvm/casebank/internal/config"
	"github.com/khanglvm/casebank/internal/embedding"
	"github.com/khanglvm/casebank/internal/feedback"
	"github.com/khanglvm/casebank/internal/model"
	"github.com/khanglvm/casebank/internal/storage"
)

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	s := config.DefaultSettings()
	s.DataDir = t.TempDir()
	s.Embedder.Dimension = 64
	s.Commit.BackoffMillis = 1
	return s
}

func TestNewEmbedder(t *testing.T) {
	s := config.DefaultSettings()

	emb, err := NewEmbedder(s)
	require.NoError(t, err)
	assert.IsType(t, &embedding.Guard{}, emb)
	assert.Equal(t, 384, emb.Dimension())
	assert.Contains(t, emb.Version(), "hashing")

	s.Embedder.Type = config.EmbedderOllama
	s.Embedder.Dimension = 768
	emb, err = NewEmbedder(s)
	require.NoError(t, err)
	assert.Equal(t, 768, emb.Dimension())
	assert.Contains(t, emb.Version(), "ollama")

	s.Embedder.Type = "nope"
	_, err = NewEmbedder(s)
	assert.Error(t, err)
}

func TestOpen_RejectsInvalidSettings(t *testing.T) {
	s := testSettings(t)
	s.Retrieval.StrongMatch = 3

	_, err := Open(context.Background(), s)
	assert.Error(t, err)
}

func TestEngine_RetrieveRecordFeedback(t *testing.T) {
	ctx := context.Background()
	s := testSettings(t)

	eng, err := Open(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.DataDir, storage.DatabaseFile), eng.DatabasePath())

	r, err := eng.Retrieval.Retrieve(ctx, "As a user, I want to reset my password", 0)
	require.NoError(t, err)
	assert.Empty(t, r.Examples)

	_, err = eng.Retrieval.Record(r, []model.TestCase{{ID: "TC-1", Title: "Reset link is emailed"}}).Wait(ctx)
	require.NoError(t, err)

	ex, err := eng.Feedback.Submit(ctx, feedback.Submission{RequestID: r.RequestID, Rating: 5, Comments: "good"})
	require.NoError(t, err)
	assert.Equal(t, 4.0, ex.QualityScore)

	stats := eng.Stats()
	assert.Equal(t, 1, stats.TotalRecorded)
	assert.Equal(t, 1, stats.TotalFeedbackReceived)
	assert.Equal(t, 64, stats.Dimension)

	report, err := eng.Analyze(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalFeedback)
	assert.Equal(t, 5.0, report.AverageRating)

	require.NoError(t, eng.Close())

	// Durable across restarts
	eng, err = Open(ctx, s)
	require.NoError(t, err)
	defer eng.Close()

	next, err := eng.Retrieval.Retrieve(ctx, "As a user, I want to reset my password", 3)
	require.NoError(t, err)
	require.Len(t, next.Examples, 1)
	assert.Equal(t, r.RequestID, next.Examples[0].Example.RequestID)
	assert.Equal(t, 4.0, next.Examples[0].Example.QualityScore)
}

func TestEngine_UsesLimitFromSettings(t *testing.T) {
	ctx := context.Background()
	s := testSettings(t)
	s.Retrieval.Limit = 2

	eng, err := Open(ctx, s)
	require.NoError(t, err)
	defer eng.Close()

	for _, text := range []string{
		"As a user, I want to log in",
		"As a user, I want to log out",
		"As a user, I want to stay logged in",
	} {
		_, err := eng.Retrieval.RecordText(text, nil).Wait(ctx)
		require.NoError(t, err)
	}

	r, err := eng.Retrieval.Retrieve(ctx, "As a user, I want to log in", 0)
	require.NoError(t, err)
	assert.Len(t, r.Examples, 2)
}

func TestEngine_ReindexesWhenEmbedderChanges(t *testing.T) {
	ctx := context.Background()
	s := testSettings(t)

	eng, err := Open(ctx, s)
	require.NoError(t, err)
	_, err = eng.Retrieval.RecordText("As an admin, I want to export reports", nil).Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, eng.Close())

	s.Embedder.Dimension = 32
	eng, err = Open(ctx, s)
	require.NoError(t, err)
	defer eng.Close()

	stats := eng.Stats()
	assert.Equal(t, 32, stats.Dimension)
	assert.Equal(t, 1, stats.TotalRecorded)

	r, err := eng.Retrieval.Retrieve(ctx, "As an admin, I want to export reports", 1)
	require.NoError(t, err)
	require.Len(t, r.Examples, 1)
	assert.Greater(t, r.Examples[0].Signals.Semantic, 0.9)
}

// flakyEmbedder wraps the hashing embedder and can be taken offline.
type flakyEmbedder struct {
	inner *embedding.HashingEmbedder
	down  atomic.Bool
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.down.Load() {
		return nil, fmt.Errorf("%w: connection refused", model.ErrEmbeddingUnavailable)
	}
	return f.inner.Embed(ctx, text)
}
func (f *flakyEmbedder) Dimension() int  { return f.inner.Dimension() }
func (f *flakyEmbedder) Version() string { return f.inner.Version() }

func TestEngine_OpensDegradedWhenReindexCannotEmbed(t *testing.T) {
	ctx := context.Background()
	s := testSettings(t)
	text := "As an admin, I want to export reports"

	eng, err := Open(ctx, s)
	require.NoError(t, err)
	_, err = eng.Retrieval.RecordText(text, nil).Wait(ctx)
	require.NoError(t, err)
	require.NoError(t, eng.Close())

	emb := &flakyEmbedder{inner: embedding.NewHashingEmbedder(32)}
	emb.down.Store(true)
	eng, err = Open(ctx, s, WithEmbedder(emb), WithReindexRetry(10*time.Millisecond))
	require.NoError(t, err)
	defer eng.Close()

	assert.False(t, eng.Store.VectorsReady())
	r, err := eng.Retrieval.Retrieve(ctx, text, 1)
	require.NoError(t, err)
	assert.True(t, r.Degraded)
	require.Len(t, r.Examples, 1)

	// Backend returns; the index is rebuilt in the background
	emb.down.Store(false)
	require.Eventually(t, eng.Store.VectorsReady, 5*time.Second, 10*time.Millisecond)

	r, err = eng.Retrieval.Retrieve(ctx, text, 1)
	require.NoError(t, err)
	assert.False(t, r.Degraded)
	require.Len(t, r.Examples, 1)
	assert.Greater(t, r.Examples[0].Signals.Semantic, 0.9)
}

package vectorstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/pdf-rag/internal/embedding"
	"github.com/feichai0017/pdf-rag/internal/models"
	"github.com/feichai0017/pdf-rag/internal/service/query"
	"github.com/feichai0017/pdf-rag/internal/statusstore"
	"github.com/feichai0017/pdf-rag/internal/testutil"
	"github.com/feichai0017/pdf-rag/internal/vectorstore/index"
	"github.com/feichai0017/pdf-rag/pkg/logger"
	"github.com/feichai0017/pdf-rag/pkg/queue"
	"github.com/feichai0017/pdf-rag/pkg/storage/local"
	"github.com/feichai0017/pdf-rag/pkg/worker"
)

// fakeIngestor returns canned chunks for the first marker found in the file.
type fakeIngestor struct {
	mu      sync.Mutex
	byMark  map[string][]models.Chunk
	errs    map[string]error
	block   bool
	stall   chan struct{}
	onStart func()
}

func (f *fakeIngestor) Ingest(ctx context.Context, path string) ([]models.Chunk, error) {
	f.mu.Lock()
	onStart, block, stall := f.onStart, f.block, f.stall
	f.mu.Unlock()
	if onStart != nil {
		onStart()
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if stall != nil {
		// ignores ctx, like a decoder looping on a malformed file
		<-stall
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for mark, err := range f.errs {
		if bytes.Contains(data, []byte(mark)) {
			return nil, err
		}
	}
	for mark, chunks := range f.byMark {
		if bytes.Contains(data, []byte(mark)) {
			out := make([]models.Chunk, len(chunks))
			for i, c := range chunks {
				out[i] = models.Chunk{Content: c.Content, Metadata: map[string]interface{}{"chunk": i}}
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: no content found", models.ErrExtraction)
}

// recordingScheduler keeps tasks for the test to run by hand.
type recordingScheduler struct {
	mu    sync.Mutex
	tasks []queue.IngestTask
	err   error
}

func (s *recordingScheduler) Schedule(ctx context.Context, task queue.IngestTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.tasks = append(s.tasks, task)
	return nil
}

func (s *recordingScheduler) last(t *testing.T) queue.IngestTask {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.tasks)
	return s.tasks[len(s.tasks)-1]
}

// echoAnswerer returns the retrieved chunks with a fixed response.
type echoAnswerer struct{}

func (echoAnswerer) Answer(ctx context.Context, question string, r query.Retriever) (models.Answer, error) {
	results, err := r.Search(ctx, question, 4)
	if err != nil {
		return models.Answer{}, err
	}
	ans := models.Answer{Response: "answer"}
	for _, res := range results {
		ans.Sources = append(ans.Sources, models.Source{Content: res.Chunk.Content, Metadata: res.Chunk.Metadata})
	}
	return ans, nil
}

type failingEmbedder struct{ embedding.Embedder }

func (failingEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("model unavailable")
}

type testEnv struct {
	root      string
	store     *statusstore.FileStore
	ingestor  *fakeIngestor
	scheduler *recordingScheduler
	log       *logger.TestLogger
	deps      Deps
	cfg       Config
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	log := logger.NewTestLogger()
	staging, err := local.NewLocalStorage(t.TempDir(), log)
	require.NoError(t, err)

	env := &testEnv{
		root:      root,
		store:     statusstore.NewFileStore(filepath.Join(root, statusstore.DefaultFilename)),
		ingestor:  &fakeIngestor{byMark: map[string][]models.Chunk{}, errs: map[string]error{}},
		scheduler: &recordingScheduler{},
		log:       log,
	}
	env.cfg = Config{RootDir: root, ProcessingTimeout: 5 * time.Second}
	env.deps = Deps{
		Store:     env.store,
		Ingestor:  env.ingestor,
		Embedder:  embedding.NewHashingEmbedder(512),
		Staging:   staging,
		Scheduler: env.scheduler,
		Answerer:  echoAnswerer{},
		Logger:    log,
	}
	return env
}

func (e *testEnv) open(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(e.cfg, e.deps)
	require.NoError(t, err)
	require.NoError(t, m.Open(context.Background()))
	return m
}

func (e *testEnv) chunks(mark string, contents ...string) {
	cs := make([]models.Chunk, len(contents))
	for i, c := range contents {
		cs[i] = models.Chunk{Content: c}
	}
	e.ingestor.mu.Lock()
	e.ingestor.byMark[mark] = cs
	e.ingestor.mu.Unlock()
}

func submit(t *testing.T, m *Manager, name, text string) models.DocumentRecord {
	t.Helper()
	data := testutil.MinimalPDF(text)
	rec, err := m.SubmitDocument(context.Background(), name, int64(len(data)), bytes.NewReader(data))
	require.NoError(t, err)
	return rec
}

func (e *testEnv) ingestDoc1(t *testing.T, m *Manager) models.DocumentRecord {
	t.Helper()
	e.chunks("DOC1",
		"doc1 explains the river topic and its delta",
		"doc1 covers river floods in spring",
		"doc1 ends with river wildlife notes",
	)
	rec := submit(t, m, "doc1.pdf", "DOC1")
	require.NoError(t, m.ProcessDocument(context.Background(), e.scheduler.last(t)))
	return rec
}

func TestSubmitDocument_UploadedBeforeProcessing(t *testing.T) {
	env := newEnv(t)
	m := env.open(t)

	rec := submit(t, m, "doc1.pdf", "DOC1")
	assert.Regexp(t, `^[0-9a-f]{32}_doc1\.pdf$`, rec.ID)
	assert.Equal(t, models.StatusUploaded, rec.Status)

	got, err := m.GetStatus(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploaded, got.Status)

	persisted, err := env.store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploaded, persisted[rec.ID].Status)

	task := env.scheduler.last(t)
	assert.Equal(t, rec.ID, task.FileID)
	assert.Equal(t, "doc1.pdf", task.Filename)
}

func TestSubmitDocument_Validation(t *testing.T) {
	env := newEnv(t)
	m := env.open(t)
	ctx := context.Background()

	_, err := m.SubmitDocument(ctx, "notes.txt", 5, bytes.NewReader([]byte("hello")))
	assert.ErrorIs(t, err, models.ErrUnsupportedFormat)

	_, err = m.SubmitDocument(ctx, "fake.pdf", 5, bytes.NewReader([]byte("hello")))
	assert.ErrorIs(t, err, models.ErrUnsupportedFormat)

	_, err = m.SubmitDocument(ctx, "big.pdf", 1<<40, bytes.NewReader(testutil.MinimalPDF("x")))
	assert.ErrorIs(t, err, models.ErrFileTooLarge)

	assert.Empty(t, m.ListStatuses())
	assert.Empty(t, env.scheduler.tasks)
}

func TestSubmitDocument_SchedulingFailure(t *testing.T) {
	env := newEnv(t)
	env.scheduler.err = fmt.Errorf("%w: 1 tasks pending", models.ErrQueueFull)
	m := env.open(t)

	data := testutil.MinimalPDF("DOC1")
	_, err := m.SubmitDocument(context.Background(), "doc1.pdf", int64(len(data)), bytes.NewReader(data))
	require.ErrorIs(t, err, models.ErrQueueFull)

	list := m.ListStatuses()
	require.Len(t, list, 1)
	assert.Equal(t, models.StatusFailed, list[0].Status)
	assert.Contains(t, list[0].Message, "could not schedule")
}

func TestProcessDocument_Done(t *testing.T) {
	env := newEnv(t)
	m := env.open(t)

	rec := env.ingestDoc1(t, m)

	got, err := m.GetStatus(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, got.Status)
	assert.Equal(t, "Processing completed", got.Message)
	assert.Equal(t, 3, got.VectorCount)

	ix, err := index.Load(filepath.Join(env.root, rec.ID), env.deps.Embedder)
	require.NoError(t, err)
	assert.Equal(t, 3, ix.Len())

	answer, err := m.Query(context.Background(), "river topic in doc1")
	require.NoError(t, err)
	require.NotEmpty(t, answer.Sources)
	for _, s := range answer.Sources {
		assert.Contains(t, s.Content, "doc1")
		assert.Equal(t, "doc1.pdf", s.Metadata[MetaSource])
		assert.Equal(t, rec.ID, s.Metadata[MetaFileID])
	}
}

func TestProcessDocument_Failures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(env *testEnv)
		wantMsg string
	}{
		{
			name: "ocr total failure",
			setup: func(env *testEnv) {
				env.ingestor.errs["SCAN"] = fmt.Errorf("%w: OCR could not extract text from any of 2 pages", models.ErrOCRFailure)
			},
			wantMsg: "OCR",
		},
		{
			name:    "no content",
			setup:   func(env *testEnv) {},
			wantMsg: "no content found",
		},
		{
			name: "embedding failure",
			setup: func(env *testEnv) {
				env.chunks("SCAN", "some text")
				env.deps.Embedder = failingEmbedder{}
			},
			wantMsg: "embedding failed",
		},
		{
			name: "timeout",
			setup: func(env *testEnv) {
				env.ingestor.block = true
				env.cfg.ProcessingTimeout = 50 * time.Millisecond
			},
			wantMsg: "timed out",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t)
			tt.setup(env)
			m := env.open(t)

			rec := submit(t, m, "scan1.pdf", "SCAN")
			err := m.ProcessDocument(context.Background(), env.scheduler.last(t))
			require.Error(t, err)

			got, err := m.GetStatus(rec.ID)
			require.NoError(t, err)
			assert.Equal(t, models.StatusFailed, got.Status)
			assert.Contains(t, got.Message, "Processing failed:")
			assert.Contains(t, got.Message, tt.wantMsg)

			assert.NoDirExists(t, filepath.Join(env.root, rec.ID))
			assert.Nil(t, m.Active())
		})
	}
}

func TestProcessDocument_IngestorIgnoringDeadline(t *testing.T) {
	env := newEnv(t)
	env.chunks("SLOW", "slow document text")
	env.ingestor.stall = make(chan struct{})
	t.Cleanup(func() { close(env.ingestor.stall) })
	env.cfg.ProcessingTimeout = 100 * time.Millisecond
	m := env.open(t)

	rec := submit(t, m, "slow.pdf", "SLOW")
	start := time.Now()
	err := m.ProcessDocument(context.Background(), env.scheduler.last(t))
	require.ErrorIs(t, err, models.ErrExtraction)
	assert.Less(t, time.Since(start), 2*time.Second)

	got, err := m.GetStatus(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Contains(t, got.Message, "timed out")
	assert.Contains(t, got.Message, "text extraction failed")
	assert.NotContains(t, got.Message, "embedding")
	assert.NoDirExists(t, filepath.Join(env.root, rec.ID))
}

func TestProcessDocument_OCRSuccess(t *testing.T) {
	env := newEnv(t)
	env.chunks("SCAN", "scanned invoice total due in march")
	m := env.open(t)

	rec := submit(t, m, "scan1.pdf", "SCAN")
	require.NoError(t, m.ProcessDocument(context.Background(), env.scheduler.last(t)))

	got, err := m.GetStatus(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, got.Status)
	assert.Equal(t, 1, got.VectorCount)
}

func TestProcessDocument_RedeliveredTaskIgnored(t *testing.T) {
	env := newEnv(t)
	m := env.open(t)
	rec := env.ingestDoc1(t, m)

	before, err := m.GetStatus(rec.ID)
	require.NoError(t, err)

	require.NoError(t, m.ProcessDocument(context.Background(), env.scheduler.last(t)))
	after, err := m.GetStatus(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.True(t, env.log.Contains("WARN", "not awaiting processing"))
}

func TestProcessDocument_RecordRemovedDuringProcessing(t *testing.T) {
	env := newEnv(t)
	env.chunks("DOC1", "doc1 text")
	m := env.open(t)

	rec := submit(t, m, "doc1.pdf", "DOC1")
	env.ingestor.onStart = func() {
		_, err := m.Cleanup(context.Background(), 0)
		assert.NoError(t, err)
	}

	require.NoError(t, m.ProcessDocument(context.Background(), env.scheduler.last(t)))

	_, err := m.GetStatus(rec.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoDirExists(t, filepath.Join(env.root, rec.ID))
}

func TestQuery_Errors(t *testing.T) {
	env := newEnv(t)
	m := env.open(t)

	_, err := m.Query(context.Background(), "anything")
	assert.ErrorIs(t, err, models.ErrNoDocuments)

	_, err = m.Search(context.Background(), "anything", 0)
	assert.ErrorIs(t, err, models.ErrNoDocuments)

	env.ingestDoc1(t, m)
	_, err = m.Query(context.Background(), "   ")
	assert.ErrorIs(t, err, models.ErrEmptyQuery)
}

func TestRebuildActive_Idempotent(t *testing.T) {
	env := newEnv(t)
	m := env.open(t)
	env.ingestDoc1(t, m)

	env.chunks("DOC2", "doc2 is about mountain geology", "doc2 lists mountain ranges")
	submit(t, m, "doc2.pdf", "DOC2")
	require.NoError(t, m.ProcessDocument(context.Background(), env.scheduler.last(t)))

	ctx := context.Background()
	first, err := m.Search(ctx, "river mountain", 5)
	require.NoError(t, err)

	require.NoError(t, m.RebuildActive(ctx))
	second, err := m.Search(ctx, "river mountain", 5)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Chunk.Content, second[i].Chunk.Content)
		assert.InDelta(t, first[i].Score, second[i].Score, 1e-9)
	}
	assert.Equal(t, 5, m.Active().Len())
}

func TestRebuildActive_SkipsUnloadable(t *testing.T) {
	env := newEnv(t)
	m := env.open(t)
	rec := env.ingestDoc1(t, m)

	require.NoError(t, os.WriteFile(filepath.Join(env.root, rec.ID, index.VectorsFile), []byte("junk"), 0644))
	require.NoError(t, m.RebuildActive(context.Background()))

	assert.Nil(t, m.Active())
	assert.True(t, env.log.Contains("WARN", "unloadable"))
}

func TestCleanup_ZeroRemovesEverything(t *testing.T) {
	env := newEnv(t)
	env.ingestor.errs["BAD"] = errors.New("broken")
	m := env.open(t)

	env.ingestDoc1(t, m)
	submit(t, m, "bad.pdf", "BAD")
	_ = m.ProcessDocument(context.Background(), env.scheduler.last(t))
	submit(t, m, "pending.pdf", "PENDING")
	require.NoError(t, os.Mkdir(filepath.Join(env.root, "stray"), 0755))

	n, err := m.Cleanup(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, m.ListStatuses())
	assert.Nil(t, m.Active())

	entries, err := os.ReadDir(env.root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, statusstore.DefaultFilename, entries[0].Name())

	persisted, err := env.store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, persisted)

	_, err = m.Query(context.Background(), "river")
	assert.ErrorIs(t, err, models.ErrNoDocuments)
}

func TestCleanup_Retention(t *testing.T) {
	env := newEnv(t)
	m := env.open(t)

	base := time.Now()
	m.now = func() time.Time { return base.Add(-48 * time.Hour) }
	old := env.ingestDoc1(t, m)

	m.now = func() time.Time { return base }
	env.chunks("DOC2", "doc2 is about mountain geology")
	fresh := submit(t, m, "doc2.pdf", "DOC2")
	require.NoError(t, m.ProcessDocument(context.Background(), env.scheduler.last(t)))

	n, err := m.Cleanup(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = m.GetStatus(old.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoDirExists(t, filepath.Join(env.root, old.ID))

	got, err := m.GetStatus(fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, got.Status)
	assert.Equal(t, 1, m.Active().Len())
}

func TestCleanup_RemovalFailureKeepsRecord(t *testing.T) {
	env := newEnv(t)
	m := env.open(t)

	base := time.Now()
	m.now = func() time.Time { return base.Add(-48 * time.Hour) }
	gone := env.ingestDoc1(t, m)
	env.chunks("DOC2", "doc2 is about mountain geology")
	stuck := submit(t, m, "doc2.pdf", "DOC2")
	require.NoError(t, m.ProcessDocument(context.Background(), env.scheduler.last(t)))
	m.now = func() time.Time { return base }

	m.removeAll = func(path string) error {
		if filepath.Base(path) == stuck.ID {
			return errors.New("device or resource busy")
		}
		return os.RemoveAll(path)
	}

	n, err := m.Cleanup(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, env.log.Contains("WARN", "Failed to remove vector store"))

	_, err = m.GetStatus(gone.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.NoDirExists(t, filepath.Join(env.root, gone.ID))

	got, err := m.GetStatus(stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, got.Status)
	assert.DirExists(t, filepath.Join(env.root, stuck.ID))

	persisted, err := env.store.Load(context.Background())
	require.NoError(t, err)
	assert.Contains(t, persisted, stuck.ID)
	assert.NotContains(t, persisted, gone.ID)

	m.removeAll = os.RemoveAll
	n, err = m.Cleanup(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoDirExists(t, filepath.Join(env.root, stuck.ID))
	assert.Empty(t, m.ListStatuses())
}

func TestConcurrentUploads(t *testing.T) {
	env := newEnv(t)
	pool := worker.NewPool(worker.Config{Workers: 2, QueueSize: 4}, env.log)
	env.deps.Scheduler = pool
	env.chunks("ALPHA", "alpha report on shared harbour logistics")
	env.chunks("BETA", "beta report on shared harbour weather")
	m := env.open(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, pool.Start(ctx, m.ProcessDocument))

	var wg sync.WaitGroup
	ids := make([]string, 2)
	for i, doc := range []string{"ALPHA", "BETA"} {
		wg.Add(1)
		go func(i int, doc string) {
			defer wg.Done()
			data := testutil.MinimalPDF(doc)
			rec, err := m.SubmitDocument(ctx, doc+".pdf", int64(len(data)), bytes.NewReader(data))
			assert.NoError(t, err)
			ids[i] = rec.ID
		}(i, doc)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		for _, id := range ids {
			rec, err := m.GetStatus(id)
			if err != nil || rec.Status != models.StatusDone {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	require.NoError(t, pool.Shutdown(shutdownCtx))

	results, err := m.Search(context.Background(), "shared harbour report", 10)
	require.NoError(t, err)
	var seen []string
	for _, r := range results {
		seen = append(seen, r.Chunk.Metadata[MetaFileID].(string))
	}
	sort.Strings(seen)
	want := append([]string{}, ids...)
	sort.Strings(want)
	assert.Equal(t, want, seen)
}

func persistIndex(t *testing.T, dir string, emb embedding.Embedder, contents ...string) {
	t.Helper()
	chunks := make([]models.Chunk, len(contents))
	for i, c := range contents {
		chunks[i] = models.Chunk{Content: c}
	}
	ix, err := index.Build(context.Background(), chunks, emb)
	require.NoError(t, err)
	require.NoError(t, ix.Persist(dir))
}

func TestOpen_Reconciliation(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	now := time.Now()

	const (
		uploaded   = "00000000000000000000000000000001_a.pdf"
		processing = "00000000000000000000000000000002_b.pdf"
		missing    = "00000000000000000000000000000003_c.pdf"
		done       = "00000000000000000000000000000004_d.pdf"
		untracked  = "00000000000000000000000000000005_e.pdf"
	)
	require.NoError(t, env.store.Save(ctx, map[string]models.DocumentRecord{
		uploaded:   {ID: uploaded, Filename: "a.pdf", Status: models.StatusUploaded, Timestamp: now},
		processing: {ID: processing, Filename: "b.pdf", Status: models.StatusProcessing, Timestamp: now},
		missing:    {ID: missing, Filename: "c.pdf", Status: models.StatusDone, Timestamp: now, VectorCount: 1},
		done:       {ID: done, Filename: "d.pdf", Status: models.StatusDone, Timestamp: now, VectorCount: 1},
	}))
	persistIndex(t, filepath.Join(env.root, done), env.deps.Embedder, "tracked document text")
	persistIndex(t, filepath.Join(env.root, untracked), env.deps.Embedder, "untracked document text")
	persistIndex(t, filepath.Join(env.root, processing), env.deps.Embedder, "half finished")
	require.NoError(t, os.Mkdir(filepath.Join(env.root, index.TempPrefix+"leftover"), 0755))

	m := env.open(t)

	status := func(id string) models.DocumentRecord {
		rec, err := m.GetStatus(id)
		require.NoError(t, err)
		return rec
	}
	assert.Equal(t, models.StatusFailed, status(uploaded).Status)
	assert.Contains(t, status(uploaded).Message, "interrupted by restart")
	assert.Equal(t, models.StatusFailed, status(processing).Status)
	assert.NoDirExists(t, filepath.Join(env.root, processing))
	assert.Equal(t, models.StatusFailed, status(missing).Status)
	assert.Equal(t, models.StatusDone, status(done).Status)

	disc := status(untracked)
	assert.Equal(t, models.StatusDone, disc.Status)
	assert.Equal(t, "Discovered existing vector store", disc.Message)
	assert.Equal(t, "e.pdf", disc.Filename)
	assert.True(t, env.log.Contains("WARN", "untracked vector store"))

	assert.NoDirExists(t, filepath.Join(env.root, index.TempPrefix+"leftover"))
	require.NotNil(t, m.Active())
	assert.Equal(t, 2, m.Active().Len())

	persisted, err := env.store.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, persisted, 5)
}

func TestOpen_CorruptStatusFile(t *testing.T) {
	env := newEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(env.root, statusstore.DefaultFilename), []byte("{not json"), 0644))

	m := env.open(t)
	assert.Empty(t, m.ListStatuses())
	assert.True(t, env.log.Contains("WARN", "corrupt"))
}

func TestOpen_UnreadableStatusFile(t *testing.T) {
	env := newEnv(t)
	require.NoError(t, os.Mkdir(env.store.Path(), 0755))

	m, err := NewManager(env.cfg, env.deps)
	require.NoError(t, err)
	err = m.Open(context.Background())
	require.ErrorIs(t, err, models.ErrStorage)
	assert.False(t, env.log.Contains("WARN", "Status file is corrupt"))
}

func TestOpen_RootNotWritable(t *testing.T) {
	env := newEnv(t)
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	env.cfg.RootDir = file

	m, err := NewManager(env.cfg, env.deps)
	require.NoError(t, err)
	assert.ErrorIs(t, m.Open(context.Background()), models.ErrStorage)
}

func TestGetStatus_Fallbacks(t *testing.T) {
	env := newEnv(t)
	m := env.open(t)

	id := "0000000000000000000000000000abcd_late.pdf"
	persistIndex(t, filepath.Join(env.root, id), env.deps.Embedder, "late arrival")

	rec, err := m.GetStatus(id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, rec.Status)
	assert.Equal(t, "File was processed but status not tracked", rec.Message)
	assert.Equal(t, "late.pdf", rec.Filename)

	for _, bad := range []string{"", "..", "../etc", ".tmp-x", "a/b", "unknown"} {
		_, err := m.GetStatus(bad)
		assert.ErrorIs(t, err, models.ErrNotFound, "id %q", bad)
	}
}

func TestListStatuses_NewestFirst(t *testing.T) {
	env := newEnv(t)
	m := env.open(t)

	base := time.Now()
	for i, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		at := base.Add(time.Duration(i) * time.Minute)
		m.now = func() time.Time { return at }
		submit(t, m, name, "X")
	}

	list := m.ListStatuses()
	require.Len(t, list, 3)
	assert.Equal(t, "c.pdf", list[0].Filename)
	assert.Equal(t, "a.pdf", list[2].Filename)
}

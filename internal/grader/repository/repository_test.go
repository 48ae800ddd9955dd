package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"grader/internal/common/cache"
	"grader/internal/common/db"
	"grader/internal/common/mq"
	"grader/internal/common/storage"
	"grader/internal/grader/model"
	appErr "grader/pkg/errors"
	"grader/pkg/utils/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func sampleRun() Run {
	finished := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	return Run{
		RunID:      "run-1",
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
		Results: []model.Result{
			{FacultyID: "12345", HomeworkLabel: "1", ProblemID: "sum", PointsPerTest: 5, Verdicts: model.Verdicts{true, false}},
			{FacultyID: "12345", HomeworkLabel: "1", ProblemID: "max", PointsPerTest: 10, Verdicts: model.Verdicts{true}},
			{FacultyID: "67890", HomeworkLabel: "1", ProblemID: "sum", PointsPerTest: 5, Verdicts: model.Verdicts{true, true}},
		},
	}
}

func newRedisRepository(t *testing.T) (*ResultRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c, err := cache.NewRedisCacheWithClient(client)
	if err != nil {
		t.Fatalf("redis cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return NewResultRepository(c, time.Hour), mr
}

func TestResultRepositorySaveAndRead(t *testing.T) {
	repo, mr := newRedisRepository(t)
	ctx := context.Background()
	run := sampleRun()

	if err := repo.Save(ctx, run); err != nil {
		t.Fatalf("save: %v", err)
	}

	latest, err := repo.LatestRun(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.RunID != run.RunID || len(latest.Results) != 3 {
		t.Fatalf("unexpected latest run %+v", latest)
	}

	results, err := repo.FacultyResults(ctx, run.RunID, "12345")
	if err != nil {
		t.Fatalf("faculty results: %v", err)
	}
	if len(results) != 2 || results[0].ProblemID != "sum" || results[1].ProblemID != "max" {
		t.Fatalf("unexpected faculty results %+v", results)
	}

	ids, err := repo.Faculties(ctx, run.RunID)
	if err != nil {
		t.Fatalf("faculties: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 faculties, got %v", ids)
	}

	if ttl := mr.TTL(runKey(run.RunID)); ttl != time.Hour {
		t.Fatalf("expected run key ttl 1h, got %v", ttl)
	}
	if ttl := mr.TTL(facultySetKey(run.RunID)); ttl != time.Hour {
		t.Fatalf("expected faculty set ttl 1h, got %v", ttl)
	}
}

func TestResultRepositoryNotFound(t *testing.T) {
	repo, _ := newRedisRepository(t)
	ctx := context.Background()

	if _, err := repo.LatestRun(ctx); !appErr.Is(err, appErr.NotFound) {
		t.Fatalf("expected NotFound for empty store, got %v", err)
	}
	if err := repo.Save(ctx, sampleRun()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := repo.FacultyResults(ctx, "run-1", "00000"); !appErr.Is(err, appErr.NotFound) {
		t.Fatalf("expected NotFound for unknown faculty, got %v", err)
	}
	if _, err := repo.GetRun(ctx, "missing"); !appErr.Is(err, appErr.NotFound) {
		t.Fatalf("expected NotFound for unknown run, got %v", err)
	}
}

func TestResultRepositoryLatestPointerIsNotARun(t *testing.T) {
	repo, mr := newRedisRepository(t)
	ctx := context.Background()
	if err := repo.Save(ctx, sampleRun()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if mr.Exists(runKey("latest")) {
		t.Fatalf("latest pointer must live outside the run key space")
	}
	if _, err := repo.GetRun(ctx, "latest"); !appErr.Is(err, appErr.NotFound) {
		t.Fatalf("expected NotFound for run id \"latest\", got %v", err)
	}
	if got, _ := mr.Get(latestRunKey); got != "run-1" {
		t.Fatalf("expected latest pointer run-1, got %q", got)
	}
}

func TestResultRepositoryRejectsEmptyRunID(t *testing.T) {
	repo, _ := newRedisRepository(t)
	if err := repo.Save(context.Background(), Run{}); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
}

func TestMemoryResultStore(t *testing.T) {
	store := NewMemoryResultStore()
	ctx := context.Background()

	if _, err := store.LatestRun(ctx); !appErr.Is(err, appErr.NotFound) {
		t.Fatalf("expected NotFound before save, got %v", err)
	}
	first := sampleRun()
	second := sampleRun()
	second.RunID = "run-2"
	second.Results = second.Results[:1]
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	latest, err := store.LatestRun(ctx)
	if err != nil || latest.RunID != "run-2" {
		t.Fatalf("expected run-2 as latest, got %+v (%v)", latest, err)
	}
	results, err := store.FacultyResults(ctx, "run-1", "67890")
	if err != nil || len(results) != 1 {
		t.Fatalf("unexpected results %+v (%v)", results, err)
	}
	if _, err := store.FacultyResults(ctx, "run-2", "67890"); !appErr.Is(err, appErr.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

type fakeProducer struct {
	topic    string
	messages []*mq.Message
	err      error
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, message *mq.Message) error {
	return p.PublishBatch(ctx, topic, []*mq.Message{message})
}

func (p *fakeProducer) PublishBatch(ctx context.Context, topic string, messages []*mq.Message) error {
	if p.err != nil {
		return p.err
	}
	p.topic = topic
	p.messages = append(p.messages, messages...)
	return nil
}

func (p *fakeProducer) Close() error { return nil }

func TestResultPublisher(t *testing.T) {
	producer := &fakeProducer{}
	pub := NewResultPublisher(producer, "")

	if err := pub.Save(context.Background(), sampleRun()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if producer.topic != DefaultResultTopic {
		t.Fatalf("expected topic %s, got %s", DefaultResultTopic, producer.topic)
	}
	if len(producer.messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(producer.messages))
	}
	msg := producer.messages[0]
	if msg.Key != "12345/1/sum" {
		t.Fatalf("unexpected key %q", msg.Key)
	}
	var event ResultEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.RunID != "run-1" || event.Points != 5 || len(event.Verdicts) != 2 {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestResultPublisherWrapsError(t *testing.T) {
	pub := NewResultPublisher(&fakeProducer{err: errors.New("broker down")}, "results")
	err := pub.Save(context.Background(), sampleRun())
	if !appErr.Is(err, appErr.ResultPublishFailed) {
		t.Fatalf("expected ResultPublishFailed, got %v", err)
	}
	if err := pub.Save(context.Background(), Run{RunID: "empty"}); err != nil {
		t.Fatalf("expected empty run to be a no-op, got %v", err)
	}
}

type execCall struct {
	query string
	args  []interface{}
}

type fakeResult struct{}

func (fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (fakeResult) RowsAffected() (int64, error) { return 1, nil }

type fakeTx struct {
	db *fakeDB
}

func (t *fakeTx) Query(ctx context.Context, query string, args ...interface{}) (db.Rows, error) {
	return nil, errors.New("not implemented")
}

func (t *fakeTx) QueryRow(ctx context.Context, query string, args ...interface{}) db.Row { return nil }

func (t *fakeTx) Exec(ctx context.Context, query string, args ...interface{}) (db.Result, error) {
	return t.db.Exec(ctx, query, args...)
}

func (t *fakeTx) Commit() error { return nil }
func (t *fakeTx) Rollback() error { return nil }

type fakeDB struct {
	calls     []execCall
	failAfter int
	committed bool
}

func (d *fakeDB) Query(ctx context.Context, query string, args ...interface{}) (db.Rows, error) {
	return nil, errors.New("not implemented")
}

func (d *fakeDB) QueryRow(ctx context.Context, query string, args ...interface{}) db.Row { return nil }

func (d *fakeDB) Exec(ctx context.Context, query string, args ...interface{}) (db.Result, error) {
	if d.failAfter > 0 && len(d.calls) >= d.failAfter {
		return nil, errors.New("deadlock")
	}
	d.calls = append(d.calls, execCall{query: query, args: args})
	return fakeResult{}, nil
}

func (d *fakeDB) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	if err := fn(&fakeTx{db: d}); err != nil {
		return err
	}
	d.committed = true
	return nil
}

func (d *fakeDB) Ping(ctx context.Context) error { return nil }
func (d *fakeDB) Close() error { return nil }

func TestResultStoreSave(t *testing.T) {
	database := &fakeDB{}
	store := NewResultStore(database)

	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("schema: %v", err)
	}
	if err := store.Save(context.Background(), sampleRun()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !database.committed {
		t.Fatalf("expected transaction to commit")
	}
	if len(database.calls) != 4 {
		t.Fatalf("expected schema + 3 inserts, got %d", len(database.calls))
	}
	if !strings.Contains(database.calls[0].query, "CREATE TABLE IF NOT EXISTS grading_results") {
		t.Fatalf("unexpected schema query %q", database.calls[0].query)
	}
	insert := database.calls[1]
	if insert.args[0] != "run-1" || insert.args[3] != "sum" || insert.args[5] != 5.0 || insert.args[6] != "10" {
		t.Fatalf("unexpected insert args %v", insert.args)
	}
}

func TestResultStoreRollsBackOnError(t *testing.T) {
	database := &fakeDB{failAfter: 1}
	err := NewResultStore(database).Save(context.Background(), sampleRun())
	if !appErr.Is(err, appErr.ResultStoreFailed) {
		t.Fatalf("expected ResultStoreFailed, got %v", err)
	}
	if database.committed {
		t.Fatalf("expected no commit after failure")
	}
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (s *fakeStorage) PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string) error {
	if s.err != nil {
		return s.err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+objectKey] = data
	s.types[bucket+"/"+objectKey] = contentType
	return nil
}

func (s *fakeStorage) GetObject(ctx context.Context, bucket, objectKey string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[bucket+"/"+objectKey]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeStorage) ListObjects(ctx context.Context, bucket, prefix string) <-chan storage.ObjectInfo {
	ch := make(chan storage.ObjectInfo)
	close(ch)
	return ch
}

func (s *fakeStorage) EnsureBucket(ctx context.Context, bucket string) error { return nil }

func TestReportUploader(t *testing.T) {
	store := newFakeStorage()
	up := NewReportUploader(store, "grader")

	if err := up.Save(context.Background(), sampleRun()); err != nil {
		t.Fatalf("upload: %v", err)
	}
	data, ok := store.objects["grader/reports/run-1.txt"]
	if !ok {
		t.Fatalf("report not uploaded, have %v", store.objects)
	}
	if !strings.Contains(string(data), "=5+0") {
		t.Fatalf("expected formula in report, got:\n%s", data)
	}
	if !strings.HasPrefix(store.types["grader/reports/run-1.txt"], "text/plain") {
		t.Fatalf("unexpected content type %q", store.types["grader/reports/run-1.txt"])
	}

	store.err = errors.New("access denied")
	if err := up.Save(context.Background(), sampleRun()); !appErr.Is(err, appErr.ReportUploadFailed) {
		t.Fatalf("expected ReportUploadFailed, got %v", err)
	}
}

type failingSink struct{}

func (failingSink) Name() string { return "broken" }
func (failingSink) Save(ctx context.Context, run Run) error { return errors.New("boom") }

func TestDispatchLogsFailuresAndContinues(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := logger.ReplaceGlobal(zap.New(core))
	defer restore()

	mem := NewMemoryResultStore()
	failed := Dispatch(context.Background(), sampleRun(), failingSink{}, nil, mem)
	if failed != 1 {
		t.Fatalf("expected 1 failed sink, got %d", failed)
	}
	if _, err := mem.LatestRun(context.Background()); err != nil {
		t.Fatalf("expected memory sink to receive run after failure: %v", err)
	}
	if logs.FilterMessage("result sink failed").Len() != 1 {
		t.Fatalf("expected one failure log, got %v", logs.All())
	}
}

func TestVerdictString(t *testing.T) {
	if got := verdictString(model.Verdicts{true, false, true}); got != "101" {
		t.Fatalf("unexpected verdict string %q", got)
	}
	if got := verdictString(nil); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}

package service_test

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"

	"codegrader/internal/common/cache"
	"codegrader/internal/common/db"
	"codegrader/internal/common/mq"
	"codegrader/internal/judge/model"
	judgesvc "codegrader/internal/judge/service"
	"codegrader/internal/submit/repository"
	"codegrader/internal/submit/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type memSubmissions struct {
	mu      sync.Mutex
	rows    map[string]repository.Submission
	creates int
	updates int
	err     error
}

func newMemSubmissions() *memSubmissions {
	return &memSubmissions{rows: map[string]repository.Submission{}}
}

func (m *memSubmissions) Create(ctx context.Context, tx db.Transaction, s *repository.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ProblemID == "" {
		return errors.New("problemID is required")
	}
	if m.err != nil {
		return m.err
	}
	m.rows[s.ID] = *s
	m.creates++
	return nil
}

func (m *memSubmissions) GetByID(ctx context.Context, tx db.Transaction, id string) (*repository.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrSubmissionNotFound
	}
	return &s, nil
}

func (m *memSubmissions) UpdateResult(ctx context.Context, tx db.Transaction, id string, r repository.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return repository.ErrSubmissionNotFound
	}
	s.Status = r.Status
	s.TestCasesPassed = r.TestCasesPassed
	s.TotalTestCases = r.TotalTestCases
	s.Runtime = r.Runtime
	s.Memory = r.Memory
	m.rows[id] = s
	m.updates++
	return nil
}

func (m *memSubmissions) ListByUser(ctx context.Context, f repository.ListFilter) ([]*repository.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*repository.Submission
	for _, s := range m.rows {
		if s.UserID != f.UserID || (f.ProblemID != "" && s.ProblemID != f.ProblemID) {
			continue
		}
		s := s
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memTokens struct {
	mu     sync.Mutex
	tokens map[string][]repository.SubmissionToken
}

func newMemTokens() *memTokens {
	return &memTokens{tokens: map[string][]repository.SubmissionToken{}}
}

func (m *memTokens) CreateBatch(ctx context.Context, tx db.Transaction, tokens []repository.SubmissionToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tokens {
		m.tokens[t.SubmissionID] = append(m.tokens[t.SubmissionID], t)
	}
	return nil
}

func (m *memTokens) ListBySubmission(ctx context.Context, tx db.Transaction, id string) ([]repository.SubmissionToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]repository.SubmissionToken(nil), m.tokens[id]...), nil
}

type fakeTx struct {
	err error
}

func (f fakeTx) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type fakeDispatcher struct {
	mu     sync.Mutex
	calls  int
	source string
	err    error
	drop   map[int]bool
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, sourceCode, languageID string, inputs []string) (judgesvc.DispatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.source = sourceCode
	if f.err != nil {
		return judgesvc.DispatchResult{}, f.err
	}
	lang, err := model.ResolveLanguage(languageID)
	if err != nil {
		return judgesvc.DispatchResult{}, err
	}
	if len(inputs) == 0 {
		inputs = []string{""}
	}
	out := judgesvc.DispatchResult{DispatchedCount: len(inputs), Language: lang}
	for i := range inputs {
		if f.drop[i] {
			continue
		}
		token := "tok-" + string(rune('a'+i))
		out.Tokens = append(out.Tokens, token)
		out.Jobs = append(out.Jobs, judgesvc.DispatchedJob{Index: i, Token: token})
	}
	return out, nil
}

type fakeFetcher struct {
	results map[string]model.JudgeResult
	calls   int
}

func (f *fakeFetcher) FetchResults(ctx context.Context, tokens []string) ([]model.JudgeResult, error) {
	f.calls++
	out := make([]model.JudgeResult, 0, len(tokens))
	for _, t := range tokens {
		r := f.results[t]
		r.Token = t
		out = append(out, r)
	}
	return out, nil
}

type fakeProducer struct {
	mu       sync.Mutex
	topics   []string
	messages []*mq.Message
}

func (f *fakeProducer) Publish(ctx context.Context, topic string, m *mq.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
	f.messages = append(f.messages, m)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

type fakeStorage struct {
	objects      map[string][]byte
	contentTypes map[string]string
	err          error
}

func (f *fakeStorage) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	if f.err != nil {
		return f.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
		f.contentTypes = map[string]string{}
	}
	f.objects[bucket+"/"+key] = data
	f.contentTypes[bucket+"/"+key] = contentType
	return nil
}

type fixture struct {
	svc         *service.SubmitService
	submissions *memSubmissions
	tokens      *memTokens
	dispatcher  *fakeDispatcher
	fetcher     *fakeFetcher
	producer    *fakeProducer
	storage     *fakeStorage
	redis       *miniredis.Miniredis
}

func newFixture(t *testing.T, tweak func(cfg *service.Config)) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("new cache failed: %v", err)
	}
	f := &fixture{
		submissions: newMemSubmissions(),
		tokens:      newMemTokens(),
		dispatcher:  &fakeDispatcher{},
		fetcher:     &fakeFetcher{results: map[string]model.JudgeResult{}},
		producer:    &fakeProducer{},
		storage:     &fakeStorage{},
		redis:       mr,
	}
	cfg := service.Config{
		SubmissionRepo: f.submissions,
		TokenRepo:      f.tokens,
		Tx:             fakeTx{},
		Dispatcher:     f.dispatcher,
		Fetcher:        f.fetcher,
		Cache:          rc,
		Storage:        f.storage,
		Producer:       f.producer,
		SourceBucket:   "sources",
		EventsTopic:    "submission.graded",
	}
	if tweak != nil {
		tweak(&cfg)
	}
	svc, err := service.NewSubmitService(cfg)
	if err != nil {
		t.Fatalf("new service failed: %v", err)
	}
	f.svc = svc
	return f
}

func accepted(stdout string, seconds, memory float64) model.JudgeResult {
	out := stdout
	return model.JudgeResult{
		Status: model.JobStatus{ID: model.StatusAccepted, Description: "Accepted"},
		Stdout: &out,
		Time:   model.NumericFrom(seconds),
		Memory: model.NumericFrom(memory),
	}
}

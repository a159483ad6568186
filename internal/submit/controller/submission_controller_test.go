package controller_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"codegrader/internal/common/db"
	"codegrader/internal/judge/model"
	judgesvc "codegrader/internal/judge/service"
	"codegrader/internal/submit/controller"
	"codegrader/internal/submit/repository"
	"codegrader/internal/submit/service"
	"codegrader/internal/testutil"
	appErr "codegrader/pkg/errors"
	"codegrader/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
)

type memStore struct {
	mu     sync.Mutex
	rows   map[string]repository.Submission
	tokens map[string][]repository.SubmissionToken
}

func (m *memStore) Create(ctx context.Context, tx db.Transaction, s *repository.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[s.ID] = *s
	return nil
}

func (m *memStore) GetByID(ctx context.Context, tx db.Transaction, id string) (*repository.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrSubmissionNotFound
	}
	return &s, nil
}

func (m *memStore) UpdateResult(ctx context.Context, tx db.Transaction, id string, r repository.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.rows[id]
	s.Status, s.TestCasesPassed, s.TotalTestCases, s.Runtime, s.Memory = r.Status, r.TestCasesPassed, r.TotalTestCases, r.Runtime, r.Memory
	m.rows[id] = s
	return nil
}

func (m *memStore) ListByUser(ctx context.Context, f repository.ListFilter) ([]*repository.Submission, error) {
	return nil, nil
}

func (m *memStore) CreateBatch(ctx context.Context, tx db.Transaction, tokens []repository.SubmissionToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tokens {
		m.tokens[t.SubmissionID] = append(m.tokens[t.SubmissionID], t)
	}
	return nil
}

func (m *memStore) ListBySubmission(ctx context.Context, tx db.Transaction, id string) ([]repository.SubmissionToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[id], nil
}

func (m *memStore) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	return fn(nil)
}

type stubDispatcher struct{}

func (stubDispatcher) Dispatch(ctx context.Context, source, languageID string, inputs []string) (judgesvc.DispatchResult, error) {
	lang, err := model.ResolveLanguage(languageID)
	if err != nil {
		return judgesvc.DispatchResult{}, err
	}
	if len(inputs) == 0 {
		inputs = []string{""}
	}
	out := judgesvc.DispatchResult{DispatchedCount: len(inputs), Language: lang}
	for i, in := range inputs {
		out.Tokens = append(out.Tokens, "tok-"+in)
		out.Jobs = append(out.Jobs, judgesvc.DispatchedJob{Index: i, Token: "tok-" + in})
	}
	return out, nil
}

type stubFetcher struct{}

func (stubFetcher) FetchResults(ctx context.Context, tokens []string) ([]model.JudgeResult, error) {
	return nil, nil
}

func newRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := &memStore{rows: map[string]repository.Submission{}, tokens: map[string][]repository.SubmissionToken{}}
	svc, err := service.NewSubmitService(service.Config{
		SubmissionRepo: store,
		TokenRepo:      store,
		Tx:             store,
		Dispatcher:     stubDispatcher{},
		Fetcher:        stubFetcher{},
	})
	if err != nil {
		t.Fatalf("new service failed: %v", err)
	}
	h := controller.NewSubmissionController(svc)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if user := c.GetHeader("X-Test-User"); user != "" {
			c.Set(string(contextkey.UserID), user)
		}
		c.Next()
	})
	router.POST("/submissions", h.Create)
	router.GET("/submissions", h.List)
	router.POST("/submissions/batch", h.Batch)
	router.GET("/submissions/:id", h.Get)
	router.POST("/submissions/:id/finalize", h.Finalize)
	router.POST("/submissions/:id/refresh", h.Refresh)
	return router
}

func call(router http.Handler, user, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createSubmission(t *testing.T, router http.Handler) service.SubmitOutput {
	t.Helper()
	w := call(router, "u1", http.MethodPost, "/submissions",
		`{"problem_id":"p1","source_code":"print(input())","language_id":"python","stdin":["1","2"],"expected_outputs":["1","2"]}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("create status = %d, body=%s", w.Code, w.Body.String())
	}
	var out service.SubmitOutput
	testutil.DecodeEnvelope(t, w.Body.Bytes(), &out)
	return out
}

func TestCreateAndGet(t *testing.T) {
	router := newRouter(t)
	out := createSubmission(t, router)
	testutil.AssertEqual(t, out.Submission.Status, "pending")
	testutil.AssertEqual(t, len(out.Tokens), 2)

	w := call(router, "u1", http.MethodGet, "/submissions/"+out.Submission.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	w = call(router, "u2", http.MethodGet, "/submissions/"+out.Submission.ID, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("other user should get 404, got %d", w.Code)
	}
	env := testutil.DecodeEnvelope(t, w.Body.Bytes(), nil)
	testutil.AssertEqual(t, env.Code, appErr.SubmissionNotFound)
}

func TestCreate_Errors(t *testing.T) {
	router := newRouter(t)
	cases := []struct {
		name   string
		user   string
		body   string
		status int
	}{
		{"bad json", "u1", `[`, http.StatusBadRequest},
		{"missing problem", "u1", `{"source_code":"x","language_id":71}`, http.StatusBadRequest},
		{"unsupported language", "u1", `{"problem_id":"p","source_code":"x","language_id":"cobol"}`, http.StatusBadRequest},
		{"no identity", "", `{"problem_id":"p","source_code":"x","language_id":71}`, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := call(router, tc.user, http.MethodPost, "/submissions", tc.body)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tc.status, w.Body.String())
			}
		})
	}
}

func TestFinalize(t *testing.T) {
	router := newRouter(t)
	out := createSubmission(t, router)

	body := `{"results":[
		{"status":{"id":3,"description":"Accepted"},"stdout":"1\n","time":"0.01","memory":100},
		{"status":{"id":3,"description":"Accepted"},"stdout":"3\n","time":"0.02","memory":300}
	],"expected_outputs":["1","2"]}`
	w := call(router, "u1", http.MethodPost, "/submissions/"+out.Submission.ID+"/finalize", body)
	if w.Code != http.StatusOK {
		t.Fatalf("finalize status = %d, body=%s", w.Code, w.Body.String())
	}
	var fin service.FinalizeOutput
	testutil.DecodeEnvelope(t, w.Body.Bytes(), &fin)
	testutil.AssertEqual(t, fin.Submission.Status, "wrong answer")
	testutil.AssertEqual(t, fin.Submission.TestCasesPassed, 1)
	testutil.AssertEqual(t, *fin.Submission.Memory, int64(200))

	w = call(router, "u1", http.MethodPost, "/submissions/"+out.Submission.ID+"/finalize", `{"results":[]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing expected_outputs should be rejected, got %d", w.Code)
	}
}

func TestList(t *testing.T) {
	router := newRouter(t)
	w := call(router, "u1", http.MethodGet, "/submissions?limit=abc", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", w.Code)
	}
	w = call(router, "u1", http.MethodGet, "/submissions?problem_id=p1&limit=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list controller.ListResponse
	testutil.DecodeEnvelope(t, w.Body.Bytes(), &list)
	if list.Items == nil || len(list.Items) != 0 {
		t.Fatalf("empty listing should be an empty array, got %+v", list.Items)
	}
}

func TestBatch(t *testing.T) {
	router := newRouter(t)
	body := `{"submissions":[
		{"problem_id":"p","source_code":"x","language":"python","test_cases_passed":2,"total_test_cases":2,"runtime":0.5,"memory":1024},
		{"source_code":"x","language":71,"test_cases_passed":0,"total_test_cases":1}
	]}`
	w := call(router, "u1", http.MethodPost, "/submissions/batch", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("batch status = %d, body=%s", w.Code, w.Body.String())
	}
	var resp controller.BatchResponse
	testutil.DecodeEnvelope(t, w.Body.Bytes(), &resp)
	testutil.AssertEqual(t, resp.Statistics.Total, 2)
	testutil.AssertEqual(t, resp.Statistics.Successful, 1)
	testutil.AssertEqual(t, resp.Statistics.Failed, 1)
	testutil.AssertEqual(t, resp.Statistics.Errors[0].Index, 1)
	testutil.AssertEqual(t, resp.Submissions[0].Status, "accepted")

	items := make([]byte, 0, 1024)
	items = append(items, `{"submissions":[`...)
	for i := 0; i < 21; i++ {
		if i > 0 {
			items = append(items, ',')
		}
		items = append(items, `{"problem_id":"p","source_code":"x","language":"python"}`...)
	}
	items = append(items, `]}`...)
	w = call(router, "u1", http.MethodPost, "/submissions/batch", string(items))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("oversized batch status = %d", w.Code)
	}
	env := testutil.DecodeEnvelope(t, w.Body.Bytes(), nil)
	testutil.AssertEqual(t, env.Code, appErr.BatchTooLarge)
}

func TestRefresh_NotFound(t *testing.T) {
	router := newRouter(t)
	w := call(router, "u1", http.MethodPost, "/submissions/missing/refresh", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("refresh status = %d", w.Code)
	}
}

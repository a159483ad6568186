package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"codegrader/internal/judge/model"
	"codegrader/internal/judge/service"
	"codegrader/internal/testutil"
	appErr "codegrader/pkg/errors"
)

type fakeJudge struct {
	mu        sync.Mutex
	submitted []model.JobRequest
	failStdin map[string]bool
	results   map[string]model.JudgeResult
	getCalls  []string
	getErr    error
}

func (f *fakeJudge) Submit(ctx context.Context, req model.JobRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	if f.failStdin[req.Stdin] {
		return "", appErr.JudgeUnavailableError(errors.New("boom"), "submit")
	}
	return "tok-" + req.Stdin, nil
}

func (f *fakeJudge) Get(ctx context.Context, token string) (model.JudgeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls = append(f.getCalls, token)
	if f.getErr != nil {
		return model.JudgeResult{}, f.getErr
	}
	r := f.results[token]
	r.Token = token
	return r, nil
}

func newDispatcher(t *testing.T, judge service.JudgeAPI) *service.Dispatcher {
	t.Helper()
	d, err := service.NewDispatcher(judge, service.DispatchConfig{MaxParallel: 3, RatePerSecond: 1000, Burst: 100})
	if err != nil {
		t.Fatalf("new dispatcher failed: %v", err)
	}
	return d
}

func TestMergeCode(t *testing.T) {
	cases := []struct {
		name              string
		top, user, bottom string
		want              string
	}{
		{"no harness keeps bytes", "", "  x = 1\n", "", "  x = 1\n"},
		{"whitespace harness is ignored", " \n", "x = 1\n", "\t", "x = 1\n"},
		{"all three", "import sys\n", "\ndef f(): pass\n", "\nf()\n", "import sys\n\ndef f(): pass\n\nf()"},
		{"top only", "#include <cstdio>", "int main(){}", "", "#include <cstdio>\n\nint main(){}"},
		{"bottom only", "", "def f(): pass", "f()", "def f(): pass\n\nf()"},
		{"empty user", "a", "   ", "b", "a\n\nb"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			testutil.AssertEqual(t, service.MergeCode(tc.top, tc.user, tc.bottom), tc.want)
		})
	}
}

func TestNewDispatcher_RequiresJudge(t *testing.T) {
	if _, err := service.NewDispatcher(nil, service.DispatchConfig{}); err == nil {
		t.Fatalf("expected error for nil judge")
	}
}

func TestDispatch_OrderedTokens(t *testing.T) {
	judge := &fakeJudge{}
	d := newDispatcher(t, judge)

	inputs := []string{"a", "b", "c", "d", "e"}
	result, err := d.Dispatch(context.Background(), "print(input())", "python", inputs)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if result.DispatchedCount != len(inputs) || len(result.Tokens) != len(inputs) {
		t.Fatalf("unexpected counts: %+v", result)
	}
	for i, in := range inputs {
		if result.Tokens[i] != "tok-"+in || result.Jobs[i].Index != i {
			t.Fatalf("token %d out of order: %+v", i, result)
		}
	}
	if result.Language.JudgeID != 71 {
		t.Fatalf("language not resolved: %+v", result.Language)
	}
	for _, req := range judge.submitted {
		if req.LanguageID != 71 || req.SourceCode != "print(input())" {
			t.Fatalf("unexpected job: %+v", req)
		}
	}
}

func TestDispatch_EmptyInputsRunOnce(t *testing.T) {
	judge := &fakeJudge{}
	d := newDispatcher(t, judge)

	result, err := d.Dispatch(context.Background(), "print(1)", "71", nil)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if len(judge.submitted) != 1 || judge.submitted[0].Stdin != "" {
		t.Fatalf("expected one job with empty stdin, got %+v", judge.submitted)
	}
	if result.DispatchedCount != 1 || len(result.Tokens) != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestDispatch_PartialFailure(t *testing.T) {
	judge := &fakeJudge{failStdin: map[string]bool{"b": true}}
	d := newDispatcher(t, judge)

	result, err := d.Dispatch(context.Background(), "code", "cpp", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if result.DispatchedCount != 3 {
		t.Fatalf("dispatched count = %d", result.DispatchedCount)
	}
	testutil.AssertEqual(t, strings.Join(result.Tokens, ","), "tok-a,tok-c")
	if result.Jobs[1].Index != 2 {
		t.Fatalf("job index should point at the original input: %+v", result.Jobs)
	}
}

func TestDispatch_AllFail(t *testing.T) {
	judge := &fakeJudge{failStdin: map[string]bool{"a": true, "b": true}}
	d := newDispatcher(t, judge)

	_, err := d.Dispatch(context.Background(), "code", "cpp", []string{"a", "b"})
	testutil.AssertCode(t, err, appErr.DispatchExhausted)
	if !appErr.IsRetryable(err) {
		t.Fatalf("dispatch exhaustion should be retryable")
	}
}

func TestDispatch_Validation(t *testing.T) {
	judge := &fakeJudge{}
	d := newDispatcher(t, judge)

	_, err := d.Dispatch(context.Background(), "   ", "python", nil)
	testutil.AssertCode(t, err, appErr.ValidationFailed)

	_, err = d.Dispatch(context.Background(), "code", "cobol", nil)
	testutil.AssertCode(t, err, appErr.LanguageNotSupported)

	if len(judge.submitted) != 0 {
		t.Fatalf("nothing should reach the judge on validation errors")
	}
}

func TestDispatch_CanceledContext(t *testing.T) {
	d := newDispatcher(t, &fakeJudge{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Dispatch(ctx, "code", "python", []string{"a"})
	if err == nil {
		t.Fatalf("expected error for canceled context")
	}
}

func TestFetcher(t *testing.T) {
	stdout := "ok"
	judge := &fakeJudge{results: map[string]model.JudgeResult{
		"t1": {Status: model.JobStatus{ID: model.StatusAccepted}, Stdout: &stdout},
		"t2": {Status: model.JobStatus{ID: model.StatusProcessing}},
	}}
	f, err := service.NewFetcher(judge, 0)
	if err != nil {
		t.Fatalf("new fetcher failed: %v", err)
	}

	results, err := f.FetchResults(context.Background(), []string{"t1", "t2", "t1"})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(results) != 3 || results[0].Token != "t1" || results[1].Token != "t2" || results[2].Token != "t1" {
		t.Fatalf("results out of order: %+v", results)
	}
	if !results[0].Finished() || results[1].Finished() {
		t.Fatalf("finished flags wrong")
	}
	testutil.AssertEqual(t, strings.Join(judge.getCalls, ","), "t1,t2,t1")
}

func TestFetcher_Errors(t *testing.T) {
	if _, err := service.NewFetcher(nil, 0); err == nil {
		t.Fatalf("expected error for nil judge")
	}
	judge := &fakeJudge{getErr: appErr.JudgeUnavailableError(errors.New("down"), "fetch")}
	f, _ := service.NewFetcher(judge, 0)

	_, err := f.FetchResults(context.Background(), nil)
	testutil.AssertCode(t, err, appErr.ValidationFailed)

	_, err = f.FetchResult(context.Background(), " ")
	testutil.AssertCode(t, err, appErr.ValidationFailed)

	_, err = f.FetchResults(context.Background(), []string{"a", "b"})
	testutil.AssertCode(t, err, appErr.JudgeUnavailable)
	if len(judge.getCalls) != 1 {
		t.Fatalf("fetch should stop at first failure, calls=%v", judge.getCalls)
	}
}

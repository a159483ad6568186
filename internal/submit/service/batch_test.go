package service_test

import (
	"context"
	"testing"
	"time"

	"codegrader/internal/judge/model"
	"codegrader/internal/submit/grading"
	"codegrader/internal/submit/repository"
	"codegrader/internal/submit/service"
	"codegrader/internal/testutil"
	appErr "codegrader/pkg/errors"
)

func batchItems(n int) []service.BatchItem {
	items := make([]service.BatchItem, n)
	for i := range items {
		items[i] = service.BatchItem{
			ProblemID:       "p",
			SourceCode:      "print(1)",
			Language:        "python",
			TestCasesPassed: 1,
			TotalTestCases:  2,
		}
	}
	return items
}

func TestBatchCreate_TooLarge(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.BatchCreate(context.Background(), "u1", batchItems(21))
	testutil.AssertCode(t, err, appErr.BatchTooLarge)
	testutil.AssertEqual(t, f.submissions.creates, 0)

	_, err = f.svc.BatchCreate(context.Background(), "u1", nil)
	testutil.AssertCode(t, err, appErr.ValidationFailed)

	_, err = f.svc.BatchCreate(context.Background(), "", batchItems(1))
	testutil.AssertCode(t, err, appErr.Unauthorized)
}

func TestBatchCreate_DuplicateRow(t *testing.T) {
	f := newFixture(t, nil)
	f.submissions.err = repository.ErrSubmissionExists

	out, err := f.svc.BatchCreate(context.Background(), "u1", batchItems(2))
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	testutil.AssertEqual(t, len(out.Successful), 0)
	testutil.AssertEqual(t, len(out.Failed), 2)
	for _, failure := range out.Failed {
		testutil.AssertEqual(t, failure.Code, appErr.RecordAlreadyExists)
	}
}

func TestBatchCreate_PartialFailure(t *testing.T) {
	f := newFixture(t, nil)
	items := batchItems(20)
	items[5].ProblemID = ""
	for i := range items {
		items[i].TestCasesPassed = i % 3
		items[i].TotalTestCases = 2 + i%2
	}

	out, err := f.svc.BatchCreate(context.Background(), "u1", items)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	testutil.AssertEqual(t, len(out.Successful), 19)
	testutil.AssertEqual(t, len(out.Failed), 1)
	testutil.AssertEqual(t, out.Failed[0].Index, 5)
	testutil.AssertEqual(t, out.Failed[0].Code, appErr.ValidationFailed)
	testutil.AssertEqual(t, f.submissions.creates, 19)

	for _, s := range out.Successful {
		if s.Status == grading.StatusPending {
			t.Fatalf("batch rows must be terminal: %+v", s)
		}
		if s.UserID != "u1" || s.Language != "python" {
			t.Fatalf("unexpected row: %+v", s)
		}
	}
	testutil.AssertEqual(t, len(f.producer.messages), 19)
	testutil.AssertEqual(t, decodeEvent(t, f.producer.messages[0]).Origin, "batch")
}

func TestBatchCreate_StatusFromCounts(t *testing.T) {
	f := newFixture(t, nil)
	runtime := 0.12345
	memory := int64(2048)
	items := []service.BatchItem{
		{ProblemID: "p", SourceCode: "x", Language: "cpp", TestCasesPassed: 3, TotalTestCases: 3, Runtime: &runtime, Memory: &memory},
		{ProblemID: "p", SourceCode: "x", Language: "cpp", TestCasesPassed: 2, TotalTestCases: 3},
		{ProblemID: "p", SourceCode: "x", Language: "cpp", TestCasesPassed: 0, TotalTestCases: 0},
	}
	out, err := f.svc.BatchCreate(context.Background(), "u1", items)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	testutil.AssertEqual(t, out.Successful[0].Status, grading.StatusAccepted)
	testutil.AssertEqual(t, *out.Successful[0].Runtime, 0.123)
	testutil.AssertEqual(t, *out.Successful[0].Memory, int64(2048))
	testutil.AssertEqual(t, out.Successful[1].Status, grading.StatusWrongAnswer)
	if out.Successful[1].Runtime != nil {
		t.Fatalf("absent runtime should stay nil")
	}
	testutil.AssertEqual(t, out.Successful[2].Status, grading.StatusWrongAnswer)
}

func TestBatchCreate_EvaluatesResults(t *testing.T) {
	f := newFixture(t, nil)
	items := []service.BatchItem{{
		ProblemID:       "p",
		SourceCode:      "x",
		Language:        "71",
		Results:         []model.JudgeResult{accepted("1", 0.5, 10), accepted("9", 0.25, 30)},
		ExpectedOutputs: []string{"1", "2"},
	}}
	out, err := f.svc.BatchCreate(context.Background(), "u1", items)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	s := out.Successful[0]
	testutil.AssertEqual(t, s.TestCasesPassed, 1)
	testutil.AssertEqual(t, s.TotalTestCases, 2)
	testutil.AssertEqual(t, s.Status, grading.StatusWrongAnswer)
	testutil.AssertEqual(t, *s.Runtime, 0.75)
	testutil.AssertEqual(t, *s.Memory, int64(20))
}

func TestBatchCreate_ItemValidation(t *testing.T) {
	negative := -1.0
	cases := []struct {
		name string
		item service.BatchItem
		code appErr.ErrorCode
	}{
		{"unknown language", service.BatchItem{ProblemID: "p", SourceCode: "x", Language: "cobol"}, appErr.LanguageNotSupported},
		{"no code", service.BatchItem{ProblemID: "p", Language: "python"}, appErr.ValidationFailed},
		{"passed exceeds total", service.BatchItem{ProblemID: "p", SourceCode: "x", Language: "python", TestCasesPassed: 3, TotalTestCases: 2}, appErr.ValidationFailed},
		{"negative runtime", service.BatchItem{ProblemID: "p", SourceCode: "x", Language: "python", Runtime: &negative}, appErr.ValidationFailed},
		{"results mismatch", service.BatchItem{ProblemID: "p", SourceCode: "x", Language: "python", Results: []model.JudgeResult{accepted("1", 0, 0)}}, appErr.ValidationFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			out, err := f.svc.BatchCreate(context.Background(), "u1", []service.BatchItem{tc.item})
			if err != nil {
				t.Fatalf("batch call failed: %v", err)
			}
			if len(out.Failed) != 1 || len(out.Successful) != 0 {
				t.Fatalf("unexpected output: %+v", out)
			}
			testutil.AssertEqual(t, out.Failed[0].Code, tc.code)
		})
	}
}

func TestBatchCreate_StaggerHonorsCancel(t *testing.T) {
	f := newFixture(t, func(cfg *service.Config) {
		cfg.BatchStagger = time.Hour
		cfg.BatchConcurrency = 2
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out, err := f.svc.BatchCreate(ctx, "u1", batchItems(3))
	if err != nil {
		t.Fatalf("batch call failed: %v", err)
	}
	testutil.AssertEqual(t, len(out.Successful), 1)
	testutil.AssertEqual(t, len(out.Failed), 2)
	testutil.AssertEqual(t, out.Failed[0].Code, appErr.Timeout)
}

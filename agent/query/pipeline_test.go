package query

import (
	"context"
	"errors"
	"testing"

	contractx "github.com/cashsys/auction-chat/agent/contract"
)

type stubSelector struct {
	partition contractx.Partition
	err       error
}

func (s stubSelector) Select(ctx context.Context, question string) (contractx.Partition, error) {
	return s.partition, s.err
}

type stubSynthesizer struct {
	plan     contractx.QueryPlan
	err      error
	gotHint  contractx.Partition
	gotCalls int
}

func (s *stubSynthesizer) Synthesize(ctx context.Context, question string, hint contractx.Partition, caller *contractx.CallerContext) (contractx.QueryPlan, error) {
	s.gotHint = hint
	s.gotCalls++
	return s.plan, s.err
}

type stubValidator struct {
	verdict contractx.ValidationVerdict
	err     error
}

func (s stubValidator) Validate(ctx context.Context, plan contractx.QueryPlan, caller *contractx.CallerContext) (contractx.ValidationVerdict, error) {
	return s.verdict, s.err
}

type stubExecutor struct {
	result contractx.ExecutionResult
	calls  int
}

func (s *stubExecutor) Execute(ctx context.Context, verdict contractx.ValidationVerdict, partition contractx.Partition, question string) contractx.ExecutionResult {
	s.calls++
	return s.result
}

func TestPipelineValidVerdictExecutes(t *testing.T) {
	t.Parallel()

	exec := &stubExecutor{result: contractx.ExecutionResult{Text: "count: 12"}}
	p, err := NewPipeline(
		stubSelector{partition: contractx.PartitionCatalogue},
		&stubSynthesizer{plan: contractx.QueryPlan{
			RawQuery:        "SELECT COUNT(*) FROM items",
			TargetPartition: contractx.PartitionCatalogue,
		}},
		stubValidator{verdict: contractx.ValidationVerdict{
			Valid:          true,
			CorrectedQuery: "SELECT COUNT(*) FROM items",
		}},
		exec,
	)
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}

	res, err := p.Answer(context.Background(), contractx.QueryRequest{Question: "how many items?"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if res.Text != "count: 12" {
		t.Fatalf("text = %q", res.Text)
	}
	if res.Partition != contractx.PartitionCatalogue {
		t.Fatalf("partition = %s, want catalogue", res.Partition)
	}
	if exec.calls != 1 {
		t.Fatalf("executor called %d time(s), want 1", exec.calls)
	}
}

func TestPipelineInvalidVerdictNeverExecutes(t *testing.T) {
	t.Parallel()

	exec := &stubExecutor{}
	p, err := NewPipeline(
		stubSelector{partition: contractx.PartitionCatalogue},
		&stubSynthesizer{plan: contractx.QueryPlan{
			RawQuery:        "DELETE FROM items",
			TargetPartition: contractx.PartitionCatalogue,
		}},
		stubValidator{verdict: contractx.ValidationVerdict{
			Valid:  false,
			Reason: "DELETE not permitted",
		}},
		exec,
	)
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}

	res, err := p.Answer(context.Background(), contractx.QueryRequest{Question: "remove everything"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if res.Text != "Query validation failed: DELETE not permitted" {
		t.Fatalf("text = %q", res.Text)
	}
	if exec.calls != 0 {
		t.Fatalf("executor called %d time(s), want 0", exec.calls)
	}
}

func TestPipelineUnknownPartitionDefaultsToCatalogue(t *testing.T) {
	t.Parallel()

	synth := &stubSynthesizer{plan: contractx.QueryPlan{
		RawQuery:        "SELECT title FROM items LIMIT 10",
		TargetPartition: contractx.PartitionCatalogue,
	}}
	p, err := NewPipeline(
		stubSelector{partition: contractx.PartitionUnknown},
		synth,
		stubValidator{verdict: contractx.ValidationVerdict{
			Valid:          true,
			CorrectedQuery: "SELECT title FROM items LIMIT 10",
		}},
		&stubExecutor{result: contractx.ExecutionResult{Text: "Found 1 result(s):\n- title=Clock"}},
	)
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}

	if _, err := p.Answer(context.Background(), contractx.QueryRequest{Question: "tell me something"}); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if synth.gotHint != contractx.PartitionCatalogue {
		t.Fatalf("hint = %s, want catalogue default", synth.gotHint)
	}
}

func TestPipelineSynthesisFailurePropagates(t *testing.T) {
	t.Parallel()

	exec := &stubExecutor{}
	p, err := NewPipeline(
		stubSelector{partition: contractx.PartitionAuction},
		&stubSynthesizer{err: contractx.ErrSchemaViolation},
		stubValidator{},
		exec,
	)
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}

	_, err = p.Answer(context.Background(), contractx.QueryRequest{Question: "who won?"})
	if err == nil {
		t.Fatal("expected error but got nil")
	}
	if !errors.Is(err, contractx.ErrSchemaViolation) {
		t.Fatalf("expected ErrSchemaViolation, got %v", err)
	}
	if exec.calls != 0 {
		t.Fatalf("executor called %d time(s), want 0", exec.calls)
	}
}

func TestPipelineEmptyQuestion(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline(
		stubSelector{partition: contractx.PartitionCatalogue},
		&stubSynthesizer{},
		stubValidator{},
		&stubExecutor{},
	)
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}

	_, err = p.Answer(context.Background(), contractx.QueryRequest{Question: "   "})
	if err == nil {
		t.Fatal("expected error but got nil")
	}
	if !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
}

package query

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/cashsys/auction-chat/agent/contract"
	dbschemax "github.com/cashsys/auction-chat/agent/dbschema"
)

func TestSynthesizerSuccess(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{
				Role:    schema.Assistant,
				Content: `{"query":"SELECT title FROM items LIMIT 10","database":"catalogue"}`,
			},
		},
	}

	synth, err := NewSynthesizer(context.Background(), fake, "synthesizer prompt", dbschemax.Load())
	if err != nil {
		t.Fatalf("NewSynthesizer() error = %v", err)
	}

	plan, err := synth.Synthesize(context.Background(), "what items are for sale?", contractx.PartitionCatalogue, nil)
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if plan.RawQuery != "SELECT title FROM items LIMIT 10" {
		t.Fatalf("unexpected query: %s", plan.RawQuery)
	}
	if plan.TargetPartition != contractx.PartitionCatalogue {
		t.Fatalf("partition = %s, want catalogue", plan.TargetPartition)
	}
}

func TestSynthesizerEmptyQueryIsSchemaViolation(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{Role: schema.Assistant, Content: `{"query":"","database":"catalogue"}`},
		},
	}

	synth, err := NewSynthesizer(context.Background(), fake, "synthesizer prompt", dbschemax.Load())
	if err != nil {
		t.Fatalf("NewSynthesizer() error = %v", err)
	}

	_, err = synth.Synthesize(context.Background(), "anything cheap?", contractx.PartitionCatalogue, nil)
	if err == nil {
		t.Fatal("expected error but got nil")
	}
	if !errors.Is(err, contractx.ErrSchemaViolation) {
		t.Fatalf("expected ErrSchemaViolation, got %v", err)
	}
}

func TestSynthesizerDriftingDatabaseKeepsHint(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{
		responses: []*schema.Message{
			{
				Role:    schema.Assistant,
				Content: `{"query":"SELECT amount FROM payments LIMIT 10","database":"the payments one"}`,
			},
		},
	}

	synth, err := NewSynthesizer(context.Background(), fake, "synthesizer prompt", dbschemax.Load())
	if err != nil {
		t.Fatalf("NewSynthesizer() error = %v", err)
	}

	plan, err := synth.Synthesize(context.Background(), "my payments", contractx.PartitionPayment, &contractx.CallerContext{CallerID: 7})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if plan.TargetPartition != contractx.PartitionPayment {
		t.Fatalf("partition = %s, want payment hint kept", plan.TargetPartition)
	}
}

func TestSynthesizerRejectsUnknownHint(t *testing.T) {
	t.Parallel()

	synth, err := NewSynthesizer(context.Background(), &fakeToolCallingModel{}, "synthesizer prompt", dbschemax.Load())
	if err != nil {
		t.Fatalf("NewSynthesizer() error = %v", err)
	}

	_, err = synth.Synthesize(context.Background(), "hello", contractx.PartitionUnknown, nil)
	if err == nil {
		t.Fatal("expected error but got nil")
	}
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

package supervisor

import (
	"context"
	"errors"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/cashsys/auction-chat/agent/contract"
)

type fakeChatModel struct {
	responses []*schema.Message
	err       error
	idx       int
}

func (f *fakeChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.idx >= len(f.responses) {
		return nil, errors.New("no fake response left")
	}
	msg := f.responses[f.idx]
	f.idx++
	return msg, nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in fake model")
}

func (f *fakeChatModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	return f, nil
}

func TestRouterDecide(t *testing.T) {
	t.Parallel()

	fake := &fakeChatModel{
		responses: []*schema.Message{
			{
				Role:    schema.Assistant,
				Content: `{"can_handle":false,"rationale":"the reply admits it cannot run analytics"}`,
			},
		},
	}

	router, err := NewRouter(context.Background(), fake, "router prompt")
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	decision, err := router.Decide(context.Background(), "how many items?", "I don't have a tool for that.")
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if decision.CanHandle {
		t.Fatal("expected can_handle=false")
	}
	if decision.Rationale == "" {
		t.Fatal("expected a rationale")
	}
}

func TestRouterModelFailure(t *testing.T) {
	t.Parallel()

	fake := &fakeChatModel{err: errors.New("upstream 500")}

	router, err := NewRouter(context.Background(), fake, "router prompt")
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}

	_, err = router.Decide(context.Background(), "q", "r")
	if err == nil {
		t.Fatal("expected error but got nil")
	}
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("expected ErrModelInvoke, got %v", err)
	}
}

package query

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	contractx "github.com/cashsys/auction-chat/agent/contract"
)

// Selector classifies a question onto one of the data partitions. Output
// that is not an exact label maps to unknown; the pipeline supplies the
// catalogue default.
type Selector struct {
	runner compose.Runnable[map[string]any, *schema.Message]
}

func NewSelector(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*Selector, error) {
	runner, err := compileTextGraph(ctx, chatModel, systemPrompt, "query.partition_selector")
	if err != nil {
		return nil, fmt.Errorf("%w: compile selector graph: %v", contractx.ErrModelInvoke, err)
	}
	return &Selector{runner: runner}, nil
}

func (s *Selector) Select(ctx context.Context, question string) (contractx.Partition, error) {
	msg, err := s.runner.Invoke(ctx, map[string]any{
		"input": question,
	})
	if err != nil {
		return contractx.PartitionUnknown, fmt.Errorf("%w: selector invoke: %v", contractx.ErrModelInvoke, err)
	}
	if msg == nil {
		return contractx.PartitionUnknown, fmt.Errorf("%w: empty selector response", contractx.ErrSchemaViolation)
	}
	return contractx.ParsePartition(msg.Content), nil
}

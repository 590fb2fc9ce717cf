package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	contractx "github.com/cashsys/auction-chat/agent/contract"
	dbschemax "github.com/cashsys/auction-chat/agent/dbschema"
)

const (
	// Row caps embedded in the synthesis payload. The user has to ask
	// explicitly to go beyond the default; the hard cap always holds.
	defaultRowLimit = 10
	maxRowLimit     = 30
)

// Synthesizer turns a question into a candidate QueryPlan via a single
// structured oracle call. The plan is never trusted: it goes to the
// validator, and an unusable oracle response fails the call outright.
type Synthesizer struct {
	runner  compose.Runnable[map[string]any, synthesizerLLMOutput]
	schemas dbschemax.SchemaSet
}

type synthesizerLLMOutput struct {
	Query    string `json:"query"`
	Database string `json:"database"`
}

func NewSynthesizer(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	schemas dbschemax.SchemaSet,
) (*Synthesizer, error) {
	runner, err := compileStructuredGraph[synthesizerLLMOutput](ctx, chatModel, systemPrompt, "query.synthesizer")
	if err != nil {
		return nil, fmt.Errorf("%w: compile synthesizer graph: %v", contractx.ErrModelInvoke, err)
	}
	return &Synthesizer{runner: runner, schemas: schemas}, nil
}

func (s *Synthesizer) Synthesize(
	ctx context.Context,
	question string,
	hint contractx.Partition,
	caller *contractx.CallerContext,
) (contractx.QueryPlan, error) {
	if strings.TrimSpace(question) == "" {
		return contractx.QueryPlan{}, fmt.Errorf("%w: question is required", contractx.ErrValidation)
	}
	if hint == contractx.PartitionUnknown {
		return contractx.QueryPlan{}, fmt.Errorf("%w: partition hint is required", contractx.ErrValidation)
	}

	payload := map[string]any{
		"question":          question,
		"database":          string(hint),
		"schema":            s.schemas.For(hint),
		"default_row_limit": defaultRowLimit,
		"max_row_limit":     maxRowLimit,
	}
	if caller != nil {
		payload["caller_id"] = caller.CallerID
	}
	inputBytes, err := json.Marshal(payload)
	if err != nil {
		return contractx.QueryPlan{}, fmt.Errorf("%w: marshal synthesizer payload: %v", contractx.ErrValidation, err)
	}

	out, err := s.runner.Invoke(ctx, map[string]any{
		"input": string(inputBytes),
	})
	if err != nil {
		return contractx.QueryPlan{}, fmt.Errorf("%w: synthesizer invoke: %v", contractx.ErrModelInvoke, err)
	}

	rawQuery := strings.TrimSpace(out.Query)
	if rawQuery == "" {
		return contractx.QueryPlan{}, fmt.Errorf("%w: synthesizer returned empty query", contractx.ErrSchemaViolation)
	}

	partition := contractx.ParsePartition(out.Database)
	if partition == contractx.PartitionUnknown {
		// The model may restate the hint or drift; only exact labels
		// count, otherwise we keep the selector's choice.
		partition = hint
	}

	return contractx.QueryPlan{
		RawQuery:        rawQuery,
		TargetPartition: partition,
	}, nil
}

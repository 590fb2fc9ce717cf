package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"
	contractx "github.com/cashsys/auction-chat/agent/contract"
)

var ErrEmptyQuestion = errors.New("question is empty")

type pipelineState struct {
	Question  string
	Caller    *contractx.CallerContext
	Partition contractx.Partition
	Plan      contractx.QueryPlan
	Verdict   contractx.ValidationVerdict
}

// Pipeline chains partition selection, synthesis, validation and
// execution. Execution is gated on a valid verdict; an invalid verdict
// becomes a conversational denial, never a fault.
type Pipeline struct {
	selector    contractx.PartitionSelector
	synthesizer contractx.QuerySynthesizer
	validator   contractx.QueryValidator
	executor    contractx.QueryExecutor

	runner compose.Runnable[contractx.QueryRequest, contractx.QueryResult]
}

func NewPipeline(
	selector contractx.PartitionSelector,
	synthesizer contractx.QuerySynthesizer,
	validator contractx.QueryValidator,
	executor contractx.QueryExecutor,
) (*Pipeline, error) {
	if selector == nil || synthesizer == nil || validator == nil || executor == nil {
		return nil, errors.New("all pipeline stages are required")
	}

	p := &Pipeline{
		selector:    selector,
		synthesizer: synthesizer,
		validator:   validator,
		executor:    executor,
	}

	runner, err := p.compileGraph(context.Background())
	if err != nil {
		return nil, err
	}
	p.runner = runner
	return p, nil
}

func (p *Pipeline) Answer(ctx context.Context, req contractx.QueryRequest) (contractx.QueryResult, error) {
	return p.runner.Invoke(ctx, req)
}

func (p *Pipeline) compileGraph(
	ctx context.Context,
) (compose.Runnable[contractx.QueryRequest, contractx.QueryResult], error) {
	graph := compose.NewGraph[contractx.QueryRequest, contractx.QueryResult]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, req contractx.QueryRequest) (*pipelineState, error) {
			question := strings.TrimSpace(req.Question)
			if question == "" {
				return nil, ErrEmptyQuestion
			}
			st := &pipelineState{Question: question}
			if req.Caller.CallerID != 0 || req.Caller.Token != "" {
				caller := req.Caller
				st.Caller = &caller
			}
			return st, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("select_partition",
		compose.InvokableLambda(func(ctx context.Context, st *pipelineState) (*pipelineState, error) {
			partition, err := p.selector.Select(ctx, st.Question)
			if err != nil {
				return nil, err
			}
			if partition == contractx.PartitionUnknown {
				// Fail-open default; validation still gates execution.
				partition = contractx.PartitionCatalogue
			}
			st.Partition = partition
			return st, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node select_partition: %w", err)
	}

	if err := graph.AddLambdaNode("synthesize",
		compose.InvokableLambda(func(ctx context.Context, st *pipelineState) (*pipelineState, error) {
			plan, err := p.synthesizer.Synthesize(ctx, st.Question, st.Partition, st.Caller)
			if err != nil {
				return nil, err
			}
			st.Plan = plan
			return st, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node synthesize: %w", err)
	}

	if err := graph.AddLambdaNode("validate",
		compose.InvokableLambda(func(ctx context.Context, st *pipelineState) (*pipelineState, error) {
			verdict, err := p.validator.Validate(ctx, st.Plan, st.Caller)
			if err != nil {
				return nil, err
			}
			st.Verdict = verdict
			return st, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate: %w", err)
	}

	if err := graph.AddLambdaNode("execute",
		compose.InvokableLambda(func(ctx context.Context, st *pipelineState) (contractx.QueryResult, error) {
			out := p.executor.Execute(ctx, st.Verdict, st.Plan.TargetPartition, st.Question)
			if out.Err != nil {
				return contractx.QueryResult{}, out.Err
			}
			return contractx.QueryResult{Text: out.Text, Partition: st.Plan.TargetPartition}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node execute: %w", err)
	}

	if err := graph.AddLambdaNode("deny",
		compose.InvokableLambda(func(ctx context.Context, st *pipelineState) (contractx.QueryResult, error) {
			// The rejected query is logged for debugging, never shown.
			log.Info().
				Str("reason", st.Verdict.Reason).
				Str("corrected_query", st.Verdict.CorrectedQuery).
				Msg("query plan rejected by validator")
			return contractx.QueryResult{
				Text:      "Query validation failed: " + st.Verdict.Reason,
				Partition: st.Plan.TargetPartition,
			}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node deny: %w", err)
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, st *pipelineState) (string, error) {
			if st == nil {
				return "", fmt.Errorf("%w: pipeline state is nil", contractx.ErrValidation)
			}
			if st.Verdict.Valid {
				return "execute", nil
			}
			return "deny", nil
		},
		map[string]bool{
			"execute": true,
			"deny":    true,
		},
	)

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "select_partition"},
		{"select_partition", "synthesize"},
		{"synthesize", "validate"},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}
	if err := graph.AddBranch("validate", branch); err != nil {
		return nil, fmt.Errorf("add verdict branch: %w", err)
	}
	if err := graph.AddEdge("execute", compose.END); err != nil {
		return nil, fmt.Errorf("add edge execute->end: %w", err)
	}
	if err := graph.AddEdge("deny", compose.END); err != nil {
		return nil, fmt.Errorf("add edge deny->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("query.pipeline"))
	if err != nil {
		return nil, fmt.Errorf("compile query pipeline graph: %w", err)
	}
	return runner, nil
}

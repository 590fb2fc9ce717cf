// Package supervisor runs one chat turn: the Action Specialist is
// attempted first, a single routing decision classifies its reply, and
// unhandled requests fall back to the read-only query pipeline.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"
	contractx "github.com/cashsys/auction-chat/agent/contract"
)

const (
	LastAgentActionSpecialist = "action_specialist"
	LastAgentQueryPipeline    = "query_pipeline"
)

var ErrNoUserMessage = errors.New("conversation has no user message")

// TurnInput is one user turn: the conversation so far (ending in the
// new user message) and the caller behind it.
type TurnInput struct {
	Conversation []contractx.Message
	Caller       contractx.CallerContext
}

type turnState struct {
	Input    TurnInput
	Question string

	SpecialistConv []contractx.Message
	SpecialistErr  error
	Decision       contractx.RoutingDecision
}

type Supervisor struct {
	specialist contractx.Specialist
	router     contractx.Router
	pipeline   contractx.QueryPipeline

	runner compose.Runnable[TurnInput, contractx.TurnResult]
}

func New(
	specialist contractx.Specialist,
	router contractx.Router,
	pipeline contractx.QueryPipeline,
) (*Supervisor, error) {
	if specialist == nil {
		return nil, errors.New("specialist is required")
	}
	if router == nil {
		return nil, errors.New("router is required")
	}
	if pipeline == nil {
		return nil, errors.New("query pipeline is required")
	}

	s := &Supervisor{
		specialist: specialist,
		router:     router,
		pipeline:   pipeline,
	}

	runner, err := s.compileTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	s.runner = runner
	return s, nil
}

func (s *Supervisor) Turn(ctx context.Context, in TurnInput) (contractx.TurnResult, error) {
	return s.runner.Invoke(ctx, in)
}

func (s *Supervisor) compileTurnGraph(
	ctx context.Context,
) (compose.Runnable[TurnInput, contractx.TurnResult], error) {
	graph := compose.NewGraph[TurnInput, contractx.TurnResult]()

	if err := graph.AddLambdaNode("attempt_action",
		compose.InvokableLambda(func(ctx context.Context, in TurnInput) (*turnState, error) {
			question, err := lastUserMessage(in.Conversation)
			if err != nil {
				return nil, err
			}
			st := &turnState{Input: in, Question: question}

			resp, err := s.specialist.Handle(ctx, contractx.SpecialistRequest{
				Conversation: in.Conversation,
				Caller:       in.Caller,
			})
			if err != nil {
				log.Warn().Err(err).Msg("action specialist failed, turn will fall back")
				st.SpecialistErr = err
				return st, nil
			}
			st.SpecialistConv = resp.Conversation
			return st, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node attempt_action: %w", err)
	}

	if err := graph.AddLambdaNode("route",
		compose.InvokableLambda(func(ctx context.Context, st *turnState) (*turnState, error) {
			// A failed attempt is routed to the fallback without consulting
			// the router; the failure itself is the rationale.
			if st.SpecialistErr != nil {
				st.Decision = contractx.RoutingDecision{
					CanHandle: false,
					Rationale: "specialist failed: " + st.SpecialistErr.Error(),
				}
				return st, nil
			}

			reply := lastAssistantMessage(st.SpecialistConv)
			decision, err := s.router.Decide(ctx, st.Question, reply)
			if err != nil {
				// The attempt produced a reply; losing the routing signal is
				// not worth losing the turn. Keep the specialist's answer.
				log.Warn().Err(err).Msg("routing decision failed, keeping specialist reply")
				st.Decision = contractx.RoutingDecision{CanHandle: true, Rationale: "router unavailable"}
				return st, nil
			}
			st.Decision = decision
			return st, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node route: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_action",
		compose.InvokableLambda(func(ctx context.Context, st *turnState) (contractx.TurnResult, error) {
			log.Debug().Str("rationale", st.Decision.Rationale).Msg("turn handled by action specialist")
			return contractx.TurnResult{
				Conversation:  st.SpecialistConv,
				LastAgentUsed: LastAgentActionSpecialist,
			}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_action: %w", err)
	}

	if err := graph.AddLambdaNode("query_fallback",
		compose.InvokableLambda(func(ctx context.Context, st *turnState) (contractx.TurnResult, error) {
			log.Info().Str("rationale", st.Decision.Rationale).Msg("turn falling back to query pipeline")

			res, err := s.pipeline.Answer(ctx, contractx.QueryRequest{
				Question: st.Question,
				Caller:   st.Input.Caller,
			})
			text := fallbackText(res, err)

			reply := contractx.Message{Role: contractx.RoleAssistant, Content: text}
			conv := append(append([]contractx.Message{}, st.Input.Conversation...), reply)
			return contractx.TurnResult{
				Conversation:  conv,
				LastAgentUsed: LastAgentQueryPipeline,
			}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node query_fallback: %w", err)
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, st *turnState) (string, error) {
			if st == nil {
				return "", fmt.Errorf("%w: turn state is nil", contractx.ErrValidation)
			}
			if st.Decision.CanHandle {
				return "finalize_action", nil
			}
			return "query_fallback", nil
		},
		map[string]bool{
			"finalize_action": true,
			"query_fallback":  true,
		},
	)

	if err := graph.AddEdge(compose.START, "attempt_action"); err != nil {
		return nil, fmt.Errorf("add edge start->attempt: %w", err)
	}
	if err := graph.AddEdge("attempt_action", "route"); err != nil {
		return nil, fmt.Errorf("add edge attempt->route: %w", err)
	}
	if err := graph.AddBranch("route", branch); err != nil {
		return nil, fmt.Errorf("add routing branch: %w", err)
	}
	if err := graph.AddEdge("finalize_action", compose.END); err != nil {
		return nil, fmt.Errorf("add edge finalize->end: %w", err)
	}
	if err := graph.AddEdge("query_fallback", compose.END); err != nil {
		return nil, fmt.Errorf("add edge fallback->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("supervisor.turn"))
	if err != nil {
		return nil, fmt.Errorf("compile supervisor turn graph: %w", err)
	}
	return runner, nil
}

// fallbackText maps a pipeline outcome onto the single assistant message
// the user sees. Pipeline faults degrade to an apology instead of
// failing the turn.
func fallbackText(res contractx.QueryResult, err error) string {
	if err == nil {
		return res.Text
	}
	log.Error().Err(err).Msg("query pipeline failed")
	switch {
	case errors.Is(err, contractx.ErrModelInvoke), errors.Is(err, contractx.ErrSchemaViolation):
		return "I couldn't process that right now. Please try again."
	default:
		return "Something went wrong while answering your question. Please try again."
	}
}

func lastUserMessage(conversation []contractx.Message) (string, error) {
	for i := len(conversation) - 1; i >= 0; i-- {
		if conversation[i].Role == contractx.RoleUser {
			text := strings.TrimSpace(conversation[i].Content)
			if text == "" {
				return "", fmt.Errorf("%w: last user message is empty", contractx.ErrValidation)
			}
			return text, nil
		}
	}
	return "", ErrNoUserMessage
}

func lastAssistantMessage(conversation []contractx.Message) string {
	for i := len(conversation) - 1; i >= 0; i-- {
		if conversation[i].Role == contractx.RoleAssistant {
			return conversation[i].Content
		}
	}
	return ""
}

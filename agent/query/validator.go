package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	openaisdk "github.com/openai/openai-go"
	contractx "github.com/cashsys/auction-chat/agent/contract"
	dbschemax "github.com/cashsys/auction-chat/agent/dbschema"
)

var mutationKeywordPattern = regexp.MustCompile(
	`(?i)\b(INSERT|UPDATE|DELETE|DROP|ALTER|TRUNCATE|CREATE|GRANT|REVOKE)\b`,
)

// mutationKeyword returns the first write/DDL keyword found in the query,
// upper-cased, or "" when the statement is a pure read. A statement that
// does not start with SELECT or WITH is reported as its leading word.
func mutationKeyword(query string) string {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return ""
	}
	if m := mutationKeywordPattern.FindString(trimmed); m != "" {
		return strings.ToUpper(m)
	}
	head := strings.Fields(trimmed)[0]
	switch strings.ToUpper(head) {
	case "SELECT", "WITH":
		return ""
	default:
		return strings.ToUpper(head)
	}
}

// Validator re-examines a synthesized plan in a fresh oracle invocation.
// It deliberately talks to the model over the raw SDK client rather than
// sharing the synthesizer's graph, so the verdict never rides on the
// same invocation path as the plan. Mutating statements are rejected
// statically before the oracle is ever consulted.
type Validator struct {
	client       *openaisdk.Client
	model        string
	systemPrompt string
	schemas      dbschemax.SchemaSet
}

type validatorLLMOutput struct {
	Valid          bool   `json:"valid"`
	Reason         string `json:"reason"`
	CorrectedQuery string `json:"corrected_query"`
}

func NewValidator(
	client *openaisdk.Client,
	model string,
	systemPrompt string,
	schemas dbschemax.SchemaSet,
) (*Validator, error) {
	if client == nil {
		return nil, errors.New("validator oracle client is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("validator model name is required")
	}
	return &Validator{
		client:       client,
		model:        model,
		systemPrompt: systemPrompt,
		schemas:      schemas,
	}, nil
}

func (v *Validator) Validate(
	ctx context.Context,
	plan contractx.QueryPlan,
	caller *contractx.CallerContext,
) (contractx.ValidationVerdict, error) {
	if strings.TrimSpace(plan.RawQuery) == "" {
		return contractx.ValidationVerdict{}, fmt.Errorf("%w: plan query is empty", contractx.ErrValidation)
	}

	if kw := mutationKeyword(plan.RawQuery); kw != "" {
		return contractx.ValidationVerdict{
			Valid:  false,
			Reason: kw + " not permitted",
		}, nil
	}

	payload := map[string]any{
		"query":    plan.RawQuery,
		"database": string(plan.TargetPartition),
		"schema":   v.schemas.For(plan.TargetPartition),
	}
	if caller != nil {
		payload["caller_id"] = caller.CallerID
	}
	inputBytes, err := json.Marshal(payload)
	if err != nil {
		return contractx.ValidationVerdict{}, fmt.Errorf("%w: marshal validator payload: %v", contractx.ErrValidation, err)
	}

	completion, err := v.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(v.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(v.systemPrompt),
			openaisdk.UserMessage(string(inputBytes)),
		},
		Temperature: openaisdk.Float(0),
	})
	if err != nil {
		return contractx.ValidationVerdict{}, fmt.Errorf("%w: validator invoke: %v", contractx.ErrModelInvoke, err)
	}
	if len(completion.Choices) == 0 {
		return contractx.ValidationVerdict{}, fmt.Errorf("%w: validator returned no choices", contractx.ErrSchemaViolation)
	}

	var out validatorLLMOutput
	content := stripCodeFence(completion.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return contractx.ValidationVerdict{}, fmt.Errorf("%w: decode validator verdict: %v", contractx.ErrSchemaViolation, err)
	}

	corrected := strings.TrimSpace(out.CorrectedQuery)
	if out.Valid {
		if corrected == "" {
			corrected = plan.RawQuery
		}
		// A "corrected" query that mutates invalidates the verdict no
		// matter what the oracle claims.
		if kw := mutationKeyword(corrected); kw != "" {
			return contractx.ValidationVerdict{
				Valid:  false,
				Reason: kw + " not permitted",
			}, nil
		}
	}

	return contractx.ValidationVerdict{
		Valid:          out.Valid,
		Reason:         strings.TrimSpace(out.Reason),
		CorrectedQuery: corrected,
	}, nil
}

// stripCodeFence unwraps a fenced block some models put around JSON.
func stripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

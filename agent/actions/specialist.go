package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	contractx "github.com/cashsys/auction-chat/agent/contract"
)

// maxToolRounds bounds the act/observe loop so a model that keeps
// requesting tools cannot spin forever.
const maxToolRounds = 6

// Specialist runs the tool-calling loop against the platform API. It
// appends exactly one assistant message per turn; whether that message
// is an action result, a clarifying question, or an admission of
// incapability is for the supervisor to judge.
type Specialist struct {
	toolModel    einomodel.ToolCallingChatModel
	client       PlatformClient
	systemPrompt string
}

func NewSpecialist(
	chatModel einomodel.ToolCallingChatModel,
	client PlatformClient,
	systemPrompt string,
) (*Specialist, error) {
	if client == nil {
		return nil, errors.New("platform client is required")
	}

	toolModel, err := chatModel.WithTools(toolInfos())
	if err != nil {
		return nil, fmt.Errorf("%w: bind action tools: %v", contractx.ErrModelInvoke, err)
	}

	return &Specialist{
		toolModel:    toolModel,
		client:       client,
		systemPrompt: systemPrompt,
	}, nil
}

func (s *Specialist) Handle(ctx context.Context, req contractx.SpecialistRequest) (contractx.SpecialistResponse, error) {
	if len(req.Conversation) == 0 {
		return contractx.SpecialistResponse{}, fmt.Errorf("%w: conversation is empty", contractx.ErrValidation)
	}

	messages := make([]*schema.Message, 0, len(req.Conversation)+1)
	messages = append(messages, schema.SystemMessage(s.systemPrompt))
	for _, m := range req.Conversation {
		messages = append(messages, toSchemaMessage(m))
	}

	var records []contractx.ToolRecord
	for round := 0; round < maxToolRounds; round++ {
		msg, err := s.toolModel.Generate(ctx, messages)
		if err != nil {
			return contractx.SpecialistResponse{}, fmt.Errorf("%w: specialist generate: %v", contractx.ErrModelInvoke, err)
		}
		if msg == nil {
			return contractx.SpecialistResponse{}, fmt.Errorf("%w: empty specialist response", contractx.ErrSchemaViolation)
		}

		if len(msg.ToolCalls) == 0 {
			content := strings.TrimSpace(msg.Content)
			if content == "" {
				return contractx.SpecialistResponse{}, fmt.Errorf("%w: specialist reply is empty", contractx.ErrSchemaViolation)
			}
			reply := contractx.Message{
				Role:    contractx.RoleAssistant,
				Content: content,
				Tools:   records,
			}
			return contractx.SpecialistResponse{
				Conversation: append(append([]contractx.Message{}, req.Conversation...), reply),
			}, nil
		}

		messages = append(messages, msg)
		for _, call := range msg.ToolCalls {
			record, observation, err := s.runToolCall(ctx, req.Caller, call)
			if err != nil {
				return contractx.SpecialistResponse{}, err
			}
			records = append(records, record)
			messages = append(messages, schema.ToolMessage(observation, call.ID))
		}
	}

	return contractx.SpecialistResponse{}, fmt.Errorf("tool loop exceeded %d rounds", maxToolRounds)
}

// runToolCall executes one requested action. Platform API errors become
// observations the model can relay; everything else aborts the turn.
func (s *Specialist) runToolCall(
	ctx context.Context,
	caller contractx.CallerContext,
	call schema.ToolCall,
) (contractx.ToolRecord, string, error) {
	name := strings.TrimSpace(call.Function.Name)
	action, ok := ParseAction(name)
	if !ok {
		return contractx.ToolRecord{}, "", fmt.Errorf("%w: tool=%s is not in the action set", contractx.ErrSchemaViolation, name)
	}

	args := map[string]any{}
	if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return contractx.ToolRecord{}, "", fmt.Errorf("%w: invalid args for tool=%s: %v", contractx.ErrSchemaViolation, name, err)
		}
	}

	result, err := dispatch(ctx, s.client, caller, action, args)
	if err != nil {
		var apiErr *contractx.APIError
		if errors.As(err, &apiErr) {
			log.Warn().Str("action", name).Int("status", apiErr.Status).Msg("platform api rejected action")
			observation := fmt.Sprintf("error: %s", apiErr.Error())
			return contractx.ToolRecord{Name: name, Args: args, Error: apiErr.Error()}, observation, nil
		}
		return contractx.ToolRecord{}, "", err
	}

	observation := string(result)
	return contractx.ToolRecord{Name: name, Args: args, Result: observation}, observation, nil
}

func toSchemaMessage(m contractx.Message) *schema.Message {
	switch m.Role {
	case contractx.RoleSystem:
		return schema.SystemMessage(m.Content)
	case contractx.RoleAssistant:
		return schema.AssistantMessage(m.Content, nil)
	default:
		return schema.UserMessage(m.Content)
	}
}

// Package state persists chat sessions: the conversation transcript
// plus enough caller metadata to resume a turn.
package state

import (
	"errors"
	"strings"
	"time"

	contractx "github.com/cashsys/auction-chat/agent/contract"
)

// SessionState is the durable record of one chat session. Conversation
// is append-only; turns add messages but never rewrite history.
type SessionState struct {
	SessionID     string              `json:"session_id"`
	CallerID      int64               `json:"caller_id"`
	Token         string              `json:"token,omitempty"`
	Conversation  []contractx.Message `json:"conversation"`
	LastAgentUsed string              `json:"last_agent_used"`
	Version       int                 `json:"version"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func NewSessionState(sessionID string, callerID int64) *SessionState {
	return &SessionState{
		SessionID: sessionID,
		CallerID:  callerID,
		Version:   1,
		UpdatedAt: time.Now().UTC(),
	}
}

func (s *SessionState) Validate() error {
	if s == nil {
		return ErrNilSessionState
	}
	if strings.TrimSpace(s.SessionID) == "" {
		return ErrInvalidSession
	}
	return nil
}

// AppendUser records the incoming user message before the turn runs, so
// a failed turn still leaves the transcript consistent.
func (s *SessionState) AppendUser(text string) {
	s.Conversation = append(s.Conversation, contractx.Message{
		Role:    contractx.RoleUser,
		Content: text,
	})
}

// ApplyTurn replaces the transcript with the turn's conversation and
// records which agent produced the reply.
func (s *SessionState) ApplyTurn(res contractx.TurnResult) error {
	if len(res.Conversation) < len(s.Conversation) {
		return errors.New("turn result shrank the conversation")
	}
	s.Conversation = res.Conversation
	s.LastAgentUsed = res.LastAgentUsed
	s.UpdatedAt = time.Now().UTC()
	return nil
}

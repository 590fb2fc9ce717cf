// Package server exposes the chat agent over HTTP: session creation,
// history retrieval, and one supervisor turn per message.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	contractx "github.com/cashsys/auction-chat/agent/contract"
	statex "github.com/cashsys/auction-chat/agent/state"
	supervisorx "github.com/cashsys/auction-chat/agent/supervisor"
)

type Config struct {
	Addr         string        `envconfig:"ADDR" split_words:"true" default:":8000"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" split_words:"true" default:"30s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" split_words:"true" default:"120s"`
}

// Turner runs one chat turn. Satisfied by *supervisor.Supervisor.
type Turner interface {
	Turn(ctx context.Context, in supervisorx.TurnInput) (contractx.TurnResult, error)
}

type Server struct {
	store  statex.Store
	turner Turner

	// One writer per session: concurrent messages to the same session
	// serialize instead of interleaving transcripts.
	mu       sync.Mutex
	sessions map[string]*sync.Mutex
}

func New(store statex.Store, turner Turner) (*Server, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if turner == nil {
		return nil, errors.New("turn runner is required")
	}
	return &Server{
		store:    store,
		turner:   turner,
		sessions: make(map[string]*sync.Mutex),
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleNewChat)
	mux.HandleFunc("GET /chat/{id}", s.handleHistory)
	mux.HandleFunc("POST /chat/{id}/message", s.handleMessage)
	return mux
}

func (s *Server) ListenAndServe(cfg Config) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	log.Info().Str("addr", cfg.Addr).Msg("chat server listening")
	return srv.ListenAndServe()
}

type newChatRequest struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	JWTToken string `json:"jwt_token"`
}

type newChatResponse struct {
	ChatID string `json:"chat_id"`
}

func (s *Server) handleNewChat(w http.ResponseWriter, r *http.Request) {
	var req newChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	chatID := uuid.NewString()
	st := statex.NewSessionState(chatID, req.UserID)
	st.Token = strings.TrimSpace(req.JWTToken)

	if err := s.store.Save(r.Context(), st); err != nil {
		log.Error().Err(err).Msg("save new session")
		writeError(w, http.StatusInternalServerError, "could not create chat session")
		return
	}

	log.Info().Str("chat_id", chatID).Int64("user_id", req.UserID).Msg("chat session created")
	writeJSON(w, http.StatusOK, newChatResponse{ChatID: chatID})
}

type historyResponse struct {
	ChatID   string           `json:"chat_id"`
	Messages []historyMessage `json:"messages"`
}

type historyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")

	st, err := s.store.Load(r.Context(), chatID)
	if err != nil {
		if errors.Is(err, statex.ErrStateNotFound) || errors.Is(err, statex.ErrInvalidSession) {
			writeError(w, http.StatusNotFound, "chat session not found")
			return
		}
		log.Error().Err(err).Str("chat_id", chatID).Msg("load session")
		writeError(w, http.StatusInternalServerError, "could not load chat session")
		return
	}

	resp := historyResponse{ChatID: chatID, Messages: []historyMessage{}}
	for _, m := range st.Conversation {
		if m.Role != contractx.RoleUser && m.Role != contractx.RoleAssistant {
			continue
		}
		resp.Messages = append(resp.Messages, historyMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type messageRequest struct {
	Message string `json:"message"`
}

type messageResponse struct {
	Message       string `json:"message"`
	LastAgentUsed string `json:"last_agent_used"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	lock := s.sessionLock(chatID)
	lock.Lock()
	defer lock.Unlock()

	st, err := s.store.Load(r.Context(), chatID)
	if err != nil {
		if errors.Is(err, statex.ErrStateNotFound) || errors.Is(err, statex.ErrInvalidSession) {
			writeError(w, http.StatusNotFound, "chat session not found")
			return
		}
		log.Error().Err(err).Str("chat_id", chatID).Msg("load session")
		writeError(w, http.StatusInternalServerError, "could not load chat session")
		return
	}

	st.AppendUser(req.Message)

	result, err := s.turner.Turn(r.Context(), supervisorx.TurnInput{
		Conversation: st.Conversation,
		Caller: contractx.CallerContext{
			CallerID: st.CallerID,
			Token:    st.Token,
		},
	})
	if err != nil {
		log.Error().Err(err).Str("chat_id", chatID).Msg("turn failed")
		writeError(w, http.StatusInternalServerError, "could not process message")
		return
	}

	if err := st.ApplyTurn(result); err != nil {
		log.Error().Err(err).Str("chat_id", chatID).Msg("apply turn")
		writeError(w, http.StatusInternalServerError, "could not process message")
		return
	}
	if err := s.store.Save(r.Context(), st); err != nil {
		log.Error().Err(err).Str("chat_id", chatID).Msg("save session")
		writeError(w, http.StatusInternalServerError, "could not save chat session")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message:       lastAssistant(result.Conversation),
		LastAgentUsed: result.LastAgentUsed,
	})
}

func (s *Server) sessionLock(chatID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.sessions[chatID]
	if !ok {
		lock = &sync.Mutex{}
		s.sessions[chatID] = lock
	}
	return lock
}

func lastAssistant(conversation []contractx.Message) string {
	for i := len(conversation) - 1; i >= 0; i-- {
		if conversation[i].Role == contractx.RoleAssistant {
			return conversation[i].Content
		}
	}
	return "No response"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

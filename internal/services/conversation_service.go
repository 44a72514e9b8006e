// Package services holds the application logic between the HTTP handlers
// and the persistence layer.
package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/chatppc/chatppc/internal/core/database"
	"github.com/chatppc/chatppc/internal/models"
)

var (
	// ErrOwnerMismatch means a session action was attempted by a non-owner.
	ErrOwnerMismatch = errors.New("session belongs to another user")
	// ErrSessionNotFound means the referenced session does not exist.
	ErrSessionNotFound = errors.New("session not found")
)

// ConversationStore is the persistence view the conversation service needs.
type ConversationStore interface {
	GetSession(ctx context.Context, id string) (*models.ChatSession, error)
	CreateSession(ctx context.Context, session *models.ChatSession) error
	TouchSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context) ([]models.ChatSession, error)
	ExistingSequenceOrders(ctx context.Context, sessionID string) (map[int]struct{}, error)
	InsertMessages(ctx context.Context, msgs []models.ChatMessage) error
	GetMessagesBySession(ctx context.Context, sessionID string) ([]models.ChatMessage, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteSessionsByUser(ctx context.Context, userID string) (int, error)
	InsertLinkClick(ctx context.Context, click *models.LinkClick) error
}

// ConversationService persists chat sessions and their ordered messages.
type ConversationService struct {
	store  ConversationStore
	logger *zap.Logger
}

func NewConversationService(store ConversationStore, logger *zap.Logger) *ConversationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationService{store: store, logger: logger}
}

func validRole(role string) bool {
	switch role {
	case models.RoleUser, models.RoleAssistant, models.RoleTool, models.RoleSystem:
		return true
	}
	return false
}

// StoreMessages creates or touches the session, then appends incrementally:
// sequence order is assigned by position and only orders not already stored
// are inserted, so retries never duplicate messages. A session that already
// has a different owner rejects the write.
func (s *ConversationService) StoreMessages(ctx context.Context, sessionID, userID string, msgs []models.IncomingMessage) error {
	session, err := s.store.GetSession(ctx, sessionID)
	switch {
	case errors.Is(err, database.ErrNotFound):
		s.logger.Info("creating chat session", zap.String("session_id", sessionID))
		if err := s.store.CreateSession(ctx, &models.ChatSession{ID: sessionID, UserID: userID}); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
	case err != nil:
		return fmt.Errorf("check session: %w", err)
	default:
		if userID != "" && session.UserID != "" && session.UserID != userID {
			return ErrOwnerMismatch
		}
	}

	existing, err := s.store.ExistingSequenceOrders(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("fetch existing messages: %w", err)
	}

	toInsert := make([]models.ChatMessage, 0, len(msgs))
	for idx, m := range msgs {
		if _, ok := existing[idx]; ok {
			continue
		}
		if !validRole(m.Role) {
			return fmt.Errorf("invalid message role %q at position %d", m.Role, idx)
		}
		toInsert = append(toInsert, models.ChatMessage{
			SessionID:     sessionID,
			Role:          m.Role,
			Content:       m.Content,
			ToolCalls:     m.ToolCalls,
			SequenceOrder: idx,
		})
	}

	if len(toInsert) > 0 {
		if err := s.store.InsertMessages(ctx, toInsert); err != nil {
			return fmt.Errorf("insert messages: %w", err)
		}
	}

	if err := s.store.TouchSession(ctx, sessionID); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// History returns all messages of a session in replay order.
func (s *ConversationService) History(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	return s.store.GetMessagesBySession(ctx, sessionID)
}

// Sessions returns all sessions, most recently updated first.
func (s *ConversationService) Sessions(ctx context.Context) ([]models.ChatSession, error) {
	return s.store.ListSessions(ctx)
}

// DeleteSession removes one session and its messages after an owner check.
func (s *ConversationService) DeleteSession(ctx context.Context, sessionID, userID string) error {
	session, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, database.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return err
	}
	if session.UserID != "" && session.UserID != userID {
		return ErrOwnerMismatch
	}
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	return nil
}

// DeleteAllSessions removes every session owned by userID.
func (s *ConversationService) DeleteAllSessions(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("user id is required")
	}
	return s.store.DeleteSessionsByUser(ctx, userID)
}

// RecordLinkClick logs a click against an existing session. Clicks for
// sessions that have not stored a message yet are rejected.
func (s *ConversationService) RecordLinkClick(ctx context.Context, click *models.LinkClick) error {
	if _, err := s.store.GetSession(ctx, click.SessionID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	return s.store.InsertLinkClick(ctx, click)
}

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AliciaSchep/pgchat/internal/logger"
	"github.com/AliciaSchep/pgchat/pkg/transcript"
)

// Service enforces ownership on top of a Store
type Service struct {
	store Store
	log   *logger.Logger
	now   func() time.Time
}

// NewService wraps store. A nil logger discards output.
func NewService(store Store, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{store: store, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Authorize returns the chat when owner may use it, nil when it does not
// exist yet, and ErrForbidden when someone else owns it
func (s *Service) Authorize(ctx context.Context, owner, id string) (*Chat, error) {
	c, err := s.store.GetChat(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chat: %w", err)
	}
	if c == nil {
		return nil, nil
	}
	if c.UserID != owner {
		return nil, ErrForbidden
	}
	return c, nil
}

// Save stores history followed by response as the chat's transcript. The
// chat is created on first save. The stored transcript is overwritten, so
// the last completed turn wins.
func (s *Service) Save(ctx context.Context, owner, id string, history, response []transcript.Message) (*Chat, error) {
	messages := make([]transcript.Message, 0, len(history)+len(response))
	messages = append(messages, history...)
	messages = append(messages, response...)
	if err := transcript.Validate(messages); err != nil {
		return nil, fmt.Errorf("refusing to save chat %s: %w", id, err)
	}

	existing, err := s.Authorize(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		created, err := s.create(ctx, owner, id, messages)
		if !errors.Is(err, ErrConflict) {
			return created, err
		}
		// Lost a race with another first turn on the same id
		if existing, err = s.Authorize(ctx, owner, id); err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("chat %s vanished after conflict", id)
		}
	}

	updated, err := s.store.UpdateChat(ctx, &UpdateChat{ID: id, Messages: messages, UpdatedAt: s.now()})
	if err != nil {
		return nil, fmt.Errorf("failed to update chat: %w", err)
	}
	s.log.Debug("chat updated", "chat_id", id, "messages", len(messages))
	return updated, nil
}

func (s *Service) create(ctx context.Context, owner, id string, messages []transcript.Message) (*Chat, error) {
	count, err := s.store.CountChats(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to count chats: %w", err)
	}
	now := s.now()
	created, err := s.store.CreateChat(ctx, &Chat{
		ID:        id,
		Name:      DefaultName(count),
		UserID:    owner,
		Messages:  messages,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	s.log.Info("chat created", "chat_id", id, "name", created.Name)
	return created, nil
}

// Get returns one of owner's chats
func (s *Service) Get(ctx context.Context, owner, id string) (*Chat, error) {
	c, err := s.Authorize(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	return c, nil
}

// List returns owner's chats, newest first
func (s *Service) List(ctx context.Context, owner string) ([]*Chat, error) {
	chats, err := s.store.ListChats(ctx, &FindChat{OwnerID: owner})
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	return chats, nil
}

// Rename changes the name of one of owner's chats
func (s *Service) Rename(ctx context.Context, owner, id, name string) (*Chat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return nil, ErrNameTooLong
	}

	if _, err := s.Get(ctx, owner, id); err != nil {
		return nil, err
	}
	updated, err := s.store.UpdateChat(ctx, &UpdateChat{ID: id, Name: &name, UpdatedAt: s.now()})
	if err != nil {
		return nil, fmt.Errorf("failed to rename chat: %w", err)
	}
	return updated, nil
}

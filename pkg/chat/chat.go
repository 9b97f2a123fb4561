package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AliciaSchep/pgchat/pkg/transcript"
)

// MaxNameLength is the longest chat name accepted by Rename, in characters
const MaxNameLength = 100

var (
	ErrNotFound    = errors.New("chat not found")
	ErrForbidden   = errors.New("chat belongs to another user")
	ErrInvalidName = errors.New("name must not be empty")
	ErrNameTooLong = fmt.Errorf("name must be less than %d characters", MaxNameLength)
	// ErrConflict is returned by CreateChat when the id is already taken
	ErrConflict = errors.New("chat already exists")
)

// Chat is a persisted conversation owned by one user.
type Chat struct {
	ID        string               `json:"id"`
	Name      string               `json:"name"`
	UserID    string               `json:"user_id"`
	Messages  []transcript.Message `json:"messages"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// FindChat filters for ListChats.
type FindChat struct {
	OwnerID string
}

// UpdateChat carries the fields accepted by UpdateChat. A nil field is left
// unchanged.
type UpdateChat struct {
	ID        string
	Messages  []transcript.Message
	Name      *string
	UpdatedAt time.Time
}

// Store persists chats. GetChat returns nil and no error when the chat does
// not exist.
type Store interface {
	GetChat(ctx context.Context, id string) (*Chat, error)
	CountChats(ctx context.Context, ownerID string) (int, error)
	CreateChat(ctx context.Context, create *Chat) (*Chat, error)
	UpdateChat(ctx context.Context, update *UpdateChat) (*Chat, error)
	// ListChats returns the owner's chats, newest first
	ListChats(ctx context.Context, find *FindChat) ([]*Chat, error)
	Close() error
}

// DefaultName is the name given to an owner's next chat when they already have count chats
func DefaultName(count int) string {
	return fmt.Sprintf("Chat %d", count+1)
}

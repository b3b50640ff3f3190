package messenger

import (
	"context"
	"errors"
	"fmt"
	"messenger/internal/storage"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// MaxTextLength matches the width of message.msg_text
const MaxTextLength = 300

// Messages is the message ledger. Only chat members post; only the sender of a message may edit or delete it.
type Messages struct {
	logger  *zap.SugaredLogger
	backend Backend
	chats   *Chats
	clock   Clock

	mu   sync.Mutex
	last time.Time
}

func NewMessages(logger *zap.SugaredLogger, backend Backend, chats *Chats, clock Clock) *Messages {
	return &Messages{logger: logger, backend: backend, chats: chats, clock: clock}
}

// stamp returns the next message timestamp. Timestamps are stored with microsecond precision,
// so consecutive stamps are forced at least a microsecond apart to keep the history order strict.
func (m *Messages) stamp() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now().UTC().Truncate(time.Microsecond)
	if !now.After(m.last) {
		now = m.last.Add(time.Microsecond)
	}
	m.last = now

	return now
}

func validateText(text string) error {
	if text == "" {
		return fmt.Errorf("%w: message text is empty", ErrInvalidInput)
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return fmt.Errorf("%w: message text is longer than %d characters", ErrInvalidInput, MaxTextLength)
	}
	return nil
}

// Post appends a message from sender to the chat and returns its id
func (m *Messages) Post(ctx context.Context, sender string, chat storage.ChatID, text string) (storage.MessageID, error) {
	if err := validateText(text); err != nil {
		return 0, err
	}

	var id storage.MessageID
	err := withinTx(ctx, m.backend, "post message", func(repo storage.Repository) error {
		if err := m.chats.requireMember(ctx, repo, sender, chat); err != nil {
			return err
		}

		var err error
		id, err = repo.CreateMessage(ctx, storage.Message{
			Chat:      chat,
			Sender:    sender,
			Text:      text,
			Timestamp: m.stamp(),
		})
		return err
	})
	if err != nil {
		return 0, err
	}

	m.logger.Debugf("Posted message (id: %d) from (%s) in chat (id: %d)", id, sender, chat)

	return id, nil
}

// Edit replaces the text of a message. Id, sender and timestamp never change.
func (m *Messages) Edit(ctx context.Context, actor string, id storage.MessageID, text string) error {
	if err := validateText(text); err != nil {
		return err
	}

	return withinTx(ctx, m.backend, "edit message", func(repo storage.Repository) error {
		if err := ownMessage(ctx, repo, actor, id); err != nil {
			return err
		}
		return repo.UpdateMessageText(ctx, id, text)
	})
}

// Delete removes a message permanently
func (m *Messages) Delete(ctx context.Context, actor string, id storage.MessageID) error {
	return withinTx(ctx, m.backend, "delete message", func(repo storage.Repository) error {
		if err := ownMessage(ctx, repo, actor, id); err != nil {
			return err
		}
		return repo.DeleteMessage(ctx, id)
	})
}

// ownMessage checks that actor sent this exact message, not merely some message
func ownMessage(ctx context.Context, repo storage.Repository, actor string, id storage.MessageID) error {
	msg, err := repo.MessageByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrUnknownMessage
		}
		return err
	}

	if msg.Sender != actor {
		return ErrPermission
	}

	return nil
}

// History returns every message of the chat, newest first
func (m *Messages) History(ctx context.Context, chat storage.ChatID, requester string) ([]storage.Message, error) {
	var messages []storage.Message
	err := withinTx(ctx, m.backend, "message history", func(repo storage.Repository) error {
		if err := m.chats.requireMember(ctx, repo, requester, chat); err != nil {
			return err
		}

		var err error
		messages, err = repo.MessagesOf(ctx, chat)
		return err
	})
	if err != nil {
		return nil, err
	}

	return messages, nil
}

// Page returns one page of the chat history starting at offset
func (m *Messages) Page(ctx context.Context, chat storage.ChatID, requester string, offset int) (Page, error) {
	messages, err := m.History(ctx, chat, requester)
	if err != nil {
		return Page{}, err
	}

	return NextPage(messages, offset), nil
}

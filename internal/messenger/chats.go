package messenger

import (
	"context"
	"errors"
	"messenger/internal/storage"

	"go.uber.org/zap"
)

// groupThreshold is the membership size at which a private chat becomes a group
const groupThreshold = 3

// Chats is the chat registry: creation, membership and deletion.
// Only the initiator of a chat may add members to it or delete it.
type Chats struct {
	logger  *zap.SugaredLogger
	backend Backend
}

func NewChats(logger *zap.SugaredLogger, backend Backend) *Chats {
	return &Chats{logger: logger, backend: backend}
}

// CreateChat creates a private chat whose only member is the initiator and returns its id
func (c *Chats) CreateChat(ctx context.Context, initiator string) (storage.ChatID, error) {
	var id storage.ChatID
	err := withinTx(ctx, c.backend, "create chat", func(repo storage.Repository) error {
		if _, err := lockUser(ctx, repo, initiator); err != nil {
			return err
		}

		var err error
		id, err = repo.CreateChat(ctx, initiator)
		if err != nil {
			return err
		}

		return repo.AddChatMember(ctx, id, initiator)
	})
	if err != nil {
		return 0, err
	}

	c.logger.Debugf("Created chat (id: %d) initiated by (%s)", id, initiator)

	return id, nil
}

// AddMember adds newMember to the chat. Duplicate additions are refused with ErrDuplicateMember.
// The chat becomes a group once it has three members and stays one afterwards.
func (c *Chats) AddMember(ctx context.Context, actor string, id storage.ChatID, newMember string) error {
	return withinTx(ctx, c.backend, "add chat member", func(repo storage.Repository) error {
		chat, err := lockOwnedChat(ctx, repo, actor, id)
		if err != nil {
			return err
		}

		if err := userExists(ctx, repo, newMember); err != nil {
			return err
		}

		member, err := repo.IsChatMember(ctx, id, newMember)
		if err != nil {
			return err
		}
		if member {
			return ErrDuplicateMember
		}

		if err := repo.AddChatMember(ctx, id, newMember); err != nil {
			return err
		}

		if chat.Type == storage.GroupChat {
			return nil
		}

		n, err := repo.CountChatMembers(ctx, id)
		if err != nil {
			return err
		}
		if n >= groupThreshold {
			c.logger.Debugf("Chat (id: %d) reached %d members and becomes a group", id, n)
			return repo.SetChatType(ctx, id, storage.GroupChat)
		}

		return nil
	})
}

// DeleteChat removes the chat with all of its messages and memberships, children first
func (c *Chats) DeleteChat(ctx context.Context, actor string, id storage.ChatID) error {
	return withinTx(ctx, c.backend, "delete chat", func(repo storage.Repository) error {
		if _, err := lockOwnedChat(ctx, repo, actor, id); err != nil {
			return err
		}

		if err := repo.DeleteChatMessages(ctx, id); err != nil {
			return err
		}
		if err := repo.DeleteChatMembers(ctx, id); err != nil {
			return err
		}
		return repo.DeleteChat(ctx, id)
	})
}

// ListChatsFor returns ids of the chats the user is a member of, ascending
func (c *Chats) ListChatsFor(ctx context.Context, user string) ([]storage.ChatID, error) {
	if err := userExists(ctx, c.backend, user); err != nil {
		return nil, wrap("list chats", err)
	}

	ids, err := c.backend.ChatsOf(ctx, user)
	if err != nil {
		return nil, wrap("list chats", err)
	}

	return ids, nil
}

// IsMember reports whether user is a member of the chat
func (c *Chats) IsMember(ctx context.Context, user string, id storage.ChatID) (bool, error) {
	ok, err := c.backend.IsChatMember(ctx, id, user)
	if err != nil {
		return false, wrap("check chat member", err)
	}
	return ok, nil
}

// Chat returns the chat together with its member logins
func (c *Chats) Chat(ctx context.Context, id storage.ChatID) (storage.Chat, error) {
	chat, err := c.backend.ChatByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Chat{}, ErrUnknownChat
		}
		return storage.Chat{}, wrap("get chat", err)
	}

	chat.Members, err = c.backend.ChatMembers(ctx, id)
	if err != nil {
		return storage.Chat{}, wrap("get chat", err)
	}

	return chat, nil
}

// requireMember is the membership guard the message ledger runs inside its own transactions
func (c *Chats) requireMember(ctx context.Context, repo storage.Repository, user string, id storage.ChatID) error {
	ok, err := repo.IsChatMember(ctx, id, user)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotAMember
	}
	return nil
}

func lockOwnedChat(ctx context.Context, repo storage.Repository, actor string, id storage.ChatID) (storage.Chat, error) {
	chat, err := repo.LockChat(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Chat{}, ErrUnknownChat
		}
		return storage.Chat{}, err
	}

	if chat.Initiator != actor {
		return storage.Chat{}, ErrPermission
	}

	return chat, nil
}

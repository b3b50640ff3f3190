// Package messenger holds the relationship and chat integrity rules of the messenger:
// per-user contact and block lists, chats with initiator-only administration,
// a sender-owned message ledger and paged history.
//
// Every component runs its check-then-write sequences inside one Backend transaction
// and returns either a rule violation sentinel or a *StorageError.
package messenger

import "go.uber.org/zap"

// Messenger bundles the components sharing one Backend
type Messenger struct {
	Accounts      *Accounts
	Relationships *Relationships
	Chats         *Chats
	Messages      *Messages
}

// New wires every component to backend
func New(logger *zap.SugaredLogger, backend Backend, clock Clock) *Messenger {
	relationships := NewRelationships(logger, backend)
	chats := NewChats(logger, backend)

	return &Messenger{
		Accounts:      NewAccounts(logger, backend, relationships),
		Relationships: relationships,
		Chats:         chats,
		Messages:      NewMessages(logger, backend, chats, clock),
	}
}

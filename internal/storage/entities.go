package storage

import "time"

// ListID identifies a contact or block list
type ListID int64

// ChatID identifies a chat
type ChatID int64

// MessageID identifies a message
type MessageID int64

// ListKind is the kind of user list, stored in user_list.list_type
type ListKind string

const (
	ContactList ListKind = "contact"
	BlockList   ListKind = "block"
)

// ChatType is stored in chat.chat_type
type ChatType string

const (
	PrivateChat ChatType = "private"
	GroupChat   ChatType = "group"
)

type User struct {
	Login       string
	Password    string
	Phone       string
	Status      string
	ContactList ListID
	BlockList   ListID
}

type Chat struct {
	ID        ChatID   `json:"id"`
	Type      ChatType `json:"type"`
	Initiator string   `json:"initiator"`
	Members   []string `json:"members,omitempty"`
}

type Message struct {
	ID        MessageID `json:"id"`
	Chat      ChatID    `json:"chat"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

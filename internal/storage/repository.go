package storage

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Repository is the typed set of storage operations the messenger core is built on.
// Lookups of a single row return ErrNotFound when the row is absent.
type Repository interface {
	CreateList(ctx context.Context, kind ListKind) (ListID, error)
	DeleteList(ctx context.Context, id ListID) error
	CreateUser(ctx context.Context, u User) error
	UserByLogin(ctx context.Context, login string) (User, error)
	LockUser(ctx context.Context, login string) (User, error)
	LockUserForDelete(ctx context.Context, login string) (User, error)
	UserWithCredentials(ctx context.Context, login, password string) (bool, error)
	DeleteUser(ctx context.Context, login string) error

	ListHas(ctx context.Context, list ListID, member string) (bool, error)
	AddListMember(ctx context.Context, list ListID, member string) error
	RemoveListMember(ctx context.Context, list ListID, member string) error
	ListMembers(ctx context.Context, list ListID) ([]string, error)
	ClearList(ctx context.Context, list ListID) error
	RemoveFromAllLists(ctx context.Context, member string) error

	CreateChat(ctx context.Context, initiator string) (ChatID, error)
	ChatByID(ctx context.Context, id ChatID) (Chat, error)
	LockChat(ctx context.Context, id ChatID) (Chat, error)
	SetChatType(ctx context.Context, id ChatID, t ChatType) error
	AddChatMember(ctx context.Context, id ChatID, member string) error
	IsChatMember(ctx context.Context, id ChatID, member string) (bool, error)
	CountChatMembers(ctx context.Context, id ChatID) (int, error)
	ChatMembers(ctx context.Context, id ChatID) ([]string, error)
	ChatsOf(ctx context.Context, member string) ([]ChatID, error)
	ChatsInitiatedBy(ctx context.Context, initiator string) ([]ChatID, error)
	LeaveAllChats(ctx context.Context, member string) error
	DeleteChatMessages(ctx context.Context, id ChatID) error
	DeleteChatMembers(ctx context.Context, id ChatID) error
	DeleteChat(ctx context.Context, id ChatID) error

	CreateMessage(ctx context.Context, m Message) (MessageID, error)
	MessageByID(ctx context.Context, id MessageID) (Message, error)
	UpdateMessageText(ctx context.Context, id MessageID, text string) error
	DeleteMessage(ctx context.Context, id MessageID) error
	MessagesOf(ctx context.Context, chat ChatID) ([]Message, error)
	DeleteMessagesBy(ctx context.Context, sender string) error
}

const (
	listSequence    = "user_list_list_id_seq"
	chatSequence    = "chat_chat_id_seq"
	messageSequence = "message_msg_id_seq"
)

const (
	sqlInsertList = `insert into user_list (list_type) values ($1)`
	sqlDeleteList = `delete from user_list where list_id = $1`

	sqlInsertUser = `insert into usr (login, password, phone_num, status, block_list, contact_list)
					 values ($1, $2, $3, nullif($4, ''), $5, $6)`
	sqlUserByLogin = `select login, password, phone_num, status, block_list, contact_list
						from usr
					   where login = $1`
	sqlLockUser            = sqlUserByLogin + ` for no key update`
	sqlLockUserForDelete   = sqlUserByLogin + ` for update`
	sqlUserWithCredentials = `select 1 from usr where login = $1 and password = $2`
	sqlDeleteUser          = `delete from usr where login = $1`

	sqlListHas          = `select 1 from user_list_contains where list_id = $1 and list_member = $2`
	sqlInsertListMember = `insert into user_list_contains (list_id, list_member) values ($1, $2)`
	sqlDeleteListMember = `delete from user_list_contains where list_id = $1 and list_member = $2`
	sqlListMembers      = `select list_member from user_list_contains where list_id = $1 order by member_seq`
	sqlClearList        = `delete from user_list_contains where list_id = $1`
	sqlRemoveFromLists  = `delete from user_list_contains where list_member = $1`

	sqlInsertChat       = `insert into chat (chat_type, init_sender) values ($1, $2)`
	sqlChatByID         = `select chat_id, chat_type, init_sender from chat where chat_id = $1`
	sqlLockChat         = sqlChatByID + ` for update`
	sqlSetChatType      = `update chat set chat_type = $2 where chat_id = $1`
	sqlInsertChatMember = `insert into chat_list (chat_id, member) values ($1, $2)`
	sqlIsChatMember     = `select 1 from chat_list where chat_id = $1 and member = $2`
	sqlChatMembers      = `select member from chat_list where chat_id = $1 order by member`
	sqlChatsOf          = `select chat_id from chat_list where member = $1 order by chat_id`
	sqlChatsInitiatedBy = `select chat_id from chat where init_sender = $1 order by chat_id`
	sqlLeaveAllChats    = `delete from chat_list where member = $1`
	sqlDeleteChatMsgs   = `delete from message where chat_id = $1`
	sqlDeleteChatMember = `delete from chat_list where chat_id = $1`
	sqlDeleteChat       = `delete from chat where chat_id = $1`

	sqlInsertMessage = `insert into message (msg_text, msg_timestamp, sender_login, chat_id) values ($1, $2, $3, $4)`
	sqlMessageByID   = `select msg_id, chat_id, sender_login, msg_text, msg_timestamp from message where msg_id = $1`
	sqlUpdateMessage = `update message set msg_text = $2 where msg_id = $1`
	sqlDeleteMessage = `delete from message where msg_id = $1`
	sqlMessagesOf    = `select msg_id, chat_id, sender_login, msg_text, msg_timestamp
						  from message
						 where chat_id = $1
						 order by msg_timestamp desc, msg_id desc`
	sqlDeleteMessagesBy = `delete from message where sender_login = $1`
)

// queries implements Repository on top of a Querier
type queries struct {
	logger *zap.SugaredLogger
	q      Querier
}

func (s *queries) CreateList(ctx context.Context, kind ListKind) (ListID, error) {
	if err := s.q.Execute(ctx, sqlInsertList, string(kind)); err != nil {
		return 0, err
	}

	id, err := s.q.CurrentSequenceValue(ctx, listSequence)
	if err != nil {
		return 0, err
	}

	s.logger.Debugf("Created %s list with id %d", kind, id)

	return ListID(id), nil
}

func (s *queries) DeleteList(ctx context.Context, id ListID) error {
	return s.q.Execute(ctx, sqlDeleteList, int64(id))
}

func (s *queries) CreateUser(ctx context.Context, u User) error {
	s.logger.Debugf("Creating user (%s)", u.Login)

	return s.q.Execute(ctx, sqlInsertUser, u.Login, u.Password, u.Phone, u.Status, int64(u.BlockList), int64(u.ContactList))
}

func (s *queries) UserByLogin(ctx context.Context, login string) (User, error) {
	return s.user(ctx, sqlUserByLogin, login)
}

// LockUser reads the user row and holds a row lock on it until the surrounding transaction ends.
// The lock does not conflict with the key share locks taken by foreign key checks,
// so inserts referencing the user from other transactions are not blocked.
func (s *queries) LockUser(ctx context.Context, login string) (User, error) {
	return s.user(ctx, sqlLockUser, login)
}

// LockUserForDelete is LockUser with the strength needed to delete the row
func (s *queries) LockUserForDelete(ctx context.Context, login string) (User, error) {
	return s.user(ctx, sqlLockUserForDelete, login)
}

func (s *queries) user(ctx context.Context, sql, login string) (User, error) {
	rows, err := s.q.QueryRows(ctx, sql, login)
	if err != nil {
		return User{}, err
	}

	if len(rows) == 0 {
		return User{}, ErrNotFound
	}

	return userFromRow(rows[0])
}

func (s *queries) UserWithCredentials(ctx context.Context, login, password string) (bool, error) {
	n, err := s.q.QueryCount(ctx, sqlUserWithCredentials, login, password)
	return n > 0, err
}

func (s *queries) DeleteUser(ctx context.Context, login string) error {
	s.logger.Debugf("Deleting user (%s)", login)

	return s.q.Execute(ctx, sqlDeleteUser, login)
}

func (s *queries) ListHas(ctx context.Context, list ListID, member string) (bool, error) {
	n, err := s.q.QueryCount(ctx, sqlListHas, int64(list), member)
	return n > 0, err
}

func (s *queries) AddListMember(ctx context.Context, list ListID, member string) error {
	s.logger.Debugf("Adding (%s) to list (id: %d)", member, list)

	return s.q.Execute(ctx, sqlInsertListMember, int64(list), member)
}

func (s *queries) RemoveListMember(ctx context.Context, list ListID, member string) error {
	s.logger.Debugf("Removing (%s) from list (id: %d)", member, list)

	return s.q.Execute(ctx, sqlDeleteListMember, int64(list), member)
}

func (s *queries) ListMembers(ctx context.Context, list ListID) ([]string, error) {
	rows, err := s.q.QueryRows(ctx, sqlListMembers, int64(list))
	if err != nil {
		return nil, err
	}

	return stringColumn(rows)
}

func (s *queries) ClearList(ctx context.Context, list ListID) error {
	return s.q.Execute(ctx, sqlClearList, int64(list))
}

func (s *queries) RemoveFromAllLists(ctx context.Context, member string) error {
	return s.q.Execute(ctx, sqlRemoveFromLists, member)
}

func (s *queries) CreateChat(ctx context.Context, initiator string) (ChatID, error) {
	s.logger.Debugf("Creating chat initiated by (%s)", initiator)

	if err := s.q.Execute(ctx, sqlInsertChat, string(PrivateChat), initiator); err != nil {
		return 0, err
	}

	id, err := s.q.CurrentSequenceValue(ctx, chatSequence)
	if err != nil {
		return 0, err
	}

	s.logger.Debugf("Created chat with id %d", id)

	return ChatID(id), nil
}

func (s *queries) ChatByID(ctx context.Context, id ChatID) (Chat, error) {
	return s.chat(ctx, sqlChatByID, id)
}

// LockChat reads the chat row and holds a row lock on it until the surrounding transaction ends
func (s *queries) LockChat(ctx context.Context, id ChatID) (Chat, error) {
	return s.chat(ctx, sqlLockChat, id)
}

func (s *queries) chat(ctx context.Context, sql string, id ChatID) (Chat, error) {
	rows, err := s.q.QueryRows(ctx, sql, int64(id))
	if err != nil {
		return Chat{}, err
	}

	if len(rows) == 0 {
		return Chat{}, ErrNotFound
	}

	return chatFromRow(rows[0])
}

func (s *queries) SetChatType(ctx context.Context, id ChatID, t ChatType) error {
	s.logger.Debugf("Setting type of chat (id: %d) to %s", id, t)

	return s.q.Execute(ctx, sqlSetChatType, int64(id), string(t))
}

func (s *queries) AddChatMember(ctx context.Context, id ChatID, member string) error {
	s.logger.Debugf("Adding (%s) to chat (id: %d)", member, id)

	return s.q.Execute(ctx, sqlInsertChatMember, int64(id), member)
}

func (s *queries) IsChatMember(ctx context.Context, id ChatID, member string) (bool, error) {
	n, err := s.q.QueryCount(ctx, sqlIsChatMember, int64(id), member)
	return n > 0, err
}

func (s *queries) CountChatMembers(ctx context.Context, id ChatID) (int, error) {
	return s.q.QueryCount(ctx, sqlChatMembers, int64(id))
}

func (s *queries) ChatMembers(ctx context.Context, id ChatID) ([]string, error) {
	rows, err := s.q.QueryRows(ctx, sqlChatMembers, int64(id))
	if err != nil {
		return nil, err
	}

	return stringColumn(rows)
}

func (s *queries) ChatsOf(ctx context.Context, member string) ([]ChatID, error) {
	return s.chatIDs(ctx, sqlChatsOf, member)
}

func (s *queries) ChatsInitiatedBy(ctx context.Context, initiator string) ([]ChatID, error) {
	return s.chatIDs(ctx, sqlChatsInitiatedBy, initiator)
}

func (s *queries) chatIDs(ctx context.Context, sql, login string) ([]ChatID, error) {
	rows, err := s.q.QueryRows(ctx, sql, login)
	if err != nil {
		return nil, err
	}

	ids := make([]ChatID, 0, len(rows))
	for _, row := range rows {
		id, err := int64Value(row[0])
		if err != nil {
			return nil, err
		}
		ids = append(ids, ChatID(id))
	}

	return ids, nil
}

func (s *queries) LeaveAllChats(ctx context.Context, member string) error {
	return s.q.Execute(ctx, sqlLeaveAllChats, member)
}

func (s *queries) DeleteChatMessages(ctx context.Context, id ChatID) error {
	return s.q.Execute(ctx, sqlDeleteChatMsgs, int64(id))
}

func (s *queries) DeleteChatMembers(ctx context.Context, id ChatID) error {
	return s.q.Execute(ctx, sqlDeleteChatMember, int64(id))
}

func (s *queries) DeleteChat(ctx context.Context, id ChatID) error {
	s.logger.Debugf("Deleting chat (id: %d)", id)

	return s.q.Execute(ctx, sqlDeleteChat, int64(id))
}

func (s *queries) CreateMessage(ctx context.Context, m Message) (MessageID, error) {
	s.logger.Debugf("Creating message from user (%s) in chat (id: %d)", m.Sender, m.Chat)

	err := s.q.Execute(ctx, sqlInsertMessage, m.Text, m.Timestamp, m.Sender, int64(m.Chat))
	if err != nil {
		return 0, err
	}

	id, err := s.q.CurrentSequenceValue(ctx, messageSequence)
	if err != nil {
		return 0, err
	}

	return MessageID(id), nil
}

func (s *queries) MessageByID(ctx context.Context, id MessageID) (Message, error) {
	rows, err := s.q.QueryRows(ctx, sqlMessageByID, int64(id))
	if err != nil {
		return Message{}, err
	}

	if len(rows) == 0 {
		return Message{}, ErrNotFound
	}

	return messageFromRow(rows[0])
}

func (s *queries) UpdateMessageText(ctx context.Context, id MessageID, text string) error {
	return s.q.Execute(ctx, sqlUpdateMessage, int64(id), text)
}

func (s *queries) DeleteMessage(ctx context.Context, id MessageID) error {
	s.logger.Debugf("Deleting message (id: %d)", id)

	return s.q.Execute(ctx, sqlDeleteMessage, int64(id))
}

// MessagesOf returns all chat messages sorted by timestamp from latest to earliest
func (s *queries) MessagesOf(ctx context.Context, chat ChatID) ([]Message, error) {
	s.logger.Debugf("Retrieving messages for chat (id: %d)", chat)

	rows, err := s.q.QueryRows(ctx, sqlMessagesOf, int64(chat))
	if err != nil {
		return nil, err
	}

	messages := make([]Message, 0, len(rows))
	for _, row := range rows {
		m, err := messageFromRow(row)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	s.logger.Debugf("Retrieved %d messages", len(messages))

	return messages, nil
}

func (s *queries) DeleteMessagesBy(ctx context.Context, sender string) error {
	return s.q.Execute(ctx, sqlDeleteMessagesBy, sender)
}

var errShortRow = errors.New("row has fewer columns than expected")

func userFromRow(row Row) (User, error) {
	if len(row) < 6 {
		return User{}, errShortRow
	}

	var (
		u   User
		err error
	)
	if u.Login, err = stringValue(row[0]); err != nil {
		return User{}, err
	}
	if u.Password, err = stringValue(row[1]); err != nil {
		return User{}, err
	}
	if u.Phone, err = stringValue(row[2]); err != nil {
		return User{}, err
	}
	if u.Status, err = stringValue(row[3]); err != nil {
		return User{}, err
	}

	block, err := int64Value(row[4])
	if err != nil {
		return User{}, err
	}
	contact, err := int64Value(row[5])
	if err != nil {
		return User{}, err
	}
	u.BlockList, u.ContactList = ListID(block), ListID(contact)

	return u, nil
}

func chatFromRow(row Row) (Chat, error) {
	if len(row) < 3 {
		return Chat{}, errShortRow
	}

	id, err := int64Value(row[0])
	if err != nil {
		return Chat{}, err
	}
	chatType, err := stringValue(row[1])
	if err != nil {
		return Chat{}, err
	}
	initiator, err := stringValue(row[2])
	if err != nil {
		return Chat{}, err
	}

	return Chat{ID: ChatID(id), Type: ChatType(chatType), Initiator: initiator}, nil
}

func messageFromRow(row Row) (Message, error) {
	if len(row) < 5 {
		return Message{}, errShortRow
	}

	id, err := int64Value(row[0])
	if err != nil {
		return Message{}, err
	}
	chat, err := int64Value(row[1])
	if err != nil {
		return Message{}, err
	}
	sender, err := stringValue(row[2])
	if err != nil {
		return Message{}, err
	}
	text, err := stringValue(row[3])
	if err != nil {
		return Message{}, err
	}
	ts, err := timeValue(row[4])
	if err != nil {
		return Message{}, err
	}

	return Message{ID: MessageID(id), Chat: ChatID(chat), Sender: sender, Text: text, Timestamp: ts}, nil
}

func stringColumn(rows []Row) ([]string, error) {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		s, err := stringValue(row[0])
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

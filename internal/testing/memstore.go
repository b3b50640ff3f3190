package testing

import (
	"context"
	"fmt"
	"messenger/internal/storage"
	"sort"
	"sync"
)

// MemStore is an in-memory backend with the same observable behaviour as storage.Store:
// typed lookups return storage.ErrNotFound, duplicate keys return storage.ErrUniqueViolation,
// and rows that are still referenced cannot be deleted (storage.ErrForeignKeyViolation).
// WithinTx serialises transactions and restores a snapshot when fn fails.
type MemStore struct {
	*memRepo
}

type memState struct {
	mu      sync.Mutex
	data    *memData
	failure error
	failOn  map[string]error
}

type listRow struct {
	list   storage.ListID
	member string
}

type chatRow struct {
	chat   storage.ChatID
	member string
}

type memData struct {
	seq      map[string]int64
	lists    map[storage.ListID]storage.ListKind
	users    map[string]storage.User
	listRows []listRow
	chats    map[storage.ChatID]storage.Chat
	chatRows []chatRow
	messages map[storage.MessageID]storage.Message
}

func newMemData() *memData {
	return &memData{
		seq:      map[string]int64{},
		lists:    map[storage.ListID]storage.ListKind{},
		users:    map[string]storage.User{},
		chats:    map[storage.ChatID]storage.Chat{},
		messages: map[storage.MessageID]storage.Message{},
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	for k, v := range d.seq {
		c.seq[k] = v
	}
	for k, v := range d.lists {
		c.lists[k] = v
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.chats {
		c.chats[k] = v
	}
	for k, v := range d.messages {
		c.messages[k] = v
	}
	c.listRows = append([]listRow(nil), d.listRows...)
	c.chatRows = append([]chatRow(nil), d.chatRows...)
	return c
}

func (d *memData) next(sequence string) int64 {
	d.seq[sequence]++
	return d.seq[sequence]
}

// NewMemStore returns an empty MemStore
func NewMemStore() *MemStore {
	return &MemStore{memRepo: &memRepo{st: &memState{data: newMemData(), failOn: map[string]error{}}}}
}

// WithinTx runs fn inside an exclusive transaction; all changes made by fn are discarded when it fails
func (s *MemStore) WithinTx(_ context.Context, fn func(storage.Repository) error) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	if s.st.failure != nil {
		return s.st.failure
	}

	snapshot := s.st.data.clone()
	if err := fn(&memRepo{st: s.st, inTx: true}); err != nil {
		s.st.data = snapshot
		return err
	}

	return nil
}

// FailWith makes every following call return err; nil restores normal operation
func (s *MemStore) FailWith(err error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.failure = err
}

// FailOn makes every following call of the named Repository method return err
func (s *MemStore) FailOn(method string, err error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.failOn[method] = err
}

type memRepo struct {
	st   *memState
	inTx bool
}

func (r *memRepo) begin(method string) (func(), error) {
	unlock := func() {}
	if !r.inTx {
		r.st.mu.Lock()
		unlock = r.st.mu.Unlock
	}

	if r.st.failure != nil {
		unlock()
		return nil, r.st.failure
	}
	if err, ok := r.st.failOn[method]; ok {
		unlock()
		return nil, err
	}

	return unlock, nil
}

func fkError(constraint string) error {
	return fmt.Errorf("%w: %s", storage.ErrForeignKeyViolation, constraint)
}

func uniqueError(constraint string) error {
	return fmt.Errorf("%w: %s", storage.ErrUniqueViolation, constraint)
}

func (r *memRepo) CreateList(_ context.Context, kind storage.ListKind) (storage.ListID, error) {
	unlock, err := r.begin("CreateList")
	if err != nil {
		return 0, err
	}
	defer unlock()

	id := storage.ListID(r.st.data.next("user_list_list_id_seq"))
	r.st.data.lists[id] = kind
	return id, nil
}

func (r *memRepo) DeleteList(_ context.Context, id storage.ListID) error {
	unlock, err := r.begin("DeleteList")
	if err != nil {
		return err
	}
	defer unlock()

	d := r.st.data
	for _, u := range d.users {
		if u.BlockList == id || u.ContactList == id {
			return fkError("usr_list_fkey")
		}
	}
	for _, row := range d.listRows {
		if row.list == id {
			return fkError("user_list_contains_list_id_fkey")
		}
	}
	delete(d.lists, id)
	return nil
}

func (r *memRepo) CreateUser(_ context.Context, u storage.User) error {
	unlock, err := r.begin("CreateUser")
	if err != nil {
		return err
	}
	defer unlock()

	d := r.st.data
	if _, ok := d.users[u.Login]; ok {
		return uniqueError("usr_pkey")
	}
	if _, ok := d.lists[u.BlockList]; !ok {
		return fkError("usr_block_list_fkey")
	}
	if _, ok := d.lists[u.ContactList]; !ok {
		return fkError("usr_contact_list_fkey")
	}
	d.users[u.Login] = u
	return nil
}

func (r *memRepo) UserByLogin(_ context.Context, login string) (storage.User, error) {
	unlock, err := r.begin("UserByLogin")
	if err != nil {
		return storage.User{}, err
	}
	defer unlock()

	u, ok := r.st.data.users[login]
	if !ok {
		return storage.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (r *memRepo) LockUser(ctx context.Context, login string) (storage.User, error) {
	unlock, err := r.begin("LockUser")
	if err != nil {
		return storage.User{}, err
	}
	unlock()

	// transactions are already exclusive
	return r.UserByLogin(ctx, login)
}

func (r *memRepo) LockUserForDelete(ctx context.Context, login string) (storage.User, error) {
	unlock, err := r.begin("LockUserForDelete")
	if err != nil {
		return storage.User{}, err
	}
	unlock()

	return r.UserByLogin(ctx, login)
}

func (r *memRepo) UserWithCredentials(_ context.Context, login, password string) (bool, error) {
	unlock, err := r.begin("UserWithCredentials")
	if err != nil {
		return false, err
	}
	defer unlock()

	u, ok := r.st.data.users[login]
	return ok && u.Password == password, nil
}

func (r *memRepo) DeleteUser(_ context.Context, login string) error {
	unlock, err := r.begin("DeleteUser")
	if err != nil {
		return err
	}
	defer unlock()

	d := r.st.data
	for _, row := range d.listRows {
		if row.member == login {
			return fkError("user_list_contains_list_member_fkey")
		}
	}
	for _, row := range d.chatRows {
		if row.member == login {
			return fkError("chat_list_member_fkey")
		}
	}
	for _, c := range d.chats {
		if c.Initiator == login {
			return fkError("chat_init_sender_fkey")
		}
	}
	for _, m := range d.messages {
		if m.Sender == login {
			return fkError("message_sender_login_fkey")
		}
	}
	delete(d.users, login)
	return nil
}

func (r *memRepo) ListHas(_ context.Context, list storage.ListID, member string) (bool, error) {
	unlock, err := r.begin("ListHas")
	if err != nil {
		return false, err
	}
	defer unlock()

	return r.st.data.listIndex(list, member) >= 0, nil
}

func (d *memData) listIndex(list storage.ListID, member string) int {
	for i, row := range d.listRows {
		if row.list == list && row.member == member {
			return i
		}
	}
	return -1
}

func (r *memRepo) AddListMember(_ context.Context, list storage.ListID, member string) error {
	unlock, err := r.begin("AddListMember")
	if err != nil {
		return err
	}
	defer unlock()

	d := r.st.data
	if _, ok := d.lists[list]; !ok {
		return fkError("user_list_contains_list_id_fkey")
	}
	if _, ok := d.users[member]; !ok {
		return fkError("user_list_contains_list_member_fkey")
	}
	if d.listIndex(list, member) >= 0 {
		return uniqueError("user_list_contains_pkey")
	}
	d.listRows = append(d.listRows, listRow{list: list, member: member})
	return nil
}

func (r *memRepo) RemoveListMember(_ context.Context, list storage.ListID, member string) error {
	unlock, err := r.begin("RemoveListMember")
	if err != nil {
		return err
	}
	defer unlock()

	d := r.st.data
	if i := d.listIndex(list, member); i >= 0 {
		d.listRows = append(d.listRows[:i], d.listRows[i+1:]...)
	}
	return nil
}

func (r *memRepo) ListMembers(_ context.Context, list storage.ListID) ([]string, error) {
	unlock, err := r.begin("ListMembers")
	if err != nil {
		return nil, err
	}
	defer unlock()

	members := []string{}
	for _, row := range r.st.data.listRows {
		if row.list == list {
			members = append(members, row.member)
		}
	}
	return members, nil
}

func (r *memRepo) ClearList(_ context.Context, list storage.ListID) error {
	unlock, err := r.begin("ClearList")
	if err != nil {
		return err
	}
	defer unlock()

	d := r.st.data
	kept := d.listRows[:0]
	for _, row := range d.listRows {
		if row.list != list {
			kept = append(kept, row)
		}
	}
	d.listRows = kept
	return nil
}

func (r *memRepo) RemoveFromAllLists(_ context.Context, member string) error {
	unlock, err := r.begin("RemoveFromAllLists")
	if err != nil {
		return err
	}
	defer unlock()

	d := r.st.data
	kept := d.listRows[:0]
	for _, row := range d.listRows {
		if row.member != member {
			kept = append(kept, row)
		}
	}
	d.listRows = kept
	return nil
}

func (r *memRepo) CreateChat(_ context.Context, initiator string) (storage.ChatID, error) {
	unlock, err := r.begin("CreateChat")
	if err != nil {
		return 0, err
	}
	defer unlock()

	d := r.st.data
	if _, ok := d.users[initiator]; !ok {
		return 0, fkError("chat_init_sender_fkey")
	}
	id := storage.ChatID(d.next("chat_chat_id_seq"))
	d.chats[id] = storage.Chat{ID: id, Type: storage.PrivateChat, Initiator: initiator}
	return id, nil
}

func (r *memRepo) ChatByID(_ context.Context, id storage.ChatID) (storage.Chat, error) {
	unlock, err := r.begin("ChatByID")
	if err != nil {
		return storage.Chat{}, err
	}
	defer unlock()

	c, ok := r.st.data.chats[id]
	if !ok {
		return storage.Chat{}, storage.ErrNotFound
	}
	return c, nil
}

func (r *memRepo) LockChat(ctx context.Context, id storage.ChatID) (storage.Chat, error) {
	unlock, err := r.begin("LockChat")
	if err != nil {
		return storage.Chat{}, err
	}
	unlock()

	return r.ChatByID(ctx, id)
}

func (r *memRepo) SetChatType(_ context.Context, id storage.ChatID, t storage.ChatType) error {
	unlock, err := r.begin("SetChatType")
	if err != nil {
		return err
	}
	defer unlock()

	c, ok := r.st.data.chats[id]
	if ok {
		c.Type = t
		r.st.data.chats[id] = c
	}
	return nil
}

func (d *memData) chatIndex(id storage.ChatID, member string) int {
	for i, row := range d.chatRows {
		if row.chat == id && row.member == member {
			return i
		}
	}
	return -1
}

func (r *memRepo) AddChatMember(_ context.Context, id storage.ChatID, member string) error {
	unlock, err := r.begin("AddChatMember")
	if err != nil {
		return err
	}
	defer unlock()

	d := r.st.data
	if _, ok := d.chats[id]; !ok {
		return fkError("chat_list_chat_id_fkey")
	}
	if _, ok := d.users[member]; !ok {
		return fkError("chat_list_member_fkey")
	}
	if d.chatIndex(id, member) >= 0 {
		return uniqueError("chat_list_pkey")
	}
	d.chatRows = append(d.chatRows, chatRow{chat: id, member: member})
	return nil
}

func (r *memRepo) IsChatMember(_ context.Context, id storage.ChatID, member string) (bool, error) {
	unlock, err := r.begin("IsChatMember")
	if err != nil {
		return false, err
	}
	defer unlock()

	return r.st.data.chatIndex(id, member) >= 0, nil
}

func (r *memRepo) CountChatMembers(ctx context.Context, id storage.ChatID) (int, error) {
	unlock, err := r.begin("CountChatMembers")
	if err != nil {
		return 0, err
	}
	unlock()

	members, err := r.ChatMembers(ctx, id)
	return len(members), err
}

func (r *memRepo) ChatMembers(_ context.Context, id storage.ChatID) ([]string, error) {
	unlock, err := r.begin("ChatMembers")
	if err != nil {
		return nil, err
	}
	defer unlock()

	members := []string{}
	for _, row := range r.st.data.chatRows {
		if row.chat == id {
			members = append(members, row.member)
		}
	}
	sort.Strings(members)
	return members, nil
}

func (r *memRepo) ChatsOf(_ context.Context, member string) ([]storage.ChatID, error) {
	unlock, err := r.begin("ChatsOf")
	if err != nil {
		return nil, err
	}
	defer unlock()

	ids := []storage.ChatID{}
	for _, row := range r.st.data.chatRows {
		if row.member == member {
			ids = append(ids, row.chat)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *memRepo) ChatsInitiatedBy(_ context.Context, initiator string) ([]storage.ChatID, error) {
	unlock, err := r.begin("ChatsInitiatedBy")
	if err != nil {
		return nil, err
	}
	defer unlock()

	ids := []storage.ChatID{}
	for id, c := range r.st.data.chats {
		if c.Initiator == initiator {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *memRepo) LeaveAllChats(_ context.Context, member string) error {
	unlock, err := r.begin("LeaveAllChats")
	if err != nil {
		return err
	}
	defer unlock()

	d := r.st.data
	kept := d.chatRows[:0]
	for _, row := range d.chatRows {
		if row.member != member {
			kept = append(kept, row)
		}
	}
	d.chatRows = kept
	return nil
}

func (r *memRepo) DeleteChatMessages(_ context.Context, id storage.ChatID) error {
	unlock, err := r.begin("DeleteChatMessages")
	if err != nil {
		return err
	}
	defer unlock()

	for msgID, m := range r.st.data.messages {
		if m.Chat == id {
			delete(r.st.data.messages, msgID)
		}
	}
	return nil
}

func (r *memRepo) DeleteChatMembers(_ context.Context, id storage.ChatID) error {
	unlock, err := r.begin("DeleteChatMembers")
	if err != nil {
		return err
	}
	defer unlock()

	d := r.st.data
	kept := d.chatRows[:0]
	for _, row := range d.chatRows {
		if row.chat != id {
			kept = append(kept, row)
		}
	}
	d.chatRows = kept
	return nil
}

func (r *memRepo) DeleteChat(_ context.Context, id storage.ChatID) error {
	unlock, err := r.begin("DeleteChat")
	if err != nil {
		return err
	}
	defer unlock()

	d := r.st.data
	for _, row := range d.chatRows {
		if row.chat == id {
			return fkError("chat_list_chat_id_fkey")
		}
	}
	for _, m := range d.messages {
		if m.Chat == id {
			return fkError("message_chat_id_fkey")
		}
	}
	delete(d.chats, id)
	return nil
}

func (r *memRepo) CreateMessage(_ context.Context, m storage.Message) (storage.MessageID, error) {
	unlock, err := r.begin("CreateMessage")
	if err != nil {
		return 0, err
	}
	defer unlock()

	d := r.st.data
	if _, ok := d.chats[m.Chat]; !ok {
		return 0, fkError("message_chat_id_fkey")
	}
	if _, ok := d.users[m.Sender]; !ok {
		return 0, fkError("message_sender_login_fkey")
	}
	m.ID = storage.MessageID(d.next("message_msg_id_seq"))
	m.Timestamp = m.Timestamp.UTC()
	d.messages[m.ID] = m
	return m.ID, nil
}

func (r *memRepo) MessageByID(_ context.Context, id storage.MessageID) (storage.Message, error) {
	unlock, err := r.begin("MessageByID")
	if err != nil {
		return storage.Message{}, err
	}
	defer unlock()

	m, ok := r.st.data.messages[id]
	if !ok {
		return storage.Message{}, storage.ErrNotFound
	}
	return m, nil
}

func (r *memRepo) UpdateMessageText(_ context.Context, id storage.MessageID, text string) error {
	unlock, err := r.begin("UpdateMessageText")
	if err != nil {
		return err
	}
	defer unlock()

	if m, ok := r.st.data.messages[id]; ok {
		m.Text = text
		r.st.data.messages[id] = m
	}
	return nil
}

func (r *memRepo) DeleteMessage(_ context.Context, id storage.MessageID) error {
	unlock, err := r.begin("DeleteMessage")
	if err != nil {
		return err
	}
	defer unlock()

	delete(r.st.data.messages, id)
	return nil
}

func (r *memRepo) MessagesOf(_ context.Context, chat storage.ChatID) ([]storage.Message, error) {
	unlock, err := r.begin("MessagesOf")
	if err != nil {
		return nil, err
	}
	defer unlock()

	messages := []storage.Message{}
	for _, m := range r.st.data.messages {
		if m.Chat == chat {
			messages = append(messages, m)
		}
	}
	sort.Slice(messages, func(i, j int) bool {
		if messages[i].Timestamp.Equal(messages[j].Timestamp) {
			return messages[i].ID > messages[j].ID
		}
		return messages[i].Timestamp.After(messages[j].Timestamp)
	})
	return messages, nil
}

func (r *memRepo) DeleteMessagesBy(_ context.Context, sender string) error {
	unlock, err := r.begin("DeleteMessagesBy")
	if err != nil {
		return err
	}
	defer unlock()

	for id, m := range r.st.data.messages {
		if m.Sender == sender {
			delete(r.st.data.messages, id)
		}
	}
	return nil
}

var _ storage.Repository = (*MemStore)(nil)

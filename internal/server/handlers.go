package server

import (
	"encoding/json"
	"errors"
	"io"
	"messenger/internal/messenger"
	"messenger/internal/storage"
	"net/http"

	"github.com/valyala/fastjson"
	"go.uber.org/zap"
)

type parsers struct {
	usersPool         fastjson.ParserPool
	relationshipsPool fastjson.ParserPool
	chatsPool         fastjson.ParserPool
	messagesPool      fastjson.ParserPool
}

type handler struct {
	logger        *zap.SugaredLogger
	accounts      *messenger.Accounts
	relationships *messenger.Relationships
	chats         *messenger.Chats
	messages      *messenger.Messages
	parsers       parsers
}

type loginPayload struct {
	Login string `json:"login"`
}

type idPayload struct {
	ID int64 `json:"id"`
}

type empty struct{}

// fields reads request fields from a parsed body and keeps the first validation failure
type fields struct {
	v   *fastjson.Value
	msg string
}

func readFields(w http.ResponseWriter, r *http.Request, p *fastjson.Parser) (*fields, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Can not read request body", http.StatusBadRequest)
		return nil, false
	}

	v, err := p.ParseBytes(body)
	if err != nil {
		http.Error(w, "Malformed JSON", http.StatusBadRequest)
		return nil, false
	}

	return &fields{v: v}, true
}

func (f *fields) fail(msg string) {
	if f.msg == "" {
		f.msg = msg
	}
}

func (f *fields) str(name string) string {
	if f.msg != "" {
		return ""
	}

	if !f.v.Exists(name) {
		f.fail("Missing Field \"" + name + "\"")
		return ""
	}

	value := f.v.Get(name)
	if value.Type() != fastjson.TypeString {
		f.fail("Field \"" + name + "\" must be a string")
		return ""
	}

	s := string(value.GetStringBytes())
	if len(s) == 0 {
		f.fail("Field \"" + name + "\" must have non-zero length")
		return ""
	}

	return s
}

func (f *fields) id(name string) int64 {
	if f.msg != "" {
		return 0
	}

	if !f.v.Exists(name) {
		f.fail("Missing Field \"" + name + "\"")
		return 0
	}

	id, err := f.v.Get(name).Int64()
	if err != nil {
		f.fail("Field \"" + name + "\" must be a 64-bit integer value")
		return 0
	}

	if id < 1 {
		f.fail("Field \"" + name + "\" must be a valid id greater than zero")
		return 0
	}

	return id
}

// offset reads an optional non-negative integer, absent means zero
func (f *fields) offset(name string) int {
	if f.msg != "" || !f.v.Exists(name) {
		return 0
	}

	n, err := f.v.Get(name).Int()
	if err != nil {
		f.fail("Field \"" + name + "\" must be an integer value")
		return 0
	}

	if n < 0 {
		f.fail("Field \"" + name + "\" must not be negative")
		return 0
	}

	return n
}

// invalid writes the first validation failure if there is one
func (f *fields) invalid(w http.ResponseWriter) bool {
	if f.msg == "" {
		return false
	}
	http.Error(w, f.msg, http.StatusBadRequest)
	return true
}

// statusOf maps messenger errors to HTTP status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, messenger.ErrUnknownUser),
		errors.Is(err, messenger.ErrUnknownChat),
		errors.Is(err, messenger.ErrUnknownMessage):
		return http.StatusNotFound
	case errors.Is(err, messenger.ErrPermission),
		errors.Is(err, messenger.ErrNotAMember):
		return http.StatusForbidden
	case errors.Is(err, messenger.ErrAlreadyContact),
		errors.Is(err, messenger.ErrAlreadyBlocked),
		errors.Is(err, messenger.ErrDuplicateMember),
		errors.Is(err, messenger.ErrLoginTaken),
		errors.Is(err, messenger.ErrOwnsChats):
		return http.StatusConflict
	case errors.Is(err, messenger.ErrSelfReference),
		errors.Is(err, messenger.ErrNotInList),
		errors.Is(err, messenger.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, messenger.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) fail(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	http.Error(w, err.Error(), status)
}

func (h *handler) respond(w http.ResponseWriter, status int, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Error(err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(payload)
	if err != nil {
		h.logger.Errorf("writing marshaled data to ResponseWriter: %v", err)
	}
}

// createUser handles HTTP requests on "/users/add" endpoint
func (h *handler) createUser(w http.ResponseWriter, r *http.Request) {
	p := h.parsers.usersPool.Get()
	defer h.parsers.usersPool.Put(p)

	f, ok := readFields(w, r, p)
	if !ok {
		return
	}
	req := messenger.RegisterRequest{
		Login:    f.str("login"),
		Password: f.str("password"),
		Phone:    f.str("phone"),
	}
	if f.invalid(w) {
		return
	}

	if err := h.accounts.Register(r.Context(), req); err != nil {
		h.fail(w, err)
		return
	}

	h.respond(w, http.StatusCreated, loginPayload{Login: req.Login})
}

// logIn handles HTTP requests on "/users/login" endpoint
func (h *handler) logIn(w http.ResponseWriter, r *http.Request) {
	p := h.parsers.usersPool.Get()
	defer h.parsers.usersPool.Put(p)

	f, ok := readFields(w, r, p)
	if !ok {
		return
	}
	login, password := f.str("login"), f.str("password")
	if f.invalid(w) {
		return
	}

	if err := h.accounts.LogIn(r.Context(), login, password); err != nil {
		h.fail(w, err)
		return
	}

	h.respond(w, http.StatusOK, loginPayload{Login: login})
}

// deleteUser handles HTTP requests on "/users/delete" endpoint
func (h *handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	p := h.parsers.usersPool.Get()
	defer h.parsers.usersPool.Put(p)

	f, ok := readFields(w, r, p)
	if !ok {
		return
	}
	login := f.str("login")
	if f.invalid(w) {
		return
	}

	if err := h.accounts.DeleteAccount(r.Context(), login); err != nil {
		h.fail(w, err)
		return
	}

	h.respond(w, http.StatusOK, empty{})
}

// relationship reads owner and target and applies op to them
func (h *handler) relationship(w http.ResponseWriter, r *http.Request, status int, op func(owner, target string) error) {
	p := h.parsers.relationshipsPool.Get()
	defer h.parsers.relationshipsPool.Put(p)

	f, ok := readFields(w, r, p)
	if !ok {
		return
	}
	owner, target := f.str("owner"), f.str("target")
	if f.invalid(w) {
		return
	}

	if err := op(owner, target); err != nil {
		h.fail(w, err)
		return
	}

	h.respond(w, status, empty{})
}

// listing reads owner and responds with the logins returned by op
func (h *handler) listing(w http.ResponseWriter, r *http.Request, op func(owner string) ([]string, error)) {
	p := h.parsers.relationshipsPool.Get()
	defer h.parsers.relationshipsPool.Put(p)

	f, ok := readFields(w, r, p)
	if !ok {
		return
	}
	owner := f.str("owner")
	if f.invalid(w) {
		return
	}

	logins, err := op(owner)
	if err != nil {
		h.fail(w, err)
		return
	}

	h.respond(w, http.StatusOK, logins)
}

// addContact handles HTTP requests on "/contacts/add" endpoint
func (h *handler) addContact(w http.ResponseWriter, r *http.Request) {
	h.relationship(w, r, http.StatusCreated, func(owner, target string) error {
		return h.relationships.AddContact(r.Context(), owner, target)
	})
}

// removeContact handles HTTP requests on "/contacts/delete" endpoint
func (h *handler) removeContact(w http.ResponseWriter, r *http.Request) {
	h.relationship(w, r, http.StatusOK, func(owner, target string) error {
		return h.relationships.RemoveContact(r.Context(), owner, target)
	})
}

// contacts handles HTTP requests on "/contacts/get" endpoint
func (h *handler) contacts(w http.ResponseWriter, r *http.Request) {
	h.listing(w, r, func(owner string) ([]string, error) {
		return h.relationships.ListContacts(r.Context(), owner)
	})
}

// addBlocked handles HTTP requests on "/blocked/add" endpoint
func (h *handler) addBlocked(w http.ResponseWriter, r *http.Request) {
	h.relationship(w, r, http.StatusCreated, func(owner, target string) error {
		return h.relationships.AddBlocked(r.Context(), owner, target)
	})
}

// removeBlocked handles HTTP requests on "/blocked/delete" endpoint
func (h *handler) removeBlocked(w http.ResponseWriter, r *http.Request) {
	h.relationship(w, r, http.StatusOK, func(owner, target string) error {
		return h.relationships.RemoveBlocked(r.Context(), owner, target)
	})
}

// blocked handles HTTP requests on "/blocked/get" endpoint
func (h *handler) blocked(w http.ResponseWriter, r *http.Request) {
	h.listing(w, r, func(owner string) ([]string, error) {
		return h.relationships.ListBlocked(r.Context(), owner)
	})
}

// createChat handles HTTP requests on "/chats/add" endpoint
func (h *handler) createChat(w http.ResponseWriter, r *http.Request) {
	p := h.parsers.chatsPool.Get()
	defer h.parsers.chatsPool.Put(p)

	f, ok := readFields(w, r, p)
	if !ok {
		return
	}
	initiator := f.str("initiator")
	if f.invalid(w) {
		return
	}

	id, err := h.chats.CreateChat(r.Context(), initiator)
	if err != nil {
		h.fail(w, err)
		return
	}

	h.respond(w, http.StatusCreated, idPayload{ID: int64(id)})
}

// addChatMember handles HTTP requests on "/chats/members/add" endpoint
func (h *handler) addChatMember(w http.ResponseWriter, r *http.Request) {
	p := h.parsers.chatsPool.Get()
	defer h.parsers.chatsPool.Put(p)

	f, ok := readFields(w, r, p)
	if !ok {
		return
	}
	actor, chat, member := f.str("actor"), f.id("chat"), f.str("member")
	if f.invalid(w) {
		return
	}

	if err := h.chats.AddMember(r.Context(), actor, storage.ChatID(chat), member); err != nil {
		h.fail(w, err)
		return
	}

	h.respond(w, http.StatusCreated, empty{})
}

// deleteChat handles HTTP requests on "/chats/delete" endpoint
func (h *handler) deleteChat(w http.ResponseWriter, r *http.Request) {
	p := h.parsers.chatsPool.Get()
	defer h.parsers.chatsPool.Put(p)

	f, ok := readFields(w, r, p)
	if !ok {
		return
	}
	actor, chat := f.str("actor"), f.id("chat")
	if f.invalid(w) {
		return
	}

	if err := h.chats.DeleteChat(r.Context(), actor, storage.ChatID(chat)); err != nil {
		h.fail(w, err)
		return
	}

	h.respond(w, http.StatusOK, empty{})
}

// chatsByUser handles HTTP requests on "/chats/get" endpoint
func (h *handler) chatsByUser(w http.ResponseWriter, r *http.Request) {
	p := h.parsers.chatsPool.Get()
	defer h.parsers.chatsPool.Put(p)

	f, ok := readFields(w, r, p)
	if !ok {
		return
	}
	user := f.str("user")
	if f.invalid(w) {
		return
	}

	ids, err := h.chats.ListChatsFor(r.Context(), user)
	if err != nil {
		h.fail(w, err)
		return
	}

	h.respond(w, http.StatusOK, ids)
}

// createMessage handles HTTP requests on "/messages/add" endpoint
func (h *handler) createMessage(w http.ResponseWriter, r *http.Request) {
	p := h.parsers.messagesPool.Get()
	defer h.parsers.messagesPool.Put(p)

	f, ok := readFields(w, r, p)
	if !ok {
		return
	}
	sender, chat, text := f.str("sender"), f.id("chat"), f.str("text")
	if f.invalid(w) {
		return
	}

	id, err := h.messages.Post(r.Context(), sender, storage.ChatID(chat), text)
	if err != nil {
		h.fail(w, err)
		return
	}

	h.respond(w, http.StatusCreated, idPayload{ID: int64(id)})
}

// editMessage handles HTTP requests on "/messages/edit" endpoint
func (h *handler) editMessage(w http.ResponseWriter, r *http.Request) {
	p := h.parsers.messagesPool.Get()
	defer h.parsers.messagesPool.Put(p)

	f, ok := readFields(w, r, p)
	if !ok {
		return
	}
	actor, message, text := f.str("actor"), f.id("message"), f.str("text")
	if f.invalid(w) {
		return
	}

	if err := h.messages.Edit(r.Context(), actor, storage.MessageID(message), text); err != nil {
		h.fail(w, err)
		return
	}

	h.respond(w, http.StatusOK, empty{})
}

// deleteMessage handles HTTP requests on "/messages/delete" endpoint
func (h *handler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	p := h.parsers.messagesPool.Get()
	defer h.parsers.messagesPool.Put(p)

	f, ok := readFields(w, r, p)
	if !ok {
		return
	}
	actor, message := f.str("actor"), f.id("message")
	if f.invalid(w) {
		return
	}

	if err := h.messages.Delete(r.Context(), actor, storage.MessageID(message)); err != nil {
		h.fail(w, err)
		return
	}

	h.respond(w, http.StatusOK, empty{})
}

// messagesByChat handles HTTP requests on "/messages/get" endpoint
func (h *handler) messagesByChat(w http.ResponseWriter, r *http.Request) {
	p := h.parsers.messagesPool.Get()
	defer h.parsers.messagesPool.Put(p)

	f, ok := readFields(w, r, p)
	if !ok {
		return
	}
	chat, requester, offset := f.id("chat"), f.str("requester"), f.offset("offset")
	if f.invalid(w) {
		return
	}

	page, err := h.messages.Page(r.Context(), storage.ChatID(chat), requester, offset)
	if err != nil {
		h.fail(w, err)
		return
	}

	h.respond(w, http.StatusOK, page)
}

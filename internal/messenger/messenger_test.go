package messenger

import (
	"context"
	"errors"
	"messenger/internal/messenger/mocks"
	"messenger/internal/storage"
	mytesting "messenger/internal/testing"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

type fixture struct {
	store         *mytesting.MemStore
	accounts      *Accounts
	relationships *Relationships
	chats         *Chats
	messages      *Messages
}

// tickingClock advances a second on every call
func tickingClock(t *testing.T) Clock {
	ctrl := gomock.NewController(t)
	clock := mocks.NewMockClock(ctrl)

	now := time.Date(2020, time.January, 1, 12, 0, 0, 0, time.UTC)
	clock.EXPECT().Now().DoAndReturn(func() time.Time {
		now = now.Add(time.Second)
		return now
	}).AnyTimes()

	return clock
}

func bootstrap(t *testing.T, clock Clock) *fixture {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	if clock == nil {
		clock = tickingClock(t)
	}

	store := mytesting.NewMemStore()
	m := New(logger.Sugar(), store, clock)

	return &fixture{
		store:         store,
		accounts:      m.Accounts,
		relationships: m.Relationships,
		chats:         m.Chats,
		messages:      m.Messages,
	}
}

func (f *fixture) register(t *testing.T, logins ...string) {
	for _, login := range logins {
		err := f.accounts.Register(context.Background(), RegisterRequest{
			Login:    login,
			Password: "secret",
			Phone:    mytesting.RandPhone(),
		})
		require.NoError(t, err)
	}
}

func (f *fixture) newChat(t *testing.T, initiator string, members ...string) storage.ChatID {
	ctx := context.Background()

	id, err := f.chats.CreateChat(ctx, initiator)
	require.NoError(t, err)
	for _, m := range members {
		require.NoError(t, f.chats.AddMember(ctx, initiator, id, m))
	}

	return id
}

func TestWrap(t *testing.T) {
	t.Parallel()

	require.NoError(t, wrap("op", nil))
	require.Equal(t, ErrPermission, wrap("op", ErrPermission))

	cause := errors.New("connection refused")
	err := wrap("op", cause)
	var se *StorageError
	require.True(t, errors.As(err, &se))
	require.Equal(t, "op", se.Op)
	require.True(t, errors.Is(err, cause))
	require.Equal(t, "storage: op: connection refused", err.Error())

	require.Equal(t, err, wrap("outer", err))
}

func TestIsRuleViolation(t *testing.T) {
	t.Parallel()

	require.True(t, IsRuleViolation(ErrUnknownChat))
	require.True(t, IsRuleViolation(&OwnsChatsError{Chats: []storage.ChatID{1}}))
	require.False(t, IsRuleViolation(errors.New("boom")))
	require.False(t, IsRuleViolation(&StorageError{Op: "op", Err: errors.New("boom")}))
}

func TestOwnsChatsError(t *testing.T) {
	t.Parallel()

	err := &OwnsChatsError{Chats: []storage.ChatID{3, 7}}
	require.True(t, errors.Is(err, ErrOwnsChats))
	require.Equal(t, "user is the initiator of existing chats: 3, 7", err.Error())
}

func TestStorageFailure(t *testing.T) {
	t.Parallel()

	f := bootstrap(t, nil)
	f.register(t, "alice", "bob")
	chat := f.newChat(t, "alice", "bob")

	cause := errors.New("connection reset")
	f.store.FailWith(cause)

	checks := map[string]error{}
	checks["add contact"] = f.relationships.AddContact(context.Background(), "alice", "bob")
	_, checks["list contacts"] = f.relationships.ListContacts(context.Background(), "alice")
	_, checks["create chat"] = f.chats.CreateChat(context.Background(), "alice")
	_, checks["list chats"] = f.chats.ListChatsFor(context.Background(), "alice")
	_, checks["post message"] = f.messages.Post(context.Background(), "alice", chat, "hi")
	checks["log in"] = f.accounts.LogIn(context.Background(), "alice", "secret")

	for op, err := range checks {
		var se *StorageError
		require.True(t, errors.As(err, &se), op)
		require.Equal(t, op, se.Op)
		require.True(t, errors.Is(err, cause), op)
		require.False(t, IsRuleViolation(err), op)
	}
}

// skipChats advances the chat sequence by n
func (f *fixture) skipChats(t *testing.T, n int) {
	ctx := context.Background()
	for i := 0; i < n; i++ {
		id, err := f.chats.CreateChat(ctx, "dave")
		require.NoError(t, err)
		require.NoError(t, f.chats.DeleteChat(ctx, "dave", id))
	}
}

func TestPostAfterJoining(t *testing.T) {
	t.Parallel()

	f := bootstrap(t, nil)
	ctx := context.Background()
	f.register(t, "alice", "bob", "dave")
	f.skipChats(t, 6)

	chat := f.newChat(t, "bob")
	require.Equal(t, storage.ChatID(7), chat)
	_, err := f.messages.Post(ctx, "bob", chat, "first")
	require.NoError(t, err)

	_, err = f.messages.Post(ctx, "alice", chat, "hi all")
	require.Equal(t, ErrNotAMember, err)

	require.NoError(t, f.chats.AddMember(ctx, "bob", chat, "alice"))

	id, err := f.messages.Post(ctx, "alice", chat, "hi all")
	require.NoError(t, err)

	history, err := f.messages.History(ctx, chat, "alice")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, id, history[0].ID)
	require.Equal(t, "alice", history[0].Sender)
	require.Equal(t, "hi all", history[0].Text)
}

// Blocking a fellow member does not touch chat membership
func TestBlockingKeepsMembership(t *testing.T) {
	t.Parallel()

	f := bootstrap(t, nil)
	ctx := context.Background()
	f.register(t, "alice", "bob", "carol", "dave")

	chat := f.newChat(t, "alice", "bob", "carol")

	c, err := f.chats.Chat(ctx, chat)
	require.NoError(t, err)
	require.Equal(t, storage.GroupChat, c.Type)
	require.Equal(t, []string{"alice", "bob", "carol"}, c.Members)

	require.NoError(t, f.relationships.AddContact(ctx, "alice", "carol"))
	require.NoError(t, f.relationships.AddBlocked(ctx, "alice", "carol"))

	contacts, err := f.relationships.ListContacts(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, contacts)
	blocked, err := f.relationships.ListBlocked(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, []string{"carol"}, blocked)

	ok, err := f.chats.IsMember(ctx, "carol", chat)
	require.NoError(t, err)
	require.True(t, ok)

	hello, err := f.messages.Post(ctx, "carol", chat, "hello")
	require.NoError(t, err)

	require.Equal(t, ErrPermission, f.messages.Edit(ctx, "bob", hello, "hijacked"))
	require.Equal(t, ErrPermission, f.chats.AddMember(ctx, "bob", chat, "dave"))

	require.NoError(t, f.chats.DeleteChat(ctx, "alice", chat))

	_, err = f.messages.History(ctx, chat, "alice")
	require.Equal(t, ErrNotAMember, err)
	require.Equal(t, ErrUnknownMessage, f.messages.Delete(ctx, "carol", hello))
}

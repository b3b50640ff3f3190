package messenger

import (
	"context"
	"errors"
	"messenger/internal/storage"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	t.Parallel()

	f := bootstrap(t, nil)
	ctx := context.Background()

	req := RegisterRequest{Login: "alice", Password: "secret", Phone: "+7-900-000-00-00"}
	require.NoError(t, f.accounts.Register(ctx, req))

	u, err := f.store.UserByLogin(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "+7-900-000-00-00", u.Phone)
	require.NotEqual(t, u.ContactList, u.BlockList)

	contacts, err := f.relationships.ListContacts(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, contacts)

	require.Equal(t, ErrLoginTaken, f.accounts.Register(ctx, req))
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()

	f := bootstrap(t, nil)
	ctx := context.Background()

	cases := map[string]RegisterRequest{
		"blank login":       {Password: "secret", Phone: "123"},
		"login with space":  {Login: "al ice", Password: "secret", Phone: "123"},
		"long login":        {Login: strings.Repeat("a", 51), Password: "secret", Phone: "123"},
		"blank password":    {Login: "alice", Phone: "123"},
		"blank phone":       {Login: "alice", Password: "secret"},
		"letters in phone":  {Login: "alice", Password: "secret", Phone: "call me"},
		"phone is too long": {Login: "alice", Password: "secret", Phone: strings.Repeat("1", 17)},
	}

	for name, req := range cases {
		err := f.accounts.Register(ctx, req)
		require.True(t, errors.Is(err, ErrInvalidInput), name)
	}

	_, err := f.store.UserByLogin(ctx, "alice")
	require.Equal(t, storage.ErrNotFound, err)
}

func TestLogIn(t *testing.T) {
	t.Parallel()

	f := bootstrap(t, nil)
	ctx := context.Background()
	f.register(t, "alice")

	require.NoError(t, f.accounts.LogIn(ctx, "alice", "secret"))
	require.Equal(t, ErrInvalidCredentials, f.accounts.LogIn(ctx, "alice", "guess"))
	require.Equal(t, ErrInvalidCredentials, f.accounts.LogIn(ctx, "mallory", "secret"))
}

func TestDeleteAccount(t *testing.T) {
	t.Parallel()

	f := bootstrap(t, nil)
	ctx := context.Background()
	f.register(t, "alice", "bob", "carol")

	chat := f.newChat(t, "alice", "bob", "carol")
	posted, err := f.messages.Post(ctx, "bob", chat, "bye")
	require.NoError(t, err)
	kept, err := f.messages.Post(ctx, "carol", chat, "see you")
	require.NoError(t, err)

	require.NoError(t, f.relationships.AddContact(ctx, "alice", "bob"))
	require.NoError(t, f.relationships.AddBlocked(ctx, "carol", "bob"))
	require.NoError(t, f.relationships.AddContact(ctx, "bob", "carol"))

	require.NoError(t, f.accounts.DeleteAccount(ctx, "bob"))

	_, err = f.store.UserByLogin(ctx, "bob")
	require.Equal(t, storage.ErrNotFound, err)
	_, err = f.store.MessageByID(ctx, posted)
	require.Equal(t, storage.ErrNotFound, err)
	_, err = f.store.MessageByID(ctx, kept)
	require.NoError(t, err)

	c, err := f.chats.Chat(ctx, chat)
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "carol"}, c.Members)

	contacts, err := f.relationships.ListContacts(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, contacts)
	blocked, err := f.relationships.ListBlocked(ctx, "carol")
	require.NoError(t, err)
	require.Empty(t, blocked)

	require.Equal(t, ErrUnknownUser, f.accounts.DeleteAccount(ctx, "bob"))
	require.Equal(t, ErrInvalidCredentials, f.accounts.LogIn(ctx, "bob", "secret"))

	// the login can be registered again
	f.register(t, "bob")
}

func TestDeleteAccountOwnsChats(t *testing.T) {
	t.Parallel()

	f := bootstrap(t, nil)
	ctx := context.Background()
	f.register(t, "alice", "bob")
	first := f.newChat(t, "alice", "bob")
	second := f.newChat(t, "alice")

	err := f.accounts.DeleteAccount(ctx, "alice")
	require.True(t, errors.Is(err, ErrOwnsChats))
	var owns *OwnsChatsError
	require.True(t, errors.As(err, &owns))
	require.Equal(t, []storage.ChatID{first, second}, owns.Chats)

	require.NoError(t, f.chats.DeleteChat(ctx, "alice", first))
	require.NoError(t, f.chats.DeleteChat(ctx, "alice", second))
	require.NoError(t, f.accounts.DeleteAccount(ctx, "alice"))
}

func TestDeleteAccountTakesDeleteLock(t *testing.T) {
	t.Parallel()

	f := bootstrap(t, nil)
	ctx := context.Background()
	f.register(t, "alice", "bob")

	cause := errors.New("lock timeout")
	f.store.FailOn("LockUserForDelete", cause)

	err := f.accounts.DeleteAccount(ctx, "bob")
	require.True(t, errors.Is(err, cause))

	// relationship changes use the weaker lock
	require.NoError(t, f.relationships.AddContact(ctx, "alice", "bob"))
	require.NoError(t, f.relationships.AddContact(ctx, "bob", "alice"))

	_, err = f.store.UserByLogin(ctx, "bob")
	require.NoError(t, err)
}

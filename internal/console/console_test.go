package console

import (
	"bytes"
	"context"
	"errors"
	"messenger/internal/messenger"
	mytesting "messenger/internal/testing"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func bootstrapConsole(t *testing.T, script ...string) (*Console, *bytes.Buffer, *mytesting.MemStore) {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	store := mytesting.NewMemStore()
	m := messenger.New(logger.Sugar(), store, messenger.SystemClock)

	out := &bytes.Buffer{}
	in := strings.NewReader(strings.Join(script, "\n") + "\n")

	return New(logger.Sugar(), m, in, out), out, store
}

func TestRunSession(t *testing.T) {
	t.Parallel()

	c, out, _ := bootstrapConsole(t,
		"register alice secret +70000000001",
		"register bob secret +70000000002",
		"login alice secret",
		"contact-add bob",
		"contacts",
		"chat-new",
		"chat-add 1 bob",
		"post 1 hello there",
		"history 1",
		"exit",
		"contacts",
	)

	require.NoError(t, c.Run(context.Background()))

	text := out.String()
	require.Contains(t, text, "registered alice")
	require.Contains(t, text, "logged in as alice")
	require.Contains(t, text, "bob")
	require.Contains(t, text, "created chat 1")
	require.Contains(t, text, "posted message 1")
	require.Contains(t, text, "hello there")
	require.NotContains(t, text, "error:")

	// nothing runs after exit
	require.Equal(t, 1, strings.Count(text, "CONTACT"))
}

func TestErrorsDoNotStopTheLoop(t *testing.T) {
	t.Parallel()

	c, out, _ := bootstrapConsole(t,
		"contacts",
		"frobnicate",
		"login alice secret",
		"register alice secret +70000000001",
		"login alice secret",
		"contact-add alice",
		"chat-add x bob",
	)

	require.NoError(t, c.Run(context.Background()))

	text := out.String()
	require.Contains(t, text, "error: log in first")
	require.Contains(t, text, `error: unknown command "frobnicate", type help`)
	require.Contains(t, text, "error: "+messenger.ErrInvalidCredentials.Error())
	require.Contains(t, text, "logged in as alice")
	require.Contains(t, text, "error: "+messenger.ErrSelfReference.Error())
	require.Contains(t, text, "usage: chat-add <chat> <login>")
}

func TestExec(t *testing.T) {
	t.Parallel()

	c, _, _ := bootstrapConsole(t)
	ctx := context.Background()

	require.NoError(t, c.Exec(ctx, ""))
	require.NoError(t, c.Exec(ctx, "register alice secret +70000000001"))
	require.NoError(t, c.Exec(ctx, "register bob secret +70000000002"))
	require.NoError(t, c.Exec(ctx, "login bob secret"))
	require.NoError(t, c.Exec(ctx, "chat-new"))
	require.NoError(t, c.Exec(ctx, "post 1 mine"))
	require.NoError(t, c.Exec(ctx, "logout"))

	require.Equal(t, errNotLoggedIn, c.Exec(ctx, "chats"))

	require.NoError(t, c.Exec(ctx, "login alice secret"))
	require.Equal(t, messenger.ErrPermission, c.Exec(ctx, "chat-add 1 alice"))
	require.Equal(t, messenger.ErrNotAMember, c.Exec(ctx, "post 1 hi"))
	require.Equal(t, messenger.ErrPermission, c.Exec(ctx, "delete 1"))
	require.True(t, errors.Is(c.Exec(ctx, "edit one text"), errUsage))
	require.Equal(t, errNoHistory, c.Exec(ctx, "more"))
}

func TestHistoryPages(t *testing.T) {
	t.Parallel()

	c, out, _ := bootstrapConsole(t)
	ctx := context.Background()

	require.NoError(t, c.Exec(ctx, "register alice secret +70000000001"))
	require.NoError(t, c.Exec(ctx, "login alice secret"))
	require.NoError(t, c.Exec(ctx, "chat-new"))
	for i := 0; i < 12; i++ {
		require.NoError(t, c.Exec(ctx, "post 1 message"))
	}

	out.Reset()
	require.NoError(t, c.Exec(ctx, "history 1"))
	require.Equal(t, 10, strings.Count(out.String(), "| alice"))
	require.Contains(t, out.String(), "type more for older messages")

	out.Reset()
	require.NoError(t, c.Exec(ctx, "more"))
	require.Equal(t, 2, strings.Count(out.String(), "| alice"))
	require.NotContains(t, out.String(), "type more")

	out.Reset()
	require.NoError(t, c.Exec(ctx, "more"))
	require.Equal(t, "no more messages\n", out.String())
}

func TestDeleteAccount(t *testing.T) {
	t.Parallel()

	c, out, store := bootstrapConsole(t)
	ctx := context.Background()

	require.NoError(t, c.Exec(ctx, "register alice secret +70000000001"))
	require.NoError(t, c.Exec(ctx, "login alice secret"))
	require.NoError(t, c.Exec(ctx, "account-delete"))
	require.Contains(t, out.String(), "account alice is deleted")

	require.Equal(t, errNotLoggedIn, c.Exec(ctx, "contacts"))
	_, err := store.UserByLogin(ctx, "alice")
	require.Error(t, err)
}

func TestStorageErrorIsHidden(t *testing.T) {
	t.Parallel()

	c, out, store := bootstrapConsole(t,
		"register alice secret +70000000001",
		"login alice secret",
	)
	require.NoError(t, c.Run(context.Background()))

	store.FailWith(errors.New("connection refused"))
	c.printErr(c.Exec(context.Background(), "contacts"))

	require.Contains(t, out.String(), "error: service is unavailable, try again later")
	require.NotContains(t, out.String(), "connection refused")
}

func TestHelp(t *testing.T) {
	t.Parallel()

	c, out, _ := bootstrapConsole(t)
	ctx := context.Background()

	require.NoError(t, c.Exec(ctx, "help"))
	require.Contains(t, out.String(), "register <login> <password> <phone>")
	require.NotContains(t, out.String(), "chat-new")

	require.NoError(t, c.Exec(ctx, "register alice secret +70000000001"))
	require.NoError(t, c.Exec(ctx, "login alice secret"))

	out.Reset()
	require.NoError(t, c.Exec(ctx, "help"))
	require.Contains(t, out.String(), "chat-add <chat> <login>")
	require.Contains(t, out.String(), "history <chat>")
}

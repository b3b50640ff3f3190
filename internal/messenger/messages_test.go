package messenger

import (
	"context"
	"errors"
	"fmt"
	"messenger/internal/messenger/mocks"
	"messenger/internal/storage"
	mytesting "messenger/internal/testing"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestPost(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	clock := mocks.NewMockClock(ctrl)
	at := time.Date(2021, time.March, 14, 15, 9, 26, 535897932, time.FixedZone("MSK", 3*60*60))
	clock.EXPECT().Now().Return(at)

	f := bootstrap(t, clock)
	ctx := context.Background()
	f.register(t, "alice", "bob")
	chat := f.newChat(t, "alice", "bob")

	id, err := f.messages.Post(ctx, "bob", chat, "hello")
	require.NoError(t, err)

	history, err := f.messages.History(ctx, chat, "alice")
	require.NoError(t, err)
	require.Equal(t, []storage.Message{{
		ID:        id,
		Chat:      chat,
		Sender:    "bob",
		Text:      "hello",
		Timestamp: at.UTC().Truncate(time.Microsecond),
	}}, history)
}

func TestPostErrors(t *testing.T) {
	t.Parallel()

	f := bootstrap(t, nil)
	ctx := context.Background()
	f.register(t, "alice", "bob")
	chat := f.newChat(t, "alice")

	_, err := f.messages.Post(ctx, "bob", chat, "let me in")
	require.Equal(t, ErrNotAMember, err)
	_, err = f.messages.Post(ctx, "alice", chat+100, "anyone?")
	require.Equal(t, ErrNotAMember, err)

	_, err = f.messages.Post(ctx, "alice", chat, "")
	require.True(t, errors.Is(err, ErrInvalidInput))
	_, err = f.messages.Post(ctx, "alice", chat, strings.Repeat("a", MaxTextLength+1))
	require.True(t, errors.Is(err, ErrInvalidInput))
	require.Contains(t, err.Error(), "longer than 300")

	_, err = f.messages.Post(ctx, "alice", chat, strings.Repeat("я", MaxTextLength))
	require.NoError(t, err)
}

func TestTimestampsStrictlyIncrease(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	clock := mocks.NewMockClock(ctrl)
	clock.EXPECT().Now().Return(time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)).Times(3)

	f := bootstrap(t, clock)
	ctx := context.Background()
	f.register(t, "alice")
	chat := f.newChat(t, "alice")

	for i := 0; i < 3; i++ {
		_, err := f.messages.Post(ctx, "alice", chat, fmt.Sprint(i))
		require.NoError(t, err)
	}

	history, err := f.messages.History(ctx, chat, "alice")
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, []string{"2", "1", "0"}, []string{history[0].Text, history[1].Text, history[2].Text})
	require.True(t, history[0].Timestamp.After(history[1].Timestamp))
	require.True(t, history[1].Timestamp.After(history[2].Timestamp))
}

func TestEditAndDeleteOwnMessage(t *testing.T) {
	t.Parallel()

	f := bootstrap(t, nil)
	ctx := context.Background()
	f.register(t, "alice", "bob")
	chat := f.newChat(t, "alice", "bob")

	id, err := f.messages.Post(ctx, "bob", chat, "helo")
	require.NoError(t, err)
	before, err := f.store.MessageByID(ctx, id)
	require.NoError(t, err)

	require.NoError(t, f.messages.Edit(ctx, "bob", id, "hello"))
	after, err := f.store.MessageByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "hello", after.Text)
	require.Equal(t, before.Sender, after.Sender)
	require.Equal(t, before.Timestamp, after.Timestamp)
	require.Equal(t, before.Chat, after.Chat)

	require.True(t, errors.Is(f.messages.Edit(ctx, "bob", id, ""), ErrInvalidInput))

	require.NoError(t, f.messages.Delete(ctx, "bob", id))
	require.Equal(t, ErrUnknownMessage, f.messages.Delete(ctx, "bob", id))
	require.Equal(t, ErrUnknownMessage, f.messages.Edit(ctx, "bob", id, "again"))
}

func TestEditAndDeleteForeignMessage(t *testing.T) {
	t.Parallel()

	f := bootstrap(t, nil)
	ctx := context.Background()
	f.register(t, "alice", "bob", "carol")
	chat := f.newChat(t, "alice", "bob", "carol")

	// bob has a message of his own in the chat, which must not grant rights over alice's
	_, err := f.messages.Post(ctx, "bob", chat, "mine")
	require.NoError(t, err)
	theirs, err := f.messages.Post(ctx, "alice", chat, "theirs")
	require.NoError(t, err)

	require.Equal(t, ErrPermission, f.messages.Edit(ctx, "bob", theirs, "changed"))
	require.Equal(t, ErrPermission, f.messages.Delete(ctx, "bob", theirs))
	require.Equal(t, ErrPermission, f.messages.Delete(ctx, "carol", theirs))

	m, err := f.store.MessageByID(ctx, theirs)
	require.NoError(t, err)
	require.Equal(t, "theirs", m.Text)
}

func TestHistoryNotAMember(t *testing.T) {
	t.Parallel()

	f := bootstrap(t, nil)
	ctx := context.Background()
	f.register(t, "alice", "bob")
	chat := f.newChat(t, "alice")

	_, err := f.messages.History(ctx, chat, "bob")
	require.Equal(t, ErrNotAMember, err)
	_, err = f.messages.Page(ctx, chat, "bob", 0)
	require.Equal(t, ErrNotAMember, err)

	history, err := f.messages.History(ctx, chat, "alice")
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestPageThroughHistory(t *testing.T) {
	t.Parallel()

	f := bootstrap(t, nil)
	ctx := context.Background()
	f.register(t, "alice", "bob")
	chat := f.newChat(t, "alice", "bob")

	posted := make([]storage.MessageID, 0, 25)
	for i := 0; i < 25; i++ {
		id, err := f.messages.Post(ctx, []string{"alice", "bob"}[i%2], chat, fmt.Sprint("message ", i))
		require.NoError(t, err)
		posted = append(posted, id)
	}

	var (
		seen   []storage.Message
		sizes  []int
		offset int
	)
	for {
		page, err := f.messages.Page(ctx, chat, "bob", offset)
		require.NoError(t, err)
		require.Equal(t, offset, page.Offset)

		sizes = append(sizes, len(page.Messages))
		seen = append(seen, page.Messages...)
		offset = page.NextOffset
		if page.Exhausted {
			break
		}
	}

	require.Equal(t, []int{10, 10, 5}, sizes)
	require.Len(t, seen, 25)
	for i := 1; i < len(seen); i++ {
		require.True(t, seen[i-1].Timestamp.After(seen[i].Timestamp))
	}

	ids := make([]storage.MessageID, 0, len(seen))
	for _, m := range seen {
		ids = append(ids, m.ID)
	}
	require.Equal(t, mytesting.ReverseIDs(posted), ids)
}

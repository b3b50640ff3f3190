package messenger

import (
	"messenger/internal/storage"
	"testing"

	"github.com/stretchr/testify/require"
)

func history(n int) []storage.Message {
	messages := make([]storage.Message, n)
	for i := range messages {
		messages[i].ID = storage.MessageID(n - i)
	}
	return messages
}

func TestNextPage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		total     int
		offset    int
		size      int
		next      int
		exhausted bool
	}{
		{name: "empty", total: 0, offset: 0, size: 0, next: 0, exhausted: true},
		{name: "short", total: 4, offset: 0, size: 4, next: 4, exhausted: true},
		{name: "exact page", total: 10, offset: 0, size: 10, next: 10, exhausted: true},
		{name: "first of many", total: 25, offset: 0, size: 10, next: 10, exhausted: false},
		{name: "middle", total: 25, offset: 10, size: 10, next: 20, exhausted: false},
		{name: "tail", total: 25, offset: 20, size: 5, next: 25, exhausted: true},
		{name: "past the end", total: 25, offset: 40, size: 0, next: 25, exhausted: true},
		{name: "negative offset", total: 25, offset: -3, size: 10, next: 10, exhausted: false},
	}

	for _, tc := range cases {
		page := NextPage(history(tc.total), tc.offset)
		require.Len(t, page.Messages, tc.size, tc.name)
		require.Equal(t, tc.next, page.NextOffset, tc.name)
		require.Equal(t, tc.exhausted, page.Exhausted, tc.name)
	}
}

func TestNextPageWindow(t *testing.T) {
	t.Parallel()

	messages := history(25)
	page := NextPage(messages, 10)
	require.Equal(t, messages[10:20], page.Messages)
	require.Equal(t, storage.MessageID(15), page.Messages[0].ID)
}

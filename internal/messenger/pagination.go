package messenger

import "messenger/internal/storage"

// PageSize is the number of messages in one history page
const PageSize = 10

// Page is a window of a chat history ordered newest first
type Page struct {
	Messages   []storage.Message `json:"messages"`
	Offset     int               `json:"offset"`
	NextOffset int               `json:"next_offset"`
	Exhausted  bool              `json:"exhausted"`
}

// NextPage returns messages[offset, offset+PageSize) clamped to the history length.
// No cursor state is kept: callers fetch the history again and pass the next offset.
func NextPage(messages []storage.Message, offset int) Page {
	if offset < 0 {
		offset = 0
	}
	if offset > len(messages) {
		offset = len(messages)
	}

	end := offset + PageSize
	if end > len(messages) {
		end = len(messages)
	}

	return Page{
		Messages:   messages[offset:end],
		Offset:     offset,
		NextOffset: end,
		Exhausted:  offset+PageSize >= len(messages),
	}
}

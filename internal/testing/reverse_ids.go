package testing

import "messenger/internal/storage"

// ReverseIDs reverses provided message ids
func ReverseIDs(ids []storage.MessageID) []storage.MessageID {
	reversed := make([]storage.MessageID, len(ids))
	copy(reversed, ids)

	for i := len(reversed)/2 - 1; i >= 0; i-- {
		opp := len(reversed) - 1 - i
		reversed[i], reversed[opp] = reversed[opp], reversed[i]
	}

	return reversed
}

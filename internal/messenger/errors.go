package messenger

import (
	"errors"
	"fmt"
	"messenger/internal/storage"
	"strings"

	"github.com/samber/lo"
)

// Rule violations returned to callers as is
var (
	ErrUnknownUser        = errors.New("user does not exist")
	ErrSelfReference      = errors.New("user cannot reference themselves")
	ErrAlreadyContact     = errors.New("user is already a contact")
	ErrAlreadyBlocked     = errors.New("user is already blocked")
	ErrNotInList          = errors.New("user is not in the list")
	ErrPermission         = errors.New("permission denied")
	ErrUnknownMessage     = errors.New("message does not exist")
	ErrUnknownChat        = errors.New("chat does not exist")
	ErrNotAMember         = errors.New("user is not a chat member")
	ErrDuplicateMember    = errors.New("user is already a chat member")
	ErrLoginTaken         = errors.New("login is already taken")
	ErrInvalidCredentials = errors.New("invalid login or password")
	ErrInvalidInput       = errors.New("invalid input")
	ErrOwnsChats          = errors.New("user is the initiator of existing chats")
)

var ruleViolations = []error{
	ErrUnknownUser, ErrSelfReference, ErrAlreadyContact, ErrAlreadyBlocked, ErrNotInList, ErrPermission,
	ErrUnknownMessage, ErrUnknownChat, ErrNotAMember, ErrDuplicateMember, ErrLoginTaken, ErrInvalidCredentials,
	ErrInvalidInput, ErrOwnsChats,
}

// IsRuleViolation reports whether err is one of the domain rule errors rather than a storage failure
func IsRuleViolation(err error) bool {
	return lo.ContainsBy(ruleViolations, func(target error) bool {
		return errors.Is(err, target)
	})
}

// StorageError wraps any failure of the backing store. It is never retried.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return "storage: " + e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// OwnsChatsError lists the chats that prevent an account from being deleted.
// It matches ErrOwnsChats with errors.Is.
type OwnsChatsError struct {
	Chats []storage.ChatID
}

func (e *OwnsChatsError) Error() string {
	ids := lo.Map(e.Chats, func(id storage.ChatID, _ int) string {
		return fmt.Sprint(int64(id))
	})
	return fmt.Sprintf("%s: %s", ErrOwnsChats, strings.Join(ids, ", "))
}

func (e *OwnsChatsError) Is(target error) bool {
	return target == ErrOwnsChats
}

// wrap passes rule violations and existing storage errors through and wraps everything else
func wrap(op string, err error) error {
	if err == nil || IsRuleViolation(err) {
		return err
	}

	var se *StorageError
	if errors.As(err, &se) {
		return err
	}

	return &StorageError{Op: op, Err: err}
}

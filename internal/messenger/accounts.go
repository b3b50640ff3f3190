package messenger

import (
	"context"
	"errors"
	"fmt"
	"messenger/internal/storage"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("login", func(fl validator.FieldLevel) bool {
		return !strings.ContainsFunc(fl.Field().String(), unicode.IsSpace)
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return !strings.ContainsFunc(fl.Field().String(), func(r rune) bool {
			return !unicode.IsDigit(r) && r != '+' && r != '-'
		})
	})
	return v
}

// RegisterRequest holds the registration input
type RegisterRequest struct {
	Login    string `validate:"required,max=50,login"`
	Password string `validate:"required,max=50"`
	Phone    string `validate:"required,max=16,phone"`
}

// Accounts registers, authenticates and removes users
type Accounts struct {
	logger        *zap.SugaredLogger
	backend       Backend
	relationships *Relationships
}

func NewAccounts(logger *zap.SugaredLogger, backend Backend, relationships *Relationships) *Accounts {
	return &Accounts{logger: logger, backend: backend, relationships: relationships}
}

// Register creates a user together with its empty block and contact lists
func (a *Accounts) Register(ctx context.Context, req RegisterRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	err := withinTx(ctx, a.backend, "register", func(repo storage.Repository) error {
		_, err := repo.UserByLogin(ctx, req.Login)
		if err == nil {
			return ErrLoginTaken
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		u := storage.User{Login: req.Login, Password: req.Password, Phone: req.Phone}
		if err := a.relationships.provision(ctx, repo, &u); err != nil {
			return err
		}

		err = repo.CreateUser(ctx, u)
		if errors.Is(err, storage.ErrUniqueViolation) {
			// a concurrent registration won the race
			return ErrLoginTaken
		}
		return err
	})
	if err != nil {
		return err
	}

	a.logger.Debugf("Registered user (%s)", req.Login)

	return nil
}

// LogIn checks the credentials
func (a *Accounts) LogIn(ctx context.Context, login, password string) error {
	ok, err := a.backend.UserWithCredentials(ctx, login, password)
	if err != nil {
		return wrap("log in", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}
	return nil
}

// DeleteAccount removes the user and everything that references it.
// Users who initiated chats are refused with *OwnsChatsError; those chats must be deleted first.
func (a *Accounts) DeleteAccount(ctx context.Context, login string) error {
	err := withinTx(ctx, a.backend, "delete account", func(repo storage.Repository) error {
		u, err := repo.LockUserForDelete(ctx, login)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrUnknownUser
		}
		if err != nil {
			return err
		}

		owned, err := repo.ChatsInitiatedBy(ctx, login)
		if err != nil {
			return err
		}
		if len(owned) > 0 {
			return &OwnsChatsError{Chats: owned}
		}

		if err := repo.DeleteMessagesBy(ctx, login); err != nil {
			return err
		}
		if err := repo.LeaveAllChats(ctx, login); err != nil {
			return err
		}
		if err := repo.RemoveFromAllLists(ctx, login); err != nil {
			return err
		}
		for _, list := range []storage.ListID{u.ContactList, u.BlockList} {
			if err := repo.ClearList(ctx, list); err != nil {
				return err
			}
		}
		if err := repo.DeleteUser(ctx, login); err != nil {
			return err
		}
		for _, list := range []storage.ListID{u.ContactList, u.BlockList} {
			if err := repo.DeleteList(ctx, list); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	a.logger.Debugf("Deleted account (%s)", login)

	return nil
}

package messenger

import (
	"context"
	"errors"
	"messenger/internal/storage"

	"go.uber.org/zap"
)

// Relationships manages per-user contact and block lists.
// A user is never in both lists of the same owner: blocking moves a contact to the block list,
// while adding a blocked user as a contact is refused until they are unblocked.
type Relationships struct {
	logger  *zap.SugaredLogger
	backend Backend
}

func NewRelationships(logger *zap.SugaredLogger, backend Backend) *Relationships {
	return &Relationships{logger: logger, backend: backend}
}

// provision creates the empty block and contact lists of a user being registered within repo's transaction
func (r *Relationships) provision(ctx context.Context, repo storage.Repository, u *storage.User) error {
	var err error
	if u.BlockList, err = repo.CreateList(ctx, storage.BlockList); err != nil {
		return err
	}
	u.ContactList, err = repo.CreateList(ctx, storage.ContactList)
	return err
}

// AddContact puts target into the owner's contact list
func (r *Relationships) AddContact(ctx context.Context, owner, target string) error {
	if owner == target {
		return ErrSelfReference
	}

	return withinTx(ctx, r.backend, "add contact", func(repo storage.Repository) error {
		o, err := lockOwnerAndTarget(ctx, repo, owner, target)
		if err != nil {
			return err
		}

		blocked, err := repo.ListHas(ctx, o.BlockList, target)
		if err != nil {
			return err
		}
		if blocked {
			return ErrAlreadyBlocked
		}

		contact, err := repo.ListHas(ctx, o.ContactList, target)
		if err != nil {
			return err
		}
		if contact {
			return ErrAlreadyContact
		}

		r.logger.Debugf("Adding (%s) to contacts of (%s)", target, owner)

		return repo.AddListMember(ctx, o.ContactList, target)
	})
}

// AddBlocked puts target into the owner's block list, removing it from the contact list in the same transaction
func (r *Relationships) AddBlocked(ctx context.Context, owner, target string) error {
	if owner == target {
		return ErrSelfReference
	}

	return withinTx(ctx, r.backend, "add blocked", func(repo storage.Repository) error {
		o, err := lockOwnerAndTarget(ctx, repo, owner, target)
		if err != nil {
			return err
		}

		blocked, err := repo.ListHas(ctx, o.BlockList, target)
		if err != nil {
			return err
		}
		if blocked {
			return ErrAlreadyBlocked
		}

		contact, err := repo.ListHas(ctx, o.ContactList, target)
		if err != nil {
			return err
		}
		if contact {
			r.logger.Debugf("Moving (%s) from contacts to blocked of (%s)", target, owner)

			if err := repo.RemoveListMember(ctx, o.ContactList, target); err != nil {
				return err
			}
		}

		return repo.AddListMember(ctx, o.BlockList, target)
	})
}

// RemoveContact deletes target from the owner's contact list
func (r *Relationships) RemoveContact(ctx context.Context, owner, target string) error {
	return r.remove(ctx, "remove contact", owner, target, storage.ContactList)
}

// RemoveBlocked deletes target from the owner's block list
func (r *Relationships) RemoveBlocked(ctx context.Context, owner, target string) error {
	return r.remove(ctx, "remove blocked", owner, target, storage.BlockList)
}

func (r *Relationships) remove(ctx context.Context, op, owner, target string, kind storage.ListKind) error {
	return withinTx(ctx, r.backend, op, func(repo storage.Repository) error {
		o, err := lockUser(ctx, repo, owner)
		if err != nil {
			return err
		}

		list := listOf(o, kind)
		present, err := repo.ListHas(ctx, list, target)
		if err != nil {
			return err
		}
		if !present {
			return ErrNotInList
		}

		return repo.RemoveListMember(ctx, list, target)
	})
}

// ListContacts returns the owner's contacts in the order they were added
func (r *Relationships) ListContacts(ctx context.Context, owner string) ([]string, error) {
	return r.list(ctx, "list contacts", owner, storage.ContactList)
}

// ListBlocked returns the owner's blocked users in the order they were added
func (r *Relationships) ListBlocked(ctx context.Context, owner string) ([]string, error) {
	return r.list(ctx, "list blocked", owner, storage.BlockList)
}

func (r *Relationships) list(ctx context.Context, op, owner string, kind storage.ListKind) ([]string, error) {
	o, err := r.backend.UserByLogin(ctx, owner)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, wrap(op, err)
	}

	members, err := r.backend.ListMembers(ctx, listOf(o, kind))
	if err != nil {
		return nil, wrap(op, err)
	}

	return members, nil
}

func listOf(u storage.User, kind storage.ListKind) storage.ListID {
	if kind == storage.BlockList {
		return u.BlockList
	}
	return u.ContactList
}

// lockUser loads and locks a user row, translating absence into ErrUnknownUser
func lockUser(ctx context.Context, repo storage.Repository, login string) (storage.User, error) {
	u, err := repo.LockUser(ctx, login)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.User{}, ErrUnknownUser
	}
	return u, err
}

// userExists translates absence into ErrUnknownUser
func userExists(ctx context.Context, repo storage.Repository, login string) error {
	_, err := repo.UserByLogin(ctx, login)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrUnknownUser
	}
	return err
}

func lockOwnerAndTarget(ctx context.Context, repo storage.Repository, owner, target string) (storage.User, error) {
	o, err := lockUser(ctx, repo, owner)
	if err != nil {
		return storage.User{}, err
	}

	if err := userExists(ctx, repo, target); err != nil {
		return storage.User{}, err
	}

	return o, nil
}

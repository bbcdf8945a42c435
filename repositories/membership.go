package repositories

import (
	"chat-relay/contract"
	"chat-relay/domain"
	chaterrors "chat-relay/errors"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

var _ contract.IMembershipStore = (*MembershipRepository)(nil)

// MembershipRepository stores the external collaborator's membership data
// locally. The core treats it as read-only except for the LastSeen* fields,
// which the sync service advances. AddMember/RemoveMember exist for the
// seeding tool and for externally-signaled membership changes.
type MembershipRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMembershipRepository(db *badger.DB, log *slog.Logger) *MembershipRepository {
	return &MembershipRepository{db: db, log: log}
}

func (r *MembershipRepository) AddMember(conversationID domain.ConversationID, user domain.UserID, role string) error {
	value, err := cbor.Marshal(storedMembership{Role: role})
	if err != nil {
		return err
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(membershipKey(conversationID, user), value); err != nil {
			return err
		}
		return txn.Set(joinedKey(user, conversationID), nil)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", chaterrors.ErrTransientStore, err)
	}
	return nil
}

func (r *MembershipRepository) RemoveMember(conversationID domain.ConversationID, user domain.UserID) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(membershipKey(conversationID, user)); err != nil {
			return err
		}
		return txn.Delete(joinedKey(user, conversationID))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", chaterrors.ErrTransientStore, err)
	}
	return nil
}

func (r *MembershipRepository) IsMember(conversationID domain.ConversationID, user domain.UserID) (bool, error) {
	var member bool
	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(membershipKey(conversationID, user))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		member = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", chaterrors.ErrTransientStore, err)
	}
	return member, nil
}

// ListConversationsFor scans the joined index; keys only, values are empty.
func (r *MembershipRepository) ListConversationsFor(user domain.UserID) ([]domain.ConversationID, error) {
	var conversations []domain.ConversationID
	prefix := joinedPrefix(user)

	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			conversations = append(conversations, domain.ConversationID(key[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chaterrors.ErrTransientStore, err)
	}
	return conversations, nil
}

// TouchLastSeen advances the caller's watermark fields. All other membership
// fields are preserved as-is.
func (r *MembershipRepository) TouchLastSeen(conversationID domain.ConversationID, user domain.UserID, messageID uuid.UUID, at time.Time) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(membershipKey(conversationID, user))
		if err != nil {
			return err
		}
		var stored storedMembership
		if err := item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, &stored)
		}); err != nil {
			return err
		}
		stored.LastSeenMsgID = messageID.String()
		stored.LastSeenAt = at.UnixNano()

		value, err := cbor.Marshal(stored)
		if err != nil {
			return err
		}
		return txn.Set(membershipKey(conversationID, user), value)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", chaterrors.ErrTransientStore, err)
	}
	return nil
}

// Membership returns the stored membership row, mainly for tests and the
// debug inspector.
func (r *MembershipRepository) Membership(conversationID domain.ConversationID, user domain.UserID) (domain.Membership, error) {
	var stored storedMembership
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(membershipKey(conversationID, user))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, &stored)
		})
	})
	if err != nil {
		return domain.Membership{}, fmt.Errorf("%w: %v", chaterrors.ErrTransientStore, err)
	}

	membership := domain.Membership{
		ConversationID: conversationID,
		UserID:         user,
		Role:           stored.Role,
	}
	if stored.LastSeenMsgID != "" {
		parsed, err := uuid.Parse(stored.LastSeenMsgID)
		if err != nil {
			return domain.Membership{}, err
		}
		seenAt := time.Unix(0, stored.LastSeenAt).UTC()
		membership.LastSeenMessageID = &parsed
		membership.LastSeenAt = &seenAt
	}
	return membership, nil
}

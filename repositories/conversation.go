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
)

var _ contract.IConversationStore = (*ConversationRepository)(nil)

type ConversationRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewConversationRepository(db *badger.DB, log *slog.Logger) *ConversationRepository {
	return &ConversationRepository{db: db, log: log}
}

func (r *ConversationRepository) Create(conversation domain.Conversation) error {
	value, err := cbor.Marshal(storedConversation{
		Type:           string(conversation.Type),
		LastActivityAt: conversation.LastActivityAt.UnixNano(),
	})
	if err != nil {
		return err
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(conversationKey(conversation.ID), value)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", chaterrors.ErrTransientStore, err)
	}
	return nil
}

func (r *ConversationRepository) Get(id domain.ConversationID) (domain.Conversation, error) {
	var stored storedConversation
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(conversationKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, &stored)
		})
	})
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("%w: %v", chaterrors.ErrTransientStore, err)
	}
	return domain.Conversation{
		ID:             id,
		Type:           domain.ConversationType(stored.Type),
		LastActivityAt: time.Unix(0, stored.LastActivityAt).UTC(),
	}, nil
}

// TouchLastActivity refreshes the conversation ordering hint. Called only on
// a genuine first write; duplicate-returns must keep retries true no-ops.
// An unknown conversation is ignored: the row is externally owned and may
// not have been mirrored yet.
func (r *ConversationRepository) TouchLastActivity(id domain.ConversationID, at time.Time) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(conversationKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			r.log.Debug("conversation row not mirrored, skipping activity touch", "conversation", id)
			return nil
		}
		if err != nil {
			return err
		}
		var stored storedConversation
		if err := item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, &stored)
		}); err != nil {
			return err
		}
		stored.LastActivityAt = at.UnixNano()

		value, err := cbor.Marshal(stored)
		if err != nil {
			return err
		}
		return txn.Set(conversationKey(id), value)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", chaterrors.ErrTransientStore, err)
	}
	return nil
}

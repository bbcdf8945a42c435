package repositories

import (
	"bytes"
	"chat-relay/contract"
	"chat-relay/domain"
	chaterrors "chat-relay/errors"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

var _ contract.IMessageStore = (*MessageRepository)(nil)

const insertRetries = 3

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) *MessageRepository {
	return &MessageRepository{db: db, log: log}
}

// InsertIfAbsent performs the idempotency check and the persist step as ONE
// Badger transaction. Badger's SSI detects two concurrent inserts of the
// same dedup key; the losing writer gets ErrConflict, re-reads, and returns
// the winner's row instead of erroring. Never a separate read-then-write.
func (m *MessageRepository) InsertIfAbsent(msg domain.Message) (domain.Message, bool, error) {
	for attempt := 0; attempt < insertRetries; attempt++ {
		var existing *domain.Message
		err := m.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(dedupKey(msg.SenderID, msg.DedupToken))
			switch {
			case err == nil:
				found, err := m.readByFullKeyRef(txn, item)
				if err != nil {
					return err
				}
				existing = &found
				return nil
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}

			key := messageKey(msg.ConversationID, msg.CreatedAt, msg.ID)
			value, err := cbor.Marshal(fromMessage(msg))
			if err != nil {
				return err
			}
			if err := txn.Set(key, value); err != nil {
				return err
			}
			if err := txn.Set(dedupKey(msg.SenderID, msg.DedupToken), key); err != nil {
				return err
			}
			return txn.Set(idKey(msg.ID), key)
		})

		switch {
		case err == nil && existing != nil:
			return *existing, false, nil
		case err == nil:
			return msg, true, nil
		case errors.Is(err, badger.ErrConflict):
			// Lost the race against an identical submission: loop and
			// pick up the winner's row through the dedup key.
			m.log.Debug("conditional insert conflict, re-reading winner",
				"sender", msg.SenderID, "dedup_token", msg.DedupToken)
			continue
		default:
			return domain.Message{}, false, fmt.Errorf("%w: %v", chaterrors.ErrTransientStore, err)
		}
	}
	return domain.Message{}, false, fmt.Errorf("%w: insert retries exhausted", chaterrors.ErrTransientStore)
}

// FindByDedupKey returns the canonical message for (sender, token), or nil
// when no submission with that token was ever persisted.
func (m *MessageRepository) FindByDedupKey(sender domain.UserID, dedupToken string) (*domain.Message, error) {
	var found *domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dedupKey(sender, dedupToken))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		msg, err := m.readByFullKeyRef(txn, item)
		if err != nil {
			return err
		}
		found = &msg
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chaterrors.ErrTransientStore, err)
	}
	return found, nil
}

// ListAfter retrieves up to limit messages of a conversation strictly after
// the watermark message, ascending. Thanks to the padded timestamp in the
// key, a forward prefix scan is already in canonical order. An unknown
// watermark id degrades gracefully to the start of the conversation.
func (m *MessageRepository) ListAfter(conversationID domain.ConversationID, after *uuid.UUID, limit int) ([]domain.Message, error) {
	var messages []domain.Message
	prefix := messagePrefix(conversationID)

	err := m.db.View(func(txn *badger.Txn) error {
		seekKey := prefix
		skipFirst := false
		if after != nil {
			item, err := txn.Get(idKey(*after))
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
				m.log.Debug("watermark id unknown, syncing from start",
					"conversation", conversationID, "after", after.String())
			case err != nil:
				return err
			default:
				fullKey, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				// A watermark from another conversation is as good as
				// unknown: fall back to the conversation start.
				if bytes.HasPrefix(fullKey, prefix) {
					seekKey = fullKey
					skipFirst = true
				}
			}
		}

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		it.Seek(seekKey)
		if skipFirst && it.ValidForPrefix(prefix) && bytes.Equal(it.Item().Key(), seekKey) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(messages) == limit {
				break
			}
			msg, err := decodeMessageItem(it.Item())
			if err != nil {
				return err
			}
			messages = append(messages, msg)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chaterrors.ErrTransientStore, err)
	}
	return messages, nil
}

// readByFullKeyRef follows a reference item (dedup or id index) whose value
// is the full message key, and decodes the message it points at.
func (m *MessageRepository) readByFullKeyRef(txn *badger.Txn, ref *badger.Item) (domain.Message, error) {
	fullKey, err := ref.ValueCopy(nil)
	if err != nil {
		return domain.Message{}, err
	}
	item, err := txn.Get(fullKey)
	if err != nil {
		return domain.Message{}, err
	}
	return decodeMessageItem(item)
}

func decodeMessageItem(item *badger.Item) (domain.Message, error) {
	var stored storedMessage
	if err := item.Value(func(val []byte) error {
		return cbor.Unmarshal(val, &stored)
	}); err != nil {
		return domain.Message{}, err
	}
	return toMessage(stored)
}

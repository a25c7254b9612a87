package badger

import (
	"context"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"
	"github.com/ternarybob/arbor"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/interfaces"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/models"
)

// DefaultIntakePrefix namespaces intake documents in the raw badger key space
const DefaultIntakePrefix = "intake:"

// IntakeStorage holds the upstream intake collection. Documents live under a
// dedicated key prefix in the raw key space rather than behind badgerhold so
// badger's change subscription can prefix-match exactly the intake inserts
// and nothing else.
type IntakeStorage struct {
	db     *BadgerDB
	prefix string
	logger arbor.ILogger
}

// NewIntakeStorage creates an IntakeStorage with the given key prefix. An
// empty prefix uses DefaultIntakePrefix.
func NewIntakeStorage(db *BadgerDB, prefix string, logger arbor.ILogger) *IntakeStorage {
	if prefix == "" {
		prefix = DefaultIntakePrefix
	}
	return &IntakeStorage{
		db:     db,
		prefix: prefix,
		logger: logger,
	}
}

func (s *IntakeStorage) key(id string) []byte {
	return []byte(s.prefix + id)
}

// Insert writes a document into the collection. Every insert is delivered to
// active subscribers through badger's change feed.
func (s *IntakeStorage) Insert(ctx context.Context, doc *models.IntakeDocument) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("invalid intake document: %w", err)
	}

	data, err := doc.ToJSON()
	if err != nil {
		return err
	}

	err = s.db.Badger().Update(func(txn *badgerdb.Txn) error {
		return txn.Set(s.key(doc.ID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to insert intake document %s: %w", doc.ID, err)
	}

	s.logger.Debug().
		Str("document_id", doc.ID).
		Str("company", doc.Company).
		Msg("Intake document inserted")

	return nil
}

// Get returns a document by ID
func (s *IntakeStorage) Get(ctx context.Context, id string) (*models.IntakeDocument, error) {
	var data []byte
	err := s.db.Badger().View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(s.key(id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if err == badgerdb.ErrKeyNotFound {
			return nil, fmt.Errorf("intake document not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get intake document %s: %w", id, err)
	}

	return models.IntakeDocumentFromJSON(data)
}

// Subscribe blocks delivering each inserted document to the handler until ctx
// is cancelled. Documents that fail to decode are logged and skipped so one
// malformed insert cannot stall the stream.
func (s *IntakeStorage) Subscribe(ctx context.Context, handler func(doc *models.IntakeDocument)) error {
	matches := []pb.Match{{Prefix: []byte(s.prefix)}}

	err := s.db.Badger().Subscribe(ctx, func(kvs *badgerdb.KVList) error {
		for _, kv := range kvs.Kv {
			if len(kv.Value) == 0 {
				continue // Deletion events carry no value
			}

			doc, err := models.IntakeDocumentFromJSON(kv.Value)
			if err != nil {
				s.logger.Warn().Err(err).
					Str("key", string(kv.Key)).
					Msg("Skipping malformed intake document in change feed")
				continue
			}

			handler(doc)
		}
		return nil
	}, matches)

	if err != nil && err != context.Canceled && ctx.Err() == nil {
		return fmt.Errorf("intake change subscription failed: %w", err)
	}
	return nil
}

var _ interfaces.IntakeStore = (*IntakeStorage)(nil)

package pipeline

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"go.uber.org/zap"

	"github.com/gcbaptista/go-search-pipeline/model"
)

var pipelineKeyPrefix = []byte("pipeline/")

// badgerLogger adapts zap to badger.Logger.
type badgerLogger struct {
	logger *zap.SugaredLogger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, items ...any)   { l.logger.Errorf(msg, items...) }
func (l *badgerLogger) Warningf(msg string, items ...any) { l.logger.Warnf(msg, items...) }
func (l *badgerLogger) Infof(msg string, items ...any)    { l.logger.Infof(msg, items...) }
func (l *badgerLogger) Debugf(msg string, items ...any)   { l.logger.Debugf(msg, items...) }

// BadgerStore keeps pipeline definitions as JSON values in a BadgerDB database.
type BadgerStore struct {
	db     *badger.DB
	logger *zap.Logger
}

// OpenBadgerStore opens the database in dataDir, creating the directory if needed.
// An empty dataDir opens an in-memory database.
func OpenBadgerStore(dataDir string, logger *zap.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "badger_store"))

	var opts badger.Options
	if dataDir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dataDir, dataDirPerm); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
		}
		opts = badger.DefaultOptions(dataDir)
	}
	opts.Logger = &badgerLogger{logger: logger.Sugar()}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

func pipelineKey(name string) []byte {
	return append(append([]byte{}, pipelineKeyPrefix...), name...)
}

func (s *BadgerStore) Save(def model.PipelineDefinition) error {
	if err := ValidateName(def.Name); err != nil {
		return err
	}
	value, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("failed to encode pipeline %s: %w", def.Name, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(pipelineKey(def.Name), value)
	})
}

func (s *BadgerStore) Delete(name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(pipelineKey(name))
	})
}

// LoadAll reads every stored pipeline. Values that fail to decode are logged and skipped.
func (s *BadgerStore) LoadAll() ([]model.PipelineDefinition, error) {
	var defs []model.PipelineDefinition
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(pipelineKeyPrefix); it.ValidForPrefix(pipelineKeyPrefix); it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(val []byte) error {
				var def model.PipelineDefinition
				if err := json.Unmarshal(val, &def); err != nil {
					s.logger.Warn("Skipping invalid pipeline record", zap.String("key", key), zap.Error(err))
					return nil
				}
				defs = append(defs, def)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load pipelines: %w", err)
	}
	return defs, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gmsas95/medremind/internal/config"
)

const kvPrefix = "kv:"

// Store provides unified access to SQLite and BadgerDB.
// Badger holds the small key-value documents the reminder core persists
// (medication list, reset ledger); SQLite holds the trigger registry and
// dose history.
type Store struct {
	db     *gorm.DB
	badger *badger.DB
}

// New opens both databases under the configured storage paths
func New(cfg *config.Config) (*Store, error) {
	sqlitePath := cfg.Storage.SQLitePath
	if sqlitePath == "" {
		sqlitePath = filepath.Join(cfg.Storage.DataDir, "medremind.db")
	}

	sqliteDB, err := sql.Open("sqlite", sqlitePath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	sqliteDB.SetMaxOpenConns(4)
	sqliteDB.SetMaxIdleConns(2)
	sqliteDB.SetConnMaxLifetime(time.Hour)

	badgerPath := cfg.Storage.BadgerPath
	if badgerPath == "" {
		badgerPath = filepath.Join(cfg.Storage.DataDir, "badger")
	}

	badgerOpts := badger.DefaultOptions(badgerPath).
		WithLogger(nil).
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true).
		WithValueLogFileSize(16 << 20).
		WithMemTableSize(16 << 20)

	return open(sqliteDB, badgerOpts)
}

// NewInMemory opens a throwaway store backed by in-memory SQLite and Badger.
func NewInMemory() (*Store, error) {
	sqliteDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	// every pooled connection would get its own empty :memory: database
	sqliteDB.SetMaxOpenConns(1)

	return open(sqliteDB, badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
}

func open(sqliteDB *sql.DB, badgerOpts badger.Options) (*Store, error) {
	db, err := gorm.Open(sqlite.Dialector{Conn: sqliteDB}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		sqliteDB.Close()
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if err := db.AutoMigrate(&Trigger{}, &DoseLog{}); err != nil {
		sqliteDB.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	badgerDB, err := badger.Open(badgerOpts)
	if err != nil {
		sqliteDB.Close()
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Store{db: db, badger: badgerDB}, nil
}

// Close closes all database connections
func (s *Store) Close() error {
	var errs []error
	if err := s.badger.Close(); err != nil {
		errs = append(errs, err)
	}
	if sqlDB, err := s.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DB returns the GORM database instance
func (s *Store) DB() *gorm.DB {
	return s.db
}

// ==================== KV Methods (BadgerDB) ====================

// Get decodes the JSON value stored under key into v.
// It reports false with a nil error when the key does not exist.
func (s *Store) Get(key string, v any) (bool, error) {
	raw, err := s.GetKV(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores v under key as JSON
func (s *Store) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.SetKV(key, raw); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Remove deletes key; removing a missing key is not an error
func (s *Store) Remove(key string) error {
	return s.badger.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(kvPrefix + key))
	})
}

// SetKV stores a raw key-value pair
func (s *Store) SetKV(key string, value []byte) error {
	return s.badger.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(kvPrefix+key), value)
	})
}

// GetKV retrieves a raw value by key
func (s *Store) GetKV(key string) ([]byte, error) {
	var val []byte
	err := s.badger.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(kvPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			val = append([]byte{}, v...)
			return nil
		})
	})
	return val, err
}

package settings

import (
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var settingsBucket = []byte("settings")

// Store is a persistent string key/value store backed by bbolt. Callers
// supply their own defaults on lookup, so a missing key is never an error.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the settings database at path
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(settingsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Get returns the stored value for key, or def when the key is unset
func (s *Store) Get(key, def string) string {
	value := def
	_ = s.db.View(func(tx *bbolt.Tx) error {
		if data := tx.Bucket(settingsBucket).Get([]byte(key)); data != nil {
			value = string(data)
		}
		return nil
	})
	return value
}

// Set stores a value under key
func (s *Store) Set(key, value string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(settingsBucket).Put([]byte(key), []byte(value))
	})
}

// Delete removes a key
func (s *Store) Delete(key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(settingsBucket).Delete([]byte(key))
	})
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

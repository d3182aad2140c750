// Package bolt implements the device-local store on go.etcd.io/bbolt.
//
// Every value is a JSON envelope {"v": <schema version>, "data": ...}. bbolt
// gives a single writer and concurrent readers: each mutation is one Update
// transaction and each read is one View transaction.
package bolt

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"github.com/vietddude/payverify/internal/infra/storage"
)

// SchemaVersion is the envelope version written by this build.
const SchemaVersion = 1

var (
	bucketConsumed = []byte("consumed")
	bucketPending  = []byte("pending")
	bucketHistory  = []byte("history")
	bucketMeta     = []byte("meta")

	keyActive  = []byte("active")
	keyRecords = []byte("records")
	keySchema  = []byte("schema_version")
)

// ErrUnsupportedSchema is returned when the file was written by a newer build.
var ErrUnsupportedSchema = errors.New("unsupported schema version")

type envelope struct {
	Version int             `json:"v"`
	Data    json.RawMessage `json:"data"`
}

// Store is a storage.DeviceStore backed by a bbolt file.
type Store struct {
	db *bbolt.DB
}

var _ storage.DeviceStore = (*Store)(nil)

// Open opens (creating if needed) the bbolt file at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open device store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketConsumed, bucketPending, bucketHistory, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}

		meta := tx.Bucket(bucketMeta)
		if raw := meta.Get(keySchema); raw != nil {
			v, err := strconv.Atoi(string(raw))
			if err != nil {
				return fmt.Errorf("read schema version: %w", err)
			}
			if v > SchemaVersion {
				return fmt.Errorf("%w: file has %d, build supports %d", ErrUnsupportedSchema, v, SchemaVersion)
			}
		}
		return meta.Put(keySchema, []byte(strconv.Itoa(SchemaVersion)))
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Consumed() storage.ConsumedRepository { return &consumedRepo{db: s.db} }
func (s *Store) Pending() storage.PendingRepository   { return &pendingRepo{db: s.db} }
func (s *Store) History() storage.HistoryRepository   { return &historyRepo{db: s.db} }

// Close closes the underlying file.
func (s *Store) Close() error {
	return s.db.Close()
}

func encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Version: SchemaVersion, Data: data})
}

func decode(raw []byte, v any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version > SchemaVersion {
		return fmt.Errorf("%w: record has %d", ErrUnsupportedSchema, env.Version)
	}
	// Version 1 is the only layout so far; older versions would migrate here.
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

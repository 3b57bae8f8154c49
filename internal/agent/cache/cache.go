package cache

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/zfswitness/pkg/api"
)

var (
	// BoltDB bucket names
	bucketIdentity  = []byte("identity")
	bucketInventory = []byte("inventory")

	keyIdentity = []byte("node")
)

// ErrIdentityNotFound нода еще не зарегистрирована
var ErrIdentityNotFound = errors.New("node identity not found, run 'zfswitness-agent register' first")

// Identity локально сохраненные учетные данные ноды
type Identity struct {
	NodeID    string `json:"node_id"`
	Hostname  string `json:"hostname"`
	APIKey    string `json:"api_key"`
	ServerURL string `json:"server_url"`
}

// Storage represents BoltDB cache for the node agent: identity plus the
// last successfully reported snapshot inventory.
type Storage struct {
	db *bbolt.DB
}

// New creates a new BoltDB cache instance
// dbPath is the path to the BoltDB database file
func New(dbPath string) (*Storage, error) {
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	storage := &Storage{db: db}

	if err := storage.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return storage, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketIdentity); err != nil {
			return fmt.Errorf("failed to create identity bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists(bucketInventory); err != nil {
			return fmt.Errorf("failed to create inventory bucket: %w", err)
		}
		return nil
	})
}

// SaveIdentity сохраняет учетные данные ноды после регистрации
func (s *Storage) SaveIdentity(identity *Identity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("failed to marshal identity: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketIdentity).Put(keyIdentity, data)
	})
}

// GetIdentity возвращает учетные данные ноды.
// Returns ErrIdentityNotFound if the node has not registered yet.
func (s *Storage) GetIdentity() (*Identity, error) {
	var identity Identity
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketIdentity).Get(keyIdentity)
		if data == nil {
			return ErrIdentityNotFound
		}
		return json.Unmarshal(data, &identity)
	})
	if err != nil {
		return nil, err
	}
	return &identity, nil
}

// SaveInventory замещает кешированный инвентарь целиком.
// Вызывается только после успешно принятого сервером отчета.
func (s *Storage) SaveInventory(records []api.SnapshotRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketInventory); err != nil {
			return fmt.Errorf("failed to reset inventory bucket: %w", err)
		}
		bucket, err := tx.CreateBucket(bucketInventory)
		if err != nil {
			return fmt.Errorf("failed to recreate inventory bucket: %w", err)
		}
		for _, rec := range records {
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("failed to marshal snapshot record: %w", err)
			}
			if err := bucket.Put([]byte(recordKey(rec)), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetInventory возвращает последний отправленный инвентарь
func (s *Storage) GetInventory() ([]api.SnapshotRecord, error) {
	var records []api.SnapshotRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketInventory).ForEach(func(_, v []byte) error {
			var rec api.SnapshotRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("failed to unmarshal snapshot record: %w", err)
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// recordKey идентичность снапшота в пределах ноды
func recordKey(rec api.SnapshotRecord) string {
	return rec.Pool + "\x00" + rec.Dataset + "\x00" + rec.Name
}

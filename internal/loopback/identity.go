package loopback

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

// Destination names registered by every node.
const (
	AppDestinationName  = "r3akt.emergency"
	LXMFDestinationName = "lxmf.delivery"
)

const (
	identityFile   = "identity.db"
	identityBucket = "identity"
	privateKey     = "private"
)

// identity is a node identity: private key material and the 16 byte hash
// derived from it.
type identity struct {
	private []byte
	hash    []byte
}

func newIdentity(private []byte) identity {
	sum := sha256.Sum256(private)
	return identity{private: private, hash: sum[:16]}
}

// identityFromName derives a stable identity for nodes without storage.
func identityFromName(name string) identity {
	sum := sha512.Sum512([]byte(name))
	return newIdentity(sum[:])
}

func (i identity) HashHex() string {
	return hex.EncodeToString(i.hash)
}

// DestinationHex returns the address of the named destination owned by i.
func (i identity) DestinationHex(name string) string {
	nameHash := sha256.Sum256([]byte(name))
	h := sha256.New()
	h.Write(nameHash[:10])
	h.Write(i.hash)
	return hex.EncodeToString(h.Sum(nil)[:16])
}

// identityStore keeps the node identity in a bbolt file under the storage
// directory. The file stays open while the node runs, which also keeps a
// second node from sharing the directory.
type identityStore struct {
	db *bbolt.DB
}

func openIdentityStore(path string) (*identityStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open identity store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(identityBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create identity bucket: %w", err)
	}
	return &identityStore{db: db}, nil
}

// LoadOrCreate returns the stored identity, generating and saving one on first use.
func (s *identityStore) LoadOrCreate() (identity, error) {
	var id identity
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(identityBucket))
		if raw := b.Get([]byte(privateKey)); raw != nil {
			private, err := hex.DecodeString(strings.TrimSpace(string(raw)))
			if err != nil {
				return fmt.Errorf("stored identity is corrupt: %w", err)
			}
			id = newIdentity(private)
			return nil
		}

		private := make([]byte, 64)
		if _, err := rand.Read(private); err != nil {
			return fmt.Errorf("failed to generate identity: %w", err)
		}
		id = newIdentity(private)
		return b.Put([]byte(privateKey), []byte(hex.EncodeToString(private)))
	})
	return id, err
}

func (s *identityStore) Close() error {
	return s.db.Close()
}

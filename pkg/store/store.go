// Package store implements crash-safe persistence of capabilities,
// revocations, issuer keys, and the audit log.
//
// Replace-whole artifacts (capability index, revocation set, issuer keys)
// are written via write-to-temp-then-rename, never in place. The audit
// log is append-only newline-delimited JSON.
//
// Exactly one writer touches persisted state at a time: every exported
// method that mutates the in-memory index or revocation set takes the
// store's mutex for its full duration. Readers see a consistent
// snapshot taken under a read lock.
package store

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/Connerlevi/capnet/pkg/contracts"
	"github.com/Connerlevi/capnet/pkg/crypto"
)

const (
	capabilitiesFile = "capabilities.json"
	revocationsFile  = "revocations.json"
	issuerKeysFile   = "issuer_keys.json"
	auditLogFile     = "audit_log.ndjson"
	probeFile        = ".probe"
)

// Store is the persistent backing store for the enforcement core.
type Store struct {
	dir string
	log *slog.Logger

	mu           sync.RWMutex
	capabilities map[string]*contracts.Capability
	revoked      map[string]bool
	issuerKey    *crypto.Keypair

	auditMu sync.Mutex // serializes audit log appends independently of mu
}

// Open loads (or initializes) the store rooted at dir, creating it if
// necessary and generating a fresh issuer keypair on first run.
func Open(dir string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	s := &Store{
		dir:          dir,
		log:          log,
		capabilities: make(map[string]*contracts.Capability),
		revoked:      make(map[string]bool),
	}

	if err := s.loadCapabilities(); err != nil {
		return nil, err
	}
	if err := s.loadRevocations(); err != nil {
		return nil, err
	}
	if err := s.loadOrGenerateIssuerKey(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// writeAtomic writes data to a temp file in the same directory as path
// and renames it into place. A crash mid-write yields either the old
// snapshot or the new one, never a half-written file.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// Probe exercises the store's write path without disturbing persisted
// state, for use by the health endpoint.
func (s *Store) Probe() error {
	return writeAtomic(s.path(probeFile), []byte("ok"))
}

func encodeKey(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func decodeKey(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

type issuerKeyRecord struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
}

func (s *Store) loadOrGenerateIssuerKey() error {
	path := s.path(issuerKeysFile)
	data, err := os.ReadFile(path)
	if err == nil {
		var rec issuerKeyRecord
		if jsonErr := json.Unmarshal(data, &rec); jsonErr == nil {
			pub, pubErr := decodeKey(rec.PublicKey)
			priv, privErr := decodeKey(rec.PrivateKey)
			if pubErr == nil && privErr == nil {
				kp, kpErr := crypto.KeypairFromBytes(pub, priv)
				if kpErr == nil {
					s.issuerKey = kp
					return nil
				}
			}
		}
		s.log.Error("store: issuer key file unreadable, this is unrecoverable", "path", path)
		return fmt.Errorf("store: issuer key file %s is corrupt", path)
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("store: read issuer keys: %w", err)
	}

	kp, err := crypto.GenerateKeypair()
	if err != nil {
		return fmt.Errorf("store: generate issuer keypair: %w", err)
	}
	rec := issuerKeyRecord{
		PublicKey:  encodeKey(kp.PublicKey),
		PrivateKey: encodeKey(kp.PrivateKey),
	}
	data, err = json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal issuer keys: %w", err)
	}
	if err := writeAtomic(path, data); err != nil {
		return fmt.Errorf("store: persist issuer keys: %w", err)
	}
	s.issuerKey = kp
	return nil
}

// IssuerKeypair returns the process's signing identity.
func (s *Store) IssuerKeypair() *crypto.Keypair {
	return s.issuerKey
}

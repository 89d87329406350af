// Copyright 2025 venslabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package snapshot keeps analysis documents in a bbolt database so runs can
// be listed and compared later.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/venslabs/depgraph/pkg/sbom"
)

var (
	documentsBucket = []byte("documents")
	entriesBucket   = []byte("entries")
)

// ErrNotFound is returned for unknown snapshot IDs.
var ErrNotFound = errors.New("snapshot not found")

// Entry describes a stored document.
type Entry struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	SerialNumber  string    `json:"serialNumber"`
	Timestamp     time.Time `json:"timestamp"`
	Components    int       `json:"components"`
	Findings      int       `json:"findings"`
	Unresolved    int       `json:"unresolved"`
	Indeterminate int       `json:"indeterminate"`
}

// Store is a snapshot database. It is safe for concurrent use; bbolt
// allows a single process to hold the file open.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{documentsBucket, entriesBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to initialize snapshot database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores d under name, usually the analyzed project, and returns its
// entry. IDs increase with every save.
func (s *Store) Save(name string, d *sbom.Document) (Entry, error) {
	body, err := json.Marshal(d)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{
		Name:          name,
		SerialNumber:  d.SerialNumber,
		Timestamp:     d.Timestamp,
		Components:    len(d.Components),
		Unresolved:    len(d.Unresolved),
		Indeterminate: len(d.Indeterminate),
	}
	for _, fs := range d.Findings {
		e.Findings += len(fs.Findings)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		docs := tx.Bucket(documentsBucket)
		seq, err := docs.NextSequence()
		if err != nil {
			return err
		}
		e.ID = formatID(seq)
		meta, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if err := docs.Put([]byte(e.ID), body); err != nil {
			return err
		}
		return tx.Bucket(entriesBucket).Put([]byte(e.ID), meta)
	})
	if err != nil {
		return Entry{}, fmt.Errorf("failed to save snapshot: %w", err)
	}
	return e, nil
}

// List returns every entry, oldest first.
func (s *Store) List() ([]Entry, error) {
	var out []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(entriesBucket).ForEach(func(_, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

// Get returns the document of a snapshot.
func (s *Store) Get(id string) (*sbom.Document, error) {
	var d sbom.Document
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(documentsBucket).Get([]byte(normalizeID(id)))
		if v == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(v, &d)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Latest returns the newest entry saved under name.
func (s *Store) Latest(name string) (Entry, error) {
	var found *Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(entriesBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			if e.Name == name {
				found = &e
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	if found == nil {
		return Entry{}, fmt.Errorf("%w: no snapshot named %q", ErrNotFound, name)
	}
	return *found, nil
}

// IDs are zero-padded so that byte order is insertion order.
func formatID(seq uint64) string {
	return fmt.Sprintf("%08d", seq)
}

// normalizeID accepts IDs without padding ("7" for "00000007").
func normalizeID(id string) string {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return formatID(n)
	}
	return id
}

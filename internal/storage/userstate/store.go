package userstate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/cryptowallet/internal/services/wallet"
)

const defaultUsersFile = "./resources/users.json"

// Store persists the whole user table as a single JSON document.
type Store struct {
	path string
}

// Record is the stored form of one user.
type Record struct {
	Username     string       `json:"username"`
	PasswordHash string       `json:"password_hash"`
	Wallet       wallet.State `json:"wallet"`
}

// Table is the persisted user table.
type Table struct {
	Users []Record `json:"users"`
}

// NewStore creates a store writing to path, creating its directory if needed.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = defaultUsersFile
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create users dir")
	}

	return &Store{path: path}, nil
}

// Path returns the table file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the table. A missing or empty file is an empty table.
func (s *Store) Load() (Table, error) {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Table{}, nil
		}

		return Table{}, errors.Wrap(err, "read users table")
	}

	if len(payload) == 0 {
		return Table{}, nil
	}

	var table Table
	if err := json.Unmarshal(payload, &table); err != nil {
		return Table{}, errors.Wrap(err, "decode users table")
	}

	return table, nil
}

// Save replaces the table on disk. The file is written to a temp sibling and renamed so a
// crash leaves either the old or the new table.
func (s *Store) Save(table Table) error {
	sort.Slice(table.Users, func(i, j int) bool {
		return table.Users[i].Username < table.Users[j].Username
	})

	payload, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode users table")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return errors.Wrap(err, "write users table temp file")
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist users table")
	}

	return nil
}

package db

import (
	"database/sql"
	"fmt"
)

// SettingsStore holds per-repository preferences as key/value pairs
// (preferred strategy, auto-stash, cleanup defaults). Values are opaque
// strings; the API layer owns their meaning.
type SettingsStore struct {
	db *DB
}

// NewSettingsStore creates a settings store over db.
func NewSettingsStore(db *DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Get returns the value for key. ok is false when the key is unset.
func (s *SettingsStore) Get(repoPath, key string) (value string, ok bool, err error) {
	query := fmt.Sprintf(
		"SELECT value FROM settings WHERE repo_path = %s AND key = %s",
		s.db.Placeholder(1), s.db.Placeholder(2),
	)

	if err := s.db.QueryRow(query, repoPath, key).Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores or replaces the value for key.
func (s *SettingsStore) Set(repoPath, key, value string) error {
	query := fmt.Sprintf(`
		INSERT INTO settings (repo_path, key, value, updated_at)
		VALUES (%s, %s, %s, %s)
		ON CONFLICT (repo_path, key) DO UPDATE SET value = excluded.value, updated_at = %s`,
		s.db.Placeholder(1), s.db.Placeholder(2), s.db.Placeholder(3), s.db.Now(), s.db.Now(),
	)

	if _, err := s.db.Exec(query, repoPath, key, value); err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// All returns every setting for a repository.
func (s *SettingsStore) All(repoPath string) (map[string]string, error) {
	query := fmt.Sprintf(
		"SELECT key, value FROM settings WHERE repo_path = %s",
		s.db.Placeholder(1),
	)

	rows, err := s.db.Query(query, repoPath)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		settings[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings: %w", err)
	}
	return settings, nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (s *SettingsStore) Delete(repoPath, key string) error {
	query := fmt.Sprintf(
		"DELETE FROM settings WHERE repo_path = %s AND key = %s",
		s.db.Placeholder(1), s.db.Placeholder(2),
	)

	if _, err := s.db.Exec(query, repoPath, key); err != nil {
		return fmt.Errorf("delete setting %s: %w", key, err)
	}
	return nil
}

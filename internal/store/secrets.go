package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Secret holds one site credential used for authenticated fetches. The
// password is stored encrypted; Value and Nonce are the vault ciphertext.
type Secret struct {
	ID          string    `json:"id"`
	Host        string    `json:"host"`
	Username    string    `json:"username"`
	Value       []byte    `json:"-"`
	Nonce       []byte    `json:"-"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (s *Store) SaveSecret(sec *Secret) error {
	_, err := s.db.Exec(`
		INSERT INTO secrets (id, host, username, value, nonce, description)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(host) DO UPDATE SET
			username=excluded.username, value=excluded.value,
			nonce=excluded.nonce, description=excluded.description,
			updated_at=CURRENT_TIMESTAMP`,
		sec.ID, sec.Host, sec.Username, sec.Value, sec.Nonce, sec.Description)
	if err != nil {
		return fmt.Errorf("save secret: %w", err)
	}
	return nil
}

func (s *Store) GetSecret(id string) (*Secret, error) {
	row := s.db.QueryRow(`
		SELECT id, host, username, value, nonce, description, created_at, updated_at
		FROM secrets WHERE id = ?`, id)
	sec, err := scanSecret(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get secret: %w", err)
	}
	return sec, nil
}

func (s *Store) GetSecretByHost(host string) (*Secret, error) {
	row := s.db.QueryRow(`
		SELECT id, host, username, value, nonce, description, created_at, updated_at
		FROM secrets WHERE host = ?`, host)
	sec, err := scanSecret(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get secret by host: %w", err)
	}
	return sec, nil
}

// ListSecrets returns credential metadata without the encrypted values.
func (s *Store) ListSecrets() ([]Secret, error) {
	rows, err := s.db.Query(`
		SELECT id, host, username, description, created_at, updated_at
		FROM secrets ORDER BY host`)
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}
	defer rows.Close()

	var secrets []Secret
	for rows.Next() {
		sec := &Secret{}
		var desc sql.NullString
		if err := rows.Scan(&sec.ID, &sec.Host, &sec.Username, &desc,
			&sec.CreatedAt, &sec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan secret: %w", err)
		}
		sec.Description = desc.String
		secrets = append(secrets, *sec)
	}
	return secrets, rows.Err()
}

func (s *Store) DeleteSecret(id string) error {
	_, err := s.db.Exec(`DELETE FROM secrets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSecret(sc scanner) (*Secret, error) {
	sec := &Secret{}
	var desc sql.NullString
	err := sc.Scan(&sec.ID, &sec.Host, &sec.Username, &sec.Value, &sec.Nonce,
		&desc, &sec.CreatedAt, &sec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sec.Description = desc.String
	return sec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ClientDB holds the console client's local state: which servers it has
// enrolled with and sticky preferences like the selected MIDI devices.
type ClientDB struct {
	db *sql.DB
}

// EnrolledServer is a faderbank server the console client knows about.
type EnrolledServer struct {
	ID            string    `json:"id"`
	BaseURL       string    `json:"base_url"`
	DisplayName   string    `json:"display_name"`
	LastConnected time.Time `json:"last_connected,omitempty"`
}

// Preference keys used by the console client.
const (
	PrefMIDIOutputDevice = "midi_output_device"
	PrefMIDIInputDevice  = "midi_input_device"
	PrefLastProfile      = "last_profile"
)

// NewClientDB opens or creates the client database.
func NewClientDB(path string) (*ClientDB, error) {
	db, err := sql.Open("sqlite3", path+"?_fk=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	cdb := &ClientDB{db: db}
	if err := cdb.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return cdb, nil
}

// Close closes the database connection.
func (c *ClientDB) Close() error {
	return c.db.Close()
}

func (c *ClientDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS enrolled_servers (
			id TEXT PRIMARY KEY,
			base_url TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			last_connected DATETIME
		);

		CREATE TABLE IF NOT EXISTS preferences (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`
	_, err := c.db.Exec(schema)
	return err
}

// EnrollServer adds or updates an enrolled server.
func (c *ClientDB) EnrollServer(baseURL, displayName string) (*EnrolledServer, error) {
	now := time.Now().UTC()
	id := uuid.New().String()

	_, err := c.db.Exec(`
		INSERT INTO enrolled_servers (id, base_url, display_name, last_connected)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(base_url) DO UPDATE SET
			display_name = excluded.display_name,
			last_connected = excluded.last_connected
	`, id, baseURL, displayName, now)
	if err != nil {
		return nil, err
	}

	// Fetch the actual ID (might be existing)
	var srv EnrolledServer
	err = c.db.QueryRow(`SELECT id, base_url, display_name, last_connected FROM enrolled_servers WHERE base_url = ?`, baseURL).
		Scan(&srv.ID, &srv.BaseURL, &srv.DisplayName, &srv.LastConnected)
	return &srv, err
}

// GetEnrolledServers returns all enrolled servers.
func (c *ClientDB) GetEnrolledServers() ([]EnrolledServer, error) {
	rows, err := c.db.Query(`SELECT id, base_url, display_name, last_connected FROM enrolled_servers ORDER BY display_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var servers []EnrolledServer
	for rows.Next() {
		var s EnrolledServer
		var lastConnected sql.NullTime
		if err := rows.Scan(&s.ID, &s.BaseURL, &s.DisplayName, &lastConnected); err != nil {
			return nil, err
		}
		if lastConnected.Valid {
			s.LastConnected = lastConnected.Time
		}
		servers = append(servers, s)
	}
	return servers, rows.Err()
}

// RemoveEnrolledServer removes an enrolled server.
func (c *ClientDB) RemoveEnrolledServer(id string) error {
	_, err := c.db.Exec(`DELETE FROM enrolled_servers WHERE id = ?`, id)
	return err
}

// GetPreference retrieves a preference value.
func (c *ClientDB) GetPreference(key string) (string, error) {
	var value string
	err := c.db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetPreference sets a preference value.
func (c *ClientDB) SetPreference(key, value string) error {
	_, err := c.db.Exec(`
		INSERT INTO preferences (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

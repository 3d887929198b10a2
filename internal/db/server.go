package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/phroun/faderbank/internal/models"
)

// ServerDB handles server-side database operations. SQLite serializes
// writers, so each single-statement mutation (including its version
// increment) is atomic per entity.
type ServerDB struct {
	db *sql.DB
}

// NewServerDB opens or creates the server database.
func NewServerDB(path string) (*ServerDB, error) {
	db, err := sql.Open("sqlite3", path+"?_fk=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sdb := &ServerDB{db: db}
	if err := sdb.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return sdb, nil
}

// Close closes the database connection.
func (s *ServerDB) Close() error {
	return s.db.Close()
}

func (s *ServerDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			owner_id TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS profile_members (
			profile_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL,
			PRIMARY KEY (profile_id, user_id)
		);

		CREATE TABLE IF NOT EXISTS channel_strips (
			id TEXT PRIMARY KEY,
			profile_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			color TEXT NOT NULL DEFAULT 'white',
			min_level INTEGER NOT NULL DEFAULT 0,
			max_level INTEGER NOT NULL DEFAULT 127,
			current_level INTEGER NOT NULL DEFAULT 0,
			is_muted INTEGER NOT NULL DEFAULT 0,
			is_solo INTEGER NOT NULL DEFAULT 0,
			midi_cc_output INTEGER NOT NULL DEFAULT 0,
			midi_cc_vu_input INTEGER,
			midi_cc_vu_right INTEGER,
			midi_cc_mute INTEGER,
			midi_cc_solo INTEGER,
			midi_channel INTEGER,
			state_version INTEGER NOT NULL DEFAULT 0,
			vu_level INTEGER NOT NULL DEFAULT 0,
			vu_level_right INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_strips_profile ON channel_strips(profile_id, position);

		CREATE TABLE IF NOT EXISTS buttons (
			id TEXT PRIMARY KEY,
			profile_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			label TEXT NOT NULL,
			mode TEXT NOT NULL DEFAULT 'toggle',
			midi_type TEXT NOT NULL DEFAULT 'cc',
			target INTEGER NOT NULL DEFAULT 0,
			on_value INTEGER NOT NULL DEFAULT 127,
			off_value INTEGER NOT NULL DEFAULT 0,
			midi_channel INTEGER,
			channel_strip_id TEXT REFERENCES channel_strips(id) ON DELETE SET NULL,
			is_on INTEGER NOT NULL DEFAULT 0,
			state_version INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_buttons_profile ON buttons(profile_id);

		CREATE TABLE IF NOT EXISTS profile_responsibility (
			profile_id TEXT PRIMARY KEY REFERENCES profiles(id) ON DELETE CASCADE,
			user_id TEXT,
			display_name TEXT,
			taken_at DATETIME
		);

		CREATE TABLE IF NOT EXISTS profile_activity (
			profile_id TEXT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			last_seen DATETIME NOT NULL,
			PRIMARY KEY (profile_id, user_id)
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateProfile creates a profile, its empty responsibility row, and an
// owner membership for the creator.
func (s *ServerDB) CreateProfile(name, slug string, owner *models.User) (*models.Profile, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO profiles (id, name, slug, owner_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, name, slug, owner.ID, now); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(`INSERT INTO profile_members (profile_id, user_id, display_name, role) VALUES (?, ?, ?, ?)`,
		id, owner.ID, owner.DisplayName, string(models.RoleOwner)); err != nil {
		return nil, err
	}
	if _, err := tx.Exec(`INSERT INTO profile_responsibility (profile_id) VALUES (?)`, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &models.Profile{ID: id, Name: name, Slug: slug, OwnerID: owner.ID, CreatedAt: now}, nil
}

// GetProfile returns a profile by ID, or nil if not found.
func (s *ServerDB) GetProfile(id string) (*models.Profile, error) {
	var p models.Profile
	err := s.db.QueryRow(`SELECT id, name, slug, owner_id, created_at FROM profiles WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Slug, &p.OwnerID, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfileBySlug returns a profile by slug, or nil if not found.
func (s *ServerDB) GetProfileBySlug(slug string) (*models.Profile, error) {
	var p models.Profile
	err := s.db.QueryRow(`SELECT id, name, slug, owner_id, created_at FROM profiles WHERE slug = ?`, slug).
		Scan(&p.ID, &p.Name, &p.Slug, &p.OwnerID, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProfile renames a profile and/or changes its slug.
func (s *ServerDB) UpdateProfile(id, name, slug string) error {
	_, err := s.db.Exec(`UPDATE profiles SET name = ?, slug = ? WHERE id = ?`, name, slug, id)
	return err
}

// DeleteProfile removes a profile. Strips, buttons, members, the
// responsibility token and activity records go with it via FK cascade.
func (s *ServerDB) DeleteProfile(id string) error {
	_, err := s.db.Exec(`DELETE FROM profiles WHERE id = ?`, id)
	return err
}

// TransferOwnership moves a profile to a new owner. The outgoing owner is
// demoted to admin and the new owner's membership promoted, in one
// transaction.
func (s *ServerDB) TransferOwnership(profileID, newOwnerID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var oldOwnerID string
	if err := tx.QueryRow(`SELECT owner_id FROM profiles WHERE id = ?`, profileID).Scan(&oldOwnerID); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE profiles SET owner_id = ? WHERE id = ?`, newOwnerID, profileID); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE profile_members SET role = ? WHERE profile_id = ? AND user_id = ?`,
		string(models.RoleAdmin), profileID, oldOwnerID); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE profile_members SET role = ? WHERE profile_id = ? AND user_id = ?`,
		string(models.RoleOwner), profileID, newOwnerID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetUserProfiles returns all profiles the user is a member of.
func (s *ServerDB) GetUserProfiles(userID string) ([]models.Profile, error) {
	rows, err := s.db.Query(`
		SELECT p.id, p.name, p.slug, p.owner_id, p.created_at
		FROM profiles p JOIN profile_members m ON m.profile_id = p.id
		WHERE m.user_id = ? ORDER BY p.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []models.Profile
	for rows.Next() {
		var p models.Profile
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.OwnerID, &p.CreatedAt); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// GetUserRole returns a user's role in a profile, or "" for non-members.
func (s *ServerDB) GetUserRole(profileID, userID string) (models.Role, error) {
	var role string
	err := s.db.QueryRow(`SELECT role FROM profile_members WHERE profile_id = ? AND user_id = ?`,
		profileID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return models.Role(role), err
}

// GetProfileMembers returns all members of a profile.
func (s *ServerDB) GetProfileMembers(profileID string) ([]models.Member, error) {
	rows, err := s.db.Query(`
		SELECT profile_id, user_id, display_name, role FROM profile_members
		WHERE profile_id = ? ORDER BY display_name
	`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		var m models.Member
		if err := rows.Scan(&m.ProfileID, &m.UserID, &m.DisplayName, &m.Role); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// UpsertMember adds a member or updates an existing member's role.
func (s *ServerDB) UpsertMember(m *models.Member) error {
	_, err := s.db.Exec(`
		INSERT INTO profile_members (profile_id, user_id, display_name, role)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(profile_id, user_id) DO UPDATE SET
			display_name = excluded.display_name,
			role = excluded.role
	`, m.ProfileID, m.UserID, m.DisplayName, string(m.Role))
	return err
}

// RemoveMember removes a member from a profile.
func (s *ServerDB) RemoveMember(profileID, userID string) error {
	_, err := s.db.Exec(`DELETE FROM profile_members WHERE profile_id = ? AND user_id = ?`, profileID, userID)
	return err
}

func scanStrip(scan func(dest ...interface{}) error) (*models.ChannelStrip, error) {
	var c models.ChannelStrip
	var vuIn, vuRight, ccMute, ccSolo, midiCh sql.NullInt64
	err := scan(&c.ID, &c.ProfileID, &c.Name, &c.Position, &c.Color,
		&c.MinLevel, &c.MaxLevel, &c.CurrentLevel, &c.IsMuted, &c.IsSolo,
		&c.MIDICCOutput, &vuIn, &vuRight, &ccMute, &ccSolo, &midiCh,
		&c.StateVersion, &c.VULevel, &c.VULevelRight)
	if err != nil {
		return nil, err
	}
	c.MIDICCVUInput = nullableInt(vuIn)
	c.MIDICCVURight = nullableInt(vuRight)
	c.MIDICCMute = nullableInt(ccMute)
	c.MIDICCSolo = nullableInt(ccSolo)
	c.MIDIChannel = nullableInt(midiCh)
	return &c, nil
}

func nullableInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func intValue(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

const stripColumns = `id, profile_id, name, position, color,
	min_level, max_level, current_level, is_muted, is_solo,
	midi_cc_output, midi_cc_vu_input, midi_cc_vu_right, midi_cc_mute, midi_cc_solo, midi_channel,
	state_version, vu_level, vu_level_right`

// GetChannelStrips returns all channel strips for a profile, by position.
func (s *ServerDB) GetChannelStrips(profileID string) ([]models.ChannelStrip, error) {
	rows, err := s.db.Query(`SELECT `+stripColumns+` FROM channel_strips WHERE profile_id = ? ORDER BY position`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var strips []models.ChannelStrip
	for rows.Next() {
		c, err := scanStrip(rows.Scan)
		if err != nil {
			return nil, err
		}
		strips = append(strips, *c)
	}
	return strips, rows.Err()
}

// GetChannelStrip returns a single channel strip, or nil if not found.
func (s *ServerDB) GetChannelStrip(id string) (*models.ChannelStrip, error) {
	c, err := scanStrip(s.db.QueryRow(`SELECT `+stripColumns+` FROM channel_strips WHERE id = ?`, id).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// CreateChannelStrip creates a new channel strip.
func (s *ServerDB) CreateChannelStrip(c *models.ChannelStrip) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := s.db.Exec(`
		INSERT INTO channel_strips
			(id, profile_id, name, position, color, min_level, max_level, current_level,
			 is_muted, is_solo, midi_cc_output, midi_cc_vu_input, midi_cc_vu_right,
			 midi_cc_mute, midi_cc_solo, midi_channel)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.ProfileID, c.Name, c.Position, c.Color, c.MinLevel, c.MaxLevel, c.CurrentLevel,
		c.IsMuted, c.IsSolo, c.MIDICCOutput, intValue(c.MIDICCVUInput), intValue(c.MIDICCVURight),
		intValue(c.MIDICCMute), intValue(c.MIDICCSolo), intValue(c.MIDIChannel))
	return err
}

// UpdateChannelStrip updates a strip's configuration fields. Level, mute
// and solo go through the versioned mutations instead.
func (s *ServerDB) UpdateChannelStrip(c *models.ChannelStrip) error {
	_, err := s.db.Exec(`
		UPDATE channel_strips SET
			name = ?, color = ?, min_level = ?, max_level = ?,
			midi_cc_output = ?, midi_cc_vu_input = ?, midi_cc_vu_right = ?,
			midi_cc_mute = ?, midi_cc_solo = ?, midi_channel = ?
		WHERE id = ?
	`, c.Name, c.Color, c.MinLevel, c.MaxLevel,
		c.MIDICCOutput, intValue(c.MIDICCVUInput), intValue(c.MIDICCVURight),
		intValue(c.MIDICCMute), intValue(c.MIDICCSolo), intValue(c.MIDIChannel), c.ID)
	return err
}

// DeleteChannelStrip deletes a channel strip; its mappings live on the row
// and go with it, and associated buttons are detached by the FK.
func (s *ServerDB) DeleteChannelStrip(id string) error {
	_, err := s.db.Exec(`DELETE FROM channel_strips WHERE id = ?`, id)
	return err
}

// ReorderChannelStrips rewrites positions to match the given ID order.
func (s *ServerDB) ReorderChannelStrips(profileID string, order []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for position, id := range order {
		if _, err := tx.Exec(`UPDATE channel_strips SET position = ? WHERE id = ? AND profile_id = ?`,
			position, id, profileID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SetFaderLevel updates a strip's level and bumps its state version in one
// statement, returning the new version. sql.ErrNoRows means no such strip.
func (s *ServerDB) SetFaderLevel(channelID string, level int) (int64, error) {
	var v int64
	err := s.db.QueryRow(`
		UPDATE channel_strips SET current_level = ?, state_version = state_version + 1
		WHERE id = ? RETURNING state_version
	`, level, channelID).Scan(&v)
	return v, err
}

// SetMuteState updates a strip's mute flag and bumps its state version.
func (s *ServerDB) SetMuteState(channelID string, muted bool) (int64, error) {
	var v int64
	err := s.db.QueryRow(`
		UPDATE channel_strips SET is_muted = ?, state_version = state_version + 1
		WHERE id = ? RETURNING state_version
	`, muted, channelID).Scan(&v)
	return v, err
}

// SetSoloState updates a strip's solo flag and bumps its state version.
func (s *ServerDB) SetSoloState(channelID string, solo bool) (int64, error) {
	var v int64
	err := s.db.QueryRow(`
		UPDATE channel_strips SET is_solo = ?, state_version = state_version + 1
		WHERE id = ? RETURNING state_version
	`, solo, channelID).Scan(&v)
	return v, err
}

// SetVULevels stores ephemeral meter levels without touching the state
// version. Scoped to the profile so a report keyed by a foreign channel
// ID matches nothing; returns whether a strip was updated.
func (s *ServerDB) SetVULevels(profileID, channelID string, level int, right *int) (bool, error) {
	var res sql.Result
	var err error
	if right != nil {
		res, err = s.db.Exec(`UPDATE channel_strips SET vu_level = ?, vu_level_right = ? WHERE id = ? AND profile_id = ?`,
			level, *right, channelID, profileID)
	} else {
		res, err = s.db.Exec(`UPDATE channel_strips SET vu_level = ? WHERE id = ? AND profile_id = ?`,
			level, channelID, profileID)
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func scanButton(scan func(dest ...interface{}) error) (*models.Button, error) {
	var b models.Button
	var midiCh sql.NullInt64
	var stripID sql.NullString
	err := scan(&b.ID, &b.ProfileID, &b.Label, &b.Mode, &b.MIDIType,
		&b.Target, &b.OnValue, &b.OffValue, &midiCh, &stripID, &b.IsOn, &b.StateVersion)
	if err != nil {
		return nil, err
	}
	b.MIDIChannel = nullableInt(midiCh)
	if stripID.Valid {
		b.ChannelStripID = &stripID.String
	}
	return &b, nil
}

const buttonColumns = `id, profile_id, label, mode, midi_type,
	target, on_value, off_value, midi_channel, channel_strip_id, is_on, state_version`

// GetButtons returns all buttons for a profile.
func (s *ServerDB) GetButtons(profileID string) ([]models.Button, error) {
	rows, err := s.db.Query(`SELECT `+buttonColumns+` FROM buttons WHERE profile_id = ? ORDER BY label`, profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buttons []models.Button
	for rows.Next() {
		b, err := scanButton(rows.Scan)
		if err != nil {
			return nil, err
		}
		buttons = append(buttons, *b)
	}
	return buttons, rows.Err()
}

// GetButton returns a single button, or nil if not found.
func (s *ServerDB) GetButton(id string) (*models.Button, error) {
	b, err := scanButton(s.db.QueryRow(`SELECT `+buttonColumns+` FROM buttons WHERE id = ?`, id).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

// CreateButton creates a new button.
func (s *ServerDB) CreateButton(b *models.Button) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	var stripID interface{}
	if b.ChannelStripID != nil {
		stripID = *b.ChannelStripID
	}
	_, err := s.db.Exec(`
		INSERT INTO buttons
			(id, profile_id, label, mode, midi_type, target, on_value, off_value,
			 midi_channel, channel_strip_id, is_on)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.ProfileID, b.Label, string(b.Mode), string(b.MIDIType), b.Target,
		b.OnValue, b.OffValue, intValue(b.MIDIChannel), stripID, b.IsOn)
	return err
}

// UpdateButton updates a button's configuration fields.
func (s *ServerDB) UpdateButton(b *models.Button) error {
	var stripID interface{}
	if b.ChannelStripID != nil {
		stripID = *b.ChannelStripID
	}
	_, err := s.db.Exec(`
		UPDATE buttons SET
			label = ?, mode = ?, midi_type = ?, target = ?, on_value = ?, off_value = ?,
			midi_channel = ?, channel_strip_id = ?
		WHERE id = ?
	`, b.Label, string(b.Mode), string(b.MIDIType), b.Target, b.OnValue, b.OffValue,
		intValue(b.MIDIChannel), stripID, b.ID)
	return err
}

// DeleteButton deletes a button.
func (s *ServerDB) DeleteButton(id string) error {
	_, err := s.db.Exec(`DELETE FROM buttons WHERE id = ?`, id)
	return err
}

// SetButtonState updates a button's persisted on/off state and bumps its
// state version, returning the new version.
func (s *ServerDB) SetButtonState(buttonID string, on bool) (int64, error) {
	var v int64
	err := s.db.QueryRow(`
		UPDATE buttons SET is_on = ?, state_version = state_version + 1
		WHERE id = ? RETURNING state_version
	`, on, buttonID).Scan(&v)
	return v, err
}

// BumpButtonVersion bumps a button's state version without touching its
// persisted state. Used for momentary presses, which have no stored state
// but still need a versioned broadcast.
func (s *ServerDB) BumpButtonVersion(buttonID string) (int64, error) {
	var v int64
	err := s.db.QueryRow(`
		UPDATE buttons SET state_version = state_version + 1
		WHERE id = ? RETURNING state_version
	`, buttonID).Scan(&v)
	return v, err
}

// GetResponsibility returns the profile's responsibility token. The row
// always exists; an empty UserID means unheld.
func (s *ServerDB) GetResponsibility(profileID string) (*models.Responsibility, error) {
	var r models.Responsibility
	var userID, displayName sql.NullString
	var takenAt sql.NullTime
	err := s.db.QueryRow(`
		SELECT profile_id, user_id, display_name, taken_at
		FROM profile_responsibility WHERE profile_id = ?
	`, profileID).Scan(&r.ProfileID, &userID, &displayName, &takenAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.UserID = userID.String
	r.DisplayName = displayName.String
	if takenAt.Valid {
		r.TakenAt = takenAt.Time
	}
	return &r, nil
}

// TakeResponsibility sets the holder iff the token is currently empty or
// already held by the same user. Returns false if someone else holds it.
func (s *ServerDB) TakeResponsibility(profileID string, user *models.User) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE profile_responsibility
		SET user_id = ?, display_name = ?, taken_at = ?
		WHERE profile_id = ? AND (user_id IS NULL OR user_id = '' OR user_id = ?)
	`, user.ID, user.DisplayName, time.Now().UTC(), profileID, user.ID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ForceTakeResponsibility unconditionally overwrites the holder.
func (s *ServerDB) ForceTakeResponsibility(profileID string, user *models.User) error {
	_, err := s.db.Exec(`
		UPDATE profile_responsibility
		SET user_id = ?, display_name = ?, taken_at = ?
		WHERE profile_id = ?
	`, user.ID, user.DisplayName, time.Now().UTC(), profileID)
	return err
}

// DropResponsibility clears the token iff the caller holds it. A non-holder
// drop matches no rows and is a no-op.
func (s *ServerDB) DropResponsibility(profileID, userID string) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE profile_responsibility
		SET user_id = NULL, display_name = NULL, taken_at = NULL
		WHERE profile_id = ? AND user_id = ?
	`, profileID, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// TouchActivity upserts the caller's last-seen record for a profile.
func (s *ServerDB) TouchActivity(profileID string, user *models.User) error {
	_, err := s.db.Exec(`
		INSERT INTO profile_activity (profile_id, user_id, display_name, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(profile_id, user_id) DO UPDATE SET
			display_name = excluded.display_name,
			last_seen = excluded.last_seen
	`, profileID, user.ID, user.DisplayName, time.Now().UTC())
	return err
}

// GetActiveUsers returns activity records seen within the window.
func (s *ServerDB) GetActiveUsers(profileID string, window time.Duration) ([]models.ActivityRecord, error) {
	cutoff := time.Now().UTC().Add(-window)
	rows, err := s.db.Query(`
		SELECT profile_id, user_id, display_name, last_seen FROM profile_activity
		WHERE profile_id = ? AND last_seen >= ? ORDER BY display_name
	`, profileID, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.ActivityRecord
	for rows.Next() {
		var a models.ActivityRecord
		if err := rows.Scan(&a.ProfileID, &a.UserID, &a.DisplayName, &a.LastSeen); err != nil {
			return nil, err
		}
		records = append(records, a)
	}
	return records, rows.Err()
}

// PruneActivity deletes activity records older than maxAge.
func (s *ServerDB) PruneActivity(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	res, err := s.db.Exec(`DELETE FROM profile_activity WHERE last_seen < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Package store is the authoritative keeper of profile state. It validates
// mutations at the boundary, applies them atomically with a per-entity
// version increment, and exposes the derived mute/solo cascade.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/phroun/faderbank/internal/db"
	"github.com/phroun/faderbank/internal/models"
)

// Error definitions for mutation validation failures.
var (
	ErrNotFound        = errors.New("entity not found")
	ErrLevelOutOfRange = errors.New("level out of range")
	ErrInvalidEntity   = errors.New("invalid entity")
)

// ResponsibilityHeldError is returned by Take when another user holds the
// token. It carries the holder so the caller can offer a forced take.
type ResponsibilityHeldError struct {
	HolderID   string
	HolderName string
}

func (e *ResponsibilityHeldError) Error() string {
	return fmt.Sprintf("responsibility held by %s", e.HolderID)
}

// Store wraps the database with the mutation service semantics: reject
// invalid requests before any state changes, never partially apply.
type Store struct {
	db     *db.ServerDB
	logger *zap.Logger
}

// New creates a Store.
func New(database *db.ServerDB, logger *zap.Logger) *Store {
	return &Store{db: database, logger: logger}
}

// DB exposes the underlying database for read paths that need no
// validation (snapshots, CRUD).
func (s *Store) DB() *db.ServerDB {
	return s.db
}

// SetLevel sets a strip's fader level and returns the new state version.
func (s *Store) SetLevel(channelID string, level int) (int64, error) {
	strip, err := s.db.GetChannelStrip(channelID)
	if err != nil {
		return 0, err
	}
	if strip == nil {
		return 0, fmt.Errorf("%w: channel %s", ErrNotFound, channelID)
	}
	if level < strip.MinLevel || level > strip.MaxLevel {
		return 0, fmt.Errorf("%w: %d not in [%d, %d]", ErrLevelOutOfRange, level, strip.MinLevel, strip.MaxLevel)
	}

	v, err := s.db.SetFaderLevel(channelID, level)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: channel %s", ErrNotFound, channelID)
	}
	return v, err
}

// SetMuted sets a strip's mute flag and returns the new state version.
func (s *Store) SetMuted(channelID string, muted bool) (int64, error) {
	v, err := s.db.SetMuteState(channelID, muted)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: channel %s", ErrNotFound, channelID)
	}
	return v, err
}

// SetSolo sets a strip's solo flag and returns the new state version.
func (s *Store) SetSolo(channelID string, solo bool) (int64, error) {
	v, err := s.db.SetSoloState(channelID, solo)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: channel %s", ErrNotFound, channelID)
	}
	return v, err
}

// PressButton records a button press. Toggle buttons persist the new
// state; momentary buttons only bump the version so the press can be
// broadcast. Returns the button, whether it reads as on, and the version.
func (s *Store) PressButton(buttonID string, on bool) (*models.Button, bool, int64, error) {
	button, err := s.db.GetButton(buttonID)
	if err != nil {
		return nil, false, 0, err
	}
	if button == nil {
		return nil, false, 0, fmt.Errorf("%w: button %s", ErrNotFound, buttonID)
	}

	var v int64
	switch button.Mode {
	case models.ButtonToggle:
		v, err = s.db.SetButtonState(buttonID, on)
	case models.ButtonMomentary:
		on = true
		v, err = s.db.BumpButtonVersion(buttonID)
	default:
		return nil, false, 0, fmt.Errorf("%w: button mode %q", ErrInvalidEntity, button.Mode)
	}
	if err == sql.ErrNoRows {
		return nil, false, 0, fmt.Errorf("%w: button %s", ErrNotFound, buttonID)
	}
	if err != nil {
		return nil, false, 0, err
	}
	button.IsOn = on
	button.StateVersion = v
	return button, on, v, nil
}

// SetVULevels stores ephemeral meter levels for a strip in the given
// profile. No version is assigned. Returns whether the strip exists in
// that profile.
func (s *Store) SetVULevels(profileID, channelID string, level int, right *int) (bool, error) {
	return s.db.SetVULevels(profileID, channelID, level, right)
}

// EffectiveLevels returns the profile's post-cascade output levels.
func (s *Store) EffectiveLevels(profileID string) (map[string]int, error) {
	strips, err := s.db.GetChannelStrips(profileID)
	if err != nil {
		return nil, err
	}
	return models.EffectiveLevels(strips), nil
}

// Take attempts to acquire responsibility. With force it always succeeds,
// replacing any prior holder. Without force, a token held by another user
// yields a ResponsibilityHeldError naming the holder.
func (s *Store) Take(profileID string, user *models.User, force bool) (*models.Responsibility, error) {
	if force {
		if err := s.db.ForceTakeResponsibility(profileID, user); err != nil {
			return nil, err
		}
		return s.db.GetResponsibility(profileID)
	}

	ok, err := s.db.TakeResponsibility(profileID, user)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := s.db.GetResponsibility(profileID)
		if err != nil {
			return nil, err
		}
		if current == nil || !current.Held() {
			// Lost a race against a drop; one retry settles it.
			ok, err := s.db.TakeResponsibility(profileID, user)
			if err != nil {
				return nil, err
			}
			if !ok {
				// Someone else took it between the read and the retry.
				fresh, err := s.db.GetResponsibility(profileID)
				if err != nil {
					return nil, err
				}
				if fresh != nil && fresh.Held() {
					return nil, &ResponsibilityHeldError{HolderID: fresh.UserID, HolderName: fresh.DisplayName}
				}
				return nil, &ResponsibilityHeldError{}
			}
			return s.takenBy(profileID, user.ID)
		}
		return nil, &ResponsibilityHeldError{HolderID: current.UserID, HolderName: current.DisplayName}
	}
	return s.takenBy(profileID, user.ID)
}

// takenBy reads back the token after a successful take. A successful Take
// must never hand the caller someone else's token; if a forced take slipped
// in between the update and the read, surface it as a conflict.
func (s *Store) takenBy(profileID, userID string) (*models.Responsibility, error) {
	resp, err := s.db.GetResponsibility(profileID)
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.UserID != userID {
		if resp != nil && resp.Held() {
			return nil, &ResponsibilityHeldError{HolderID: resp.UserID, HolderName: resp.DisplayName}
		}
		return nil, &ResponsibilityHeldError{}
	}
	return resp, nil
}

// Drop releases responsibility if the caller holds it. Dropping a token
// held by someone else (or nobody) is a silent no-op. Returns whether the
// token changed.
func (s *Store) Drop(profileID, userID string) (bool, error) {
	return s.db.DropResponsibility(profileID, userID)
}

// Responsibility returns the current token for a profile.
func (s *Store) Responsibility(profileID string) (*models.Responsibility, error) {
	return s.db.GetResponsibility(profileID)
}

// Touch records that a user interacted with a profile.
func (s *Store) Touch(profileID string, user *models.User) {
	if err := s.db.TouchActivity(profileID, user); err != nil {
		s.logger.Warn("failed to record activity",
			zap.String("profile_id", profileID), zap.Error(err))
	}
}

// ActiveUsers returns users seen within the window.
func (s *Store) ActiveUsers(profileID string, window time.Duration) ([]models.ActivityRecord, error) {
	return s.db.GetActiveUsers(profileID, window)
}

// PruneActivity removes stale activity records.
func (s *Store) PruneActivity(maxAge time.Duration) {
	n, err := s.db.PruneActivity(maxAge)
	if err != nil {
		s.logger.Warn("failed to prune activity", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Debug("pruned activity records", zap.Int64("count", n))
	}
}

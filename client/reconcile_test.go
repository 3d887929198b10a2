package client

import (
	"context"
	"errors"
	"testing"

	"github.com/phroun/faderbank/internal/models"
	"github.com/phroun/faderbank/internal/protocol"
)

type fakeRemote struct {
	nextVersion int64
	err         error

	levelCalls  []SetLevel
	muteCalls   []SetMute
	takeCalls   []bool
	dropCalls   int
	vuReports   []map[string]protocol.VUSample
	buttonCalls []PressButton
}

func (f *fakeRemote) Snapshot(ctx context.Context, profileID string) (*protocol.SnapshotMessage, error) {
	return nil, errors.New("not used")
}

func (f *fakeRemote) SetLevel(ctx context.Context, channelID string, level int) (int64, error) {
	f.levelCalls = append(f.levelCalls, SetLevel{ChannelID: channelID, Level: level})
	return f.nextVersion, f.err
}

func (f *fakeRemote) SetMute(ctx context.Context, channelID string, muted bool) (int64, error) {
	f.muteCalls = append(f.muteCalls, SetMute{ChannelID: channelID, Muted: muted})
	return f.nextVersion, f.err
}

func (f *fakeRemote) SetSolo(ctx context.Context, channelID string, solo bool) (int64, error) {
	return f.nextVersion, f.err
}

func (f *fakeRemote) PressButton(ctx context.Context, buttonID string, on bool) (int64, error) {
	f.buttonCalls = append(f.buttonCalls, PressButton{ButtonID: buttonID, On: on})
	return f.nextVersion, f.err
}

func (f *fakeRemote) Take(ctx context.Context, profileID string, force bool) error {
	f.takeCalls = append(f.takeCalls, force)
	return f.err
}

func (f *fakeRemote) Drop(ctx context.Context, profileID string) error {
	f.dropCalls++
	return f.err
}

func (f *fakeRemote) ReportVU(ctx context.Context, profileID string, levels map[string]protocol.VUSample) error {
	f.vuReports = append(f.vuReports, levels)
	return f.err
}

func seededSession(t *testing.T, remote Remote) *Session {
	t.Helper()
	s := NewSession(Options{
		Remote:      remote,
		ProfileID:   "p1",
		UserID:      "u-self",
		DisplayName: "Self",
	})
	s.apply(SnapshotReceived{Snapshot: &protocol.SnapshotMessage{
		Profile: models.Profile{ID: "p1", Name: "Main"},
		Strips: []models.ChannelStrip{
			{ID: "a", ProfileID: "p1", MaxLevel: 127, CurrentLevel: 50, StateVersion: 3},
			{ID: "b", ProfileID: "p1", MaxLevel: 127, CurrentLevel: 20, StateVersion: 1},
		},
		Buttons: []models.Button{
			{ID: "t1", ProfileID: "p1", Mode: models.ButtonToggle, StateVersion: 2},
		},
	}})
	return s
}

func stripByID(t *testing.T, s *Session, id string) models.ChannelStrip {
	t.Helper()
	for _, strip := range s.Strips() {
		if strip.ID == id {
			return strip
		}
	}
	t.Fatalf("strip %q not found", id)
	return models.ChannelStrip{}
}

func TestVersionGateAppliesNewerOnly(t *testing.T) {
	s := seededSession(t, &fakeRemote{})

	s.apply(LevelChanged{protocol.LevelUpdate{ChannelID: "a", Level: 90, Version: 4}})
	if got := stripByID(t, s, "a").CurrentLevel; got != 90 {
		t.Fatalf("newer update not applied: %d", got)
	}

	// Stale and duplicate deliveries are silent no-ops.
	s.apply(LevelChanged{protocol.LevelUpdate{ChannelID: "a", Level: 10, Version: 2}})
	s.apply(LevelChanged{protocol.LevelUpdate{ChannelID: "a", Level: 90, Version: 4}})
	if got := stripByID(t, s, "a").CurrentLevel; got != 90 {
		t.Fatalf("stale update applied: %d", got)
	}
}

func TestVersionGateIsPerEntity(t *testing.T) {
	s := seededSession(t, &fakeRemote{})

	// Version 2 is stale for a (at 3) but fresh for b (at 1).
	s.apply(LevelChanged{protocol.LevelUpdate{ChannelID: "a", Level: 10, Version: 2}})
	s.apply(LevelChanged{protocol.LevelUpdate{ChannelID: "b", Level: 99, Version: 2}})

	if got := stripByID(t, s, "a").CurrentLevel; got != 50 {
		t.Fatalf("stale update leaked across entities: %d", got)
	}
	if got := stripByID(t, s, "b").CurrentLevel; got != 99 {
		t.Fatalf("fresh update not applied: %d", got)
	}
}

func TestUnknownEntityIgnored(t *testing.T) {
	s := seededSession(t, &fakeRemote{})
	s.apply(LevelChanged{protocol.LevelUpdate{ChannelID: "ghost", Level: 10, Version: 99}})
	if len(s.Strips()) != 2 {
		t.Fatalf("unexpected strip count: %d", len(s.Strips()))
	}
}

func TestDragExemption(t *testing.T) {
	s := seededSession(t, &fakeRemote{nextVersion: 4})
	ctx := context.Background()

	s.execute(ctx, BeginDrag{ChannelID: "a"})
	s.execute(ctx, SetLevel{ChannelID: "a", Level: 70})

	// A remote update during the drag is ignored for the level, but its
	// version still advances the gate.
	s.apply(LevelChanged{protocol.LevelUpdate{ChannelID: "a", Level: 30, Version: 6}})
	if got := stripByID(t, s, "a").CurrentLevel; got != 70 {
		t.Fatalf("drag exemption broken: %d", got)
	}

	s.execute(ctx, EndDrag{ChannelID: "a"})

	// After the drag the gate has moved past version 6.
	s.apply(LevelChanged{protocol.LevelUpdate{ChannelID: "a", Level: 30, Version: 6}})
	if got := stripByID(t, s, "a").CurrentLevel; got != 70 {
		t.Fatalf("stale post-drag update applied: %d", got)
	}
	s.apply(LevelChanged{protocol.LevelUpdate{ChannelID: "a", Level: 30, Version: 7}})
	if got := stripByID(t, s, "a").CurrentLevel; got != 30 {
		t.Fatalf("fresh post-drag update not applied: %d", got)
	}
}

func TestOptimisticApplyAbsorbsEcho(t *testing.T) {
	remote := &fakeRemote{nextVersion: 4}
	s := seededSession(t, remote)
	ctx := context.Background()

	s.execute(ctx, SetLevel{ChannelID: "a", Level: 70})
	if got := stripByID(t, s, "a").CurrentLevel; got != 70 {
		t.Fatalf("optimistic apply missing: %d", got)
	}
	if len(remote.levelCalls) != 1 || remote.levelCalls[0].Level != 70 {
		t.Fatalf("remote not called: %v", remote.levelCalls)
	}

	// The server's broadcast echo of our own mutation carries the acked
	// version and must not re-apply.
	s.apply(LevelChanged{protocol.LevelUpdate{ChannelID: "a", Level: 70, Version: 4, UserID: "u-self"}})
	if got := stripByID(t, s, "a").CurrentLevel; got != 70 {
		t.Fatalf("echo disturbed state: %d", got)
	}

	// A later change by someone else still gets through.
	s.apply(LevelChanged{protocol.LevelUpdate{ChannelID: "a", Level: 55, Version: 5, UserID: "u-other"}})
	if got := stripByID(t, s, "a").CurrentLevel; got != 55 {
		t.Fatalf("later update blocked: %d", got)
	}
}

func TestAckIsAuthoritativeEvenWhenLower(t *testing.T) {
	// The speculative bump guesses lastApplied+1; the real version can be
	// lower if our view was ahead of the entity's true sequence.
	remote := &fakeRemote{nextVersion: 2}
	s := seededSession(t, remote)
	ctx := context.Background()

	s.execute(ctx, SetLevel{ChannelID: "a", Level: 70})

	// lastApplied must now be 2, so version 3 applies.
	s.apply(LevelChanged{protocol.LevelUpdate{ChannelID: "a", Level: 40, Version: 3}})
	if got := stripByID(t, s, "a").CurrentLevel; got != 40 {
		t.Fatalf("ack did not lower the gate: %d", got)
	}
}

func TestTransportErrorLeavesOptimisticState(t *testing.T) {
	remote := &fakeRemote{err: errors.New("boom")}
	s := seededSession(t, remote)

	s.execute(context.Background(), SetLevel{ChannelID: "a", Level: 70})
	if got := stripByID(t, s, "a").CurrentLevel; got != 70 {
		t.Fatalf("optimistic state lost: %d", got)
	}

	// The next snapshot repairs it: server still at 50, but with a
	// version above the speculative bump.
	s.apply(SnapshotReceived{Snapshot: &protocol.SnapshotMessage{
		Profile: models.Profile{ID: "p1"},
		Strips: []models.ChannelStrip{
			{ID: "a", ProfileID: "p1", MaxLevel: 127, CurrentLevel: 50, StateVersion: 5},
			{ID: "b", ProfileID: "p1", MaxLevel: 127, CurrentLevel: 20, StateVersion: 1},
		},
		Buttons: []models.Button{
			{ID: "t1", ProfileID: "p1", Mode: models.ButtonToggle, StateVersion: 2},
		},
	}})
	if got := stripByID(t, s, "a").CurrentLevel; got != 50 {
		t.Fatalf("snapshot did not repair state: %d", got)
	}
}

func TestSetLevelClampsToBounds(t *testing.T) {
	remote := &fakeRemote{nextVersion: 4}
	s := seededSession(t, remote)

	s.execute(context.Background(), SetLevel{ChannelID: "a", Level: 300})
	if got := stripByID(t, s, "a").CurrentLevel; got != 127 {
		t.Fatalf("level not clamped: %d", got)
	}
	if remote.levelCalls[0].Level != 127 {
		t.Fatalf("clamped value not sent: %d", remote.levelCalls[0].Level)
	}
}

func TestSnapshotMergeGatesPerEntity(t *testing.T) {
	s := seededSession(t, &fakeRemote{})

	// Live update moves a to version 7.
	s.apply(LevelChanged{protocol.LevelUpdate{ChannelID: "a", Level: 90, Version: 7}})

	// A poll snapshot raced the update: a is stale, b is newer, c is new,
	// and t1 disappeared.
	s.apply(SnapshotReceived{Snapshot: &protocol.SnapshotMessage{
		Profile: models.Profile{ID: "p1"},
		Strips: []models.ChannelStrip{
			{ID: "a", ProfileID: "p1", MaxLevel: 127, CurrentLevel: 50, StateVersion: 5},
			{ID: "b", ProfileID: "p1", MaxLevel: 127, CurrentLevel: 60, StateVersion: 2},
			{ID: "c", ProfileID: "p1", MaxLevel: 127, CurrentLevel: 10, StateVersion: 1},
		},
	}})

	if got := stripByID(t, s, "a").CurrentLevel; got != 90 {
		t.Fatalf("stale snapshot overwrote newer state: %d", got)
	}
	if got := stripByID(t, s, "b").CurrentLevel; got != 60 {
		t.Fatalf("newer snapshot entry not applied: %d", got)
	}
	if got := stripByID(t, s, "c").CurrentLevel; got != 10 {
		t.Fatalf("new strip not adopted: %d", got)
	}
	if len(s.Buttons()) != 0 {
		t.Fatalf("removed button survived: %v", s.Buttons())
	}
}

func TestConfigUpdates(t *testing.T) {
	s := seededSession(t, &fakeRemote{})

	s.apply(ConfigChanged{protocol.ConfigUpdate{
		ProfileID: "p1",
		Kind:      protocol.ConfigStripAdded,
		Strip:     &models.ChannelStrip{ID: "c", ProfileID: "p1", MaxLevel: 127},
	}})
	if len(s.Strips()) != 3 {
		t.Fatalf("strip not added: %d", len(s.Strips()))
	}

	s.apply(ConfigChanged{protocol.ConfigUpdate{
		ProfileID: "p1",
		Kind:      protocol.ConfigStripsReorder,
		Order:     []string{"c", "b", "a"},
	}})
	strips := s.Strips()
	if strips[0].ID != "c" || strips[2].ID != "a" {
		t.Fatalf("reorder not applied: %v", []string{strips[0].ID, strips[1].ID, strips[2].ID})
	}

	s.apply(ConfigChanged{protocol.ConfigUpdate{
		ProfileID: "p1",
		Kind:      protocol.ConfigStripDeleted,
		DeletedID: "b",
	}})
	if len(s.Strips()) != 2 {
		t.Fatalf("strip not deleted: %d", len(s.Strips()))
	}
}

func TestConfigUpdateKeepsNewerLiveState(t *testing.T) {
	s := seededSession(t, &fakeRemote{})
	s.apply(LevelChanged{protocol.LevelUpdate{ChannelID: "a", Level: 90, Version: 7}})

	// A config edit broadcast can carry a snapshot of the strip that is
	// older than live state; the rename applies, the level does not
	// regress.
	s.apply(ConfigChanged{protocol.ConfigUpdate{
		ProfileID: "p1",
		Kind:      protocol.ConfigStripUpdated,
		Strip:     &models.ChannelStrip{ID: "a", ProfileID: "p1", Name: "Lead Vox", MaxLevel: 127, CurrentLevel: 50, StateVersion: 3},
	}})

	strip := stripByID(t, s, "a")
	if strip.Name != "Lead Vox" {
		t.Fatalf("config rename lost: %q", strip.Name)
	}
	if strip.CurrentLevel != 90 {
		t.Fatalf("config update regressed level: %d", strip.CurrentLevel)
	}
}

func TestResponsibilityLastWriteWins(t *testing.T) {
	s := seededSession(t, &fakeRemote{})

	s.apply(ResponsibilityChanged{protocol.ResponsibilityUpdate{ProfileID: "p1", UserID: "u-other", DisplayName: "Other"}})
	if s.HasResponsibility() {
		t.Fatal("should not hold someone else's token")
	}
	if got := s.Responsibility().UserID; got != "u-other" {
		t.Fatalf("holder not recorded: %q", got)
	}

	// Empty user means dropped.
	s.apply(ResponsibilityChanged{protocol.ResponsibilityUpdate{ProfileID: "p1"}})
	if s.Responsibility().Held() {
		t.Fatal("drop not applied")
	}
}

func TestTakeConflictSurfacesHolder(t *testing.T) {
	remote := &fakeRemote{err: &ConflictError{HolderID: "u-other", HolderName: "Other"}}
	var got protocol.ErrorMessage
	s := NewSession(Options{
		Remote:    remote,
		ProfileID: "p1",
		UserID:    "u-self",
		OnError:   func(e protocol.ErrorMessage) { got = e },
	})

	s.execute(context.Background(), Take{})

	if got.Code != protocol.ErrCodeConflict {
		t.Fatalf("expected conflict code, got %q", got.Code)
	}
	if got.HolderName != "Other" {
		t.Fatalf("holder not surfaced: %+v", got)
	}
	if s.HasResponsibility() {
		t.Fatal("failed take must not claim the token")
	}
}

func TestTakeSuccessReflectsLocally(t *testing.T) {
	s := seededSession(t, &fakeRemote{})
	s.execute(context.Background(), Take{})
	if !s.HasResponsibility() {
		t.Fatal("successful take should reflect locally")
	}
	// The local holder renders with a name before the broadcast arrives.
	if got := s.Responsibility().DisplayName; got != "Self" {
		t.Fatalf("holder display name = %q, want %q", got, "Self")
	}

	s.execute(context.Background(), Drop{})
	if s.Responsibility().Held() {
		t.Fatal("drop should release locally")
	}
}

func TestPresenceUpdates(t *testing.T) {
	s := seededSession(t, &fakeRemote{})

	s.apply(PresenceChanged{protocol.PresenceUpdate{ProfileID: "p1", UserID: "u-x", DisplayName: "X", Online: true}})
	if len(s.Online()) != 1 {
		t.Fatalf("join not recorded: %v", s.Online())
	}
	// Duplicate joins collapse.
	s.apply(PresenceChanged{protocol.PresenceUpdate{ProfileID: "p1", UserID: "u-x", DisplayName: "X", Online: true}})
	if len(s.Online()) != 1 {
		t.Fatalf("duplicate join duplicated: %v", s.Online())
	}
	s.apply(PresenceChanged{protocol.PresenceUpdate{ProfileID: "p1", UserID: "u-x", Online: false}})
	if len(s.Online()) != 0 {
		t.Fatalf("leave not recorded: %v", s.Online())
	}
}

func TestToggleButtonApplies(t *testing.T) {
	s := seededSession(t, &fakeRemote{})

	s.apply(ButtonChanged{protocol.ButtonUpdate{ButtonID: "t1", On: true, Version: 3}})
	buttons := s.Buttons()
	if len(buttons) != 1 || !buttons[0].IsOn {
		t.Fatalf("toggle state not applied: %v", buttons)
	}
	// Stale duplicate.
	s.apply(ButtonChanged{protocol.ButtonUpdate{ButtonID: "t1", On: false, Version: 3}})
	if !s.Buttons()[0].IsOn {
		t.Fatal("stale button update applied")
	}
}

package client

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/phroun/faderbank/internal/models"
	"github.com/phroun/faderbank/internal/protocol"
)

// apply merges one inbound update. Both transports deliver at least
// once with duplicates and reordering; the per-entity version gate makes
// every merge idempotent, so an update is applied iff its version is
// strictly newer than the last one applied to that entity.
func (s *Session) apply(u Update) {
	switch up := u.(type) {
	case SnapshotReceived:
		s.applySnapshot(up.Snapshot)
	case LevelChanged:
		s.applyLevel(up.LevelUpdate)
	case MuteChanged:
		s.applyMute(up.MuteUpdate)
	case SoloChanged:
		s.applySolo(up.SoloUpdate)
	case ButtonChanged:
		s.applyButton(up.ButtonUpdate)
	case ResponsibilityChanged:
		s.applyResponsibility(up.ResponsibilityUpdate)
	case PresenceChanged:
		s.applyPresence(up.PresenceUpdate)
	case ConfigChanged:
		s.applyConfig(up.ConfigUpdate)
	case VULevels:
		s.applyVU(up.VUUpdate)
	case AckReceived:
		s.applyAck(up.AckMessage)
	case ErrorReceived:
		if s.onError != nil {
			s.onError(up.ErrorMessage)
		}
	}
}

func (s *Session) applyLevel(up protocol.LevelUpdate) {
	s.mu.Lock()
	strip, ok := s.strips[up.ChannelID]
	if !ok || up.Version <= s.lastApplied[up.ChannelID] {
		s.mu.Unlock()
		return
	}
	s.lastApplied[up.ChannelID] = up.Version
	strip.StateVersion = up.Version
	if s.dragging[up.ChannelID] {
		// Grabbed fader keeps the local value; the version still
		// advances so later updates gate correctly.
		s.mu.Unlock()
		return
	}
	strip.CurrentLevel = up.Level
	effective := models.EffectiveLevels(s.stripsLocked())[strip.ID]
	changed := *strip
	s.mu.Unlock()

	if s.mapper != nil {
		s.mapper.SendLevel(&changed, effective)
	}
}

func (s *Session) applyMute(up protocol.MuteUpdate) {
	s.mu.Lock()
	strip, ok := s.strips[up.ChannelID]
	if !ok || up.Version <= s.lastApplied[up.ChannelID] {
		s.mu.Unlock()
		return
	}
	s.lastApplied[up.ChannelID] = up.Version
	strip.StateVersion = up.Version
	strip.IsMuted = up.Muted
	strips := s.stripsLocked()
	changed := *strip
	s.mu.Unlock()

	if s.mapper != nil {
		s.mapper.SendMuteSolo(strips, &changed)
	}
}

func (s *Session) applySolo(up protocol.SoloUpdate) {
	s.mu.Lock()
	strip, ok := s.strips[up.ChannelID]
	if !ok || up.Version <= s.lastApplied[up.ChannelID] {
		s.mu.Unlock()
		return
	}
	s.lastApplied[up.ChannelID] = up.Version
	strip.StateVersion = up.Version
	strip.IsSolo = up.Solo
	strips := s.stripsLocked()
	changed := *strip
	s.mu.Unlock()

	if s.mapper != nil {
		s.mapper.SendMuteSolo(strips, &changed)
	}
}

func (s *Session) applyButton(up protocol.ButtonUpdate) {
	s.mu.Lock()
	button, ok := s.buttons[up.ButtonID]
	if !ok || up.Version <= s.lastApplied[up.ButtonID] {
		s.mu.Unlock()
		return
	}
	s.lastApplied[up.ButtonID] = up.Version
	button.StateVersion = up.Version
	if button.Mode == models.ButtonToggle {
		button.IsOn = up.On
	}
	changed := *button
	s.mu.Unlock()

	if s.mapper != nil {
		s.mapper.PressButton(&changed, up.On)
	}
}

// applyResponsibility replaces the holder. Responsibility is keyed by
// identity, not versioned; last write wins.
func (s *Session) applyResponsibility(up protocol.ResponsibilityUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responsibility = models.Responsibility{
		ProfileID:   s.profileID,
		UserID:      up.UserID,
		DisplayName: up.DisplayName,
	}
	if up.UserID != "" {
		s.responsibility.TakenAt = time.Now()
	}
}

func (s *Session) applyPresence(up protocol.PresenceUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if up.Online {
		s.online[up.UserID] = models.ActivityRecord{
			ProfileID:   s.profileID,
			UserID:      up.UserID,
			DisplayName: up.DisplayName,
			LastSeen:    time.Now(),
		}
	} else {
		delete(s.online, up.UserID)
	}
}

func (s *Session) applyConfig(up protocol.ConfigUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch up.Kind {
	case protocol.ConfigStripAdded, protocol.ConfigStripUpdated:
		if up.Strip == nil {
			return
		}
		in := *up.Strip
		if existing, ok := s.strips[in.ID]; ok {
			// Config edits don't bump the state version, so keep the
			// live level/mute/solo if ours is newer.
			if in.StateVersion < s.lastApplied[in.ID] {
				in.CurrentLevel = existing.CurrentLevel
				in.IsMuted = existing.IsMuted
				in.IsSolo = existing.IsSolo
				in.StateVersion = existing.StateVersion
			}
			*existing = in
		} else {
			s.strips[in.ID] = &in
			s.order = append(s.order, in.ID)
		}
		if in.StateVersion > s.lastApplied[in.ID] {
			s.lastApplied[in.ID] = in.StateVersion
		}
	case protocol.ConfigStripDeleted:
		s.forgetStripLocked(up.DeletedID)
	case protocol.ConfigStripsReorder:
		order := make([]string, 0, len(up.Order))
		for _, id := range up.Order {
			if _, ok := s.strips[id]; ok {
				order = append(order, id)
			}
		}
		s.order = order
	case protocol.ConfigButtonAdded, protocol.ConfigButtonUpdated:
		if up.Button == nil {
			return
		}
		in := *up.Button
		if existing, ok := s.buttons[in.ID]; ok {
			if in.StateVersion < s.lastApplied[in.ID] {
				in.IsOn = existing.IsOn
				in.StateVersion = existing.StateVersion
			}
			*existing = in
		} else {
			s.buttons[in.ID] = &in
		}
		if in.StateVersion > s.lastApplied[in.ID] {
			s.lastApplied[in.ID] = in.StateVersion
		}
	case protocol.ConfigButtonDeleted:
		delete(s.buttons, up.DeletedID)
		delete(s.lastApplied, up.DeletedID)
	}
}

func (s *Session) forgetStripLocked(id string) {
	delete(s.strips, id)
	delete(s.lastApplied, id)
	delete(s.dragging, id)
	for i, orderID := range s.order {
		if orderID == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.meters != nil {
		s.meters.Forget(id)
	}
}

func (s *Session) applyVU(up protocol.VUUpdate) {
	if s.meters == nil {
		return
	}
	for id, sample := range up.Levels {
		s.meters.ApplyBroadcast(id, sample.Level, sample.Right)
	}
}

// applyAck records the authoritative version for an entity. The ack
// always wins, even when lower than the speculative bump from an
// optimistic apply.
func (s *Session) applyAck(ack protocol.AckMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastApplied[ack.EntityID] = ack.Version
	if strip, ok := s.strips[ack.EntityID]; ok {
		strip.StateVersion = ack.Version
	}
	if button, ok := s.buttons[ack.EntityID]; ok {
		button.StateVersion = ack.Version
	}
}

// applySnapshot merges a full snapshot through the same per-entity gate
// as incremental updates, adopts added entities, and drops absent ones.
func (s *Session) applySnapshot(snap *protocol.SnapshotMessage) {
	if snap == nil {
		return
	}
	s.mu.Lock()
	s.profile = snap.Profile

	muteSoloChanged := false
	var levelsChanged []string
	seen := make(map[string]bool, len(snap.Strips))
	order := make([]string, 0, len(snap.Strips))

	for i := range snap.Strips {
		in := snap.Strips[i]
		seen[in.ID] = true
		order = append(order, in.ID)

		existing, ok := s.strips[in.ID]
		if !ok {
			strip := in
			s.strips[in.ID] = &strip
			s.lastApplied[in.ID] = in.StateVersion
			levelsChanged = append(levelsChanged, in.ID)
			if in.IsMuted || in.IsSolo {
				muteSoloChanged = true
			}
			continue
		}
		if in.StateVersion <= s.lastApplied[in.ID] {
			continue
		}
		s.lastApplied[in.ID] = in.StateVersion
		if existing.IsMuted != in.IsMuted || existing.IsSolo != in.IsSolo {
			muteSoloChanged = true
		}
		prevLevel := existing.CurrentLevel
		held := s.dragging[in.ID]
		*existing = in
		if held {
			existing.CurrentLevel = prevLevel
		} else if existing.CurrentLevel != prevLevel {
			levelsChanged = append(levelsChanged, in.ID)
		}
	}
	for id := range s.strips {
		if !seen[id] {
			s.forgetStripLocked(id)
		}
	}
	s.order = order

	for i := range snap.Buttons {
		in := snap.Buttons[i]
		existing, ok := s.buttons[in.ID]
		if !ok {
			button := in
			s.buttons[in.ID] = &button
			s.lastApplied[in.ID] = in.StateVersion
			continue
		}
		if in.StateVersion <= s.lastApplied[in.ID] {
			continue
		}
		s.lastApplied[in.ID] = in.StateVersion
		*existing = in
	}
	buttonSeen := make(map[string]bool, len(snap.Buttons))
	for i := range snap.Buttons {
		buttonSeen[snap.Buttons[i].ID] = true
	}
	for id := range s.buttons {
		if !buttonSeen[id] {
			delete(s.buttons, id)
			delete(s.lastApplied, id)
		}
	}

	s.responsibility = snap.Responsibility
	s.online = make(map[string]models.ActivityRecord, len(snap.Online))
	for _, rec := range snap.Online {
		s.online[rec.UserID] = rec
	}

	strips := s.stripsLocked()
	s.mu.Unlock()

	if s.meters != nil {
		for i := range snap.Strips {
			in := &snap.Strips[i]
			var right *int
			if in.MIDICCVURight != nil {
				r := in.VULevelRight
				right = &r
			}
			s.meters.ApplyBroadcast(in.ID, in.VULevel, right)
		}
	}

	if s.mapper == nil {
		return
	}
	if muteSoloChanged {
		s.mapper.SendAllLevels(strips)
		return
	}
	if len(levelsChanged) > 0 {
		effective := models.EffectiveLevels(strips)
		for i := range strips {
			strip := &strips[i]
			for _, id := range levelsChanged {
				if strip.ID == id {
					s.mapper.SendLevel(strip, effective[id])
				}
			}
		}
	}
}

// execute runs an outbound command: optimistic local apply with a
// speculative version bump, then the remote call. The returned version
// replaces the speculation. Transport failures are swallowed; the next
// poll cycle restores the authoritative state.
func (s *Session) execute(ctx context.Context, c Command) {
	switch cmd := c.(type) {
	case BeginDrag:
		s.mu.Lock()
		s.dragging[cmd.ChannelID] = true
		s.mu.Unlock()

	case EndDrag:
		s.mu.Lock()
		delete(s.dragging, cmd.ChannelID)
		s.mu.Unlock()

	case SetLevel:
		s.mu.Lock()
		strip, ok := s.strips[cmd.ChannelID]
		if !ok {
			s.mu.Unlock()
			return
		}
		level := cmd.Level
		if level < strip.MinLevel {
			level = strip.MinLevel
		}
		if level > strip.MaxLevel {
			level = strip.MaxLevel
		}
		strip.CurrentLevel = level
		s.lastApplied[cmd.ChannelID]++
		effective := models.EffectiveLevels(s.stripsLocked())[strip.ID]
		changed := *strip
		s.mu.Unlock()

		if s.mapper != nil {
			s.mapper.SendLevel(&changed, effective)
		}
		version, err := s.remote.SetLevel(ctx, cmd.ChannelID, level)
		s.settle(cmd.ChannelID, version, err)

	case SetMute:
		s.mu.Lock()
		strip, ok := s.strips[cmd.ChannelID]
		if !ok {
			s.mu.Unlock()
			return
		}
		strip.IsMuted = cmd.Muted
		s.lastApplied[cmd.ChannelID]++
		strips := s.stripsLocked()
		changed := *strip
		s.mu.Unlock()

		if s.mapper != nil {
			s.mapper.SendMuteSolo(strips, &changed)
		}
		version, err := s.remote.SetMute(ctx, cmd.ChannelID, cmd.Muted)
		s.settle(cmd.ChannelID, version, err)

	case SetSolo:
		s.mu.Lock()
		strip, ok := s.strips[cmd.ChannelID]
		if !ok {
			s.mu.Unlock()
			return
		}
		strip.IsSolo = cmd.Solo
		s.lastApplied[cmd.ChannelID]++
		strips := s.stripsLocked()
		changed := *strip
		s.mu.Unlock()

		if s.mapper != nil {
			s.mapper.SendMuteSolo(strips, &changed)
		}
		version, err := s.remote.SetSolo(ctx, cmd.ChannelID, cmd.Solo)
		s.settle(cmd.ChannelID, version, err)

	case PressButton:
		s.mu.Lock()
		button, ok := s.buttons[cmd.ButtonID]
		if !ok {
			s.mu.Unlock()
			return
		}
		on := cmd.On
		if button.Mode == models.ButtonToggle {
			button.IsOn = on
		} else {
			on = true
		}
		s.lastApplied[cmd.ButtonID]++
		changed := *button
		s.mu.Unlock()

		if s.mapper != nil {
			s.mapper.PressButton(&changed, on)
		}
		version, err := s.remote.PressButton(ctx, cmd.ButtonID, on)
		s.settle(cmd.ButtonID, version, err)

	case Take:
		err := s.remote.Take(ctx, s.profileID, cmd.Force)
		if err != nil {
			if conflict, ok := err.(*ConflictError); ok && s.onError != nil {
				s.onError(protocol.ErrorMessage{
					Code:       protocol.ErrCodeConflict,
					Message:    conflict.Error(),
					HolderID:   conflict.HolderID,
					HolderName: conflict.HolderName,
				})
				return
			}
			s.logger.Debug("take failed", zap.Error(err))
			return
		}
		// The broadcast confirms; reflect it locally right away.
		s.apply(ResponsibilityChanged{protocol.ResponsibilityUpdate{
			ProfileID:   s.profileID,
			UserID:      s.userID,
			DisplayName: s.displayName,
		}})

	case Drop:
		held := s.HasResponsibility()
		if err := s.remote.Drop(ctx, s.profileID); err != nil {
			s.logger.Debug("drop failed", zap.Error(err))
			return
		}
		if held {
			s.apply(ResponsibilityChanged{protocol.ResponsibilityUpdate{
				ProfileID: s.profileID,
			}})
		}
	}
}

// settle resolves an in-flight mutation with its ack.
func (s *Session) settle(entityID string, version int64, err error) {
	if err != nil {
		s.logger.Debug("mutation failed", zap.String("entity", entityID), zap.Error(err))
		return
	}
	s.applyAck(protocol.AckMessage{EntityID: entityID, Version: version})
}

// Package client is the console-side sync engine. A Session holds one
// profile's reconciled state and merges updates from both transports,
// the WebSocket push feed and the polling snapshot, through the same
// version gate so duplicated and reordered delivery collapses to
// no-ops.
package client

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/phroun/faderbank/internal/midi"
	"github.com/phroun/faderbank/internal/models"
	"github.com/phroun/faderbank/internal/protocol"
	"github.com/phroun/faderbank/internal/vu"
)

// Options configures a Session. Mapper and Meters are optional; a nil
// value disables hardware output or metering respectively.
type Options struct {
	Remote      Remote
	ProfileID   string
	UserID      string
	DisplayName string
	Logger      *zap.Logger

	Mapper *midi.Mapper
	Meters *vu.Engine

	// VUTick is the decay tick interval; VUBroadcast the interval at
	// which locally captured peaks are drained and reported.
	VUTick      time.Duration
	VUBroadcast time.Duration

	// OnError receives server rejections, including responsibility
	// conflicts carrying the holder. May be nil.
	OnError func(protocol.ErrorMessage)
}

// Session is one connection's view of a profile. All merges and command
// executions run on the Run loop goroutine; the read accessors take the
// lock so a UI can render from another goroutine.
type Session struct {
	remote      Remote
	profileID   string
	userID      string
	displayName string
	logger      *zap.Logger
	mapper    *midi.Mapper
	meters    *vu.Engine
	onError   func(protocol.ErrorMessage)

	vuTick      time.Duration
	vuBroadcast time.Duration

	updates  chan Update
	commands chan Command

	mu             sync.RWMutex
	profile        models.Profile
	strips         map[string]*models.ChannelStrip
	order          []string
	buttons        map[string]*models.Button
	responsibility models.Responsibility
	online         map[string]models.ActivityRecord
	lastApplied    map[string]int64
	dragging       map[string]bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewSession creates a session. Call Run to start processing.
func NewSession(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	vuTick := opts.VUTick
	if vuTick == 0 {
		vuTick = 50 * time.Millisecond
	}
	vuBroadcast := opts.VUBroadcast
	if vuBroadcast == 0 {
		vuBroadcast = 250 * time.Millisecond
	}
	return &Session{
		remote:      opts.Remote,
		profileID:   opts.ProfileID,
		userID:      opts.UserID,
		displayName: opts.DisplayName,
		logger:      logger,
		mapper:      opts.Mapper,
		meters:      opts.Meters,
		onError:     opts.OnError,
		vuTick:      vuTick,
		vuBroadcast: vuBroadcast,
		updates:     make(chan Update, 64),
		commands:    make(chan Command, 16),
		strips:      make(map[string]*models.ChannelStrip),
		buttons:     make(map[string]*models.Button),
		online:      make(map[string]models.ActivityRecord),
		lastApplied: make(map[string]int64),
		dragging:    make(map[string]bool),
		done:        make(chan struct{}),
	}
}

// Deliver queues an inbound update. Feeds call this; a full queue drops
// the update, the next poll cycle repairs any loss.
func (s *Session) Deliver(u Update) {
	select {
	case s.updates <- u:
	case <-s.done:
	default:
		s.logger.Debug("update queue full, dropping")
	}
}

// Submit queues an outbound command.
func (s *Session) Submit(c Command) {
	select {
	case s.commands <- c:
	case <-s.done:
	}
}

// Close stops the session and releases the MIDI devices.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.mapper != nil {
			if err := s.mapper.Close(); err != nil {
				s.logger.Warn("close midi output", zap.Error(err))
			}
		}
	})
}

// Run processes updates and commands until ctx is canceled.
func (s *Session) Run(ctx context.Context) {
	defer s.Close()

	decay := time.NewTicker(s.vuTick)
	defer decay.Stop()
	broadcast := time.NewTicker(s.vuBroadcast)
	defer broadcast.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case u := <-s.updates:
			s.apply(u)
		case c := <-s.commands:
			s.execute(ctx, c)
		case now := <-decay.C:
			if s.meters != nil {
				s.meters.Tick(now.Sub(last))
			}
			last = now
		case <-broadcast.C:
			s.reportVU(ctx)
		}
	}
}

func (s *Session) reportVU(ctx context.Context) {
	if s.meters == nil {
		return
	}
	pending := s.meters.DrainOutgoing()
	if len(pending) == 0 {
		return
	}
	levels := make(map[string]protocol.VUSample, len(pending))
	for id, sample := range pending {
		levels[id] = protocol.VUSample{Level: sample.Level, Right: sample.Right}
	}
	if err := s.remote.ReportVU(ctx, s.profileID, levels); err != nil {
		s.logger.Debug("vu report failed", zap.Error(err))
	}
}

// Strips returns the strips in display order.
func (s *Session) Strips() []models.ChannelStrip {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stripsLocked()
}

func (s *Session) stripsLocked() []models.ChannelStrip {
	out := make([]models.ChannelStrip, 0, len(s.order))
	for _, id := range s.order {
		if strip, ok := s.strips[id]; ok {
			out = append(out, *strip)
		}
	}
	return out
}

// Buttons returns the current buttons.
func (s *Session) Buttons() []models.Button {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Button, 0, len(s.buttons))
	for _, b := range s.buttons {
		out = append(out, *b)
	}
	return out
}

// Responsibility returns the current holder.
func (s *Session) Responsibility() models.Responsibility {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.responsibility
}

// Online returns who is currently active on the profile.
func (s *Session) Online() []models.ActivityRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ActivityRecord, 0, len(s.online))
	for _, rec := range s.online {
		out = append(out, rec)
	}
	return out
}

// HasResponsibility reports whether this session's user holds the token.
func (s *Session) HasResponsibility() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.responsibility.UserID == s.userID
}

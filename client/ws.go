package client

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/phroun/faderbank/internal/auth"
	"github.com/phroun/faderbank/internal/protocol"
)

// WSFeed keeps a WebSocket connection to the server and translates
// pushed envelopes into session updates. It redials on any failure; the
// poller covers the gaps, so a dropped socket never loses state.
type WSFeed struct {
	baseURL   string
	identity  Identity
	profileID string
	session   *Session
	logger    *zap.Logger
}

// NewWSFeed creates a feed for one profile.
func NewWSFeed(baseURL string, identity Identity, profileID string, session *Session, logger *zap.Logger) *WSFeed {
	return &WSFeed{
		baseURL:   strings.TrimRight(baseURL, "/"),
		identity:  identity,
		profileID: profileID,
		session:   session,
		logger:    logger,
	}
}

func (f *WSFeed) wsURL() string {
	url := f.baseURL + "/ws"
	if strings.HasPrefix(url, "https://") {
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	return "ws://" + strings.TrimPrefix(url, "http://")
}

// Run dials and reads until ctx is canceled, redialing after failures.
func (f *WSFeed) Run(ctx context.Context) {
	for {
		if err := f.connect(ctx); err != nil && ctx.Err() == nil {
			f.logger.Debug("websocket disconnected", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func (f *WSFeed) connect(ctx context.Context) error {
	header := http.Header{}
	header.Set(auth.HeaderUserID, f.identity.UserID)
	header.Set(auth.HeaderLoginName, f.identity.LoginName)
	header.Set(auth.HeaderDisplayName, f.identity.DisplayName)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, f.wsURL(), header)
	if err != nil {
		return err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	join, err := protocol.NewEnvelope(protocol.TypeJoin, protocol.JoinMessage{ProfileID: f.profileID})
	if err != nil {
		return err
	}
	if err := conn.WriteJSON(join); err != nil {
		return err
	}

	// Close the socket when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		env, err := protocol.ParseEnvelope(data)
		if err != nil {
			f.logger.Debug("bad envelope", zap.Error(err))
			continue
		}
		f.dispatch(env)
	}
}

func (f *WSFeed) dispatch(env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeSnapshot:
		var snap protocol.SnapshotMessage
		if json.Unmarshal(env.Data, &snap) == nil {
			f.session.Deliver(SnapshotReceived{Snapshot: &snap})
		}
	case protocol.TypeLevel:
		var up protocol.LevelUpdate
		if json.Unmarshal(env.Data, &up) == nil {
			f.session.Deliver(LevelChanged{up})
		}
	case protocol.TypeMute:
		var up protocol.MuteUpdate
		if json.Unmarshal(env.Data, &up) == nil {
			f.session.Deliver(MuteChanged{up})
		}
	case protocol.TypeSolo:
		var up protocol.SoloUpdate
		if json.Unmarshal(env.Data, &up) == nil {
			f.session.Deliver(SoloChanged{up})
		}
	case protocol.TypeButton:
		var up protocol.ButtonUpdate
		if json.Unmarshal(env.Data, &up) == nil {
			f.session.Deliver(ButtonChanged{up})
		}
	case protocol.TypeResponsibility:
		var up protocol.ResponsibilityUpdate
		if json.Unmarshal(env.Data, &up) == nil {
			f.session.Deliver(ResponsibilityChanged{up})
		}
	case protocol.TypePresence:
		var up protocol.PresenceUpdate
		if json.Unmarshal(env.Data, &up) == nil {
			f.session.Deliver(PresenceChanged{up})
		}
	case protocol.TypeConfig:
		var up protocol.ConfigUpdate
		if json.Unmarshal(env.Data, &up) == nil {
			f.session.Deliver(ConfigChanged{up})
		}
	case protocol.TypeVU:
		var up protocol.VUUpdate
		if json.Unmarshal(env.Data, &up) == nil {
			f.session.Deliver(VULevels{up})
		}
	case protocol.TypeAck:
		var ack protocol.AckMessage
		if json.Unmarshal(env.Data, &ack) == nil {
			f.session.Deliver(AckReceived{ack})
		}
	case protocol.TypeError:
		var errMsg protocol.ErrorMessage
		if json.Unmarshal(env.Data, &errMsg) == nil {
			f.session.Deliver(ErrorReceived{errMsg})
		}
	default:
		f.logger.Debug("unknown message type", zap.String("type", string(env.Type)))
	}
}

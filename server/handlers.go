package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/phroun/faderbank/internal/auth"
	"github.com/phroun/faderbank/internal/models"
	"github.com/phroun/faderbank/internal/protocol"
	"github.com/phroun/faderbank/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ErrForbidden is returned when the caller's role does not permit an
// operation.
var ErrForbidden = errors.New("insufficient permissions")

// Server holds the server's dependencies.
type Server struct {
	hub            *Hub
	store          *store.Store
	auth           *auth.Authenticator
	logger         *zap.Logger
	presenceWindow time.Duration
}

// NewServer creates a new server instance.
func NewServer(hub *Hub, st *store.Store, authenticator *auth.Authenticator, logger *zap.Logger, presenceWindow time.Duration) *Server {
	return &Server{
		hub:            hub,
		store:          st,
		auth:           authenticator,
		logger:         logger,
		presenceWindow: presenceWindow,
	}
}

// HandleWebSocket handles WebSocket connections.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	user, err := s.auth.GetUser(r)
	if err != nil {
		s.logger.Warn("auth failed", zap.Error(err))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := s.hub.NewClient(conn, user)
	s.hub.Register(client)

	// Start read/write pumps
	go s.writePump(client)
	s.readPump(client)
}

func (s *Server) readPump(client *Client) {
	defer func() {
		s.leaveAll(client)
		s.hub.Unregister(client)
		client.Conn().Close()
	}()

	client.Conn().SetReadLimit(65536)
	client.Conn().SetReadDeadline(time.Now().Add(60 * time.Second))
	client.Conn().SetPongHandler(func(string) error {
		client.Conn().SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := client.Conn().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket error", zap.Error(err))
			}
			break
		}

		s.handleMessage(client, message)
	}
}

func (s *Server) writePump(client *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		client.Conn().Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			client.Conn().SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Conn().WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn().SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.Conn().WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// leaveAll removes the client from every room it joined, announcing the
// departure and releasing responsibility it still held.
func (s *Server) leaveAll(client *Client) {
	for _, profileID := range s.hub.Subscriptions(client) {
		s.leaveProfile(client, profileID)
	}
}

func (s *Server) leaveProfile(client *Client, profileID string) {
	s.hub.Unsubscribe(client, profileID)

	s.hub.Broadcast(profileID, protocol.TypePresence, protocol.PresenceUpdate{
		ProfileID: profileID,
		UserID:    client.User().ID,
		Online:    false,
	})

	// A departing holder releases responsibility implicitly.
	changed, err := s.store.Drop(profileID, client.User().ID)
	if err != nil {
		s.logger.Warn("failed to drop responsibility on leave", zap.Error(err))
		return
	}
	if changed {
		s.hub.Broadcast(profileID, protocol.TypeResponsibility, protocol.ResponsibilityUpdate{
			ProfileID: profileID,
		})
	}
}

func (s *Server) handleMessage(client *Client, data []byte) {
	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		client.SendError(protocol.ErrCodeInvalidMsg, "Invalid message format")
		return
	}

	switch env.Type {
	case protocol.TypeJoin:
		var msg protocol.JoinMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			client.SendError(protocol.ErrCodeInvalidMsg, "Invalid join message")
			return
		}
		s.handleJoin(client, &msg)

	case protocol.TypeLeave:
		var msg protocol.LeaveMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			client.SendError(protocol.ErrCodeInvalidMsg, "Invalid leave message")
			return
		}
		s.leaveProfile(client, msg.ProfileID)

	case protocol.TypeSetLevel:
		var msg protocol.SetLevelMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			client.SendError(protocol.ErrCodeInvalidMsg, "Invalid set_level message")
			return
		}
		v, err := s.ApplyLevel(client.User(), msg.ChannelID, msg.Level)
		s.ackOrError(client, protocol.TypeSetLevel, msg.ChannelID, v, err)

	case protocol.TypeSetMute:
		var msg protocol.SetMuteMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			client.SendError(protocol.ErrCodeInvalidMsg, "Invalid set_mute message")
			return
		}
		v, err := s.ApplyMute(client.User(), msg.ChannelID, msg.Muted)
		s.ackOrError(client, protocol.TypeSetMute, msg.ChannelID, v, err)

	case protocol.TypeSetSolo:
		var msg protocol.SetSoloMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			client.SendError(protocol.ErrCodeInvalidMsg, "Invalid set_solo message")
			return
		}
		v, err := s.ApplySolo(client.User(), msg.ChannelID, msg.Solo)
		s.ackOrError(client, protocol.TypeSetSolo, msg.ChannelID, v, err)

	case protocol.TypePressButton:
		var msg protocol.PressButtonMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			client.SendError(protocol.ErrCodeInvalidMsg, "Invalid press_button message")
			return
		}
		v, err := s.ApplyButtonPress(client.User(), msg.ButtonID, msg.On)
		s.ackOrError(client, protocol.TypePressButton, msg.ButtonID, v, err)

	case protocol.TypeVUReport:
		var msg protocol.VUReportMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			client.SendError(protocol.ErrCodeInvalidMsg, "Invalid vu_report message")
			return
		}
		s.ApplyVUReport(msg.ProfileID, msg.Levels)

	case protocol.TypeTake:
		var msg protocol.TakeMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			client.SendError(protocol.ErrCodeInvalidMsg, "Invalid take message")
			return
		}
		if err := s.ApplyTake(client.User(), msg.ProfileID, msg.Force); err != nil {
			s.sendMutationError(client, err)
		}

	case protocol.TypeDrop:
		var msg protocol.DropMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			client.SendError(protocol.ErrCodeInvalidMsg, "Invalid drop message")
			return
		}
		s.ApplyDrop(client.User(), msg.ProfileID)

	default:
		client.SendError(protocol.ErrCodeInvalidMsg, "Unknown message type")
	}
}

func (s *Server) handleJoin(client *Client, msg *protocol.JoinMessage) {
	profile, err := s.store.DB().GetProfile(msg.ProfileID)
	if err != nil || profile == nil {
		client.SendError(protocol.ErrCodeNotFound, "Profile not found")
		return
	}

	role, err := s.store.DB().GetUserRole(msg.ProfileID, client.User().ID)
	if err != nil || role == "" {
		client.SendError(protocol.ErrCodeForbidden, "Access denied")
		return
	}

	s.hub.Subscribe(client, msg.ProfileID)
	s.store.Touch(msg.ProfileID, client.User())

	snapshot, err := s.BuildSnapshot(msg.ProfileID)
	if err != nil {
		s.logger.Error("failed to build snapshot", zap.Error(err))
		client.SendError(protocol.ErrCodeInternal, "Failed to load profile state")
		return
	}
	client.SendEnvelope(protocol.TypeSnapshot, snapshot)

	s.hub.Broadcast(msg.ProfileID, protocol.TypePresence, protocol.PresenceUpdate{
		ProfileID:   msg.ProfileID,
		UserID:      client.User().ID,
		DisplayName: client.User().DisplayName,
		Online:      true,
	})
}

func (s *Server) ackOrError(client *Client, msgType protocol.MessageType, entityID string, version int64, err error) {
	if err != nil {
		s.sendMutationError(client, err)
		return
	}
	client.SendEnvelope(protocol.TypeAck, protocol.AckMessage{
		Type:     msgType,
		EntityID: entityID,
		Version:  version,
	})
}

func (s *Server) sendMutationError(client *Client, err error) {
	var held *store.ResponsibilityHeldError
	switch {
	case errors.As(err, &held):
		client.SendEnvelope(protocol.TypeError, protocol.ErrorMessage{
			Code:       protocol.ErrCodeConflict,
			Message:    "Responsibility is already held",
			HolderID:   held.HolderID,
			HolderName: held.HolderName,
		})
	case errors.Is(err, store.ErrNotFound):
		client.SendError(protocol.ErrCodeNotFound, err.Error())
	case errors.Is(err, store.ErrLevelOutOfRange):
		client.SendError(protocol.ErrCodeOutOfRange, err.Error())
	case errors.Is(err, ErrForbidden):
		client.SendError(protocol.ErrCodeForbidden, err.Error())
	default:
		s.logger.Error("mutation failed", zap.Error(err))
		client.SendError(protocol.ErrCodeInternal, "Mutation failed")
	}
}

// requireRole resolves the caller's role in a profile and checks it
// against the minimum.
func (s *Server) requireRole(profileID string, user *models.User, min models.Role) error {
	role, err := s.store.DB().GetUserRole(profileID, user.ID)
	if err != nil {
		return err
	}
	if !role.AtLeast(min) {
		return ErrForbidden
	}
	return nil
}

// ApplyLevel validates and applies a fader level mutation, broadcasting
// the versioned event to the profile room. Returns the new version.
func (s *Server) ApplyLevel(user *models.User, channelID string, level int) (int64, error) {
	strip, err := s.store.DB().GetChannelStrip(channelID)
	if err != nil {
		return 0, err
	}
	if strip == nil {
		return 0, store.ErrNotFound
	}
	if err := s.requireRole(strip.ProfileID, user, models.RoleOperator); err != nil {
		return 0, err
	}

	v, err := s.store.SetLevel(channelID, level)
	if err != nil {
		return 0, err
	}
	s.store.Touch(strip.ProfileID, user)

	s.hub.Broadcast(strip.ProfileID, protocol.TypeLevel, protocol.LevelUpdate{
		ChannelID: channelID,
		Level:     level,
		Version:   v,
		UserID:    user.ID,
	})
	return v, nil
}

// ApplyMute validates and applies a mute mutation.
func (s *Server) ApplyMute(user *models.User, channelID string, muted bool) (int64, error) {
	strip, err := s.store.DB().GetChannelStrip(channelID)
	if err != nil {
		return 0, err
	}
	if strip == nil {
		return 0, store.ErrNotFound
	}
	if err := s.requireRole(strip.ProfileID, user, models.RoleOperator); err != nil {
		return 0, err
	}

	v, err := s.store.SetMuted(channelID, muted)
	if err != nil {
		return 0, err
	}
	s.store.Touch(strip.ProfileID, user)

	s.hub.Broadcast(strip.ProfileID, protocol.TypeMute, protocol.MuteUpdate{
		ChannelID: channelID,
		Muted:     muted,
		Version:   v,
		UserID:    user.ID,
	})
	return v, nil
}

// ApplySolo validates and applies a solo mutation.
func (s *Server) ApplySolo(user *models.User, channelID string, solo bool) (int64, error) {
	strip, err := s.store.DB().GetChannelStrip(channelID)
	if err != nil {
		return 0, err
	}
	if strip == nil {
		return 0, store.ErrNotFound
	}
	if err := s.requireRole(strip.ProfileID, user, models.RoleOperator); err != nil {
		return 0, err
	}

	v, err := s.store.SetSolo(channelID, solo)
	if err != nil {
		return 0, err
	}
	s.store.Touch(strip.ProfileID, user)

	s.hub.Broadcast(strip.ProfileID, protocol.TypeSolo, protocol.SoloUpdate{
		ChannelID: channelID,
		Solo:      solo,
		Version:   v,
		UserID:    user.ID,
	})
	return v, nil
}

// ApplyButtonPress validates and applies a button press.
func (s *Server) ApplyButtonPress(user *models.User, buttonID string, on bool) (int64, error) {
	button, err := s.store.DB().GetButton(buttonID)
	if err != nil {
		return 0, err
	}
	if button == nil {
		return 0, store.ErrNotFound
	}
	if err := s.requireRole(button.ProfileID, user, models.RoleOperator); err != nil {
		return 0, err
	}

	_, newState, v, err := s.store.PressButton(buttonID, on)
	if err != nil {
		return 0, err
	}
	s.store.Touch(button.ProfileID, user)

	s.hub.Broadcast(button.ProfileID, protocol.TypeButton, protocol.ButtonUpdate{
		ButtonID: buttonID,
		On:       newState,
		Version:  v,
		UserID:   user.ID,
	})
	return v, nil
}

// ApplyVUReport stores and rebroadcasts batched meter levels. There is no
// version; meters are input-only ephemera. Samples naming strips outside
// the profile are discarded, so a report can neither write nor broadcast
// across profiles.
func (s *Server) ApplyVUReport(profileID string, levels map[string]protocol.VUSample) {
	accepted := make(map[string]protocol.VUSample, len(levels))
	for channelID, sample := range levels {
		ok, err := s.store.SetVULevels(profileID, channelID, sample.Level, sample.Right)
		if err != nil {
			s.logger.Debug("failed to store vu level", zap.String("channel_id", channelID), zap.Error(err))
			continue
		}
		if ok {
			accepted[channelID] = sample
		}
	}
	if len(accepted) == 0 {
		return
	}
	s.hub.Broadcast(profileID, protocol.TypeVU, protocol.VUUpdate{
		ProfileID: profileID,
		Levels:    accepted,
	})
}

// ApplyTake attempts to take responsibility, broadcasting the change on
// success. A conflict surfaces as a ResponsibilityHeldError.
func (s *Server) ApplyTake(user *models.User, profileID string, force bool) error {
	if err := s.requireRole(profileID, user, models.RoleOperator); err != nil {
		return err
	}

	resp, err := s.store.Take(profileID, user, force)
	if err != nil {
		return err
	}
	s.store.Touch(profileID, user)

	s.hub.Broadcast(profileID, protocol.TypeResponsibility, protocol.ResponsibilityUpdate{
		ProfileID:   profileID,
		UserID:      resp.UserID,
		DisplayName: resp.DisplayName,
	})
	return nil
}

// ApplyDrop releases responsibility if held by the caller. A non-holder
// drop is a silent no-op with no broadcast.
func (s *Server) ApplyDrop(user *models.User, profileID string) {
	changed, err := s.store.Drop(profileID, user.ID)
	if err != nil {
		s.logger.Warn("failed to drop responsibility", zap.Error(err))
		return
	}
	if changed {
		s.hub.Broadcast(profileID, protocol.TypeResponsibility, protocol.ResponsibilityUpdate{
			ProfileID: profileID,
		})
	}
}

// BuildSnapshot assembles the polling snapshot for a profile: every
// entity with its state version, plus responsibility and presence.
func (s *Server) BuildSnapshot(profileID string) (*protocol.SnapshotMessage, error) {
	profile, err := s.store.DB().GetProfile(profileID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, store.ErrNotFound
	}

	strips, err := s.store.DB().GetChannelStrips(profileID)
	if err != nil {
		return nil, err
	}
	buttons, err := s.store.DB().GetButtons(profileID)
	if err != nil {
		return nil, err
	}
	resp, err := s.store.Responsibility(profileID)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		resp = &models.Responsibility{ProfileID: profileID}
	}
	online, err := s.store.ActiveUsers(profileID, s.presenceWindow)
	if err != nil {
		return nil, err
	}

	return &protocol.SnapshotMessage{
		Profile:        *profile,
		Strips:         strips,
		Buttons:        buttons,
		Responsibility: *resp,
		Online:         online,
	}, nil
}

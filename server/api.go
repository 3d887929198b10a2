package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"

	"github.com/phroun/faderbank/internal/auth"
	"github.com/phroun/faderbank/internal/models"
	"github.com/phroun/faderbank/internal/protocol"
	"github.com/phroun/faderbank/internal/store"
)

// APIHandler serves the synchronous HTTP interface: mutation endpoints,
// the polling snapshot, and layout CRUD.
type APIHandler struct {
	srv *Server
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(srv *Server) *APIHandler {
	return &APIHandler{srv: srv}
}

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

func (a *APIHandler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (a *APIHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeMutationError maps the error taxonomy onto HTTP statuses. Conflicts
// include the holder so the caller can offer a forced take.
func (a *APIHandler) writeMutationError(w http.ResponseWriter, err error) {
	var held *store.ResponsibilityHeldError
	switch {
	case errors.As(err, &held):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(protocol.ErrorMessage{
			Code:       protocol.ErrCodeConflict,
			Message:    "Responsibility is already held",
			HolderID:   held.HolderID,
			HolderName: held.HolderName,
		})
	case errors.Is(err, store.ErrNotFound):
		a.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrLevelOutOfRange), errors.Is(err, store.ErrInvalidEntity):
		a.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		a.writeError(w, http.StatusForbidden, err.Error())
	default:
		a.srv.logger.Error("api mutation failed")
		a.writeError(w, http.StatusInternalServerError, "Mutation failed")
	}
}

type versionResponse struct {
	Version int64 `json:"version"`
}

// HandleProfiles lists the caller's profiles or creates a new one.
func (a *APIHandler) HandleProfiles(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())

	switch r.Method {
	case http.MethodGet:
		profiles, err := a.srv.store.DB().GetUserProfiles(user.ID)
		if err != nil {
			a.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		a.writeJSON(w, profiles)

	case http.MethodPost:
		var req struct {
			Name string `json:"name"`
			Slug string `json:"slug"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Name == "" || !slugPattern.MatchString(req.Slug) {
			a.writeError(w, http.StatusBadRequest, "Name and a lowercase slug are required")
			return
		}
		existing, err := a.srv.store.DB().GetProfileBySlug(req.Slug)
		if err != nil {
			a.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if existing != nil {
			a.writeError(w, http.StatusConflict, "Slug is already taken")
			return
		}
		profile, err := a.srv.store.DB().CreateProfile(req.Name, req.Slug, user)
		if err != nil {
			a.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusCreated)
		a.writeJSON(w, profile)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// HandleProfile reads, updates, or deletes a single profile. Updating the
// name or slug requires admin; deletion is reserved for the owner.
func (a *APIHandler) HandleProfile(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	profileID := r.PathValue("id")

	profile, err := a.srv.store.DB().GetProfile(profileID)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if profile == nil {
		a.writeError(w, http.StatusNotFound, "Profile not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if err := a.srv.requireRole(profileID, user, models.RoleGuest); err != nil {
			a.writeMutationError(w, err)
			return
		}
		a.writeJSON(w, profile)

	case http.MethodPut:
		if err := a.srv.requireRole(profileID, user, models.RoleAdmin); err != nil {
			a.writeMutationError(w, err)
			return
		}
		var req struct {
			Name string `json:"name"`
			Slug string `json:"slug"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Name == "" {
			req.Name = profile.Name
		}
		if req.Slug == "" {
			req.Slug = profile.Slug
		}
		if !slugPattern.MatchString(req.Slug) {
			a.writeError(w, http.StatusBadRequest, "Slug must be lowercase letters, digits, and hyphens")
			return
		}
		if req.Slug != profile.Slug {
			existing, err := a.srv.store.DB().GetProfileBySlug(req.Slug)
			if err != nil {
				a.writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if existing != nil {
				a.writeError(w, http.StatusConflict, "Slug is already taken")
				return
			}
		}
		if err := a.srv.store.DB().UpdateProfile(profileID, req.Name, req.Slug); err != nil {
			a.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		profile.Name = req.Name
		profile.Slug = req.Slug
		a.writeJSON(w, profile)

	case http.MethodDelete:
		if profile.OwnerID != user.ID {
			a.writeError(w, http.StatusForbidden, "Only the owner can delete the profile")
			return
		}
		if err := a.srv.store.DB().DeleteProfile(profileID); err != nil {
			a.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// HandleTransfer moves profile ownership to another member. The outgoing
// owner stays on as admin.
func (a *APIHandler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user := auth.UserFromContext(r.Context())
	profileID := r.PathValue("id")

	profile, err := a.srv.store.DB().GetProfile(profileID)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if profile == nil {
		a.writeError(w, http.StatusNotFound, "Profile not found")
		return
	}
	if profile.OwnerID != user.ID {
		a.writeError(w, http.StatusForbidden, "Only the owner can transfer ownership")
		return
	}

	var req struct {
		NewOwnerID string `json:"new_owner_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.NewOwnerID == "" {
		a.writeError(w, http.StatusBadRequest, "New owner ID is required")
		return
	}
	role, err := a.srv.store.DB().GetUserRole(profileID, req.NewOwnerID)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if role == "" {
		a.writeError(w, http.StatusBadRequest, "User is not a member of this profile")
		return
	}

	if err := a.srv.store.DB().TransferOwnership(profileID, req.NewOwnerID); err != nil {
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.writeJSON(w, map[string]bool{"success": true})
}

// HandleSnapshot serves the polling snapshot. Each poll also refreshes the
// caller's activity record.
func (a *APIHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user := auth.UserFromContext(r.Context())
	profileID := r.PathValue("id")

	role, err := a.srv.store.DB().GetUserRole(profileID, user.ID)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if role == "" {
		a.writeError(w, http.StatusForbidden, "Access denied")
		return
	}

	a.srv.store.Touch(profileID, user)

	snapshot, err := a.srv.BuildSnapshot(profileID)
	if err != nil {
		a.writeMutationError(w, err)
		return
	}
	a.writeJSON(w, snapshot)
}

// HandleSetLevel applies a fader level mutation.
func (a *APIHandler) HandleSetLevel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req protocol.SetLevelMessage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	v, err := a.srv.ApplyLevel(auth.UserFromContext(r.Context()), r.PathValue("id"), req.Level)
	if err != nil {
		a.writeMutationError(w, err)
		return
	}
	a.writeJSON(w, versionResponse{Version: v})
}

// HandleSetMute applies a mute mutation.
func (a *APIHandler) HandleSetMute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req protocol.SetMuteMessage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	v, err := a.srv.ApplyMute(auth.UserFromContext(r.Context()), r.PathValue("id"), req.Muted)
	if err != nil {
		a.writeMutationError(w, err)
		return
	}
	a.writeJSON(w, versionResponse{Version: v})
}

// HandleSetSolo applies a solo mutation.
func (a *APIHandler) HandleSetSolo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req protocol.SetSoloMessage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	v, err := a.srv.ApplySolo(auth.UserFromContext(r.Context()), r.PathValue("id"), req.Solo)
	if err != nil {
		a.writeMutationError(w, err)
		return
	}
	a.writeJSON(w, versionResponse{Version: v})
}

// HandlePressButton applies a button press.
func (a *APIHandler) HandlePressButton(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req protocol.PressButtonMessage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	v, err := a.srv.ApplyButtonPress(auth.UserFromContext(r.Context()), r.PathValue("id"), req.On)
	if err != nil {
		a.writeMutationError(w, err)
		return
	}
	a.writeJSON(w, versionResponse{Version: v})
}

// HandleTake attempts to take responsibility.
func (a *APIHandler) HandleTake(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Force bool `json:"force"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := a.srv.ApplyTake(auth.UserFromContext(r.Context()), r.PathValue("id"), req.Force); err != nil {
		a.writeMutationError(w, err)
		return
	}
	a.writeJSON(w, map[string]bool{"success": true})
}

// HandleDrop releases responsibility.
func (a *APIHandler) HandleDrop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	a.srv.ApplyDrop(auth.UserFromContext(r.Context()), r.PathValue("id"))
	a.writeJSON(w, map[string]bool{"success": true})
}

// HandleVUReport accepts batched meter peaks from a session with local
// hardware input and rebroadcasts them.
func (a *APIHandler) HandleVUReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req protocol.VUReportMessage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	a.srv.ApplyVUReport(r.PathValue("id"), req.Levels)
	a.writeJSON(w, map[string]bool{"success": true})
}

// HandleChannels creates channel strips or lists them for a profile.
func (a *APIHandler) HandleChannels(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	profileID := r.PathValue("id")

	switch r.Method {
	case http.MethodGet:
		if err := a.srv.requireRole(profileID, user, models.RoleGuest); err != nil {
			a.writeMutationError(w, err)
			return
		}
		strips, err := a.srv.store.DB().GetChannelStrips(profileID)
		if err != nil {
			a.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		a.writeJSON(w, strips)

	case http.MethodPost:
		if err := a.srv.requireRole(profileID, user, models.RoleTechnician); err != nil {
			a.writeMutationError(w, err)
			return
		}
		var strip models.ChannelStrip
		if err := json.NewDecoder(r.Body).Decode(&strip); err != nil {
			a.writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		strip.ID = ""
		strip.ProfileID = profileID
		if strip.MaxLevel == 0 {
			strip.MaxLevel = 127
		}
		if strip.MinLevel < 0 || strip.MaxLevel > 127 || strip.MinLevel > strip.MaxLevel {
			a.writeError(w, http.StatusBadRequest, "Level bounds must satisfy 0 <= min <= max <= 127")
			return
		}
		existing, err := a.srv.store.DB().GetChannelStrips(profileID)
		if err != nil {
			a.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		strip.Position = len(existing)
		if strip.Color == "" {
			strip.Color = "white"
		}
		if err := a.srv.store.DB().CreateChannelStrip(&strip); err != nil {
			a.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		a.srv.hub.Broadcast(profileID, protocol.TypeConfig, protocol.ConfigUpdate{
			ProfileID: profileID,
			Kind:      protocol.ConfigStripAdded,
			Strip:     &strip,
		})
		w.WriteHeader(http.StatusCreated)
		a.writeJSON(w, strip)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// HandleChannel updates or deletes a single channel strip.
func (a *APIHandler) HandleChannel(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	id := r.PathValue("id")

	strip, err := a.srv.store.DB().GetChannelStrip(id)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if strip == nil {
		a.writeError(w, http.StatusNotFound, "Channel not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if err := a.srv.requireRole(strip.ProfileID, user, models.RoleGuest); err != nil {
			a.writeMutationError(w, err)
			return
		}
		a.writeJSON(w, strip)

	case http.MethodPut:
		if err := a.srv.requireRole(strip.ProfileID, user, models.RoleTechnician); err != nil {
			a.writeMutationError(w, err)
			return
		}
		var updated models.ChannelStrip
		if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
			a.writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		updated.ID = id
		updated.ProfileID = strip.ProfileID
		if updated.MinLevel < 0 || updated.MaxLevel > 127 || updated.MinLevel > updated.MaxLevel {
			a.writeError(w, http.StatusBadRequest, "Level bounds must satisfy 0 <= min <= max <= 127")
			return
		}
		if err := a.srv.store.DB().UpdateChannelStrip(&updated); err != nil {
			a.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		fresh, err := a.srv.store.DB().GetChannelStrip(id)
		if err != nil || fresh == nil {
			a.writeError(w, http.StatusInternalServerError, "Failed to reload channel")
			return
		}
		a.srv.hub.Broadcast(strip.ProfileID, protocol.TypeConfig, protocol.ConfigUpdate{
			ProfileID: strip.ProfileID,
			Kind:      protocol.ConfigStripUpdated,
			Strip:     fresh,
		})
		a.writeJSON(w, fresh)

	case http.MethodDelete:
		if err := a.srv.requireRole(strip.ProfileID, user, models.RoleTechnician); err != nil {
			a.writeMutationError(w, err)
			return
		}
		if err := a.srv.store.DB().DeleteChannelStrip(id); err != nil {
			a.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		a.srv.hub.Broadcast(strip.ProfileID, protocol.TypeConfig, protocol.ConfigUpdate{
			ProfileID: strip.ProfileID,
			Kind:      protocol.ConfigStripDeleted,
			DeletedID: id,
		})
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// HandleReorder rewrites channel strip positions.
func (a *APIHandler) HandleReorder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user := auth.UserFromContext(r.Context())
	profileID := r.PathValue("id")

	if err := a.srv.requireRole(profileID, user, models.RoleTechnician); err != nil {
		a.writeMutationError(w, err)
		return
	}
	var req struct {
		Order []string `json:"order"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := a.srv.store.DB().ReorderChannelStrips(profileID, req.Order); err != nil {
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	a.srv.hub.Broadcast(profileID, protocol.TypeConfig, protocol.ConfigUpdate{
		ProfileID: profileID,
		Kind:      protocol.ConfigStripsReorder,
		Order:     req.Order,
	})
	a.writeJSON(w, map[string]bool{"success": true})
}

// HandleButtons creates buttons or lists them for a profile.
func (a *APIHandler) HandleButtons(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	profileID := r.PathValue("id")

	switch r.Method {
	case http.MethodGet:
		if err := a.srv.requireRole(profileID, user, models.RoleGuest); err != nil {
			a.writeMutationError(w, err)
			return
		}
		buttons, err := a.srv.store.DB().GetButtons(profileID)
		if err != nil {
			a.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		a.writeJSON(w, buttons)

	case http.MethodPost:
		if err := a.srv.requireRole(profileID, user, models.RoleTechnician); err != nil {
			a.writeMutationError(w, err)
			return
		}
		var button models.Button
		if err := json.NewDecoder(r.Body).Decode(&button); err != nil {
			a.writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		button.ID = ""
		button.ProfileID = profileID
		if button.Mode == "" {
			button.Mode = models.ButtonToggle
		}
		if button.MIDIType == "" {
			button.MIDIType = models.MIDITypeCC
		}
		if err := a.srv.store.DB().CreateButton(&button); err != nil {
			a.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		a.srv.hub.Broadcast(profileID, protocol.TypeConfig, protocol.ConfigUpdate{
			ProfileID: profileID,
			Kind:      protocol.ConfigButtonAdded,
			Button:    &button,
		})
		w.WriteHeader(http.StatusCreated)
		a.writeJSON(w, button)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// HandleButton updates or deletes a single button.
func (a *APIHandler) HandleButton(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	id := r.PathValue("id")

	button, err := a.srv.store.DB().GetButton(id)
	if err != nil {
		a.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if button == nil {
		a.writeError(w, http.StatusNotFound, "Button not found")
		return
	}

	switch r.Method {
	case http.MethodPut:
		if err := a.srv.requireRole(button.ProfileID, user, models.RoleTechnician); err != nil {
			a.writeMutationError(w, err)
			return
		}
		var updated models.Button
		if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
			a.writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		updated.ID = id
		updated.ProfileID = button.ProfileID
		if err := a.srv.store.DB().UpdateButton(&updated); err != nil {
			a.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		fresh, err := a.srv.store.DB().GetButton(id)
		if err != nil || fresh == nil {
			a.writeError(w, http.StatusInternalServerError, "Failed to reload button")
			return
		}
		a.srv.hub.Broadcast(button.ProfileID, protocol.TypeConfig, protocol.ConfigUpdate{
			ProfileID: button.ProfileID,
			Kind:      protocol.ConfigButtonUpdated,
			Button:    fresh,
		})
		a.writeJSON(w, fresh)

	case http.MethodDelete:
		if err := a.srv.requireRole(button.ProfileID, user, models.RoleTechnician); err != nil {
			a.writeMutationError(w, err)
			return
		}
		if err := a.srv.store.DB().DeleteButton(id); err != nil {
			a.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		a.srv.hub.Broadcast(button.ProfileID, protocol.TypeConfig, protocol.ConfigUpdate{
			ProfileID: button.ProfileID,
			Kind:      protocol.ConfigButtonDeleted,
			DeletedID: id,
		})
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// HandleMembers lists or upserts profile members.
func (a *APIHandler) HandleMembers(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	profileID := r.PathValue("id")

	switch r.Method {
	case http.MethodGet:
		if err := a.srv.requireRole(profileID, user, models.RoleGuest); err != nil {
			a.writeMutationError(w, err)
			return
		}
		members, err := a.srv.store.DB().GetProfileMembers(profileID)
		if err != nil {
			a.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		a.writeJSON(w, members)

	case http.MethodPost:
		if err := a.srv.requireRole(profileID, user, models.RoleAdmin); err != nil {
			a.writeMutationError(w, err)
			return
		}
		var member models.Member
		if err := json.NewDecoder(r.Body).Decode(&member); err != nil {
			a.writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		member.ProfileID = profileID
		if !member.Role.AtLeast(models.RoleGuest) || member.Role == models.RoleOwner {
			a.writeError(w, http.StatusBadRequest, "Invalid role")
			return
		}
		if err := a.srv.store.DB().UpsertMember(&member); err != nil {
			a.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusCreated)
		a.writeJSON(w, member)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// HandleMember removes a profile member.
func (a *APIHandler) HandleMember(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	profileID := r.PathValue("id")
	memberID := r.PathValue("user_id")

	switch r.Method {
	case http.MethodDelete:
		if err := a.srv.requireRole(profileID, user, models.RoleAdmin); err != nil {
			a.writeMutationError(w, err)
			return
		}
		profile, err := a.srv.store.DB().GetProfile(profileID)
		if err != nil {
			a.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if profile != nil && profile.OwnerID == memberID {
			a.writeError(w, http.StatusForbidden, "Cannot remove the owner")
			return
		}
		if err := a.srv.store.DB().RemoveMember(profileID, memberID); err != nil {
			a.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/phroun/faderbank/internal/auth"
	"github.com/phroun/faderbank/internal/models"
	"github.com/phroun/faderbank/internal/protocol"
)

// Remote is the synchronous server interface used for mutations and
// polling. The WebSocket feed is separate; it only delivers updates.
type Remote interface {
	Snapshot(ctx context.Context, profileID string) (*protocol.SnapshotMessage, error)
	SetLevel(ctx context.Context, channelID string, level int) (int64, error)
	SetMute(ctx context.Context, channelID string, muted bool) (int64, error)
	SetSolo(ctx context.Context, channelID string, solo bool) (int64, error)
	PressButton(ctx context.Context, buttonID string, on bool) (int64, error)
	Take(ctx context.Context, profileID string, force bool) error
	Drop(ctx context.Context, profileID string) error
	ReportVU(ctx context.Context, profileID string, levels map[string]protocol.VUSample) error
}

// ConflictError is returned when responsibility is already held.
type ConflictError struct {
	HolderID   string
	HolderName string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("responsibility held by %s", e.HolderName)
}

// Identity is the caller identity attached to every request. The server
// trusts these headers from its fronting proxy.
type Identity struct {
	UserID      string
	LoginName   string
	DisplayName string
}

// HTTPRemote implements Remote over the server's REST API.
type HTTPRemote struct {
	baseURL  string
	identity Identity
	client   *http.Client
}

// NewHTTPRemote creates a Remote over plain HTTP.
func NewHTTPRemote(baseURL string, identity Identity) *HTTPRemote {
	return &HTTPRemote{
		baseURL:  strings.TrimRight(baseURL, "/"),
		identity: identity,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *HTTPRemote) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.HeaderUserID, r.identity.UserID)
	req.Header.Set(auth.HeaderLoginName, r.identity.LoginName)
	req.Header.Set(auth.HeaderDisplayName, r.identity.DisplayName)

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		var errMsg protocol.ErrorMessage
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errMsg); decodeErr == nil && errMsg.Code == protocol.ErrCodeConflict {
			return &ConflictError{HolderID: errMsg.HolderID, HolderName: errMsg.HolderName}
		}
		return fmt.Errorf("%s %s: conflict", method, path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&body); decodeErr == nil && body.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, body.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

type versionPayload struct {
	Version int64 `json:"version"`
}

func (r *HTTPRemote) Snapshot(ctx context.Context, profileID string) (*protocol.SnapshotMessage, error) {
	var snap protocol.SnapshotMessage
	if err := r.do(ctx, http.MethodGet, "/api/profiles/"+profileID+"/snapshot", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (r *HTTPRemote) SetLevel(ctx context.Context, channelID string, level int) (int64, error) {
	var out versionPayload
	err := r.do(ctx, http.MethodPost, "/api/channels/"+channelID+"/level",
		protocol.SetLevelMessage{ChannelID: channelID, Level: level}, &out)
	return out.Version, err
}

func (r *HTTPRemote) SetMute(ctx context.Context, channelID string, muted bool) (int64, error) {
	var out versionPayload
	err := r.do(ctx, http.MethodPost, "/api/channels/"+channelID+"/mute",
		protocol.SetMuteMessage{ChannelID: channelID, Muted: muted}, &out)
	return out.Version, err
}

func (r *HTTPRemote) SetSolo(ctx context.Context, channelID string, solo bool) (int64, error) {
	var out versionPayload
	err := r.do(ctx, http.MethodPost, "/api/channels/"+channelID+"/solo",
		protocol.SetSoloMessage{ChannelID: channelID, Solo: solo}, &out)
	return out.Version, err
}

func (r *HTTPRemote) PressButton(ctx context.Context, buttonID string, on bool) (int64, error) {
	var out versionPayload
	err := r.do(ctx, http.MethodPost, "/api/buttons/"+buttonID+"/press",
		protocol.PressButtonMessage{ButtonID: buttonID, On: on}, &out)
	return out.Version, err
}

func (r *HTTPRemote) Take(ctx context.Context, profileID string, force bool) error {
	return r.do(ctx, http.MethodPost, "/api/profiles/"+profileID+"/take",
		map[string]bool{"force": force}, nil)
}

func (r *HTTPRemote) Drop(ctx context.Context, profileID string) error {
	return r.do(ctx, http.MethodPost, "/api/profiles/"+profileID+"/drop",
		struct{}{}, nil)
}

func (r *HTTPRemote) ReportVU(ctx context.Context, profileID string, levels map[string]protocol.VUSample) error {
	return r.do(ctx, http.MethodPost, "/api/profiles/"+profileID+"/vu",
		protocol.VUReportMessage{ProfileID: profileID, Levels: levels}, nil)
}

// Profiles lists the profiles the identity can access. Used by the
// console at startup when no profile is configured.
func (r *HTTPRemote) Profiles(ctx context.Context) ([]models.Profile, error) {
	var profiles []models.Profile
	if err := r.do(ctx, http.MethodGet, "/api/profiles", nil, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

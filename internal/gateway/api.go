// ABOUTME: HTTP API handlers for messaging, history, agents, and user registration
// ABOUTME: JSON in and out; errors are {"error": "..."} with the status mapped from the error kind

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/agentdesk/internal/auth"
	"github.com/2389/agentdesk/internal/conversation"
	"github.com/2389/agentdesk/internal/history"
	"github.com/2389/agentdesk/internal/store"
)

// SendMessageRequest is the JSON request body for POST /api/send.
// SentAt is kept as text so that timestamps without a zone can be accepted.
type SendMessageRequest struct {
	MessageType string `json:"message_type"`
	Text        string `json:"text,omitempty"`
	Image       string `json:"image,omitempty"`
	SentAt      string `json:"sent_at,omitempty"`
	AgentID     string `json:"agent_id,omitempty"`
	UserID      string `json:"user_id"`
}

// AddMessageRequest is the JSON request body for POST /api/add_message.
type AddMessageRequest struct {
	SendMessageRequest
	Sender string `json:"sender,omitempty"` // USER (default) or AGENT
}

// MessageResponse is one stored message.
type MessageResponse struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	AgentID     *string   `json:"agent_id"`
	MessageType string    `json:"message_type"`
	Text        *string   `json:"text"`
	Image       *string   `json:"image"`
	SentAt      time.Time `json:"sent_at"`
	Sender      string    `json:"sender"`
	HTML        string    `json:"html,omitempty"`
}

// PairRequest names one conversation.
type PairRequest struct {
	UserID  string `json:"user_id"`
	AgentID string `json:"agent_id"`
}

// AgentResponse is the JSON shape of an agent config in GET /api/all_agents.
type AgentResponse struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	SystemPrompt *string `json:"system_prompt"`
	Temperature  float64 `json:"temperature"`
}

// CreateUserRequest is the JSON request body for POST /api/users.
type CreateUserRequest struct {
	Email string `json:"email"`
}

// UserResponse is the JSON shape of a user.
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// timestampLayouts are accepted for sent_at. Zoneless values are UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a timestamp", s)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func toMessageResponse(m *store.Message) MessageResponse {
	return MessageResponse{
		ID:          m.ID,
		UserID:      m.UserID,
		AgentID:     optional(m.AgentID),
		MessageType: string(m.Kind),
		Text:        optional(m.Text),
		Image:       optional(m.Image),
		SentAt:      m.SentAt,
		Sender:      string(m.Sender),
	}
}

// decodeJSON reads the body into v, reporting oversize bodies separately.
func (g *Gateway) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			g.sendJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// authorize rejects requests acting for a user other than the authenticated one.
func (g *Gateway) authorize(w http.ResponseWriter, r *http.Request, userID string) bool {
	if err := auth.CheckSubject(r.Context(), userID); err != nil {
		g.sendJSONError(w, http.StatusForbidden, err.Error())
		return false
	}
	return true
}

// handleSend handles POST /api/send, the message pipeline entry point.
func (g *Gateway) handleSend(w http.ResponseWriter, r *http.Request) {
	var body SendMessageRequest
	if !g.decodeJSON(w, r, &body) {
		return
	}
	sentAt, err := parseTimestamp(body.SentAt)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid sent_at: "+err.Error())
		return
	}
	if !g.authorize(w, r, strings.TrimSpace(body.UserID)) {
		return
	}

	resp, err := g.conversation.HandleIncomingMessage(r.Context(), &conversation.Request{
		MessageType: store.MessageKind(body.MessageType),
		Text:        body.Text,
		Image:       body.Image,
		SentAt:      sentAt,
		AgentID:     body.AgentID,
		UserID:      body.UserID,
	})
	var vErr *conversation.ValidationError
	switch {
	case errors.As(err, &vErr):
		g.sendJSONError(w, http.StatusBadRequest, vErr.Error())
		return
	case err != nil:
		g.logger.Error("handling message", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	g.sendJSON(w, http.StatusOK, resp)
}

// handleAddMessage handles POST /api/add_message: a raw history append
// that bypasses agent dispatch.
func (g *Gateway) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	var body AddMessageRequest
	if !g.decodeJSON(w, r, &body) {
		return
	}
	sentAt, err := parseTimestamp(body.SentAt)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid sent_at: "+err.Error())
		return
	}
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}
	sender := store.Role(strings.ToUpper(strings.TrimSpace(body.Sender)))
	if sender == "" {
		sender = store.RoleUser
	}
	userID := strings.TrimSpace(body.UserID)
	if !g.authorize(w, r, userID) {
		return
	}

	msg, err := g.history.Append(r.Context(), history.AppendParams{
		UserID:  userID,
		AgentID: strings.TrimSpace(body.AgentID),
		Role:    sender,
		Kind:    store.MessageKind(strings.ToUpper(strings.TrimSpace(body.MessageType))),
		Text:    body.Text,
		Image:   body.Image,
		SentAt:  sentAt,
	})
	var vErr *store.ValidationError
	switch {
	case errors.As(err, &vErr):
		g.sendJSONError(w, http.StatusBadRequest, vErr.Error())
		return
	case errors.Is(err, store.ErrConflict):
		g.sendJSONError(w, http.StatusConflict, "message already exists")
		return
	case err != nil:
		g.logger.Error("appending message", "error", err, "user_id", userID)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.events.Publish(msg)
	g.sendJSON(w, http.StatusOK, toMessageResponse(msg))
}

// handleGetChat handles GET /api/get_chat?user_id=X&agent_id=Y[&render=html].
// An empty agent_id selects the agent-less context.
func (g *Gateway) handleGetChat(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := strings.TrimSpace(q.Get("user_id"))
	agentID := strings.TrimSpace(q.Get("agent_id"))
	if userID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	renderHTML := false
	switch q.Get("render") {
	case "":
	case "html":
		renderHTML = true
	default:
		g.sendJSONError(w, http.StatusBadRequest, "render must be html")
		return
	}
	if !g.authorize(w, r, userID) {
		return
	}

	msgs, err := g.history.ListByPair(r.Context(), userID, agentID)
	if err != nil {
		g.logger.Error("listing history", "error", err, "user_id", userID, "agent_id", agentID)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]MessageResponse, len(msgs))
	for i, m := range msgs {
		response[i] = toMessageResponse(m)
		if renderHTML && m.Kind == store.KindText {
			html, err := renderMarkdown(m.Text)
			if err != nil {
				g.logger.Warn("rendering message", "error", err, "message_id", m.ID)
				continue
			}
			response[i].HTML = html
		}
	}
	g.sendJSON(w, http.StatusOK, response)
}

// handleClearChat handles POST /api/clear_chat.
func (g *Gateway) handleClearChat(w http.ResponseWriter, r *http.Request) {
	var body PairRequest
	if !g.decodeJSON(w, r, &body) {
		return
	}
	userID := strings.TrimSpace(body.UserID)
	if userID == "" {
		g.sendJSONError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if !g.authorize(w, r, userID) {
		return
	}

	cleared := g.history.ClearPair(r.Context(), userID, strings.TrimSpace(body.AgentID))
	g.sendJSON(w, http.StatusOK, map[string]bool{"cleared": cleared})
}

// handleAllAgents handles GET /api/all_agents?limit=N&offset=M.
func (g *Gateway) handleAllAgents(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil || limit < 1 || limit > 1000 {
		g.sendJSONError(w, http.StatusBadRequest, "limit must be an integer between 1 and 1000")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		g.sendJSONError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	agents, err := g.store.ListAgentConfigs(r.Context(), limit, offset)
	if err != nil {
		g.logger.Error("listing agents", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	response := make([]AgentResponse, len(agents))
	for i, a := range agents {
		response[i] = AgentResponse{
			ID:           a.ID,
			Name:         a.Name,
			Type:         a.Type,
			SystemPrompt: optional(a.SystemPrompt),
			Temperature:  a.Temperature,
		}
	}
	g.sendJSON(w, http.StatusOK, response)
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// handleAgentTypes handles GET /api/agent_types.
func (g *Gateway) handleAgentTypes(w http.ResponseWriter, r *http.Request) {
	g.sendJSON(w, http.StatusOK, map[string][]string{"types": g.registry.Types()})
}

// handleCreateUser handles POST /api/users.
func (g *Gateway) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var body CreateUserRequest
	if !g.decodeJSON(w, r, &body) {
		return
	}
	email := strings.TrimSpace(body.Email)
	if email == "" || !strings.Contains(email, "@") {
		g.sendJSONError(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	user := &store.User{ID: uuid.New().String(), Email: email, CreatedAt: time.Now().UTC()}
	err := g.store.CreateUser(r.Context(), user)
	var vErr *store.ValidationError
	switch {
	case errors.As(err, &vErr):
		g.sendJSONError(w, http.StatusBadRequest, vErr.Error())
		return
	case errors.Is(err, store.ErrConflict):
		g.sendJSONError(w, http.StatusConflict, "email already registered")
		return
	case err != nil:
		g.logger.Error("creating user", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.logger.Info("registered user", "user_id", user.ID)
	g.sendJSON(w, http.StatusCreated, UserResponse{ID: user.ID, Email: user.Email, CreatedAt: user.CreatedAt})
}

func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("writing response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"error": message})
}

// Package records is the pipeline's client for the external school record
// system. One capability per action type; any non-2xx response is an
// opaque coded failure. The pipeline never reaches the record system
// except through this client.
package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Stable failure codes surfaced to the caller. Codes carry enough to
// retry meaningfully without leaking payload contents.
const (
	CodeRecipientNotFound = "recipient_not_found"
	CodeNotFound          = "not_found"
	CodeTimeout           = "record_system_timeout"
	CodeSystemError       = "record_system_error"
)

// APIError is a coded failure from the record system.
type APIError struct {
	Code    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("record system: %s (status %d): %s", e.Code, e.Status, e.Message)
}

// ErrorCode extracts the stable code from an error, mapping transport
// timeouts to CodeTimeout and anything else to CodeSystemError.
func ErrorCode(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return CodeTimeout
	}
	return CodeSystemError
}

// Recipient is a resolved message/meeting target.
type Recipient struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"` // student, guardian, educator
}

// SendMessageRequest is the minimal payload for the message capability.
type SendMessageRequest struct {
	SenderID     string   `json:"sender_id"`
	RecipientIDs []string `json:"recipient_ids"`
	Body         string   `json:"body"`
}

// SendMessageResponse echoes the accepted fields plus the created id.
type SendMessageResponse struct {
	MessageID    string   `json:"message_id"`
	RecipientIDs []string `json:"recipient_ids"`
	Body         string   `json:"body"`
}

// Message is the owner-lookup view used by the undo engine.
type Message struct {
	ID       string `json:"id"`
	SenderID string `json:"sender_id"`
}

// ScheduleMeetingRequest is the minimal payload for the meeting capability.
type ScheduleMeetingRequest struct {
	OrganizerID    string   `json:"organizer_id"`
	ParticipantIDs []string `json:"participant_ids"`
	When           string   `json:"when"`
	Topic          string   `json:"topic,omitempty"`
}

// ScheduleMeetingResponse echoes the accepted fields plus the created id.
type ScheduleMeetingResponse struct {
	MeetingID      string   `json:"meeting_id"`
	ParticipantIDs []string `json:"participant_ids"`
	When           string   `json:"when"`
}

// Meeting is the owner-lookup view used by the undo engine.
type Meeting struct {
	ID          string `json:"id"`
	OrganizerID string `json:"organizer_id"`
}

// ScheduleEntry is one item of an actor's schedule.
type ScheduleEntry struct {
	When  string `json:"when"`
	What  string `json:"what"`
	Where string `json:"where,omitempty"`
}

// GradeEntry is one subject grade for a student.
type GradeEntry struct {
	Subject string `json:"subject"`
	Grade   string `json:"grade"`
}

// Entity is a directory lookup result.
type Entity struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Summary string `json:"summary,omitempty"`
}

// Client is the capability surface the executor and undo engine call.
type Client interface {
	ResolveRecipients(ctx context.Context, name string) ([]Recipient, error)

	SendMessage(ctx context.Context, req SendMessageRequest) (*SendMessageResponse, error)
	ScheduleMeeting(ctx context.Context, req ScheduleMeetingRequest) (*ScheduleMeetingResponse, error)
	GetSchedule(ctx context.Context, actorID, date string) ([]ScheduleEntry, error)
	GetGrades(ctx context.Context, studentID string) ([]GradeEntry, error)
	QueryEntity(ctx context.Context, query string) ([]Entity, error)

	// Inverse operations and owner lookups for the undo engine.
	GetMessage(ctx context.Context, id string) (*Message, error)
	DeleteMessage(ctx context.Context, id string) error
	GetMeeting(ctx context.Context, id string) (*Meeting, error)
	CancelMeeting(ctx context.Context, id string) error
}

// HTTPClient talks JSON over HTTP to the record system.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient creates a client with the given base URL and per-request
// timeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// do issues one JSON request. No retries: a failed capability call is
// surfaced once and the user decides whether to re-issue.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		code := CodeSystemError
		if resp.StatusCode == http.StatusNotFound {
			code = CodeNotFound
		}
		return &APIError{Code: code, Status: resp.StatusCode, Message: string(msg)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ResolveRecipients maps a free-text name to directory entries.
func (c *HTTPClient) ResolveRecipients(ctx context.Context, name string) ([]Recipient, error) {
	var out struct {
		Recipients []Recipient `json:"recipients"`
	}
	path := "/v1/recipients?name=" + url.QueryEscape(name)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if len(out.Recipients) == 0 {
		return nil, &APIError{Code: CodeRecipientNotFound, Status: http.StatusNotFound,
			Message: fmt.Sprintf("no recipient matching %q", name)}
	}
	return out.Recipients, nil
}

func (c *HTTPClient) SendMessage(ctx context.Context, req SendMessageRequest) (*SendMessageResponse, error) {
	var out SendMessageResponse
	if err := c.do(ctx, http.MethodPost, "/v1/messages", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) ScheduleMeeting(ctx context.Context, req ScheduleMeetingRequest) (*ScheduleMeetingResponse, error) {
	var out ScheduleMeetingResponse
	if err := c.do(ctx, http.MethodPost, "/v1/meetings", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) GetSchedule(ctx context.Context, actorID, date string) ([]ScheduleEntry, error) {
	var out struct {
		Entries []ScheduleEntry `json:"entries"`
	}
	path := "/v1/schedule?actor=" + url.QueryEscape(actorID)
	if date != "" {
		path += "&date=" + url.QueryEscape(date)
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

func (c *HTTPClient) GetGrades(ctx context.Context, studentID string) ([]GradeEntry, error) {
	var out struct {
		Grades []GradeEntry `json:"grades"`
	}
	path := "/v1/students/" + url.PathEscape(studentID) + "/grades"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Grades, nil
}

func (c *HTTPClient) QueryEntity(ctx context.Context, query string) ([]Entity, error) {
	var out struct {
		Entities []Entity `json:"entities"`
	}
	path := "/v1/entities?q=" + url.QueryEscape(query)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Entities, nil
}

func (c *HTTPClient) GetMessage(ctx context.Context, id string) (*Message, error) {
	var out Message
	if err := c.do(ctx, http.MethodGet, "/v1/messages/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) DeleteMessage(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/messages/"+url.PathEscape(id), nil, nil)
}

func (c *HTTPClient) GetMeeting(ctx context.Context, id string) (*Meeting, error) {
	var out Meeting
	if err := c.do(ctx, http.MethodGet, "/v1/meetings/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) CancelMeeting(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/meetings/"+url.PathEscape(id), nil, nil)
}

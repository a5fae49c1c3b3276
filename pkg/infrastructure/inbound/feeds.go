package inbound

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Notification types sent by the feed owner.
const (
	EventFeedUpdated = "feed.updated"
	EventJobUpdated  = "job.updated"
	EventPing        = "ping"
)

// SignatureHeader carries "sha256=<hex hmac of body>".
const SignatureHeader = "X-SitePulse-Signature"

const maxBodyBytes = 1 << 20

// FeedHandler parses the generic feed-change notification:
//
//	{"event": "feed.updated", "jobId": "J-100", "feed": "ap-register"}
type FeedHandler struct{}

// NewFeedHandler creates the feed-change handler.
func NewFeedHandler() *FeedHandler {
	return &FeedHandler{}
}

// Provider returns "feeds", mounting the handler at /hooks/feeds.
func (h *FeedHandler) Provider() string {
	return "feeds"
}

// ValidateSignature checks the HMAC-SHA256 signature of the body.
func (h *FeedHandler) ValidateSignature(r *http.Request, secret string) bool {
	signature := r.Header.Get(SignatureHeader)
	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return false
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	return hmac.Equal([]byte(signature), []byte(Sign(body, secret)))
}

// Sign returns the signature header value for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

type feedPayload struct {
	Event      string    `json:"event"`
	JobID      string    `json:"jobId"`
	Feed       string    `json:"feed"`
	OccurredAt time.Time `json:"occurredAt"`
}

// ParseEvent parses a notification body into an Event.
func (h *FeedHandler) ParseEvent(r *http.Request) (*Event, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var payload feedPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}

	switch payload.Event {
	case EventPing:
	case EventFeedUpdated, EventJobUpdated:
		if payload.JobID == "" {
			return nil, errors.New("jobId is required")
		}
	case "":
		return nil, errors.New("event is required")
	default:
		return nil, fmt.Errorf("unsupported event %q", payload.Event)
	}

	ts := payload.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &Event{
		Provider:  h.Provider(),
		EventType: payload.Event,
		JobID:     payload.JobID,
		Feed:      payload.Feed,
		Timestamp: ts,
	}, nil
}

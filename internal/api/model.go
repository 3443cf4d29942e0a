package api

import (
	"encoding/json"
	"strings"
	"time"
)

// ---------------------------------------------
// 🗂️ Backend API Models
// ---------------------------------------------

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Class maps the sentiment to its indicator class. Anything unknown is neutral.
func (s Sentiment) Class() string {
	switch s {
	case SentimentPositive:
		return "sentiment-positive"
	case SentimentNegative:
		return "sentiment-negative"
	default:
		return "sentiment-neutral"
	}
}

type User struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email,omitempty"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
}

type Member struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
}

// Chat is either a direct conversation (OtherUser set) or a group.
type Chat struct {
	ID              int64     `json:"id"`
	IsGroup         bool      `json:"is_group"`
	Name            string    `json:"name"`
	MemberCount     int       `json:"member_count,omitempty"`
	OtherUser       *User     `json:"other_user,omitempty"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
	Description     string    `json:"description,omitempty"`
	Members         []Member  `json:"members,omitempty"`
	CreatedBy       string    `json:"created_by,omitempty"`
	UpdatedAt       Timestamp `json:"updated_at,omitempty"`
}

// PeerID is the user id direct messages are fetched and sent with.
// Chats without other_user fall back to their own id.
func (c Chat) PeerID() string {
	if c.OtherUser != nil && c.OtherUser.ID != "" {
		return c.OtherUser.ID
	}
	return formatID(c.ID)
}

type Message struct {
	ID                 int64     `json:"id"`
	SenderID           string    `json:"sender_id"`
	SenderName         string    `json:"sender_name,omitempty"`
	SenderProfileImage string    `json:"sender_profile_image,omitempty"`
	Content            string    `json:"content"`
	Timestamp          Timestamp `json:"timestamp"`
	Sentiment          Sentiment `json:"sentiment,omitempty"`
	IsGroupMessage     bool      `json:"is_group_message,omitempty"`
}

// ---------------------------------------------
// 📨 Request / Response Envelopes
// ---------------------------------------------

// envelope is the union of every success shape plus the {error} field.
type envelope struct {
	Error    string    `json:"error,omitempty"`
	Success  bool      `json:"success,omitempty"`
	Chats    []Chat    `json:"chats,omitempty"`
	Users    []User    `json:"users,omitempty"`
	Messages []Message `json:"messages,omitempty"`
	Message  *Message  `json:"message,omitempty"`
	Group    *Chat     `json:"group,omitempty"`
}

type SendDirectRequest struct {
	Content    string `json:"content"`
	ReceiverID string `json:"receiver_id"`
}

type SendGroupRequest struct {
	Content string `json:"content"`
	GroupID int64  `json:"group_id"`
}

type CreateGroupRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	MemberIDs   []string `json:"member_ids"`
}

// ---------------------------------------------
// 🕒 Timestamps
// ---------------------------------------------

// Timestamp accepts RFC 3339 values and the zone-less ISO form the backend emits.
// Zone-less values are read as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
}

func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return Timestamp{t}, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return Timestamp{}, firstErr
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*t = Timestamp{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

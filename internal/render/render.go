// Package render turns chat state into HTML fragments. Every template goes through
// html/template, so user-supplied text is escaped for the context it lands in.
package render

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"go-chat-web/internal/api"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").ParseFS(templateFS, "templates/*.html"))

const (
	SelectPath = "/chats/select"
	DirectPath = "/chats/direct/"

	DefaultTimeLayout = "15:04"
)

type Options struct {
	// Location the hour:minute stamps are shown in. Defaults to UTC.
	Location   *time.Location
	TimeLayout string
}

// Renderer renders fragments for one viewer. The viewer id decides which
// messages are drawn as sent.
type Renderer struct {
	viewerID string
	loc      *time.Location
	layout   string
}

func New(viewerID string, opts Options) *Renderer {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	layout := opts.TimeLayout
	if layout == "" {
		layout = DefaultTimeLayout
	}
	return &Renderer{viewerID: viewerID, loc: loc, layout: layout}
}

func (r *Renderer) ViewerID() string { return r.viewerID }

// Message renders a single bubble.
func (r *Renderer) Message(m api.Message) (template.HTML, error) {
	return execute("message", r.messageView(m))
}

// Messages renders a whole conversation, or the empty state when there is nothing to show.
func (r *Renderer) Messages(ms []api.Message) (template.HTML, error) {
	return execute("messages", r.messageViews(ms))
}

// NewMessages renders only the given bubbles, for appending after what is already shown.
func (r *Renderer) NewMessages(ms []api.Message) (template.HTML, error) {
	return execute("message-items", r.messageViews(ms))
}

func (r *Renderer) ChatList(chats []api.Chat) (template.HTML, error) {
	items := make([]chatItemView, 0, len(chats))
	for _, c := range chats {
		items = append(items, toChatItem(c))
	}
	return execute("chat-list", items)
}

func (r *Renderer) ChatHeader(h Header) (template.HTML, error) {
	return execute("chat-header", h)
}

func (r *Renderer) CreateGroupDialog(users []api.User) (template.HTML, error) {
	return execute("create-group-dialog", users)
}

func (r *Renderer) NewChatDialog(users []api.User) (template.HTML, error) {
	items := make([]userItemView, 0, len(users))
	for _, u := range users {
		email := u.Email
		if email == "" {
			email = "No email"
		}
		items = append(items, userItemView{
			Name:     u.Name,
			Email:    email,
			Avatar:   avatarView{Name: u.Name, URL: u.ProfileImageURL},
			StartURL: DirectPath + url.PathEscape(u.ID),
		})
	}
	return execute("new-chat-dialog", items)
}

func (r *Renderer) GroupInfo(group api.Chat) (template.HTML, error) {
	if group.MemberCount == 0 {
		group.MemberCount = len(group.Members)
	}
	return execute("group-info", group)
}

// Page writes the shell document hosting every fragment.
func (r *Renderer) Page(w io.Writer, p PageData) error {
	return errors.Wrap(templates.ExecuteTemplate(w, "page", p), "render page")
}

func (r *Renderer) messageViews(ms []api.Message) []messageView {
	views := make([]messageView, 0, len(ms))
	for _, m := range ms {
		views = append(views, r.messageView(m))
	}
	return views
}

func (r *Renderer) messageView(m api.Message) messageView {
	sent := m.SenderID == r.viewerID
	v := messageView{
		ID:             m.ID,
		Direction:      "received",
		CardClass:      "bg-body-secondary",
		Content:        m.Content,
		Sentiment:      string(m.Sentiment),
		SentimentClass: m.Sentiment.Class(),
	}
	if sent {
		v.Direction = "sent"
		v.CardClass = "bg-primary text-white"
	}
	if !m.Timestamp.IsZero() {
		v.Time = m.Timestamp.In(r.loc).Format(r.layout)
	}
	if m.IsGroupMessage && !sent {
		v.ShowSender = true
		v.SenderName = m.SenderName
		v.SenderAvatar = m.SenderProfileImage
	}
	return v
}

func toChatItem(c api.Chat) chatItemView {
	item := chatItemView{
		Name:   c.Name,
		Avatar: avatarView{Group: c.IsGroup, Name: c.Name, URL: c.ProfileImageURL},
	}
	q := url.Values{}
	if c.IsGroup {
		item.Subtitle = strconv.Itoa(c.MemberCount) + " members"
		q.Set("kind", "group")
		q.Set("id", strconv.FormatInt(c.ID, 10))
	} else {
		item.Subtitle = "Direct message"
		if c.OtherUser != nil && c.OtherUser.Email != "" {
			item.Subtitle = c.OtherUser.Email
		}
		q.Set("kind", "direct")
		q.Set("id", c.PeerID())
	}
	item.SelectURL = SelectPath + "?" + q.Encode()
	return item
}

func execute(name string, data interface{}) (template.HTML, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", errors.Wrapf(err, "render %s", name)
	}
	return template.HTML(buf.String()), nil
}

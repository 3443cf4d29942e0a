package render

import "html/template"

type messageView struct {
	ID             int64
	Direction      string
	CardClass      string
	ShowSender     bool
	SenderName     string
	SenderAvatar   string
	Content        string
	Time           string
	Sentiment      string
	SentimentClass string
}

type avatarView struct {
	Group bool
	Name  string
	URL   string
}

type chatItemView struct {
	Name      string
	Subtitle  string
	SelectURL string
	Avatar    avatarView
}

type userItemView struct {
	Name     string
	Email    string
	StartURL string
	Avatar   avatarView
}

// Header describes the bar above the open conversation.
type Header struct {
	Name          string
	Info          string
	AvatarURL     string
	IsGroup       bool
	ShowGroupInfo bool
}

// Avatar is read by the chat-header template.
func (h Header) Avatar() avatarView {
	return avatarView{Group: h.IsGroup, Name: h.Name, URL: h.AvatarURL}
}

type PageData struct {
	Title         string
	ChatList      template.HTML
	GroupsEnabled bool
	LiveURL       string
	// SessionID rides on every htmx request from the page.
	SessionID string
}

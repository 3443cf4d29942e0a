package render

import (
	"bytes"
	"html/template"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"go-chat-web/internal/api"
)

func ts(t *testing.T, s string) api.Timestamp {
	t.Helper()
	v, err := api.ParseTimestamp(s)
	if err != nil {
		t.Fatalf("ParseTimestamp(%q): %v", s, err)
	}
	return v
}

// parse returns every element and the concatenated text of a fragment.
func parse(t *testing.T, frag template.HTML) (elements []*html.Node, text string) {
	t.Helper()
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(string(frag)), ctx)
	if err != nil {
		t.Fatalf("parse fragment: %v", err)
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			elements = append(elements, n)
		case html.TextNode:
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return elements, sb.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func findByClass(elements []*html.Node, class string) *html.Node {
	for _, n := range elements {
		if hasClass(n, class) {
			return n
		}
	}
	return nil
}

func TestMessageSentAndReceived(t *testing.T) {
	r := New("alice", Options{})

	tests := []struct {
		name      string
		msg       api.Message
		direction string
		card      string
	}{
		{"own message", api.Message{ID: 1, SenderID: "alice", Content: "hi"}, "sent", "bg-primary"},
		{"peer message", api.Message{ID: 2, SenderID: "bob", Content: "yo"}, "received", "bg-body-secondary"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.Message(tt.msg)
			if err != nil {
				t.Fatalf("Message: %v", err)
			}
			els, _ := parse(t, out)
			bubble := findByClass(els, "message-bubble")
			if bubble == nil || !hasClass(bubble, tt.direction) {
				t.Fatalf("bubble classes = %q, want %q", attr(bubble, "class"), tt.direction)
			}
			if findByClass(els, tt.card) == nil {
				t.Errorf("missing card class %q in %s", tt.card, out)
			}
		})
	}
}

func TestMessageEscapesScript(t *testing.T) {
	r := New("alice", Options{})
	payload := "<script>alert(1)</script>"

	out, err := r.Message(api.Message{
		ID:             1,
		SenderID:       "mallory",
		SenderName:     `<img src=x onerror="alert(2)">`,
		Content:        payload,
		IsGroupMessage: true,
	})
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	if !strings.Contains(string(out), "&lt;script&gt;alert(1)&lt;/script&gt;") {
		t.Errorf("escaped payload missing from %s", out)
	}

	els, text := parse(t, out)
	for _, n := range els {
		if n.Data == "script" {
			t.Fatal("rendered markup contains a script element")
		}
		if n.Data == "img" && attr(n, "onerror") != "" {
			t.Fatal("sender name injected an onerror handler")
		}
	}
	if !strings.Contains(text, payload) {
		t.Errorf("literal payload not shown as text: %q", text)
	}
}

func TestMessageSanitizesAvatarURL(t *testing.T) {
	r := New("alice", Options{})
	out, err := r.Message(api.Message{
		ID:                 1,
		SenderID:           "bob",
		SenderName:         "Bob",
		SenderProfileImage: "javascript:alert(1)",
		IsGroupMessage:     true,
	})
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	if strings.Contains(string(out), "javascript:") {
		t.Errorf("unsafe url kept: %s", out)
	}
}

func TestMessageGroupSender(t *testing.T) {
	r := New("alice", Options{})

	tests := []struct {
		name       string
		msg        api.Message
		wantSender bool
	}{
		{"group received", api.Message{SenderID: "bob", SenderName: "Bob Smith", IsGroupMessage: true}, true},
		{"group sent", api.Message{SenderID: "alice", SenderName: "Alice", IsGroupMessage: true}, false},
		{"direct received", api.Message{SenderID: "bob", SenderName: "Bob Smith"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := r.Message(tt.msg)
			if err != nil {
				t.Fatalf("Message: %v", err)
			}
			els, _ := parse(t, out)
			got := findByClass(els, "fw-bold") != nil
			if got != tt.wantSender {
				t.Errorf("sender shown = %v, want %v", got, tt.wantSender)
			}
		})
	}
}

func TestMessageAvatarFallback(t *testing.T) {
	r := New("alice", Options{})
	out, err := r.Message(api.Message{SenderID: "bob", SenderName: "Bob", IsGroupMessage: true})
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	els, _ := parse(t, out)
	for _, n := range els {
		if n.Data == "img" {
			t.Fatal("img rendered without a profile image")
		}
	}
	if findByClass(els, "bg-secondary") == nil {
		t.Error("fallback avatar missing")
	}
}

func TestMessageSentiment(t *testing.T) {
	r := New("alice", Options{})

	tests := []struct {
		sentiment api.Sentiment
		want      string
	}{
		{api.SentimentPositive, "sentiment-positive"},
		{api.SentimentNegative, "sentiment-negative"},
		{api.SentimentNeutral, "sentiment-neutral"},
		{"weird", "sentiment-neutral"},
		{"", ""},
	}
	for _, tt := range tests {
		out, err := r.Message(api.Message{SenderID: "bob", Sentiment: tt.sentiment})
		if err != nil {
			t.Fatalf("Message: %v", err)
		}
		els, _ := parse(t, out)
		ind := findByClass(els, "sentiment-indicator")
		if tt.want == "" {
			if ind != nil {
				t.Errorf("indicator drawn for empty sentiment")
			}
			continue
		}
		if ind == nil || !hasClass(ind, tt.want) {
			t.Errorf("sentiment %q: indicator %v, want class %q", tt.sentiment, ind, tt.want)
		}
	}
}

func TestMessageTimestamp(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	r := New("alice", Options{Location: loc})

	out, err := r.Message(api.Message{SenderID: "bob", Timestamp: ts(t, "2024-03-01T09:05:30Z")})
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	els, _ := parse(t, out)
	stamp := findByClass(els, "message-timestamp")
	if stamp == nil || stamp.FirstChild == nil || stamp.FirstChild.Data != "11:05" {
		t.Errorf("timestamp not rendered as 11:05: %s", out)
	}
}

func TestMessagesEmptyAndIncremental(t *testing.T) {
	r := New("alice", Options{})

	full, err := r.Messages(nil)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if !strings.Contains(string(full), "No messages yet") {
		t.Errorf("empty state missing: %s", full)
	}

	inc, err := r.NewMessages(nil)
	if err != nil {
		t.Fatalf("NewMessages: %v", err)
	}
	if strings.TrimSpace(string(inc)) != "" {
		t.Errorf("incremental render of nothing = %q", inc)
	}

	two, err := r.NewMessages([]api.Message{{ID: 1, Content: "a"}, {ID: 2, Content: "b"}})
	if err != nil {
		t.Fatalf("NewMessages: %v", err)
	}
	if got := strings.Count(string(two), "message-bubble"); got != 2 {
		t.Errorf("bubbles = %d, want 2", got)
	}
	if strings.Index(string(two), `id="message-1"`) > strings.Index(string(two), `id="message-2"`) {
		t.Error("messages out of order")
	}
}

func TestChatList(t *testing.T) {
	r := New("alice", Options{})

	empty, err := r.ChatList(nil)
	if err != nil {
		t.Fatalf("ChatList: %v", err)
	}
	if !strings.Contains(string(empty), "No chats yet") {
		t.Errorf("empty state missing: %s", empty)
	}

	out, err := r.ChatList([]api.Chat{
		{ID: 3, IsGroup: true, Name: "Team <b>", MemberCount: 4},
		{ID: 9, Name: "Bob", OtherUser: &api.User{ID: "user2", Email: "bob@example.com"}},
		{ID: 10, Name: "Carol", OtherUser: &api.User{ID: "user3"}},
	})
	if err != nil {
		t.Fatalf("ChatList: %v", err)
	}
	s := string(out)
	for _, want := range []string{
		"4 members",
		"bob@example.com",
		"Direct message",
		"Team &lt;b&gt;",
		"/chats/select?id=3&amp;kind=group",
		"/chats/select?id=user2&amp;kind=direct",
		`class="badge bg-primary"`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("chat list missing %q", want)
		}
	}
	if strings.Count(s, "badge bg-primary") != 1 {
		t.Error("group badge should appear once")
	}
}

func TestDialogs(t *testing.T) {
	r := New("alice", Options{})
	users := []api.User{
		{ID: "user2", Name: "Bob", Email: "bob@example.com", ProfileImageURL: "https://example.com/b.png"},
		{ID: "user 3", Name: "Carol"},
	}

	create, err := r.CreateGroupDialog(users)
	if err != nil {
		t.Fatalf("CreateGroupDialog: %v", err)
	}
	if strings.Count(string(create), `type="checkbox"`) != 2 {
		t.Errorf("checkboxes missing: %s", create)
	}

	newChat, err := r.NewChatDialog(users)
	if err != nil {
		t.Fatalf("NewChatDialog: %v", err)
	}
	for _, want := range []string{"No email", "/chats/direct/user2", "/chats/direct/user%203"} {
		if !strings.Contains(string(newChat), want) {
			t.Errorf("new chat dialog missing %q", want)
		}
	}
}

func TestGroupInfo(t *testing.T) {
	r := New("alice", Options{})
	out, err := r.GroupInfo(api.Chat{
		ID:          3,
		IsGroup:     true,
		Name:        "Team",
		Description: "<i>planning</i>",
		CreatedBy:   "Alice Johnson",
		Members:     []api.Member{{ID: "user1", Name: "Alice"}, {ID: "user2", Name: "Bob"}},
	})
	if err != nil {
		t.Fatalf("GroupInfo: %v", err)
	}
	s := string(out)
	for _, want := range []string{"Members (2)", "&lt;i&gt;planning&lt;/i&gt;", "Alice Johnson", "Bob"} {
		if !strings.Contains(s, want) {
			t.Errorf("group info missing %q", want)
		}
	}

	noDesc, err := r.GroupInfo(api.Chat{Name: "Quiet"})
	if err != nil {
		t.Fatalf("GroupInfo: %v", err)
	}
	if strings.Contains(string(noDesc), "Description") {
		t.Error("description section rendered without a description")
	}
}

func TestChatHeader(t *testing.T) {
	r := New("alice", Options{})
	out, err := r.ChatHeader(Header{Name: "Team", Info: "3 members", IsGroup: true, ShowGroupInfo: true})
	if err != nil {
		t.Fatalf("ChatHeader: %v", err)
	}
	if !strings.Contains(string(out), "groupInfoButton") || !strings.Contains(string(out), "3 members") {
		t.Errorf("header = %s", out)
	}

	direct, err := r.ChatHeader(Header{Name: "Bob", Info: "Online"})
	if err != nil {
		t.Fatalf("ChatHeader: %v", err)
	}
	if strings.Contains(string(direct), "groupInfoButton") {
		t.Error("group info button on a direct chat")
	}
}

func TestPage(t *testing.T) {
	r := New("alice", Options{})
	var buf bytes.Buffer
	err := r.Page(&buf, PageData{Title: "Chat", ChatList: template.HTML(`<p id="x"></p>`), GroupsEnabled: false, LiveURL: "/live"})
	if err != nil {
		t.Fatalf("Page: %v", err)
	}
	s := buf.String()
	if !strings.Contains(s, `<p id="x"></p>`) || strings.Contains(s, "/groups/new") || !strings.Contains(s, `ws-connect="/live"`) {
		t.Errorf("page = %s", s)
	}
}

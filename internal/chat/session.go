// Package chat holds the per-viewer client state: which conversation is open,
// the messages known for it and the reference data the dialogs need.
package chat

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"go-chat-web/internal/api"
	"go-chat-web/internal/render"
)

// UserLister supplies the user directory. The API client is one; the shared
// directory cache is another.
type UserLister interface {
	ListUsers(ctx context.Context) ([]api.User, error)
}

type Options struct {
	GroupsEnabled bool
	// Users defaults to the backend itself.
	Users  UserLister
	Logger logrus.FieldLogger
}

// Session is the state of one viewer's chat window. The lock is never held
// across a backend call; a generation counter bumped on every selection tells
// late responses apart from current ones. emit is held from committing a batch
// until it is drawn, so surfaces see batches in commit order.
type Session struct {
	backend Backend
	users   UserLister
	render  *render.Renderer
	groups  bool
	log     logrus.FieldLogger

	emit          sync.Mutex
	mu            sync.Mutex
	gen           uint64
	conv          Conversation
	lastMessageID int64
	messages      []api.Message
	known         map[int64]struct{}
	chats         []api.Chat
	userList      []api.User
	groupInfo     *api.Chat
}

func NewSession(backend Backend, r *render.Renderer, opts Options) *Session {
	users := opts.Users
	if users == nil {
		users = backend
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Session{
		backend: backend,
		users:   users,
		render:  r,
		groups:  opts.GroupsEnabled,
		log:     log.WithField("viewer", r.ViewerID()),
		known:   map[int64]struct{}{},
	}
}

func (s *Session) GroupsEnabled() bool { return s.groups }

func (s *Session) Renderer() *render.Renderer { return s.render }

// Bootstrap loads the chat list and the user directory concurrently.
func (s *Session) Bootstrap(ctx context.Context, sf Surface) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.LoadChats(ctx, sf) })
	g.Go(func() error { return s.LoadUsers(ctx) })
	return g.Wait()
}

func (s *Session) LoadChats(ctx context.Context, sf Surface) error {
	chats, err := s.backend.ListChats(ctx)
	if err != nil {
		s.log.WithError(err).Error("Error loading chats")
		return errors.Wrap(err, "load chats")
	}
	if !s.groups {
		direct := chats[:0]
		for _, c := range chats {
			if !c.IsGroup {
				direct = append(direct, c)
			}
		}
		chats = direct
	}

	s.mu.Lock()
	s.chats = chats
	if s.conv.Kind == KindGroup {
		s.groupInfo = findGroup(chats, s.conv.GroupID)
	}
	s.mu.Unlock()

	html, err := s.render.ChatList(chats)
	if err != nil {
		return err
	}
	sf.ReplaceChatList(html)
	return nil
}

func (s *Session) LoadUsers(ctx context.Context) error {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		s.log.WithError(err).Error("Error loading users")
		return errors.Wrap(err, "load users")
	}
	s.mu.Lock()
	s.userList = users
	s.mu.Unlock()
	return nil
}

// Select opens a conversation: state is reset, the header is drawn and the
// full history is fetched.
func (s *Session) Select(ctx context.Context, sf Surface, conv Conversation) error {
	if conv.IsZero() {
		return ErrNoConversation
	}
	if conv.Kind == KindGroup && !s.groups {
		return ErrGroupsDisabled
	}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.conv = conv
	s.lastMessageID = 0
	s.messages = nil
	s.known = map[int64]struct{}{}
	s.groupInfo = nil
	if conv.Kind == KindGroup {
		s.groupInfo = findGroup(s.chats, conv.GroupID)
	}
	header := s.headerLocked(conv)
	s.mu.Unlock()

	html, err := s.render.ChatHeader(header)
	if err != nil {
		return err
	}
	sf.ReplaceHeader(html)

	return s.fullLoad(ctx, sf, conv, gen)
}

// StartDirect is the new-chat dialog pick.
func (s *Session) StartDirect(ctx context.Context, sf Surface, userID string) error {
	if userID == "" {
		return ErrNoConversation
	}
	sf.CloseDialog()
	return s.Select(ctx, sf, Direct(userID))
}

// Refresh reloads the whole history of the open conversation.
func (s *Session) Refresh(ctx context.Context, sf Surface) error {
	s.mu.Lock()
	conv, gen := s.conv, s.gen
	s.mu.Unlock()
	if conv.IsZero() {
		return ErrNoConversation
	}
	return s.fullLoad(ctx, sf, conv, gen)
}

// Poll fetches what arrived after the high-water mark and appends it.
func (s *Session) Poll(ctx context.Context, sf Surface) error {
	s.mu.Lock()
	conv, gen, cursor := s.conv, s.gen, s.lastMessageID
	s.mu.Unlock()
	if conv.IsZero() {
		return ErrNoConversation
	}

	msgs, err := fetchMessages(ctx, s.backend, conv, cursor)
	if err != nil {
		s.log.WithError(err).WithField("conversation", conv.String()).Error("Error loading messages")
		return errors.Wrap(err, "poll messages")
	}

	s.emit.Lock()
	defer s.emit.Unlock()
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		s.log.WithField("conversation", conv.String()).Debug("dropping poll for a closed conversation")
		return ErrSuperseded
	}
	fresh := make([]api.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID <= cursor {
			continue
		}
		if _, ok := s.known[m.ID]; ok {
			continue
		}
		s.known[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}
	s.messages = append(s.messages, fresh...)
	if id := maxID(fresh); id > s.lastMessageID {
		s.lastMessageID = id
	}
	s.mu.Unlock()

	if len(fresh) == 0 {
		return nil
	}
	html, err := s.render.NewMessages(fresh)
	if err != nil {
		return err
	}
	sf.AppendMessages(html)
	return nil
}

// PollEvery polls on a ticker, and whenever wake fires, until ctx ends. A nil
// wake only ticks. Failed polls are logged and the loop carries on.
func (s *Session) PollEvery(ctx context.Context, sf Surface, interval time.Duration, wake <-chan struct{}) error {
	if interval <= 0 {
		return errors.Errorf("poll interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-wake:
		}
		err := s.Poll(ctx, sf)
		switch {
		case err == nil, errors.Cause(err) == ErrNoConversation, errors.Cause(err) == ErrSuperseded:
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			s.log.WithError(err).Warn("poll failed")
		}
	}
}

// Send posts content to the open conversation and returns the conversation it
// went to. Backend failures are reported through the surface alert as well as
// returned.
func (s *Session) Send(ctx context.Context, sf Surface, content string) (Conversation, error) {
	content = trimContent(content)
	if content == "" {
		return Conversation{}, ErrEmptyContent
	}
	s.mu.Lock()
	conv, gen := s.conv, s.gen
	s.mu.Unlock()
	if conv.IsZero() {
		return Conversation{}, ErrNoConversation
	}

	msg, err := sendMessage(ctx, s.backend, conv, content)
	if err != nil {
		s.log.WithError(err).WithField("conversation", conv.String()).Error("Error sending message")
		if apiErr, ok := api.AsAPIError(err); ok {
			sf.Alert("Error sending message: " + apiErr.Message)
		} else {
			sf.Alert("Failed to send message. Please try again.")
		}
		return Conversation{}, errors.Wrap(err, "send message")
	}
	sf.ClearComposer()

	s.emit.Lock()
	defer s.emit.Unlock()
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return conv, nil
	}
	_, dup := s.known[msg.ID]
	if !dup {
		s.known[msg.ID] = struct{}{}
		s.messages = append(s.messages, msg)
		if msg.ID > s.lastMessageID {
			s.lastMessageID = msg.ID
		}
	}
	s.mu.Unlock()

	if dup {
		return conv, nil
	}
	html, err := s.render.Message(msg)
	if err != nil {
		return conv, err
	}
	sf.AppendMessages(html)
	return conv, nil
}

// CreateGroup validates the dialog form, creates the group and reloads the chat list.
func (s *Session) CreateGroup(ctx context.Context, sf Surface, form GroupForm) (*api.Chat, error) {
	if !s.groups {
		return nil, ErrGroupsDisabled
	}
	if err := form.clean(); err != nil {
		switch errors.Cause(err) {
		case ErrGroupNameRequired:
			sf.Alert("Group name is required")
		case ErrNoMembers:
			sf.Alert("Please select at least one member")
		}
		return nil, err
	}

	group, err := s.backend.CreateGroup(ctx, api.CreateGroupRequest{
		Name:        form.Name,
		Description: form.Description,
		MemberIDs:   form.MemberIDs,
	})
	if err != nil {
		s.log.WithError(err).Error("Error creating group")
		if apiErr, ok := api.AsAPIError(err); ok {
			sf.Alert("Error creating group: " + apiErr.Message)
		} else {
			sf.Alert("Failed to create group. Please try again.")
		}
		return nil, errors.Wrap(err, "create group")
	}

	sf.CloseDialog()
	if err := s.LoadChats(ctx, sf); err != nil {
		s.log.WithError(err).Warn("group created but chat list reload failed")
	}
	sf.Alert("Group created successfully!")
	return group, nil
}

// GroupInfo shows the cached metadata of the open group.
func (s *Session) GroupInfo(sf Surface) error {
	if !s.groups {
		return ErrGroupsDisabled
	}
	s.mu.Lock()
	var group api.Chat
	ok := s.groupInfo != nil
	if ok {
		group = *s.groupInfo
	}
	s.mu.Unlock()
	if !ok {
		return ErrNoGroup
	}
	html, err := s.render.GroupInfo(group)
	if err != nil {
		return err
	}
	sf.ShowDialog(html)
	return nil
}

func (s *Session) ShowCreateGroup(sf Surface) error {
	if !s.groups {
		return ErrGroupsDisabled
	}
	html, err := s.render.CreateGroupDialog(s.Users())
	if err != nil {
		return err
	}
	sf.ShowDialog(html)
	return nil
}

func (s *Session) ShowNewChat(sf Surface) error {
	html, err := s.render.NewChatDialog(s.Users())
	if err != nil {
		return err
	}
	sf.ShowDialog(html)
	return nil
}

func (s *Session) Conversation() Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv
}

func (s *Session) LastMessageID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMessageID
}

func (s *Session) Messages() []api.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) Chats() []api.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.Chat, len(s.chats))
	copy(out, s.chats)
	return out
}

func (s *Session) Users() []api.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.User, len(s.userList))
	copy(out, s.userList)
	return out
}

func (s *Session) fullLoad(ctx context.Context, sf Surface, conv Conversation, gen uint64) error {
	msgs, err := fetchMessages(ctx, s.backend, conv, 0)
	if err != nil {
		s.log.WithError(err).WithField("conversation", conv.String()).Error("Error loading messages")
		return errors.Wrap(err, "load messages")
	}

	s.emit.Lock()
	defer s.emit.Unlock()
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		s.log.WithField("conversation", conv.String()).Debug("dropping history for a closed conversation")
		return ErrSuperseded
	}
	s.messages = append([]api.Message(nil), msgs...)
	s.known = make(map[int64]struct{}, len(msgs))
	for _, m := range msgs {
		s.known[m.ID] = struct{}{}
	}
	s.lastMessageID = maxID(msgs)
	s.mu.Unlock()

	html, err := s.render.Messages(msgs)
	if err != nil {
		return err
	}
	sf.ReplaceMessages(html)
	return nil
}

func (s *Session) headerLocked(conv Conversation) render.Header {
	if conv.Kind == KindGroup {
		h := render.Header{Name: "Group", IsGroup: true, ShowGroupInfo: true, Info: "0 members"}
		if g := s.groupInfo; g != nil {
			h.Name = g.Name
			h.AvatarURL = g.ProfileImageURL
			h.Info = strconv.Itoa(g.MemberCount) + " members"
		}
		return h
	}

	h := render.Header{Name: "User", Info: "Online"}
	for _, c := range s.chats {
		if !c.IsGroup && c.PeerID() == conv.PeerID {
			h.Name = c.Name
			h.AvatarURL = c.ProfileImageURL
			if c.OtherUser != nil && c.OtherUser.ProfileImageURL != "" {
				h.AvatarURL = c.OtherUser.ProfileImageURL
			}
			return h
		}
	}
	for _, u := range s.userList {
		if u.ID == conv.PeerID {
			h.Name = u.Name
			h.AvatarURL = u.ProfileImageURL
			break
		}
	}
	return h
}

func findGroup(chats []api.Chat, id int64) *api.Chat {
	for i := range chats {
		if chats[i].IsGroup && chats[i].ID == id {
			g := chats[i]
			return &g
		}
	}
	return nil
}

func maxID(ms []api.Message) int64 {
	var max int64
	for _, m := range ms {
		if m.ID > max {
			max = m.ID
		}
	}
	return max
}

package chat

import (
	"context"
	"strconv"

	"github.com/pkg/errors"

	"go-chat-web/internal/api"
)

type Kind int

const (
	KindNone Kind = iota
	KindDirect
	KindGroup
)

func (k Kind) String() string {
	switch k {
	case KindDirect:
		return "direct"
	case KindGroup:
		return "group"
	default:
		return "none"
	}
}

// Conversation identifies what is open: a peer for direct chats, a group id otherwise.
// The zero value means nothing is selected.
type Conversation struct {
	Kind    Kind
	PeerID  string
	GroupID int64
}

func Direct(peerID string) Conversation {
	return Conversation{Kind: KindDirect, PeerID: peerID}
}

func Group(groupID int64) Conversation {
	return Conversation{Kind: KindGroup, GroupID: groupID}
}

// ParseConversation reads the kind/id pair the chat list links carry.
func ParseConversation(kind, id string) (Conversation, error) {
	switch kind {
	case "direct", "user":
		if id == "" {
			return Conversation{}, errors.New("direct conversation needs a user id")
		}
		return Direct(id), nil
	case "group":
		gid, err := strconv.ParseInt(id, 10, 64)
		if err != nil || gid <= 0 {
			return Conversation{}, errors.Errorf("invalid group id %q", id)
		}
		return Group(gid), nil
	default:
		return Conversation{}, errors.Errorf("unknown conversation kind %q", kind)
	}
}

func (c Conversation) IsZero() bool { return c.Kind == KindNone }

func (c Conversation) String() string {
	switch c.Kind {
	case KindDirect:
		return "direct:" + c.PeerID
	case KindGroup:
		return "group:" + strconv.FormatInt(c.GroupID, 10)
	default:
		return "none"
	}
}

// Backend is the part of the API client a session needs.
type Backend interface {
	ListChats(ctx context.Context) ([]api.Chat, error)
	ListUsers(ctx context.Context) ([]api.User, error)
	DirectMessages(ctx context.Context, userID string, lastID int64) ([]api.Message, error)
	GroupMessages(ctx context.Context, groupID, lastID int64) ([]api.Message, error)
	SendDirect(ctx context.Context, req api.SendDirectRequest) (api.Message, error)
	SendGroup(ctx context.Context, req api.SendGroupRequest) (api.Message, error)
	CreateGroup(ctx context.Context, req api.CreateGroupRequest) (*api.Chat, error)
}

func fetchMessages(ctx context.Context, b Backend, conv Conversation, cursor int64) ([]api.Message, error) {
	switch conv.Kind {
	case KindDirect:
		return b.DirectMessages(ctx, conv.PeerID, cursor)
	case KindGroup:
		return b.GroupMessages(ctx, conv.GroupID, cursor)
	default:
		return nil, ErrNoConversation
	}
}

func sendMessage(ctx context.Context, b Backend, conv Conversation, content string) (api.Message, error) {
	switch conv.Kind {
	case KindDirect:
		return b.SendDirect(ctx, api.SendDirectRequest{Content: content, ReceiverID: conv.PeerID})
	case KindGroup:
		return b.SendGroup(ctx, api.SendGroupRequest{Content: content, GroupID: conv.GroupID})
	default:
		return api.Message{}, ErrNoConversation
	}
}

package chat

import "github.com/pkg/errors"

var (
	ErrNoConversation    = errors.New("no conversation selected")
	ErrEmptyContent      = errors.New("message content is empty")
	ErrNoGroup           = errors.New("no group selected")
	ErrGroupsDisabled    = errors.New("group chats are disabled")
	ErrGroupNameRequired = errors.New("group name is required")
	ErrNoMembers         = errors.New("at least one member is required")
	// ErrSuperseded means the conversation changed while the call was in flight;
	// its result was dropped.
	ErrSuperseded = errors.New("conversation changed during request")
)

// IsValidation reports whether err was raised before any network call.
func IsValidation(err error) bool {
	switch errors.Cause(err) {
	case ErrNoConversation, ErrEmptyContent, ErrNoGroup, ErrGroupNameRequired, ErrNoMembers:
		return true
	}
	return false
}

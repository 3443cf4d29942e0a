package chat

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/leebenson/conform"
	"github.com/pkg/errors"
)

var validate = validator.New()

// GroupForm is what the create-group dialog submits.
type GroupForm struct {
	Name        string   `conform:"trim" validate:"required"`
	Description string   `conform:"trim"`
	MemberIDs   []string `validate:"min=1,dive,required"`
}

// clean trims the form in place and reports the first rule it breaks,
// name before members.
func (f *GroupForm) clean() error {
	if err := conform.Strings(f); err != nil {
		return errors.Wrap(err, "conform group form")
	}
	ids := f.MemberIDs[:0]
	for _, id := range f.MemberIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	f.MemberIDs = ids

	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return errors.Wrap(err, "validate group form")
	}
	switch verrs[0].StructField() {
	case "Name":
		return ErrGroupNameRequired
	default:
		return ErrNoMembers
	}
}

func trimContent(s string) string { return strings.TrimSpace(s) }

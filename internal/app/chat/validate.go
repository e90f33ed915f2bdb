package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/dkeye/chatsync/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}

// MessageInput is a message as submitted by a client. SentAt is optional and
// must be an RFC 3339 timestamp when present.
type MessageInput struct {
	Text   string `json:"msg" validate:"notblank"`
	Author string `json:"msgFrom" validate:"notblank"`
	SentAt string `json:"msgDateTime,omitempty"`
}

type CreateChatRequest struct {
	Participants []string       `json:"participants" validate:"required,min=2,unique,dive,notblank"`
	Messages     []MessageInput `json:"messages,omitempty" validate:"omitempty,dive"`
}

type AddParticipantRequest struct {
	Participant string `json:"participant" validate:"notblank"`
}

// normalize trims participants into a fresh slice; the caller's slice is
// left as it was.
func (r *CreateChatRequest) normalize() {
	if r.Participants == nil {
		return
	}
	trimmed := make([]string, len(r.Participants))
	for i, p := range r.Participants {
		trimmed[i] = strings.TrimSpace(p)
	}
	r.Participants = trimmed
}

func (r CreateChatRequest) validate() ([]domain.Message, error) {
	if err := validate.Struct(r); err != nil {
		return nil, invalid(err)
	}
	msgs := make([]domain.Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		sentAt, err := m.sentAt()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, domain.Message{Text: m.Text, AuthorUsername: m.Author, SentAt: sentAt})
	}
	return msgs, nil
}

func (m MessageInput) validate() (time.Time, error) {
	if err := validate.Struct(m); err != nil {
		return time.Time{}, invalid(err)
	}
	return m.sentAt()
}

// sentAt returns the zero time when no date was supplied.
func (m MessageInput) sentAt() (time.Time, error) {
	if m.SentAt == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, m.SentAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: msgDateTime %q is not a valid instant", domain.ErrInvalidRequest, m.SentAt)
	}
	return t, nil
}

func (r AddParticipantRequest) validate() error {
	if err := validate.Struct(r); err != nil {
		return invalid(err)
	}
	return nil
}

func invalid(err error) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidRequest, err.Error())
}

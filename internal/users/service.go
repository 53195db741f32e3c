package users

import (
	"context"
	"strings"
	"time"
)

// DefaultName is used when a user has no name on record.
const DefaultName = "User"

type User struct {
	ID               string
	FullName         *string
	FirstName        *string
	LastName         *string
	ResponseLanguage *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Profile is what extraction prompts need to know about a user.
type Profile struct {
	Name     string
	Language string
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Profile returns the display name and response language of the user. An
// unknown user gets DefaultName and no language.
func (s *Service) Profile(ctx context.Context, id string) (Profile, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	if user == nil {
		return Profile{Name: DefaultName}, nil
	}
	return Profile{Name: user.DisplayName(), Language: deref(user.ResponseLanguage)}, nil
}

// DisplayName prefers the full name, then first and last name joined.
func (u *User) DisplayName() string {
	if name := strings.TrimSpace(deref(u.FullName)); name != "" {
		return name
	}
	if name := strings.TrimSpace(deref(u.FirstName) + " " + deref(u.LastName)); name != "" {
		return name
	}
	return DefaultName
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

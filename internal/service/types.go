package service

import (
	"github.com/vanshika/iamgraph/internal/domain"
)

// UserInput is the inbound payload for a user, as read from an ingest file or an
// API request.
type UserInput struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// ToDomain normalizes the input into a domain.User and validates it.
func (in UserInput) ToDomain() (domain.User, error) {
	user := domain.User{
		FullName: sanitizeString(in.FullName),
		Email:    normalizeEmail(in.Email),
	}
	if err := user.Validate(); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

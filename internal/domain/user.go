package domain

import (
	"fmt"
	"net/mail"
	"strings"
)

// ActionViewFile is the action name granting read access to a file.
const ActionViewFile = "view_file"

// User is a subject of the IAM graph.
type User struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// Validate checks that the user carries both required attributes and a parseable email.
func (u User) Validate() error {
	if strings.TrimSpace(u.FullName) == "" {
		return fmt.Errorf("%w: full name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(u.Email) == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(u.Email); err != nil {
		return fmt.Errorf("%w: email %q: %v", ErrInvalidInput, u.Email, err)
	}
	return nil
}

// FileMatch is one file returned by an access query, numbered from 1 in result order.
type FileMatch struct {
	Index int    `json:"index"`
	Path  string `json:"path"`
}

// FileUpdate summarises a path rename.
type FileUpdate struct {
	OldPath string `json:"old"`
	NewPath string `json:"new"`
	Updated int    `json:"updated"`
}

// FileSearch is the result of an access query for one user name.
type FileSearch struct {
	User     string      `json:"user"`
	Inferred bool        `json:"inferred"`
	Extended bool        `json:"extended"`
	Files    []FileMatch `json:"files"`
}

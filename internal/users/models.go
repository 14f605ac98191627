package users

import (
	"strings"
	"time"
)

// Role is a directory role as the directory service spells it.
type Role string

const (
	RoleUser       Role = "ROLE_USER"
	RoleHR         Role = "ROLE_HR"
	RoleManager    Role = "ROLE_MANAGER"
	RoleAdmin      Role = "ROLE_ADMIN"
	RoleSuperAdmin Role = "ROLE_SUPER_ADMIN"
)

// Roles lists the closed set of roles accepted by the directory service
var Roles = []Role{RoleUser, RoleHR, RoleManager, RoleAdmin, RoleSuperAdmin}

// ParseRole accepts both the prefixed ("ROLE_ADMIN") and the short ("admin") spelling
func ParseRole(s string) (Role, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "" {
		return "", ErrInvalidRole
	}
	if !strings.HasPrefix(name, "ROLE_") {
		name = "ROLE_" + name
	}
	for _, r := range Roles {
		if string(r) == name {
			return r, nil
		}
	}
	return "", ErrInvalidRole
}

// Short returns the role without its "ROLE_" prefix, e.g. "SUPER_ADMIN"
func (r Role) Short() string {
	return strings.TrimPrefix(string(r), "ROLE_")
}

// User represents an account held by the directory service
type User struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"userId,omitempty"`
	Username             string    `json:"username"`
	FirstName            string    `json:"firstname"`
	LastName             string    `json:"lastname"`
	Email                string    `json:"email"`
	Role                 Role      `json:"role"`
	Authorities          []string  `json:"authorities,omitempty"`
	Active               bool      `json:"active"`
	NotLocked            bool      `json:"notLocked"`
	ProfileImageURL      string    `json:"profileImageUrl,omitempty"`
	JoinDate             time.Time `json:"joinDate"`
	LastLoginDate        time.Time `json:"lastLoginDate"`
	LastLoginDateDisplay time.Time `json:"lastLoginDateDisplay"`
}

// Clone returns a deep copy so edits on the copy never leak into the original
func (u User) Clone() User {
	c := u
	if u.Authorities != nil {
		c.Authorities = make([]string, len(u.Authorities))
		copy(c.Authorities, u.Authorities)
	}
	return c
}

// FullName joins first and last name
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// CloneAll deep-copies a user list
func CloneAll(list []User) []User {
	if list == nil {
		return nil
	}
	out := make([]User, len(list))
	for i, u := range list {
		out[i] = u.Clone()
	}
	return out
}

// ProfileImage is an image file selected but not yet submitted
type ProfileImage struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Submission is the multipart payload sent on create and update.
// CurrentUsername is empty for creates and holds the lookup key for updates.
type Submission struct {
	CurrentUsername string
	FirstName       string
	LastName        string
	Username        string
	Email           string
	Role            Role
	Active          bool
	NotLocked       bool
	ProfileImage    *ProfileImage
}

// NewSubmission builds a submission from a user's current field values
func NewSubmission(currentUsername string, u User, image *ProfileImage) Submission {
	return Submission{
		CurrentUsername: currentUsername,
		FirstName:       u.FirstName,
		LastName:        u.LastName,
		Username:        u.Username,
		Email:           u.Email,
		Role:            u.Role,
		Active:          u.Active,
		NotLocked:       u.NotLocked,
		ProfileImage:    image,
	}
}

// HTTPResponse is the envelope the directory service uses for messages and errors
type HTTPResponse struct {
	TimeStamp      string `json:"timeStamp,omitempty"`
	HTTPStatusCode int    `json:"httpStatusCode"`
	HTTPStatus     string `json:"httpStatus,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Message        string `json:"message"`
}

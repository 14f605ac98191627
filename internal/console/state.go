package console

import (
	"math"
	"sync"

	"github.com/WailSalutem-Health-Care/user-directory/internal/users"
)

// Signal names an event for the view layer
type Signal string

const (
	SignalOpenDetail        Signal = "open-detail"
	SignalOpenEditDetail    Signal = "open-edit-detail"
	SignalCloseCreateDialog Signal = "close-create-dialog"
	SignalCloseEditDialog   Signal = "close-edit-dialog"
	SignalTitleChanged      Signal = "title-changed"
	SignalNavigateLogin     Signal = "navigate-login"
)

// SignalFunc receives signals. payload is the selected/edited user for the
// detail signals, the new title for title-changed, and nil otherwise.
type SignalFunc func(sig Signal, payload interface{})

// Upload statuses
const (
	UploadIdle       = "idle"
	UploadInProgress = "progress"
	UploadDone       = "done"
)

// UploadStatus tracks one profile image upload
type UploadStatus struct {
	Status     string
	Percentage int
}

// Begin resets the tracker for a new upload
func (s *UploadStatus) Begin() {
	s.Status = UploadIdle
	s.Percentage = 0
}

// Progress records loaded of total bytes sent
func (s *UploadStatus) Progress(loaded, total int64) {
	if total <= 0 {
		return
	}
	pct := int(math.Round(100 * float64(loaded) / float64(total)))
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	s.Percentage = pct
	s.Status = UploadInProgress
}

// Finish marks a completed upload, whatever its outcome
func (s *UploadStatus) Finish() {
	s.Status = UploadDone
}

// Fail marks a transport failure and clears the percentage
func (s *UploadStatus) Fail() {
	s.Status = UploadDone
	s.Percentage = 0
}

// UserForm holds the fields of the create-user dialog.
// The controller resets it when a create succeeds.
type UserForm struct {
	mu        sync.Mutex
	FirstName string
	LastName  string
	Username  string
	Email     string
	Role      users.Role
	Active    bool
	NotLocked bool
}

// User returns the form values as a user record
func (f *UserForm) User() users.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return users.User{
		FirstName: f.FirstName,
		LastName:  f.LastName,
		Username:  f.Username,
		Email:     f.Email,
		Role:      f.Role,
		Active:    f.Active,
		NotLocked: f.NotLocked,
	}
}

func (f *UserForm) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FirstName, f.LastName, f.Username, f.Email = "", "", "", ""
	f.Role = ""
	f.Active, f.NotLocked = false, false
}

// IsEmpty reports whether every field holds its zero value
func (f *UserForm) IsEmpty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.FirstName == "" && f.LastName == "" && f.Username == "" && f.Email == "" &&
		f.Role == "" && !f.Active && !f.NotLocked
}

// ResetPasswordForm holds the email of the reset-password dialog
type ResetPasswordForm struct {
	mu    sync.Mutex
	Email string
}

func (f *ResetPasswordForm) Value() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Email
}

func (f *ResetPasswordForm) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Email = ""
}

package stub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/WailSalutem-Health-Care/user-directory/internal/auth"
	"github.com/WailSalutem-Health-Care/user-directory/internal/notification"
	"github.com/WailSalutem-Health-Care/user-directory/internal/users"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type mockPublisher struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (m *mockPublisher) Publish(ctx context.Context, routingKey string, eventData interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, routingKey)
	return m.err
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.published...)
}

func testIssuer() *auth.HMACAuthority {
	return auth.NewHMACAuthority(auth.Config{Issuer: "test-issuer", Secret: "test-secret", TokenTTL: time.Hour})
}

func newTestService(t *testing.T, pub notification.PublisherInterface) *Service {
	t.Helper()
	svc := NewService(NewMemoryRepository(), testIssuer(), pub, "http://stub.local/")
	if err := svc.SeedAdmin(Seed{
		Username:  "admin",
		Password:  "secret",
		FirstName: "Ada",
		LastName:  "Admin",
		Email:     "admin@example.com",
	}); err != nil {
		t.Fatalf("SeedAdmin failed: %v", err)
	}
	return svc
}

func sampleSubmission() users.Submission {
	return users.Submission{
		FirstName: "John",
		LastName:  "Doe",
		Username:  "jdoe",
		Email:     "jdoe@example.com",
		Role:      users.RoleManager,
		Active:    true,
		NotLocked: true,
	}
}

// TestLogin_Success tests that the seeded account can log in and receives a verifiable token
func TestLogin_Success(t *testing.T) {
	svc := newTestService(t, nil)

	u, token, err := svc.Login("admin", "secret")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if u.Role != users.RoleSuperAdmin {
		t.Errorf("Expected role %s, got %s", users.RoleSuperAdmin, u.Role)
	}
	if u.LastLoginDate.IsZero() {
		t.Error("Expected last login date to be set")
	}

	principal, err := testIssuer().ParseAndVerifyToken(token)
	if err != nil {
		t.Fatalf("Expected a valid token, got %v", err)
	}
	if principal.Username != "admin" {
		t.Errorf("Expected subject admin, got %s", principal.Username)
	}
}

// TestLogin_Rejections tests bad credentials, locked and disabled accounts
func TestLogin_Rejections(t *testing.T) {
	svc := newTestService(t, nil)

	if _, _, err := svc.Login("admin", "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Errorf("Expected ErrBadCredentials for wrong password, got %v", err)
	}
	if _, _, err := svc.Login("ghost", "secret"); !errors.Is(err, ErrBadCredentials) {
		t.Errorf("Expected ErrBadCredentials for unknown user, got %v", err)
	}

	sub := users.NewSubmission("admin", users.User{
		FirstName: "Ada", LastName: "Admin", Username: "admin", Email: "admin@example.com",
		Role: users.RoleSuperAdmin, Active: true, NotLocked: false,
	}, nil)
	if _, err := svc.UpdateUser(context.Background(), sub, true); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}
	if _, _, err := svc.Login("admin", "secret"); !errors.Is(err, ErrAccountLocked) {
		t.Errorf("Expected ErrAccountLocked, got %v", err)
	}

	sub.NotLocked = true
	sub.Active = false
	if _, err := svc.UpdateUser(context.Background(), sub, true); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}
	if _, _, err := svc.Login("admin", "secret"); !errors.Is(err, ErrAccountDisabled) {
		t.Errorf("Expected ErrAccountDisabled, got %v", err)
	}
}

// TestAddUser tests account creation, role authorities and the published event
func TestAddUser(t *testing.T) {
	pub := &mockPublisher{}
	svc := newTestService(t, pub)

	sub := sampleSubmission()
	sub.ProfileImage = &users.ProfileImage{Filename: "me.png", Data: pngHeader}

	u, err := svc.AddUser(context.Background(), sub)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if u.ID == "" || len(u.UserID) != 10 {
		t.Errorf("Expected generated ids, got %q / %q", u.ID, u.UserID)
	}
	if u.ProfileImageURL != "http://stub.local/user/image/jdoe" {
		t.Errorf("Unexpected image URL %q", u.ProfileImageURL)
	}
	if len(u.Authorities) != 3 {
		t.Errorf("Expected manager authorities, got %v", u.Authorities)
	}
	if got := svc.ListUsers(); len(got) != 2 || got[1].Username != "jdoe" {
		t.Errorf("Expected jdoe appended after admin, got %+v", got)
	}

	contentType, data, err := svc.ProfileImage("jdoe")
	if err != nil {
		t.Fatalf("Expected stored image, got %v", err)
	}
	if contentType != "image/png" || len(data) != len(pngHeader) {
		t.Errorf("Unexpected image %s (%d bytes)", contentType, len(data))
	}

	keys := pub.keys()
	if len(keys) != 1 || keys[0] != notification.EventUserCreated {
		t.Errorf("Expected one %s event, got %v", notification.EventUserCreated, keys)
	}
}

// TestAddUser_Validation tests duplicate and missing fields
func TestAddUser_Validation(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	if _, err := svc.AddUser(ctx, sampleSubmission()); err != nil {
		t.Fatalf("AddUser failed: %v", err)
	}

	tests := []struct {
		name   string
		modify func(*users.Submission)
		want   error
	}{
		{"duplicate_username", func(s *users.Submission) { s.Email = "other@example.com" }, ErrUsernameExists},
		{"duplicate_email", func(s *users.Submission) { s.Username = "other"; s.Email = "JDOE@example.com" }, ErrEmailExists},
		{"missing_username", func(s *users.Submission) { s.Username = "  " }, ErrMissingUsername},
		{"missing_email", func(s *users.Submission) { s.Username = "other"; s.Email = "" }, ErrMissingEmail},
		{"invalid_role", func(s *users.Submission) { s.Username = "other"; s.Email = "o@x.io"; s.Role = "ROLE_PILOT" }, ErrInvalidRoleValue},
		{"not_an_image", func(s *users.Submission) {
			s.Username = "other"
			s.Email = "o@x.io"
			s.ProfileImage = &users.ProfileImage{Filename: "a.txt", Data: []byte("plain text")}
		}, ErrNotAnImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := sampleSubmission()
			tt.modify(&sub)
			if _, err := svc.AddUser(ctx, sub); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

// TestAddUser_DefaultRole tests that a missing role becomes ROLE_USER
func TestAddUser_DefaultRole(t *testing.T) {
	svc := newTestService(t, nil)
	sub := sampleSubmission()
	sub.Role = ""

	u, err := svc.AddUser(context.Background(), sub)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if u.Role != users.RoleUser {
		t.Errorf("Expected %s, got %s", users.RoleUser, u.Role)
	}
}

// TestUpdateUser_Rename tests that renaming keeps list position and moves the image
func TestUpdateUser_Rename(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	sub := sampleSubmission()
	sub.ProfileImage = &users.ProfileImage{Filename: "me.png", Data: pngHeader}
	if _, err := svc.AddUser(ctx, sub); err != nil {
		t.Fatalf("AddUser failed: %v", err)
	}

	sub.CurrentUsername = "jdoe"
	sub.Username = "john"
	sub.ProfileImage = nil
	u, err := svc.UpdateUser(ctx, sub, true)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if u.ProfileImageURL != "http://stub.local/user/image/john" {
		t.Errorf("Expected image URL to follow the rename, got %q", u.ProfileImageURL)
	}
	if _, _, err := svc.ProfileImage("john"); err != nil {
		t.Errorf("Expected image under new name, got %v", err)
	}
	if _, _, err := svc.ProfileImage("jdoe"); !errors.Is(err, ErrImageNotFound) {
		t.Errorf("Expected old image gone, got %v", err)
	}
	list := svc.ListUsers()
	if len(list) != 2 || list[1].Username != "john" {
		t.Errorf("Expected renamed user in place, got %+v", list)
	}
}

// TestUpdateUser_NotFound tests updating an unknown account
func TestUpdateUser_NotFound(t *testing.T) {
	svc := newTestService(t, nil)
	sub := sampleSubmission()
	sub.CurrentUsername = "ghost"

	if _, err := svc.UpdateUser(context.Background(), sub, true); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}

// TestUpdateUser_RenameCollisionKeepsImages tests that a rejected rename leaves both images in place
func TestUpdateUser_RenameCollisionKeepsImages(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	alice := sampleSubmission()
	alice.Username = "alice"
	alice.Email = "alice@example.com"
	alice.ProfileImage = &users.ProfileImage{Filename: "alice.png", Data: pngHeader}
	if _, err := svc.AddUser(ctx, alice); err != nil {
		t.Fatalf("AddUser alice failed: %v", err)
	}
	bob := sampleSubmission()
	bob.Username = "bob"
	bob.Email = "bob@example.com"
	bob.ProfileImage = &users.ProfileImage{Filename: "bob.gif", Data: []byte("GIF89a\x01\x00\x01\x00")}
	if _, err := svc.AddUser(ctx, bob); err != nil {
		t.Fatalf("AddUser bob failed: %v", err)
	}

	alice.CurrentUsername = "alice"
	alice.Username = "bob"
	alice.ProfileImage = nil
	if _, err := svc.UpdateUser(ctx, alice, true); !errors.Is(err, ErrUsernameExists) {
		t.Fatalf("Expected ErrUsernameExists, got %v", err)
	}

	if ct, _, err := svc.ProfileImage("alice"); err != nil || ct != "image/png" {
		t.Errorf("Expected alice's png to stay, got %q, %v", ct, err)
	}
	if ct, _, err := svc.ProfileImage("bob"); err != nil || ct != "image/gif" {
		t.Errorf("Expected bob's gif to stay, got %q, %v", ct, err)
	}
}

// TestUpdateUser_NotAnImageLeavesAccount tests that a bad upload rejects the whole update
func TestUpdateUser_NotAnImageLeavesAccount(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	if _, err := svc.AddUser(ctx, sampleSubmission()); err != nil {
		t.Fatalf("AddUser failed: %v", err)
	}

	sub := sampleSubmission()
	sub.CurrentUsername = "jdoe"
	sub.Username = "john"
	sub.ProfileImage = &users.ProfileImage{Filename: "notes.txt", Data: []byte("plain text")}
	if _, err := svc.UpdateUser(ctx, sub, true); !errors.Is(err, ErrNotAnImage) {
		t.Fatalf("Expected ErrNotAnImage, got %v", err)
	}
	list := svc.ListUsers()
	if len(list) != 2 || list[1].Username != "jdoe" {
		t.Errorf("Expected jdoe unchanged, got %+v", list)
	}
}

// TestUpdateUser_WithoutManage tests that a self edit may change the profile but not access
func TestUpdateUser_WithoutManage(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()
	sub := sampleSubmission()
	sub.Role = users.RoleUser
	if _, err := svc.AddUser(ctx, sub); err != nil {
		t.Fatalf("AddUser failed: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(s *users.Submission)
		wantErr error
	}{
		{"profile_fields", func(s *users.Submission) { s.FirstName = "Johnny" }, nil},
		{"short_role_spelling", func(s *users.Submission) { s.Role = "USER" }, nil},
		{"role", func(s *users.Submission) { s.Role = users.RoleAdmin }, ErrNotPermitted},
		{"active", func(s *users.Submission) { s.Active = false }, ErrNotPermitted},
		{"locked", func(s *users.Submission) { s.NotLocked = false }, ErrNotPermitted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sub
			s.CurrentUsername = "jdoe"
			tt.mutate(&s)
			_, err := svc.UpdateUser(ctx, s, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	list := svc.ListUsers()
	if list[1].Role != users.RoleUser || list[1].FirstName != "Johnny" {
		t.Errorf("Expected only the profile change stored, got %+v", list[1])
	}
}

// TestDeleteUser tests deletion by either id and the self-delete guard
func TestDeleteUser(t *testing.T) {
	pub := &mockPublisher{}
	svc := newTestService(t, pub)
	ctx := context.Background()
	principal := &auth.Principal{Username: "admin", Role: string(users.RoleSuperAdmin)}

	u, err := svc.AddUser(ctx, sampleSubmission())
	if err != nil {
		t.Fatalf("AddUser failed: %v", err)
	}
	if err := svc.DeleteUser(ctx, u.UserID, principal); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := svc.DeleteUser(ctx, u.ID, principal); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound on second delete, got %v", err)
	}

	admin := svc.ListUsers()[0]
	if err := svc.DeleteUser(ctx, admin.ID, principal); !errors.Is(err, ErrSelfDelete) {
		t.Errorf("Expected ErrSelfDelete, got %v", err)
	}

	keys := pub.keys()
	if len(keys) != 2 || keys[1] != notification.EventUserDeleted {
		t.Errorf("Expected created then deleted events, got %v", keys)
	}
}

// TestResetPassword tests that the old password stops working
func TestResetPassword(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	if err := svc.ResetPassword(ctx, "ADMIN@example.com"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, _, err := svc.Login("admin", "secret"); !errors.Is(err, ErrBadCredentials) {
		t.Errorf("Expected old password rejected, got %v", err)
	}
	if err := svc.ResetPassword(ctx, "nobody@example.com"); !errors.Is(err, ErrEmailNotFound) {
		t.Errorf("Expected ErrEmailNotFound, got %v", err)
	}
}

// TestUpdateProfileImage tests image replacement and the missing image case
func TestUpdateProfileImage(t *testing.T) {
	pub := &mockPublisher{err: errors.New("broker down")}
	svc := newTestService(t, pub)
	ctx := context.Background()

	u, err := svc.UpdateProfileImage(ctx, "admin", &users.ProfileImage{Filename: "me.png", Data: pngHeader})
	if err != nil {
		t.Fatalf("Expected no error even when publishing fails, got %v", err)
	}
	if u.ProfileImageURL != "http://stub.local/user/image/admin" {
		t.Errorf("Unexpected image URL %q", u.ProfileImageURL)
	}
	if _, err := svc.UpdateProfileImage(ctx, "admin", nil); !errors.Is(err, ErrMissingImage) {
		t.Errorf("Expected ErrMissingImage, got %v", err)
	}
	if _, err := svc.UpdateProfileImage(ctx, "ghost", &users.ProfileImage{Data: pngHeader}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}

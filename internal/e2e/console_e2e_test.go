package e2e

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/WailSalutem-Health-Care/user-directory/internal/console"
	"github.com/WailSalutem-Health-Care/user-directory/internal/directory"
	"github.com/WailSalutem-Health-Care/user-directory/internal/notification"
	"github.com/WailSalutem-Health-Care/user-directory/internal/session"
	"github.com/WailSalutem-Health-Care/user-directory/internal/stub"
	"github.com/WailSalutem-Health-Care/user-directory/internal/testutil"
	"github.com/WailSalutem-Health-Care/user-directory/internal/users"
)

var pngImage = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

// TestE2E_UserLifecycle exercises the console against the stub: welcome,
// create, edit, search, delete
func TestE2E_UserLifecycle(t *testing.T) {
	tc := SetupConsole(t, testutil.AdminUsername, testutil.AdminPassword)
	ctx := context.Background()

	tc.Run(func() { tc.Controller.Initialize(ctx) })
	if n := tc.Last(t); n.Severity != notification.SeveritySuccess || n.Message != "Welcome ADA!" {
		t.Errorf("Unexpected welcome %+v", n)
	}
	if !tc.Controller.IsAdmin() {
		t.Error("Expected the seeded account to be an admin")
	}
	if cached, err := tc.Cache.CachedUsers(ctx); err != nil || len(cached) != 1 {
		t.Fatalf("Expected one cached user, got %v (%v)", cached, err)
	}

	// Create
	form := &console.UserForm{
		FirstName: "John",
		LastName:  "Doe",
		Username:  "jdoe",
		Email:     "jdoe@example.com",
		Role:      users.RoleManager,
		Active:    true,
		NotLocked: true,
	}
	tc.Run(func() { tc.Controller.AddUser(form, &users.ProfileImage{Filename: "john.png", Data: pngImage}) })

	if n := tc.Last(t); n.Message != console.MsgUserAdded {
		t.Fatalf("Expected add confirmation, got %+v", n)
	}
	if !form.IsEmpty() {
		t.Error("Expected the form to be reset")
	}
	created, ok := tc.FindUser("jdoe")
	if !ok {
		t.Fatalf("Expected jdoe in the refreshed list, got %+v", tc.Controller.Users())
	}
	if !strings.HasPrefix(created.ProfileImageURL, tc.Stub.URL()+"/user/image/jdoe") {
		t.Errorf("Unexpected image URL %q", created.ProfileImageURL)
	}
	tc.Stub.Publisher.AssertEventPublished(t, notification.EventUserCreated)
	if cached, _ := tc.Cache.CachedUsers(ctx); len(cached) != 1 {
		t.Errorf("Expected the cache to keep the welcome snapshot, got %d users", len(cached))
	}

	// Duplicate create reports the directory's message
	dup := &console.UserForm{FirstName: "J", Username: "jdoe", Email: "other@example.com"}
	tc.Run(func() { tc.Controller.AddUser(dup, nil) })
	if n := tc.Last(t); n.Severity != notification.SeverityError || n.Message != stub.ErrUsernameExists.Error() {
		t.Errorf("Expected duplicate username error, got %+v", n)
	}
	if dup.IsEmpty() {
		t.Error("Expected the form to keep its values after a failed create")
	}

	// Edit with a rename
	tc.Controller.BeginEditUser(created)
	tc.Controller.EditUser(func(u *users.User) {
		u.Username = "john"
		u.LastName = "Dough"
	})
	tc.Run(tc.Controller.CommitEditUser)

	if n := tc.Last(t); n.Message != console.MsgUserUpdated {
		t.Fatalf("Expected update confirmation, got %+v", n)
	}
	renamed, ok := tc.FindUser("john")
	if !ok || renamed.LastName != "Dough" {
		t.Fatalf("Expected renamed user, got %+v", tc.Controller.Users())
	}
	if _, ok := tc.FindUser("jdoe"); ok {
		t.Error("Expected the old username to be gone")
	}

	// Search runs over the cache refreshed with a notifying refresh
	tc.Run(func() { tc.Controller.RefreshUsers(true) })
	tc.Controller.SearchUsers("DOUGH")
	if got := tc.Controller.Users(); len(got) != 1 || got[0].Username != "john" {
		t.Errorf("Expected search to find john, got %+v", got)
	}
	tc.Controller.SearchUsers("nobody-matches-this")
	if got := tc.Controller.Users(); len(got) != 2 {
		t.Errorf("Expected the full cached list for a miss, got %d users", len(got))
	}

	// Delete
	tc.Run(func() { tc.Controller.DeleteUser(renamed.ID) })
	if n := tc.Last(t); n.Severity != notification.SeveritySuccess || n.Message != "User deleted successfully" {
		t.Errorf("Expected delete confirmation, got %+v", n)
	}
	if _, ok := tc.FindUser("john"); ok {
		t.Error("Expected john to be deleted")
	}
	tc.Stub.Publisher.AssertEventPublished(t, notification.EventUserDeleted)
}

// TestE2E_ResetPassword tests both outcomes of a reset request
func TestE2E_ResetPassword(t *testing.T) {
	tc := SetupConsole(t, testutil.AdminUsername, testutil.AdminPassword)

	form := &console.ResetPasswordForm{Email: "nobody@example.com"}
	tc.Run(func() { tc.Controller.ResetPassword(form) })
	if n := tc.Last(t); n.Severity != notification.SeverityWarning || n.Message != stub.ErrEmailNotFound.Error() {
		t.Errorf("Expected a warning, got %+v", n)
	}
	if form.Value() == "" {
		t.Error("Expected the form to keep its value after a failure")
	}

	form = &console.ResetPasswordForm{Email: testutil.AdminEmail}
	tc.Run(func() { tc.Controller.ResetPassword(form) })
	if n := tc.Last(t); n.Severity != notification.SeveritySuccess || !strings.HasSuffix(n.Message, testutil.AdminEmail) {
		t.Errorf("Expected a success message, got %+v", n)
	}
	if form.Value() != "" {
		t.Error("Expected the form to be reset")
	}

	_, _, err := tc.Client.Login(context.Background(), directory.Credentials{
		Username: testutil.AdminUsername,
		Password: testutil.AdminPassword,
	})
	var remote *directory.RemoteError
	if !errors.As(err, &remote) || remote.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected the old password to be rejected, got %v", err)
	}
}

// TestE2E_UploadOwnProfileImage tests the upload path and the session update
func TestE2E_UploadOwnProfileImage(t *testing.T) {
	tc := SetupConsole(t, testutil.AdminUsername, testutil.AdminPassword)
	ctx := context.Background()
	tc.Run(func() { tc.Controller.Initialize(ctx) })

	tc.Controller.StageProfileImage(&users.ProfileImage{Filename: "ada.png", Data: pngImage})
	tc.Run(tc.Controller.UploadOwnProfileImage)

	status := tc.Controller.UploadStatus()
	if status.Status != console.UploadDone || status.Percentage != 100 {
		t.Errorf("Expected a finished upload at 100%%, got %+v", status)
	}
	if n := tc.Last(t); n.Severity != notification.SeveritySuccess || n.Message != "Ada's profile image updated successfully" {
		t.Errorf("Unexpected notification %+v", n)
	}

	saved, err := tc.Session.User(ctx)
	if err != nil {
		t.Fatalf("Expected a session user, got %v", err)
	}
	if !strings.HasPrefix(saved.ProfileImageURL, tc.Stub.URL()+"/user/image/admin?time=") {
		t.Errorf("Expected a cache-busted image URL, got %q", saved.ProfileImageURL)
	}
	tc.Stub.Publisher.AssertEventPublished(t, notification.EventUserProfileImageUpdated)

	// The stored image is served back publicly
	resp := testutil.NewHTTPTestClient(tc.Stub.URL(), "").GET(t, "/user/image/admin")
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	resp.Body.Close()
}

// TestE2E_PermissionDenied tests that a plain user sees the directory's refusal
func TestE2E_PermissionDenied(t *testing.T) {
	tc := SetupConsole(t, testutil.AdminUsername, testutil.AdminPassword)
	ctx := context.Background()

	if _, err := tc.Stub.Service.AddUser(ctx, users.Submission{
		FirstName: "Bob", Username: "bob", Email: "bob@example.com", Role: users.RoleUser, Active: true, NotLocked: true,
	}); err != nil {
		t.Fatalf("AddUser failed: %v", err)
	}
	token := testutil.GenerateToken(t, tc.Stub.Authority, "bob", users.RoleUser)
	if err := tc.Session.SaveToken(ctx, token); err != nil {
		t.Fatalf("Failed to save token: %v", err)
	}

	form := &console.UserForm{FirstName: "Eve", Username: "eve", Email: "eve@example.com"}
	tc.Run(func() { tc.Controller.AddUser(form, nil) })
	if n := tc.Last(t); n.Severity != notification.SeverityError || n.Message != "You do not have enough permission" {
		t.Errorf("Expected a permission error, got %+v", n)
	}
	tc.Stub.Publisher.AssertEventNotPublished(t, notification.EventUserCreated)
}

// TestE2E_Logout tests that logging out clears the stored session
func TestE2E_Logout(t *testing.T) {
	tc := SetupConsole(t, testutil.AdminUsername, testutil.AdminPassword)
	ctx := context.Background()
	tc.Run(func() { tc.Controller.Initialize(ctx) })

	tc.Controller.Logout()
	if n := tc.Last(t); n.Message != console.MsgLoggedOut {
		t.Errorf("Expected logout message, got %+v", n)
	}
	if tc.Session.IsLoggedIn(ctx) {
		t.Error("Expected the session to be logged out")
	}
	if _, err := tc.Session.Token(ctx); !errors.Is(err, session.ErrNoToken) {
		t.Errorf("Expected no token, got %v", err)
	}
	if _, err := tc.Cache.CachedUsers(ctx); !errors.Is(err, users.ErrCacheEmpty) {
		t.Errorf("Expected the cached list to be cleared, got %v", err)
	}
	if tc.Controller.SessionUser() != nil {
		t.Error("Expected no session user")
	}
}

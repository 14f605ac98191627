// Package e2e drives the console controller against a running directory stub.
package e2e

import (
	"context"
	"testing"

	"github.com/WailSalutem-Health-Care/user-directory/internal/console"
	"github.com/WailSalutem-Health-Care/user-directory/internal/directory"
	"github.com/WailSalutem-Health-Care/user-directory/internal/notification"
	"github.com/WailSalutem-Health-Care/user-directory/internal/session"
	"github.com/WailSalutem-Health-Care/user-directory/internal/storage"
	"github.com/WailSalutem-Health-Care/user-directory/internal/testutil"
	"github.com/WailSalutem-Health-Care/user-directory/internal/users"
)

// TestConsole is a logged-in console wired to a stub directory over HTTP
type TestConsole struct {
	Stub       *testutil.StubServer
	Client     *directory.Client
	Session    *session.Store
	Cache      *users.Cache
	Notes      *notification.Recorder
	Controller *console.Controller
}

// SetupConsole starts a stub, logs in as username and builds a controller
// backed by an in-memory store
func SetupConsole(t *testing.T, username, password string) *TestConsole {
	t.Helper()
	ctx := context.Background()

	stubServer := testutil.StartStubServer(t, "../../permissions.yml")

	store := storage.NewMemoryStore(64, 0)
	t.Cleanup(func() { store.Close() })
	sess := session.New(store)

	client, err := directory.NewClient(directory.Options{
		BaseURL: stubServer.URL(),
		Tokens:  sess,
	})
	if err != nil {
		t.Fatalf("Failed to create directory client: %v", err)
	}

	u, token, err := client.Login(ctx, directory.Credentials{Username: username, Password: password})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := sess.SaveToken(ctx, token); err != nil {
		t.Fatalf("Failed to save token: %v", err)
	}
	if err := sess.SaveUser(ctx, u); err != nil {
		t.Fatalf("Failed to save user: %v", err)
	}

	tc := &TestConsole{
		Stub:    stubServer,
		Client:  client,
		Session: sess,
		Cache:   users.NewCache(store),
		Notes:   &notification.Recorder{},
	}
	tc.Controller = console.NewController(console.Deps{
		Directory: client,
		Session:   sess,
		Cache:     tc.Cache,
		Notifier:  tc.Notes,
	})
	t.Cleanup(tc.Controller.Teardown)
	return tc
}

// Run calls op and waits for it and its follow-ups to finish
func (tc *TestConsole) Run(op func()) {
	op()
	tc.Controller.Wait()
}

// Last returns the most recent notification
func (tc *TestConsole) Last(t *testing.T) notification.Notification {
	t.Helper()
	all := tc.Notes.All()
	if len(all) == 0 {
		t.Fatal("Expected a notification, got none")
	}
	return all[len(all)-1]
}

// FindUser returns the displayed user with the given username
func (tc *TestConsole) FindUser(username string) (users.User, bool) {
	for _, u := range tc.Controller.Users() {
		if u.Username == username {
			return u, true
		}
	}
	return users.User{}, false
}

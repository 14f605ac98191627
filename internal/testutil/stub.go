package testutil

import (
	"net/http/httptest"
	"testing"

	"github.com/WailSalutem-Health-Care/user-directory/internal/auth"
	httpserver "github.com/WailSalutem-Health-Care/user-directory/internal/http"
	"github.com/WailSalutem-Health-Care/user-directory/internal/stub"
)

// Seeded administrator credentials of every StubServer
const (
	AdminUsername = "admin"
	AdminPassword = "admin-password"
	AdminEmail    = "admin@example.com"
)

// StubServer runs the directory stub with all routes behind httptest
type StubServer struct {
	Server    *httptest.Server
	Service   *stub.Service
	Authority *auth.HMACAuthority
	Publisher *MockPublisher
}

// StartStubServer seeds an administrator and serves the full router.
// permissionsPath is relative to the calling test's package.
func StartStubServer(t *testing.T, permissionsPath string) *StubServer {
	t.Helper()

	perms, err := auth.LoadPermissions(permissionsPath)
	if err != nil {
		t.Fatalf("Failed to load permissions: %v", err)
	}

	authority := NewTestAuthority()
	publisher := NewMockPublisher()

	ts := &StubServer{Authority: authority, Publisher: publisher}
	ts.Server = httptest.NewUnstartedServer(nil)
	baseURL := "http://" + ts.Server.Listener.Addr().String()

	ts.Service = stub.NewService(stub.NewMemoryRepository(), authority, publisher, baseURL)
	if err := ts.Service.SeedAdmin(stub.Seed{
		Username:  AdminUsername,
		Password:  AdminPassword,
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     AdminEmail,
	}); err != nil {
		t.Fatalf("Failed to seed admin: %v", err)
	}

	ts.Server.Config.Handler = httpserver.SetupRouter(stub.NewHandler(ts.Service, perms), authority, perms, nil, "*")
	ts.Server.Start()
	t.Cleanup(ts.Server.Close)
	return ts
}

// URL is the server's base URL
func (ts *StubServer) URL() string {
	return ts.Server.URL
}

// NewClient creates an HTTP test client for this server with the given token
func (ts *StubServer) NewClient(token string) *HTTPTestClient {
	return NewHTTPTestClient(ts.Server.URL, token)
}

package stub

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/WailSalutem-Health-Care/user-directory/internal/auth"
	"github.com/WailSalutem-Health-Care/user-directory/internal/notification"
	"github.com/WailSalutem-Health-Care/user-directory/internal/users"
)

// Authorities granted per role, mirrored into the user record and token
var roleAuthorities = map[users.Role][]string{
	users.RoleUser:       {"user:read", "user:update-self"},
	users.RoleHR:         {"user:read", "user:update", "user:update-self"},
	users.RoleManager:    {"user:read", "user:update", "user:update-self"},
	users.RoleAdmin:      {"user:read", "user:create", "user:update", "user:update-self"},
	users.RoleSuperAdmin: {"user:read", "user:create", "user:update", "user:delete", "user:update-self"},
}

// Seed describes the account created at startup
type Seed struct {
	Username  string
	Password  string
	FirstName string
	LastName  string
	Email     string
}

type storedImage struct {
	contentType string
	data        []byte
}

// Service is an in-memory directory used for local development and tests
type Service struct {
	repo      RepositoryInterface
	issuer    auth.Issuer
	publisher notification.PublisherInterface
	baseURL   string
	now       func() time.Time

	imagesMu sync.RWMutex
	images   map[string]storedImage // by username
}

// NewService creates a directory service. publisher may be nil.
func NewService(repo RepositoryInterface, issuer auth.Issuer, publisher notification.PublisherInterface, baseURL string) *Service {
	return &Service{
		repo:      repo,
		issuer:    issuer,
		publisher: publisher,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		now:       time.Now,
		images:    map[string]storedImage{},
	}
}

// SeedAdmin creates a SUPER_ADMIN account so a fresh stub can be logged into
func (s *Service) SeedAdmin(seed Seed) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(seed.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash seed password: %w", err)
	}
	u := s.newUser(users.Submission{
		FirstName: seed.FirstName,
		LastName:  seed.LastName,
		Username:  seed.Username,
		Email:     seed.Email,
		Role:      users.RoleSuperAdmin,
		Active:    true,
		NotLocked: true,
	})
	if err := s.repo.Create(account{user: u, passwordHash: hash}); err != nil {
		return err
	}
	log.Printf("✓ Seeded %s account: %s", users.RoleSuperAdmin.Short(), seed.Username)
	return nil
}

// Login checks credentials and issues a token for the account
func (s *Service) Login(username, password string) (*users.User, string, error) {
	a, err := s.repo.GetByUsername(username)
	if err != nil {
		return nil, "", ErrBadCredentials
	}
	if bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) != nil {
		return nil, "", ErrBadCredentials
	}
	if !a.user.NotLocked {
		return nil, "", ErrAccountLocked
	}
	if !a.user.Active {
		return nil, "", ErrAccountDisabled
	}

	a.user.LastLoginDateDisplay = a.user.LastLoginDate
	a.user.LastLoginDate = s.now().UTC()
	if err := s.repo.Update(a.user.Username, a); err != nil {
		return nil, "", err
	}

	token, err := s.issuer.Issue(a.user.Username, string(a.user.Role), a.user.Authorities)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue token: %w", err)
	}
	log.Printf("User logged in: %s", a.user.Username)
	u := a.user.Clone()
	return &u, token, nil
}

func (s *Service) ListUsers() []users.User {
	return s.repo.List()
}

// AddUser creates an account with a generated password
func (s *Service) AddUser(ctx context.Context, sub users.Submission) (*users.User, error) {
	if err := validateSubmission(&sub); err != nil {
		return nil, err
	}
	if sub.ProfileImage != nil {
		if _, err := imageContentType(sub.ProfileImage); err != nil {
			return nil, err
		}
	}
	password, err := generatePassword()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := s.newUser(sub)
	if err := s.repo.Create(account{user: u, passwordHash: hash}); err != nil {
		return nil, err
	}
	if sub.ProfileImage != nil {
		if err := s.storeImage(&u, sub.ProfileImage); err != nil {
			return nil, err
		}
		if err := s.repo.Update(u.Username, account{user: u, passwordHash: hash}); err != nil {
			return nil, err
		}
	}

	log.Printf("Created user %s (ID: %s) with password %s", u.Username, u.ID, password)
	s.publish(ctx, notification.EventUserCreated, u)
	return &u, nil
}

// UpdateUser changes the account named by sub.CurrentUsername.
// Without manage the role and account flags must stay as stored.
func (s *Service) UpdateUser(ctx context.Context, sub users.Submission, manage bool) (*users.User, error) {
	if err := validateSubmission(&sub); err != nil {
		return nil, err
	}
	var contentType string
	if sub.ProfileImage != nil {
		ct, err := imageContentType(sub.ProfileImage)
		if err != nil {
			return nil, err
		}
		contentType = ct
	}
	a, err := s.repo.GetByUsername(sub.CurrentUsername)
	if err != nil {
		return nil, err
	}
	if !manage && (a.user.Role != sub.Role || a.user.Active != sub.Active || a.user.NotLocked != sub.NotLocked) {
		return nil, ErrNotPermitted
	}

	previous := a.user.Username
	a.user.FirstName = sub.FirstName
	a.user.LastName = sub.LastName
	a.user.Username = sub.Username
	a.user.Email = sub.Email
	a.user.Role = sub.Role
	a.user.Authorities = append([]string(nil), roleAuthorities[sub.Role]...)
	a.user.Active = sub.Active
	a.user.NotLocked = sub.NotLocked

	renamed := previous != a.user.Username
	if sub.ProfileImage != nil || (renamed && a.user.ProfileImageURL != "") {
		a.user.ProfileImageURL = s.imageURL(a.user.Username)
	}
	if err := s.repo.Update(previous, a); err != nil {
		return nil, err
	}

	// images move only once the account itself is stored
	if renamed {
		s.renameImage(previous, a.user.Username)
	}
	if sub.ProfileImage != nil {
		s.putImage(a.user.Username, contentType, sub.ProfileImage.Data)
	}

	s.publish(ctx, notification.EventUserUpdated, a.user)
	u := a.user.Clone()
	return &u, nil
}

// DeleteUser removes the account with the given id. principal may not delete itself.
func (s *Service) DeleteUser(ctx context.Context, id string, principal *auth.Principal) error {
	a, err := s.repo.GetByID(id)
	if err != nil {
		return err
	}
	if principal != nil && principal.Username == a.user.Username {
		return ErrSelfDelete
	}
	if _, err := s.repo.Delete(id); err != nil {
		return err
	}
	s.imagesMu.Lock()
	delete(s.images, a.user.Username)
	s.imagesMu.Unlock()

	log.Printf("Deleted user %s (ID: %s)", a.user.Username, id)
	s.publish(ctx, notification.EventUserDeleted, a.user)
	return nil
}

// ResetPassword replaces the password of the account registered under email
func (s *Service) ResetPassword(ctx context.Context, email string) error {
	a, err := s.repo.GetByEmail(email)
	if err != nil {
		return err
	}
	password, err := generatePassword()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	a.passwordHash = hash
	if err := s.repo.Update(a.user.Username, a); err != nil {
		return err
	}
	log.Printf("Reset password for %s, new password %s", a.user.Username, password)
	s.publish(ctx, notification.EventUserPasswordReset, a.user)
	return nil
}

// UpdateProfileImage stores a new image for username
func (s *Service) UpdateProfileImage(ctx context.Context, username string, img *users.ProfileImage) (*users.User, error) {
	if img == nil {
		return nil, ErrMissingImage
	}
	a, err := s.repo.GetByUsername(username)
	if err != nil {
		return nil, err
	}
	if err := s.storeImage(&a.user, img); err != nil {
		return nil, err
	}
	if err := s.repo.Update(username, a); err != nil {
		return nil, err
	}
	s.publish(ctx, notification.EventUserProfileImageUpdated, a.user)
	u := a.user.Clone()
	return &u, nil
}

// ProfileImage returns the stored image for username
func (s *Service) ProfileImage(username string) (string, []byte, error) {
	s.imagesMu.RLock()
	defer s.imagesMu.RUnlock()
	img, ok := s.images[username]
	if !ok {
		return "", nil, ErrImageNotFound
	}
	return img.contentType, img.data, nil
}

func (s *Service) newUser(sub users.Submission) users.User {
	now := s.now().UTC()
	return users.User{
		ID:          uuid.NewString(),
		UserID:      newUserID(),
		Username:    sub.Username,
		FirstName:   sub.FirstName,
		LastName:    sub.LastName,
		Email:       sub.Email,
		Role:        sub.Role,
		Authorities: append([]string(nil), roleAuthorities[sub.Role]...),
		Active:      sub.Active,
		NotLocked:   sub.NotLocked,
		JoinDate:    now,
	}
}

func imageContentType(img *users.ProfileImage) (string, error) {
	contentType := img.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(img.Data)
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", ErrNotAnImage
	}
	return contentType, nil
}

func (s *Service) storeImage(u *users.User, img *users.ProfileImage) error {
	contentType, err := imageContentType(img)
	if err != nil {
		return err
	}
	s.putImage(u.Username, contentType, img.Data)
	u.ProfileImageURL = s.imageURL(u.Username)
	return nil
}

func (s *Service) putImage(username, contentType string, data []byte) {
	s.imagesMu.Lock()
	s.images[username] = storedImage{contentType: contentType, data: append([]byte(nil), data...)}
	s.imagesMu.Unlock()
}

func (s *Service) renameImage(from, to string) {
	s.imagesMu.Lock()
	defer s.imagesMu.Unlock()
	if img, ok := s.images[from]; ok {
		delete(s.images, from)
		s.images[to] = img
	}
}

func (s *Service) imageURL(username string) string {
	return s.baseURL + "/user/image/" + url.PathEscape(username)
}

func (s *Service) publish(ctx context.Context, eventType string, u users.User) {
	if s.publisher == nil {
		return
	}
	event := notification.NewUserEvent(eventType, notification.UserEventData{
		UserID:   u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     string(u.Role),
		Active:   u.Active,
	})
	if err := s.publisher.Publish(ctx, eventType, event); err != nil {
		log.Printf("Failed to publish %s: %v", eventType, err)
	}
}

func validateSubmission(sub *users.Submission) error {
	sub.Username = strings.TrimSpace(sub.Username)
	sub.Email = strings.TrimSpace(sub.Email)
	if sub.Username == "" {
		return ErrMissingUsername
	}
	if sub.Email == "" {
		return ErrMissingEmail
	}
	if sub.Role == "" {
		sub.Role = users.RoleUser
		return nil
	}
	role, err := users.ParseRole(string(sub.Role))
	if err != nil {
		if errors.Is(err, users.ErrInvalidRole) {
			return ErrInvalidRoleValue
		}
		return err
	}
	sub.Role = role
	return nil
}

const passwordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

func generatePassword() (string, error) {
	var b strings.Builder
	for i := 0; i < 10; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(passwordAlphabet))))
		if err != nil {
			return "", fmt.Errorf("failed to generate password: %w", err)
		}
		b.WriteByte(passwordAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// newUserID returns the ten-digit public id shown next to each account
func newUserID() string {
	n, err := rand.Int(rand.Reader, big.NewInt(9_000_000_000))
	if err != nil {
		return fmt.Sprintf("%010d", time.Now().UnixNano()%10_000_000_000)
	}
	return fmt.Sprintf("%010d", n.Int64()+1_000_000_000)
}

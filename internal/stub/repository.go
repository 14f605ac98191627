package stub

import (
	"strings"
	"sync"

	"github.com/WailSalutem-Health-Care/user-directory/internal/users"
)

// account is a stored user plus what never leaves the server
type account struct {
	user         users.User
	passwordHash []byte
}

// RepositoryInterface defines the contract for account storage
type RepositoryInterface interface {
	Create(a account) error
	GetByUsername(username string) (account, error)
	GetByEmail(email string) (account, error)
	GetByID(id string) (account, error)
	List() []users.User
	Update(previousUsername string, a account) error
	Delete(id string) (account, error)
}

var _ RepositoryInterface = (*MemoryRepository)(nil)

// MemoryRepository keeps accounts in insertion order
type MemoryRepository struct {
	mu       sync.RWMutex
	order    []string
	accounts map[string]account // by username
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{accounts: map[string]account{}}
}

func (r *MemoryRepository) Create(a account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[a.user.Username]; ok {
		return ErrUsernameExists
	}
	if r.emailTaken(a.user.Email, "") {
		return ErrEmailExists
	}
	r.accounts[a.user.Username] = a
	r.order = append(r.order, a.user.Username)
	return nil
}

func (r *MemoryRepository) emailTaken(email, exceptUsername string) bool {
	for username, a := range r.accounts {
		if username != exceptUsername && strings.EqualFold(a.user.Email, email) {
			return true
		}
	}
	return false
}

func (r *MemoryRepository) GetByUsername(username string) (account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.accounts[username]
	if !ok {
		return account{}, ErrUserNotFound
	}
	return a, nil
}

func (r *MemoryRepository) GetByEmail(email string) (account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, username := range r.order {
		if a := r.accounts[username]; strings.EqualFold(a.user.Email, email) {
			return a, nil
		}
	}
	return account{}, ErrEmailNotFound
}

func (r *MemoryRepository) GetByID(id string) (account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, username := range r.order {
		if a := r.accounts[username]; a.user.ID == id || a.user.UserID == id {
			return a, nil
		}
	}
	return account{}, ErrUserNotFound
}

func (r *MemoryRepository) List() []users.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]users.User, 0, len(r.order))
	for _, username := range r.order {
		out = append(out, r.accounts[username].user.Clone())
	}
	return out
}

// Update replaces the account stored under previousUsername, which may be renamed
func (r *MemoryRepository) Update(previousUsername string, a account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[previousUsername]; !ok {
		return ErrUserNotFound
	}
	if a.user.Username != previousUsername {
		if _, taken := r.accounts[a.user.Username]; taken {
			return ErrUsernameExists
		}
	}
	if r.emailTaken(a.user.Email, previousUsername) {
		return ErrEmailExists
	}
	delete(r.accounts, previousUsername)
	r.accounts[a.user.Username] = a
	for i, username := range r.order {
		if username == previousUsername {
			r.order[i] = a.user.Username
			break
		}
	}
	return nil
}

func (r *MemoryRepository) Delete(id string) (account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, username := range r.order {
		a := r.accounts[username]
		if a.user.ID == id || a.user.UserID == id {
			delete(r.accounts, username)
			r.order = append(r.order[:i], r.order[i+1:]...)
			return a, nil
		}
	}
	return account{}, ErrUserNotFound
}

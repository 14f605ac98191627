package console

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/WailSalutem-Health-Care/user-directory/internal/directory"
	"github.com/WailSalutem-Health-Care/user-directory/internal/notification"
	"github.com/WailSalutem-Health-Care/user-directory/internal/users"
)

// InitialTitle is the page title before ChangeTitle is called
const InitialTitle = "Users"

// Notification texts
const (
	MsgUserAdded          = "The new user was added successfully"
	MsgUserUpdated        = "The user information was updated successfully"
	MsgUploadFailed       = "Unable to upload image. Please try again"
	MsgLoggedOut          = "You've been successfully logged out"
	msgWelcomeFormat      = "Welcome %s!"
	msgImageUpdatedFormat = "%s's profile image updated successfully"
)

var tracer = otel.Tracer("github.com/WailSalutem-Health-Care/user-directory/console")

// Directory is the remote user directory
type Directory interface {
	ListUsers(ctx context.Context) ([]users.User, error)
	CreateUser(ctx context.Context, sub users.Submission) (*users.User, error)
	UpdateUser(ctx context.Context, sub users.Submission) (*users.User, error)
	DeleteUser(ctx context.Context, id string) (*users.HTTPResponse, error)
	ResetPassword(ctx context.Context, email string) (*users.HTTPResponse, error)
	UploadProfileImage(ctx context.Context, username string, img *users.ProfileImage, progress directory.ProgressFunc) (*directory.UploadResult, error)
}

// Session holds the logged-in user
type Session interface {
	User(ctx context.Context) (*users.User, error)
	SaveUser(ctx context.Context, u *users.User) error
	Logout(ctx context.Context)
}

// UserCache mirrors the last full user list locally
type UserCache interface {
	CachedUsers(ctx context.Context) ([]users.User, error)
	SetCachedUsers(ctx context.Context, list []users.User) error
}

// MetricsRecorder counts dispatched operations
type MetricsRecorder interface {
	RecordUserOperation(ctx context.Context, operation string)
}

// Deps wires a Controller to its collaborators. Notifier, OnSignal and
// Metrics are optional.
type Deps struct {
	Directory Directory
	Session   Session
	Cache     UserCache
	Notifier  notification.Notifier
	OnSignal  SignalFunc
	Metrics   MetricsRecorder
}

// Controller keeps a local view of the user directory in sync with the
// remote service. Remote calls run in the background; their completions
// are applied one at a time, and notifications and signals are emitted
// after the state lock is released so listeners may query the controller.
type Controller struct {
	dir      Directory
	session  Session
	cache    UserCache
	notifier notification.Notifier
	onSignal SignalFunc
	metrics  MetricsRecorder

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// loopMu serializes completion handlers
	loopMu sync.Mutex

	mu              sync.Mutex
	detached        bool
	users           []users.User
	selected        *users.User
	edited          *users.User
	currentUsername string
	sessionUser     *users.User
	staged          *users.ProfileImage
	stagedFilename  string
	upload          UploadStatus
	title           string
}

// turn collects the effects of one state change, run in order once the
// state lock is released
type turn struct {
	effects []func()
}

func (t *turn) do(fn func()) {
	t.effects = append(t.effects, fn)
}

func NewController(deps Deps) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		dir:      deps.Directory,
		session:  deps.Session,
		cache:    deps.Cache,
		notifier: deps.Notifier,
		onSignal: deps.OnSignal,
		metrics:  deps.Metrics,
		ctx:      ctx,
		cancel:   cancel,
		title:    InitialTitle,
	}
	c.upload.Begin()
	return c
}

// Initialize loads the session user and fetches the user list with a welcome notification
func (c *Controller) Initialize(ctx context.Context) {
	c.LoadSession(ctx)
	c.RefreshUsers(true)
}

// LoadSession reads the session user from the session store
func (c *Controller) LoadSession(ctx context.Context) {
	u, err := c.session.User(ctx)
	if err != nil {
		log.Printf("No session user: %v", err)
	}
	c.mu.Lock()
	c.sessionUser = u
	c.mu.Unlock()
}

// dispatch runs call in the background. call performs the remote work and
// returns the handler that applies its outcome; the handler runs with c.mu
// held and is skipped once the controller is torn down.
func (c *Controller) dispatch(op string, call func(ctx context.Context) func(t *turn)) {
	c.mu.Lock()
	if c.detached {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordUserOperation(c.ctx, op)
	}

	go func() {
		defer c.wg.Done()

		ctx, span := tracer.Start(c.ctx, "console."+op)
		apply := call(ctx)
		span.End()

		c.loopMu.Lock()
		defer c.loopMu.Unlock()

		c.mu.Lock()
		if c.detached {
			c.mu.Unlock()
			log.Printf("Dropping %s result after teardown", op)
			return
		}
		t := &turn{}
		apply(t)
		c.mu.Unlock()

		c.flush(t)
	}()
}

// flush runs queued effects, stopping if the controller is torn down meanwhile
func (c *Controller) flush(t *turn) {
	for _, fn := range t.effects {
		if c.isDetached() {
			return
		}
		fn()
	}
}

func (c *Controller) isDetached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.detached
}

func (c *Controller) notify(t *turn, severity notification.Severity, message string) {
	n := notification.New(severity, message)
	t.do(func() {
		if c.notifier == nil {
			return
		}
		if err := c.notifier.Notify(c.ctx, n); err != nil {
			log.Printf("Failed to deliver notification: %v", err)
		}
	})
}

func (c *Controller) signal(t *turn, sig Signal, payload interface{}) {
	t.do(func() {
		if c.onSignal != nil {
			c.onSignal(sig, payload)
		}
	})
}

// update applies a synchronous state change and emits its effects
func (c *Controller) update(fn func(t *turn)) {
	c.mu.Lock()
	if c.detached {
		c.mu.Unlock()
		return
	}
	t := &turn{}
	fn(t)
	c.mu.Unlock()
	c.flush(t)
}

func failed(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// RefreshUsers fetches the full list. With notify set, the list is also
// written to the local cache and the session user is welcomed.
func (c *Controller) RefreshUsers(notify bool) {
	c.dispatch("refresh_users", func(ctx context.Context) func(t *turn) {
		trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("notify", notify))
		list, err := c.dir.ListUsers(ctx)
		if err != nil {
			failed(ctx, err)
		}
		return func(t *turn) {
			if err != nil {
				c.notify(t, notification.SeverityError, directory.MessageOf(err))
				return
			}
			c.users = list
			if !notify {
				return
			}
			cached := users.CloneAll(list)
			t.do(func() {
				if err := c.cache.SetCachedUsers(c.ctx, cached); err != nil {
					log.Printf("Failed to cache user list: %v", err)
				}
			})
			name := ""
			if c.sessionUser != nil {
				name = strings.ToUpper(c.sessionUser.FirstName)
			}
			c.notify(t, notification.SeveritySuccess, fmt.Sprintf(msgWelcomeFormat, name))
		}
	})
}

// SelectUser shows u in the detail view
func (c *Controller) SelectUser(u users.User) {
	c.update(func(t *turn) {
		sel := u.Clone()
		c.selected = &sel
		c.signal(t, SignalOpenDetail, sel.Clone())
	})
}

// StageProfileImage holds img for the next add, edit or upload
func (c *Controller) StageProfileImage(img *users.ProfileImage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staged = img
	c.stagedFilename = ""
	if img != nil {
		c.stagedFilename = img.Filename
	}
}

// AddUser creates a user from the form. img overrides the staged image when set.
// The form is reset once the directory accepts the user.
func (c *Controller) AddUser(form *UserForm, img *users.ProfileImage) {
	c.mu.Lock()
	if img == nil {
		img = c.staged
	}
	c.mu.Unlock()
	sub := users.NewSubmission("", form.User(), img)

	c.dispatch("create_user", func(ctx context.Context) func(t *turn) {
		_, err := c.dir.CreateUser(ctx, sub)
		if err != nil {
			failed(ctx, err)
		}
		return func(t *turn) {
			if err != nil {
				c.notify(t, notification.SeverityError, directory.MessageOf(err))
				c.staged = nil
				return
			}
			c.signal(t, SignalCloseCreateDialog, nil)
			t.do(func() { c.RefreshUsers(false) })
			c.staged = nil
			c.stagedFilename = ""
			t.do(form.Reset)
			c.notify(t, notification.SeveritySuccess, MsgUserAdded)
		}
	})
}

// BeginEditUser opens a scratch copy of u for editing
func (c *Controller) BeginEditUser(u users.User) {
	c.update(func(t *turn) {
		edited := u.Clone()
		c.edited = &edited
		c.currentUsername = u.Username
		c.signal(t, SignalOpenEditDetail, edited.Clone())
	})
}

// EditUser applies fn to the scratch copy. It is a no-op before BeginEditUser.
func (c *Controller) EditUser(fn func(u *users.User)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.edited != nil {
		fn(c.edited)
	}
}

// CommitEditUser submits the scratch copy, keyed by the username it had when editing began
func (c *Controller) CommitEditUser() {
	c.mu.Lock()
	if c.edited == nil {
		c.mu.Unlock()
		return
	}
	sub := users.NewSubmission(c.currentUsername, c.edited.Clone(), c.staged)
	c.mu.Unlock()

	c.dispatch("update_user", func(ctx context.Context) func(t *turn) {
		_, err := c.dir.UpdateUser(ctx, sub)
		if err != nil {
			failed(ctx, err)
		}
		return func(t *turn) {
			if err != nil {
				c.notify(t, notification.SeverityError, directory.MessageOf(err))
				c.staged = nil
				return
			}
			c.signal(t, SignalCloseEditDialog, nil)
			c.notify(t, notification.SeveritySuccess, MsgUserUpdated)
			t.do(func() { c.RefreshUsers(false) })
			c.staged = nil
			c.stagedFilename = ""
		}
	})
}

// CommitSelfProfileEdit submits u as the session user's own profile and,
// on success, stores the returned record as the session user
func (c *Controller) CommitSelfProfileEdit(u users.User) {
	key := ""
	if su, err := c.session.User(c.ctx); err == nil && su != nil {
		key = su.Username
	}
	c.mu.Lock()
	sub := users.NewSubmission(key, u, c.staged)
	c.mu.Unlock()

	c.dispatch("update_self", func(ctx context.Context) func(t *turn) {
		updated, err := c.dir.UpdateUser(ctx, sub)
		if err != nil {
			failed(ctx, err)
		}
		return func(t *turn) {
			if err != nil {
				c.notify(t, notification.SeverityError, directory.MessageOf(err))
				c.staged = nil
				return
			}
			if updated != nil {
				saved := updated.Clone()
				c.sessionUser = &saved
				t.do(func() {
					if err := c.session.SaveUser(c.ctx, &saved); err != nil {
						log.Printf("Failed to save session user: %v", err)
					}
				})
			}
			c.notify(t, notification.SeveritySuccess, MsgUserUpdated)
			t.do(func() { c.RefreshUsers(false) })
			c.staged = nil
			c.stagedFilename = ""
		}
	})
}

// DeleteUser removes the user with the given id
func (c *Controller) DeleteUser(id string) {
	c.dispatch("delete_user", func(ctx context.Context) func(t *turn) {
		reply, err := c.dir.DeleteUser(ctx, id)
		if err != nil {
			failed(ctx, err)
		}
		return func(t *turn) {
			if err != nil {
				c.notify(t, notification.SeverityError, directory.MessageOf(err))
				return
			}
			c.notify(t, notification.SeveritySuccess, replyMessage(reply))
			t.do(func() { c.RefreshUsers(false) })
		}
	})
}

// ResetPassword requests a new password for the form's email.
// Failures are reported as warnings and leave the form untouched.
func (c *Controller) ResetPassword(form *ResetPasswordForm) {
	email := form.Value()
	c.dispatch("reset_password", func(ctx context.Context) func(t *turn) {
		reply, err := c.dir.ResetPassword(ctx, email)
		if err != nil {
			failed(ctx, err)
		}
		return func(t *turn) {
			if err != nil {
				c.notify(t, notification.SeverityWarning, directory.MessageOf(err))
				return
			}
			c.notify(t, notification.SeveritySuccess, replyMessage(reply))
			t.do(form.Reset)
		}
	})
}

func replyMessage(reply *users.HTTPResponse) string {
	if reply == nil {
		return ""
	}
	return reply.Message
}

// SearchUsers filters the cached list. The full cached list is shown when
// keyword is blank or matches nothing.
func (c *Controller) SearchUsers(keyword string) {
	cached, err := c.cache.CachedUsers(c.ctx)
	if err != nil {
		log.Printf("Searching without cached users: %v", err)
		cached = []users.User{}
	}
	result := FilterUsers(cached, keyword)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detached {
		return
	}
	c.users = result
}

// UploadOwnProfileImage uploads the staged image for the session user
func (c *Controller) UploadOwnProfileImage() {
	c.mu.Lock()
	if c.detached {
		c.mu.Unlock()
		return
	}
	img := c.staged
	username := ""
	if c.sessionUser != nil {
		username = c.sessionUser.Username
	}
	c.upload.Begin()
	c.mu.Unlock()

	c.dispatch("upload_profile_image", func(ctx context.Context) func(t *turn) {
		progress := func(loaded, total int64) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if !c.detached {
				c.upload.Progress(loaded, total)
			}
		}
		result, err := c.dir.UploadProfileImage(ctx, username, img, progress)
		if err != nil {
			failed(ctx, err)
		}
		return func(t *turn) {
			if err != nil {
				c.notify(t, notification.SeverityError, directory.MessageOf(err))
				c.upload.Fail()
				return
			}
			c.upload.Finish()
			if result.StatusCode != 200 || result.User == nil {
				c.notify(t, notification.SeverityError, MsgUploadFailed)
				return
			}
			if c.sessionUser != nil {
				bust := fmt.Sprintf("%s?time=%d", result.User.ProfileImageURL, time.Now().UnixMilli())
				c.sessionUser.ProfileImageURL = bust
				saved := c.sessionUser.Clone()
				t.do(func() {
					if err := c.session.SaveUser(c.ctx, &saved); err != nil {
						log.Printf("Failed to save session user: %v", err)
					}
				})
			}
			c.notify(t, notification.SeveritySuccess, fmt.Sprintf(msgImageUpdatedFormat, result.User.FirstName))
		}
	})
}

// Logout clears the session and returns to the login view. It never fails.
func (c *Controller) Logout() {
	c.session.Logout(c.ctx)
	c.update(func(t *turn) {
		c.sessionUser = nil
		c.signal(t, SignalNavigateLogin, nil)
		c.notify(t, notification.SeveritySuccess, MsgLoggedOut)
	})
}

// ChangeTitle sets the page title
func (c *Controller) ChangeTitle(title string) {
	c.update(func(t *turn) {
		c.title = title
		c.signal(t, SignalTitleChanged, title)
	})
}

// Teardown detaches every pending completion and cancels in-flight
// requests. Calling it more than once is safe.
func (c *Controller) Teardown() {
	c.mu.Lock()
	if c.detached {
		c.mu.Unlock()
		return
	}
	c.detached = true
	c.mu.Unlock()
	c.cancel()
	log.Println("✓ Console controller torn down")
}

// Wait blocks until every dispatched operation, including follow-up
// refreshes, has completed
func (c *Controller) Wait() {
	c.wg.Wait()
}

// UserRole returns the session user's role, read from the session.
// Short spellings such as "ADMIN" are normalized to "ROLE_ADMIN".
func (c *Controller) UserRole() users.Role {
	u, err := c.session.User(c.ctx)
	if err != nil || u == nil {
		return ""
	}
	if role, err := users.ParseRole(string(u.Role)); err == nil {
		return role
	}
	return u.Role
}

func (c *Controller) IsAdmin() bool {
	return IsAdminRole(c.UserRole())
}

func (c *Controller) IsManager() bool {
	return IsManagerRole(c.UserRole())
}

// IsAdminOrManager is equivalent to IsManager
func (c *Controller) IsAdminOrManager() bool {
	return c.IsAdmin() || c.IsManager()
}

// Users returns a copy of the displayed list
func (c *Controller) Users() []users.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return users.CloneAll(c.users)
}

func (c *Controller) Selected() *users.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return clonePtr(c.selected)
}

func (c *Controller) Edited() *users.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return clonePtr(c.edited)
}

func (c *Controller) SessionUser() *users.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return clonePtr(c.sessionUser)
}

func (c *Controller) UploadStatus() UploadStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.upload
}

func (c *Controller) Title() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.title
}

func (c *Controller) StagedFilename() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stagedFilename
}

func clonePtr(u *users.User) *users.User {
	if u == nil {
		return nil
	}
	cp := u.Clone()
	return &cp
}

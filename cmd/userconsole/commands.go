package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/WailSalutem-Health-Care/user-directory/internal/console"
	"github.com/WailSalutem-Health-Care/user-directory/internal/directory"
	"github.com/WailSalutem-Health-Care/user-directory/internal/users"
)

type command struct {
	needsLogin bool
	run        func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":          {run: runLogin},
	"logout":         {run: runLogout},
	"whoami":         {needsLogin: true, run: runWhoami},
	"list":           {needsLogin: true, run: runList},
	"search":         {needsLogin: true, run: runSearch},
	"show":           {needsLogin: true, run: runShow},
	"add":            {needsLogin: true, run: runAdd},
	"edit":           {needsLogin: true, run: runEdit},
	"edit-profile":   {needsLogin: true, run: runEditProfile},
	"delete":         {needsLogin: true, run: runDelete},
	"reset-password": {run: runResetPassword},
	"upload-image":   {needsLogin: true, run: runUploadImage},
}

var errUserNotFound = errors.New("no such user")

// loginError prefers the directory's message and keeps transport errors intact
func loginError(err error) error {
	if msg := directory.MessageOf(err); msg != "" {
		return errors.New(msg)
	}
	return fmt.Errorf("login failed: %w", err)
}

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("username", "", "Username")
	passwordStdin := fs.Bool("password-stdin", false, "Read the password from stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return errors.New("login requires -username")
	}

	password, err := readPassword(*passwordStdin)
	if err != nil {
		return err
	}

	u, token, err := a.client.Login(ctx, directory.Credentials{Username: *username, Password: password})
	if err != nil {
		return loginError(err)
	}
	if err := a.session.SaveToken(ctx, token); err != nil {
		return err
	}
	if err := a.session.SaveUser(ctx, u); err != nil {
		return err
	}
	logger.Debugf("Logged in as %s (%s)", u.Username, u.Role)

	a.controller.Initialize(ctx)
	a.controller.Wait()
	return nil
}

func readPassword(fromStdin bool) (string, error) {
	if fromStdin || !term.IsTerminal(int(os.Stdin.Fd())) {
		b, err := io.ReadAll(io.LimitReader(os.Stdin, 4096))
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimRight(string(b), "\r\n"), nil
	}
	fmt.Fprint(os.Stderr, "Password: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}

func runLogout(ctx context.Context, a *app, args []string) error {
	a.controller.Logout()
	return nil
}

func runWhoami(ctx context.Context, a *app, args []string) error {
	u, err := a.session.User(ctx)
	if err != nil {
		return err
	}
	printUser(os.Stdout, *u)
	return nil
}

func runList(ctx context.Context, a *app, args []string) error {
	a.controller.Initialize(ctx)
	a.controller.Wait()
	printUsers(os.Stdout, a.controller.Users())
	return nil
}

func runSearch(ctx context.Context, a *app, args []string) error {
	a.controller.SearchUsers(strings.Join(args, " "))
	printUsers(os.Stdout, a.controller.Users())
	return nil
}

func runShow(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("show requires a username")
	}
	u, err := findUser(a, args[0])
	if err != nil {
		return err
	}
	a.controller.SelectUser(u)
	return nil
}

// findUser looks in the cached list first and falls back to the directory
func findUser(a *app, key string) (users.User, error) {
	if cached, err := a.cache.CachedUsers(context.Background()); err == nil {
		if u, ok := lookup(cached, key); ok {
			return u, nil
		}
	}
	a.controller.RefreshUsers(false)
	a.controller.Wait()
	if u, ok := lookup(a.controller.Users(), key); ok {
		return u, nil
	}
	return users.User{}, fmt.Errorf("%w: %s", errUserNotFound, key)
}

func lookup(list []users.User, key string) (users.User, bool) {
	for _, u := range list {
		if u.Username == key || u.ID == key || u.UserID == key {
			return u, true
		}
	}
	return users.User{}, false
}

// userFlags binds the editable user fields to fs
type userFlags struct {
	firstName, lastName, username, email, role string
	active, notLocked                          bool
	image                                      string
}

func (f *userFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.firstName, "first-name", "", "First name")
	fs.StringVar(&f.lastName, "last-name", "", "Last name")
	fs.StringVar(&f.username, "username", "", "Username")
	fs.StringVar(&f.email, "email", "", "Email")
	fs.StringVar(&f.role, "role", "", "Role (USER, HR, MANAGER, ADMIN, SUPER_ADMIN)")
	fs.BoolVar(&f.active, "active", true, "Account is active")
	fs.BoolVar(&f.notLocked, "unlocked", true, "Account is not locked")
	fs.StringVar(&f.image, "image", "", "Profile image file")
}

// apply copies the flags that were set on the command line onto u
func (f *userFlags) apply(fs *flag.FlagSet, u *users.User) error {
	var err error
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "first-name":
			u.FirstName = f.firstName
		case "last-name":
			u.LastName = f.lastName
		case "username":
			u.Username = f.username
		case "email":
			u.Email = f.email
		case "role":
			var role users.Role
			if role, err = users.ParseRole(f.role); err == nil {
				u.Role = role
			}
		case "active":
			u.Active = f.active
		case "unlocked":
			u.NotLocked = f.notLocked
		}
	})
	return err
}

func (f *userFlags) stageImage(a *app) error {
	if f.image == "" {
		return nil
	}
	img, err := loadImage(f.image)
	if err != nil {
		return err
	}
	a.controller.StageProfileImage(img)
	return nil
}

func loadImage(path string) (*users.ProfileImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return &users.ProfileImage{
		Filename:    filepath.Base(path),
		ContentType: http.DetectContentType(data),
		Data:        data,
	}, nil
}

func runAdd(ctx context.Context, a *app, args []string) error {
	var f userFlags
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	f.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	u := users.User{Active: f.active, NotLocked: f.notLocked}
	if err := f.apply(fs, &u); err != nil {
		return err
	}
	form := &console.UserForm{
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		Active:    u.Active,
		NotLocked: u.NotLocked,
	}
	if err := f.stageImage(a); err != nil {
		return err
	}
	a.controller.AddUser(form, nil)
	a.controller.Wait()
	return nil
}

func runEdit(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return errors.New("edit requires a username")
	}
	u, err := findUser(a, args[0])
	if err != nil {
		return err
	}

	var f userFlags
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	f.register(fs)
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if err := f.stageImage(a); err != nil {
		return err
	}

	var applyErr error
	a.controller.BeginEditUser(u)
	a.controller.EditUser(func(edited *users.User) {
		applyErr = f.apply(fs, edited)
	})
	if applyErr != nil {
		return applyErr
	}
	a.controller.CommitEditUser()
	a.controller.Wait()
	return nil
}

func runEditProfile(ctx context.Context, a *app, args []string) error {
	me, err := a.session.User(ctx)
	if err != nil {
		return err
	}

	var f userFlags
	fs := flag.NewFlagSet("edit-profile", flag.ContinueOnError)
	f.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := f.stageImage(a); err != nil {
		return err
	}

	u := me.Clone()
	if err := f.apply(fs, &u); err != nil {
		return err
	}
	a.controller.CommitSelfProfileEdit(u)
	a.controller.Wait()
	return nil
}

func runDelete(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("delete requires a username")
	}
	u, err := findUser(a, args[0])
	if err != nil {
		return err
	}
	a.controller.DeleteUser(u.ID)
	a.controller.Wait()
	return nil
}

func runResetPassword(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("reset-password requires an email")
	}
	a.controller.ResetPassword(&console.ResetPasswordForm{Email: args[0]})
	a.controller.Wait()
	return nil
}

func runUploadImage(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("upload-image requires a file")
	}
	img, err := loadImage(args[0])
	if err != nil {
		return err
	}
	a.controller.LoadSession(ctx)
	a.controller.StageProfileImage(img)
	a.controller.UploadOwnProfileImage()
	a.controller.Wait()

	status := a.controller.UploadStatus()
	logger.Debugf("Upload %s at %d%%", status.Status, status.Percentage)
	return nil
}

func printUsers(w io.Writer, list []users.User) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "USER ID\tUSERNAME\tNAME\tEMAIL\tROLE\tSTATUS")
	for _, u := range list {
		status := "Active"
		if !u.Active {
			status = "Inactive"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", u.UserID, u.Username, u.FullName(), u.Email, u.Role.Short(), status)
	}
	tw.Flush()
}

func printUser(w io.Writer, u users.User) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "User ID:\t%s\n", u.UserID)
	fmt.Fprintf(tw, "Username:\t%s\n", u.Username)
	fmt.Fprintf(tw, "Name:\t%s\n", u.FullName())
	fmt.Fprintf(tw, "Email:\t%s\n", u.Email)
	fmt.Fprintf(tw, "Role:\t%s\n", u.Role.Short())
	fmt.Fprintf(tw, "Active:\t%t\n", u.Active)
	fmt.Fprintf(tw, "Unlocked:\t%t\n", u.NotLocked)
	if u.ProfileImageURL != "" {
		fmt.Fprintf(tw, "Image:\t%s\n", u.ProfileImageURL)
	}
	if !u.JoinDate.IsZero() {
		fmt.Fprintf(tw, "Joined:\t%s\n", u.JoinDate.Format("Jan 2, 2006"))
	}
	if !u.LastLoginDateDisplay.IsZero() {
		fmt.Fprintf(tw, "Last login:\t%s\n", u.LastLoginDateDisplay.Format("Jan 2, 2006 15:04"))
	}
	tw.Flush()
}

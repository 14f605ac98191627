package stub

import "errors"

// Messages match what directory clients show to users
var (
	ErrBadCredentials   = errors.New("Username / password incorrect. Please try again")
	ErrAccountLocked    = errors.New("Your account has been locked. Please contact administration")
	ErrAccountDisabled  = errors.New("Your account has been disabled. If this is an error, please contact administration")
	ErrUsernameExists   = errors.New("Username already exists")
	ErrEmailExists      = errors.New("Email already exists")
	ErrUserNotFound     = errors.New("User not found")
	ErrEmailNotFound    = errors.New("No user found for this email")
	ErrMissingUsername  = errors.New("Username is required")
	ErrMissingEmail     = errors.New("Email is required")
	ErrNotAnImage       = errors.New("File is not an image. Please upload an image file")
	ErrMissingImage     = errors.New("Profile image is required")
	ErrImageNotFound    = errors.New("Image not found")
	ErrSelfDelete       = errors.New("You cannot delete your own account")
	ErrInvalidRoleValue = errors.New("Role is not valid")
	ErrNotPermitted     = errors.New("You do not have enough permission")
)

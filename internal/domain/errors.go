package domain

import "errors"

// Domain errors
var (
	ErrCompetitorNotFound = errors.New("competitor not found")
	ErrTileNotFound       = errors.New("tile not found")
	ErrTeamNotFound       = errors.New("team not found")
	ErrAdminNotFound      = errors.New("admin user not found")
	ErrAlreadyCompleted   = errors.New("tile already completed by competitor")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidDifficulty  = errors.New("invalid difficulty")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInternalError      = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrCompetitorNotFound) ||
		errors.Is(err, ErrTileNotFound) ||
		errors.Is(err, ErrTeamNotFound) ||
		errors.Is(err, ErrAdminNotFound)
}

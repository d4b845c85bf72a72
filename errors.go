package portalauth

import "errors"

var (
	// ErrNotAuthenticated is returned when an operation requires a resolved
	// session and the context carries no user id.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrUserNotFound is returned by store lookups and by operations that
	// require an existing account.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidCredentials covers both an unknown email and a wrong
	// password. Login never reveals which one failed.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrAlreadyRegistered marks a registration attempt against an existing
	// PATIENT account. Register reports it as MessageExists, not an error.
	ErrAlreadyRegistered = errors.New("account already registered")

	// ErrPasswordMismatch is returned when password and confirmation differ.
	ErrPasswordMismatch = errors.New("passwords do not match")

	// ErrResetTokenInvalid covers both an unknown and an expired reset
	// token. Redemption never reveals which.
	ErrResetTokenInvalid = errors.New("reset token invalid or expired")

	// ErrRefreshInvalid covers a malformed, expired, or stale-generation
	// refresh token.
	ErrRefreshInvalid = errors.New("invalid refresh token")

	// ErrPaymentDeclined is returned when the payment gateway declines or
	// fails tokenization. No storage writes happen in that case.
	ErrPaymentDeclined = errors.New("payment declined")

	// ErrDuplicateEmail is returned by CredentialStore.CreateUser when the
	// email is already taken.
	ErrDuplicateEmail = errors.New("email already in use")

	// ErrEngineNotReady is returned when a required collaborator was not
	// configured at build time.
	ErrEngineNotReady = errors.New("engine not initialized")
)

package auth

import "errors"

var (
	// ErrInvalidPassword covers missing, empty and mismatched passwords. A
	// wrong password and an unset password method are deliberately
	// indistinguishable so the endpoint cannot be used as an oracle.
	ErrInvalidPassword = errors.New("invalid password")

	// ErrInvalidHeader is returned when header-based login is active but the
	// credential header is empty.
	ErrInvalidHeader = errors.New("invalid auth header")

	// ErrProxyNotTrusted is returned when a header login arrives from an
	// address outside the trusted proxy list.
	ErrProxyNotTrusted = errors.New("proxy not trusted")

	// ErrAlreadyBootstrapped is returned when bootstrap is attempted after
	// the instance already has its owner or an active login method.
	ErrAlreadyBootstrapped = errors.New("already bootstrapped")

	// ErrAdminRoleMissing indicates the seeded Admin role is absent from the
	// store. This is a data-integrity failure, not a user error.
	ErrAdminRoleMissing = errors.New("administrator role not found")

	ErrUserNotFound = errors.New("user not found")
	ErrUserDisabled = errors.New("user disabled")

	// ErrInvalidState is returned when a federated callback carries a state
	// value that was never issued, already consumed, or expired.
	ErrInvalidState = errors.New("invalid openid state")

	// ErrProviderMisconfigured indicates the stored federated provider
	// configuration is absent or incomplete.
	ErrProviderMisconfigured = errors.New("openid provider misconfigured")

	ErrUnauthorized = errors.New("unauthorized")
)

// ErrorReason maps an error to the stable machine-readable reason string the
// HTTP surface exposes. Unknown errors collapse to internal-error so storage
// details never leak to clients.
func ErrorReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidPassword):
		return "invalid-password"
	case errors.Is(err, ErrInvalidHeader):
		return "invalid-header"
	case errors.Is(err, ErrProxyNotTrusted):
		return "proxy-not-trusted"
	case errors.Is(err, ErrAlreadyBootstrapped):
		return "already-bootstrapped"
	case errors.Is(err, ErrAdminRoleMissing):
		return "administrator-role-not-found"
	case errors.Is(err, ErrUserNotFound):
		return "user-not-found"
	case errors.Is(err, ErrUserDisabled):
		return "user-disabled"
	case errors.Is(err, ErrInvalidState):
		return "invalid-openid-state"
	case errors.Is(err, ErrProviderMisconfigured):
		return "openid-misconfigured"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return "internal-error"
	}
}

package entities

// LoginMethod identifies how a credential is presented to the server.
type LoginMethod string

const (
	LoginMethodPassword LoginMethod = "password"
	LoginMethodOpenID   LoginMethod = "openid"
	LoginMethodHeader   LoginMethod = "header"
)

// TokenExpirationNever is the sentinel expires_at value for sessions that
// never expire.
const TokenExpirationNever int64 = -1

// Fixed role ids, seeded at migration time. User-role associations reference
// these directly, so they must be stable across installs.
const (
	RoleAdminID = "213733c1-5645-46ad-8784-a7b20b400f93"
	RoleBasicID = "e87fa1f1-ac8c-4913-b1b5-1096bdb1eacc"
)

const (
	RoleAdminName = "Admin"
	RoleBasicName = "Basic"
)

// User is a local identity. The row with an empty user_name is the sentinel
// user backing password and header logins; federated logins map to rows keyed
// by the provider identity. The single row with owner=true is created at
// bootstrap and never reassigned.
type User struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	UserName    string `gorm:"uniqueIndex;size:255" json:"user_name"`
	DisplayName string `gorm:"size:255" json:"display_name"`
	Enabled     bool   `gorm:"default:true" json:"enabled"`
	Owner       bool   `gorm:"default:false" json:"owner"`
}

// AuthMethod is one row per login method in the auth relation. ExtraData
// holds the bcrypt hash for the password method and the serialized provider
// configuration for openid. At most one row is active at a time; the switch
// is always performed as a single transaction.
type AuthMethod struct {
	Method      LoginMethod `gorm:"primaryKey;size:20" json:"method"`
	DisplayName string      `gorm:"size:100" json:"display_name"`
	ExtraData   string      `gorm:"type:text" json:"-"`
	Active      bool        `gorm:"default:false" json:"active"`
}

type Role struct {
	ID   string `gorm:"primaryKey;size:36" json:"id"`
	Name string `gorm:"uniqueIndex;size:100" json:"name"`
}

type UserRole struct {
	UserID string `gorm:"primaryKey;size:36" json:"user_id"`
	RoleID string `gorm:"primaryKey;size:36" json:"role_id"`
}

// Session is a bearer token row. The unique index on auth_method enforces the
// one-session-per-method invariant and doubles as the guard against duplicate
// rows under concurrent logins: the loser of an insert race retries as an
// update of the existing row.
type Session struct {
	Token      string      `gorm:"primaryKey;size:64" json:"token"`
	UserID     string      `gorm:"size:36;index" json:"user_id"`
	ExpiresAt  int64       `json:"expires_at"`
	AuthMethod LoginMethod `gorm:"uniqueIndex;size:20" json:"auth_method"`
}

// Expired reports whether the session is past its expiry at the given epoch
// second. Sessions carrying the never sentinel do not expire.
func (s *Session) Expired(now int64) bool {
	return s.ExpiresAt != TokenExpirationNever && s.ExpiresAt < now
}

// PendingOpenIDState correlates a federated login across the external
// provider round-trip. Rows are short-lived: consumed on callback or reclaimed
// once expired.
type PendingOpenIDState struct {
	State        string `gorm:"primaryKey;size:64" json:"state"`
	CodeVerifier string `gorm:"size:128" json:"-"`
	ReturnURL    string `gorm:"size:2048" json:"return_url"`
	ExpiresAt    int64  `json:"expires_at"`
}

// Secret is a named opaque value stored by the surrounding sync service
// (e.g. bank-sync API keys).
type Secret struct {
	Name  string `gorm:"primaryKey;size:100" json:"name"`
	Value string `gorm:"type:text" json:"-"`
}

func (User) TableName() string {
	return "users"
}

func (AuthMethod) TableName() string {
	return "auth"
}

func (Role) TableName() string {
	return "roles"
}

func (UserRole) TableName() string {
	return "user_roles"
}

func (Session) TableName() string {
	return "sessions"
}

func (PendingOpenIDState) TableName() string {
	return "pending_openid_states"
}

func (Secret) TableName() string {
	return "secrets"
}

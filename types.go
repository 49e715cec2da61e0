package goCred

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	internalaudit "github.com/MrEthical07/goCred/internal/audit"
	"github.com/MrEthical07/goCred/jwt"
	"github.com/MrEthical07/goCred/secret"
)

// Role is the principal's authorization role. It selects the signature level.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// SignatureLevel is the token scheme tied to a role.
type SignatureLevel = secret.Level

const (
	LevelBearer = secret.LevelBearer
	LevelSystem = secret.LevelSystem
)

// LevelForRole maps admin to System and everything else to Bearer.
func LevelForRole(r Role) SignatureLevel {
	if r == RoleAdmin {
		return LevelSystem
	}
	return LevelBearer
}

// TokenType distinguishes access from refresh tokens. The type is implied by
// which secret validates the token, never by a claim.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Provider records where a principal's credentials live.
type Provider string

const (
	ProviderSystem Provider = "system"
	ProviderGoogle Provider = "google"
)

// OTP is a hashed one-time code. Hash and ExpiresAt are set or cleared together.
type OTP struct {
	Hash      string
	ExpiresAt time.Time
}

// Present reports whether a code is stored.
func (o OTP) Present() bool {
	return o.Hash != "" && !o.ExpiresAt.IsZero()
}

// Principal is an authenticatable account. A zero time.Time means unset.
type Principal struct {
	ID              string
	Email           string
	Role            Role
	Provider        Provider
	PasswordHash    string
	PasswordHistory []string
	Phone           string

	IsEmailConfirmed bool
	EmailConfirmedAt time.Time
	ConfirmEmailOTP  OTP

	ForgotPasswordOTP            OTP
	IsForgotPasswordOTPConfirmed bool
	ResetConfirmedAt             time.Time

	ChangeCredentialsAt time.Time

	DeletedAt  time.Time
	DeletedBy  string
	RestoredAt time.Time
	RestoredBy string

	CreatedAt time.Time
}

// Deleted reports whether the principal is soft-deleted.
func (p Principal) Deleted() bool {
	return !p.DeletedAt.IsZero()
}

// Clone returns a copy that shares no slices with p.
func (p Principal) Clone() Principal {
	out := p
	if p.PasswordHistory != nil {
		out.PasswordHistory = append([]string(nil), p.PasswordHistory...)
	}
	return out
}

// Condition guards a conditional update. Zero fields are not checked.
type Condition struct {
	NotDeleted            bool
	Deleted               bool
	EmailUnconfirmed      bool
	ConfirmEmailOTPHash   string
	ForgotPasswordOTPHash string
	ResetConfirmed        bool
	// PasswordHash, when non-nil, must equal the stored hash.
	PasswordHash *string
}

// Satisfies reports whether p meets every set field of c.
func (p Principal) Satisfies(c Condition) bool {
	if c.NotDeleted && p.Deleted() {
		return false
	}
	if c.Deleted && !p.Deleted() {
		return false
	}
	if c.EmailUnconfirmed && p.IsEmailConfirmed {
		return false
	}
	if c.ConfirmEmailOTPHash != "" && p.ConfirmEmailOTP.Hash != c.ConfirmEmailOTPHash {
		return false
	}
	if c.ForgotPasswordOTPHash != "" && p.ForgotPasswordOTP.Hash != c.ForgotPasswordOTPHash {
		return false
	}
	if c.ResetConfirmed && !p.IsForgotPasswordOTPConfirmed {
		return false
	}
	if c.PasswordHash != nil && p.PasswordHash != *c.PasswordHash {
		return false
	}
	return true
}

// Patch lists the fields a conditional update writes. Nil fields are left
// unchanged. A non-nil OTP pointing at the zero OTP clears the code.
type Patch struct {
	Role                         *Role
	Phone                        *string
	PasswordHash                 *string
	PasswordHistory              *[]string
	IsEmailConfirmed             *bool
	EmailConfirmedAt             *time.Time
	ConfirmEmailOTP              *OTP
	ForgotPasswordOTP            *OTP
	IsForgotPasswordOTPConfirmed *bool
	ResetConfirmedAt             *time.Time
	ChangeCredentialsAt          *time.Time
	DeletedAt                    *time.Time
	DeletedBy                    *string
	RestoredAt                   *time.Time
	RestoredBy                   *string
}

// Apply returns a copy of p with patch written over it.
func (p Principal) Apply(patch Patch) Principal {
	out := p.Clone()
	if patch.Role != nil {
		out.Role = *patch.Role
	}
	if patch.Phone != nil {
		out.Phone = *patch.Phone
	}
	if patch.PasswordHash != nil {
		out.PasswordHash = *patch.PasswordHash
	}
	if patch.PasswordHistory != nil {
		out.PasswordHistory = append([]string(nil), (*patch.PasswordHistory)...)
	}
	if patch.IsEmailConfirmed != nil {
		out.IsEmailConfirmed = *patch.IsEmailConfirmed
	}
	if patch.EmailConfirmedAt != nil {
		out.EmailConfirmedAt = *patch.EmailConfirmedAt
	}
	if patch.ConfirmEmailOTP != nil {
		out.ConfirmEmailOTP = *patch.ConfirmEmailOTP
	}
	if patch.ForgotPasswordOTP != nil {
		out.ForgotPasswordOTP = *patch.ForgotPasswordOTP
	}
	if patch.IsForgotPasswordOTPConfirmed != nil {
		out.IsForgotPasswordOTPConfirmed = *patch.IsForgotPasswordOTPConfirmed
	}
	if patch.ResetConfirmedAt != nil {
		out.ResetConfirmedAt = *patch.ResetConfirmedAt
	}
	if patch.ChangeCredentialsAt != nil {
		out.ChangeCredentialsAt = *patch.ChangeCredentialsAt
	}
	if patch.DeletedAt != nil {
		out.DeletedAt = *patch.DeletedAt
	}
	if patch.DeletedBy != nil {
		out.DeletedBy = *patch.DeletedBy
	}
	if patch.RestoredAt != nil {
		out.RestoredAt = *patch.RestoredAt
	}
	if patch.RestoredBy != nil {
		out.RestoredBy = *patch.RestoredBy
	}
	return out
}

func ref[T any](v T) *T {
	return &v
}

// PrincipalStore persists principals. UpdateFields is an atomic
// compare-and-set: it returns [ErrPrincipalConflict] when cond does not hold
// and [ErrPrincipalNotFound] when id is unknown.
type PrincipalStore interface {
	FindByID(ctx context.Context, id string) (Principal, error)
	FindByEmail(ctx context.Context, email string) (Principal, error)
	Create(ctx context.Context, p Principal) (Principal, error)
	UpdateFields(ctx context.Context, id string, cond Condition, patch Patch) (Principal, error)
}

// RevocationRecord marks a jti as revoked until ExpiresAt.
type RevocationRecord struct {
	JTI         string
	PrincipalID string
	ExpiresAt   time.Time
}

// RevocationStore is an append-only set of revoked token ids. Recording an
// existing jti is not an error.
type RevocationStore interface {
	Record(ctx context.Context, rec RevocationRecord) error
	Exists(ctx context.Context, jti string) (bool, error)
}

// NotificationKind names the message template.
type NotificationKind string

const (
	NotifyConfirmEmail  NotificationKind = "confirm_email"
	NotifyResetPassword NotificationKind = "reset_password"
)

// Notification is an OTP delivery request.
type Notification struct {
	To        string
	Kind      NotificationKind
	Code      string
	ExpiresAt time.Time
}

// Notifier delivers notifications. Implementations should not block on the
// network; the engine ignores delivery failures beyond logging them.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// FieldCipher reversibly encrypts personal fields at rest.
type FieldCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// FederatedIdentity is the verified payload of a third-party ID token.
type FederatedIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// FederatedVerifier validates third-party ID tokens.
type FederatedVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (FederatedIdentity, error)
}

// TokenPair is returned by Issue, Refresh and the sign-in operations.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	Scheme           SignatureLevel
	JTI              string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AuthResult is returned by [Engine.Verify].
type AuthResult struct {
	Principal Principal
	Claims    *jwt.Claims
	TokenType TokenType
}

// PrincipalID returns the authenticated principal's id.
func (r *AuthResult) PrincipalID() string {
	if r == nil {
		return ""
	}
	return r.Principal.ID
}

// JTI returns the presented token's id.
func (r *AuthResult) JTI() string {
	if r == nil || r.Claims == nil {
		return ""
	}
	return r.Claims.ID
}

// LogoutMode selects what Logout invalidates.
type LogoutMode string

const (
	// LogoutSignout revokes the presented token pair.
	LogoutSignout LogoutMode = "signout"
	// LogoutEverywhere invalidates every token issued before now.
	LogoutEverywhere LogoutMode = "everywhere"
	// LogoutStay keeps all tokens valid.
	LogoutStay LogoutMode = "stay"
)

// ParseLogoutMode parses s case-insensitively. Empty means LogoutSignout.
func ParseLogoutMode(s string) (LogoutMode, error) {
	switch LogoutMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", LogoutSignout:
		return LogoutSignout, nil
	case LogoutEverywhere:
		return LogoutEverywhere, nil
	case LogoutStay:
		return LogoutStay, nil
	default:
		return "", ErrInvalidInput
	}
}

// RegisterInput is the input for [Engine.Register]. Role defaults to RoleUser.
type RegisterInput struct {
	Email    string
	Password string
	Phone    string
	Role     Role
}

// UpdatePasswordInput is the input for [Engine.UpdatePassword].
type UpdatePasswordInput struct {
	Current string
	New     string
	Logout  LogoutMode
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// AuditStats counts delivered, dropped and redacted audit events.
type AuditStats = internalaudit.Stats

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink is an [AuditSink] that writes events to a [slog.Logger].
type SlogSink = internalaudit.SlogSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink creates a [SlogSink]. A nil logger means slog.Default().
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}

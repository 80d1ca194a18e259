// Package capability mints and verifies the short-lived signed tokens that
// grant time-boxed access to a single file and action.
package capability

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Action string

const (
	ActionDownload Action = "download"
	ActionView     Action = "view"
	ActionInfo     Action = "info"
)

// ParseAction validates a caller-supplied action string. An empty string
// defaults to download.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case "":
		return ActionDownload, nil
	case ActionDownload, ActionView, ActionInfo:
		return Action(s), nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// Verification failures are routine control flow, so each check gets its own
// sentinel; callers need the reason for logging, not just a boolean.
var (
	ErrInvalidToken      = errors.New("capability: invalid token")
	ErrTokenExpired      = errors.New("capability: token expired")
	ErrFileMismatch      = errors.New("capability: file id mismatch")
	ErrActionMismatch    = errors.New("capability: action mismatch")
	ErrIPMismatch        = errors.New("capability: ip mismatch")
	ErrUserAgentMismatch = errors.New("capability: user agent mismatch")
)

// Claims is the signed payload. SubjectID rides in the registered "sub"
// claim; ip/ua carry one-way fingerprints, never raw values.
type Claims struct {
	FileID string `json:"fid"`
	Act    string `json:"act"`
	IPHash string `json:"ip,omitempty"`
	UAHash string `json:"ua,omitempty"`
	jwt.RegisteredClaims
}

// SubjectID returns the user the capability was issued to, or nil for
// anonymous public access.
func (c *Claims) SubjectID() *uuid.UUID {
	if c.Subject == "" {
		return nil
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil
	}
	return &id
}

type Codec struct {
	secret          []byte
	defaultLifetime time.Duration
	maxLifetime     time.Duration
	now             func() time.Time
}

func NewCodec(secret []byte, defaultLifetime, maxLifetime time.Duration) *Codec {
	return &Codec{
		secret:          secret,
		defaultLifetime: defaultLifetime,
		maxLifetime:     maxLifetime,
		now:             time.Now,
	}
}

// WithClock overrides the codec clock. Tests only.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

type MintRequest struct {
	FileID    uuid.UUID
	SubjectID *uuid.UUID
	Action    Action
	// Lifetime <= 0 selects the default; anything above the maximum is
	// clamped down to it.
	Lifetime time.Duration
	// BindIP / BindUserAgent, when non-empty, are fingerprinted into the
	// claim and enforced on verification.
	BindIP        string
	BindUserAgent string
}

// Mint signs a capability claim. Pure function of the request, the secret
// and the clock.
func (c *Codec) Mint(req MintRequest) (string, time.Time, error) {
	lifetime := req.Lifetime
	if lifetime <= 0 {
		lifetime = c.defaultLifetime
	}
	if lifetime > c.maxLifetime {
		lifetime = c.maxLifetime
	}

	now := c.now()
	expiresAt := now.Add(lifetime)

	claims := Claims{
		FileID: req.FileID.String(),
		Act:    string(req.Action),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if req.SubjectID != nil {
		claims.Subject = req.SubjectID.String()
	}
	if req.BindIP != "" {
		claims.IPHash = Fingerprint(req.BindIP)
	}
	if req.BindUserAgent != "" {
		claims.UAHash = Fingerprint(req.BindUserAgent)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign capability token: %w", err)
	}
	return token, expiresAt, nil
}

// Verify decodes a token and checks, in order: signature, expiry, file id,
// action, then any bindings present in the claim. It short-circuits on the
// first failure. Absent bindings are never enforced.
func (c *Codec) Verify(tokenStr string, fileID uuid.UUID, action Action, ip, userAgent string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}

	// Expiry is checked against the injected clock rather than the jwt
	// validator so the failure is distinguishable from a bad signature.
	if claims.ExpiresAt == nil || c.now().After(claims.ExpiresAt.Time) {
		return nil, ErrTokenExpired
	}
	if claims.FileID != fileID.String() {
		return nil, ErrFileMismatch
	}
	if claims.Act != string(action) {
		return nil, ErrActionMismatch
	}
	if claims.IPHash != "" && ip != "" && Fingerprint(ip) != claims.IPHash {
		return nil, ErrIPMismatch
	}
	if claims.UAHash != "" && userAgent != "" && Fingerprint(userAgent) != claims.UAHash {
		return nil, ErrUserAgentMismatch
	}
	return claims, nil
}

// Fingerprint is the one-way hash used for IP and user-agent bindings.
func Fingerprint(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the smallest accepted HS256 signing key, in bytes.
const MinSecretLength = 32

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrTokenMalformed   = errors.New("token malformed")
	ErrSignatureInvalid = errors.New("token signature invalid")
	ErrTokenExpired     = errors.New("token expired")
)

// jwt.TimePrecision is a package-level setting of jwt/v5, so this applies to
// every jwt user in the binary. That is intended: this service signs and
// parses all of its tokens here, and iat/exp carry millisecond resolution.
func init() {
	jwt.TimePrecision = time.Millisecond
}

// VerifyStatus is the outcome of verifying a bearer token.
type VerifyStatus int

const (
	TokenInvalid VerifyStatus = iota
	TokenExpired
	TokenValid
)

func (s VerifyStatus) String() string {
	switch s {
	case TokenValid:
		return "valid"
	case TokenExpired:
		return "expired"
	default:
		return "invalid"
	}
}

// Err maps the status onto the sentinel errors; nil for valid tokens.
func (s VerifyStatus) Err() error {
	switch s {
	case TokenValid:
		return nil
	case TokenExpired:
		return ErrTokenExpired
	default:
		return ErrTokenMalformed
	}
}

// TokenConfig carries the signing key and expiry policy.
type TokenConfig struct {
	Secret string
	Expiry time.Duration
	// Now overrides the clock; defaults to time.Now.
	Now func() time.Time
}

// Claims describes the JWT payload.
type Claims struct {
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// IssuedToken is a signed token plus the values embedded in it.
type IssuedToken struct {
	Value     string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenService issues and verifies HS256 bearer tokens. It holds no mutable
// state and is safe for concurrent use.
type TokenService struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewTokenService builds a token service. The secret is mandatory.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token signing secret is required")
	}
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("token signing secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.Expiry <= 0 {
		return nil, fmt.Errorf("token expiry must be positive, got %s", cfg.Expiry)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &TokenService{
		secret: []byte(cfg.Secret),
		expiry: cfg.Expiry,
		now:    now,
		// Expiry is checked by Verify against the injected clock.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithStrictDecoding(),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// Expiry returns the configured token lifetime.
func (s *TokenService) Expiry() time.Duration {
	return s.expiry
}

// Issue signs a token asserting subject.
func (s *TokenService) Issue(subject string) (IssuedToken, error) {
	if strings.TrimSpace(subject) == "" {
		return IssuedToken{}, fmt.Errorf("%w: subject must not be empty", ErrInvalidArgument)
	}

	now := s.now()
	claims := &Claims{
		Username: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign token: %w", err)
	}
	return IssuedToken{
		Value:     signed,
		Subject:   subject,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// ExtractSubject verifies the signature and returns the embedded subject.
// Expiry is not checked.
func (s *TokenService) ExtractSubject(tokenStr string) (string, error) {
	claims, err := s.parse(tokenStr)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// IsExpired reports whether now >= exp. Tokens that fail verification count
// as expired.
func (s *TokenService) IsExpired(tokenStr string) bool {
	_, status := s.Verify(tokenStr)
	return status != TokenValid
}

// Validate reports whether the token verifies, is unexpired and asserts
// exactly expectedSubject.
func (s *TokenService) Validate(tokenStr, expectedSubject string) bool {
	if expectedSubject == "" {
		return false
	}
	claims, status := s.Verify(tokenStr)
	if status != TokenValid {
		return false
	}
	return claims.Subject == expectedSubject
}

// Verify parses and checks a token. Claims are returned for valid and expired
// tokens, nil for invalid ones.
func (s *TokenService) Verify(tokenStr string) (*Claims, VerifyStatus) {
	claims, err := s.parse(tokenStr)
	if err != nil {
		return nil, TokenInvalid
	}
	if !s.now().Before(claims.ExpiresAt.Time) {
		return claims, TokenExpired
	}
	return claims, TokenValid
}

func (s *TokenService) parse(tokenStr string) (*Claims, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" || strings.Count(tokenStr, ".") != 2 {
		return nil, ErrTokenMalformed
	}

	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenUnverifiable) {
			return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing sub or exp claim", ErrTokenMalformed)
	}
	return claims, nil
}

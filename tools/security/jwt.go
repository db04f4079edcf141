package security

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Options controls signing and TTL.
type Options struct {
	Secret []byte        // HMAC secret (from env/config in production)
	Alg    string        // HS256/HS384/HS512 (default HS256)
	TTL    time.Duration // token lifetime (default 24h)
}

// Identity is what the session collaborator hands to the chat client.
type Identity struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	ExpiresAt   time.Time `json:"-"`
}

type identityClaims struct {
	Name string `json:"name"`
	jwtlib.RegisteredClaims
}

const defaultTTL = 24 * time.Hour

func DefaultOptions(secret []byte) Options {
	return Options{Secret: secret, Alg: "HS256", TTL: defaultTTL}
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// Generate signs a token whose subject is the participant id.
func Generate(opts Options, id Identity) (token string, expireAt time.Time, err error) {
	if strings.TrimSpace(id.ID) == "" {
		return "", time.Time{}, errors.New("identity id is empty")
	}
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return "", time.Time{}, err
	}
	if len(opts.Secret) == 0 {
		return "", time.Time{}, errors.New("jwt secret is empty")
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	now := time.Now()
	exp := now.Add(opts.TTL)

	claims := identityClaims{
		Name: id.DisplayName,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   id.ID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			NotBefore: jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(exp),
		},
	}

	signed, err := jwtlib.NewWithClaims(method, claims).SignedString(opts.Secret)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "sign token")
	}
	return signed, exp, nil
}

// Verify parses token and returns the identity it carries.
func Verify(opts Options, token string) (*Identity, error) {
	if _, err := signingMethod(opts.Alg); err != nil {
		return nil, err
	}
	var claims identityClaims
	parsed, err := jwtlib.ParseWithClaims(token, &claims, func(t *jwtlib.Token) (interface{}, error) {
		// HMAC family only
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return opts.Secret, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "parse token")
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("token has no subject")
	}
	id := &Identity{ID: claims.Subject, DisplayName: claims.Name}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

func signingMethod(alg string) (jwtlib.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwtlib.SigningMethodHS256, nil
	case "HS384":
		return jwtlib.SigningMethodHS384, nil
	case "HS512":
		return jwtlib.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported alg: %s (use HS256/HS384/HS512)", alg)
	}
}

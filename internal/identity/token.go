package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/daybook-app/daybook/internal/fault"
)

// DefaultTokenTTL is the session token lifetime when none is configured.
const DefaultTokenTTL = 7 * 24 * time.Hour

// TokenIssuer mints and verifies session tokens bound to a (user, device)
// pair.
type TokenIssuer interface {
	Issue(userID, deviceID uuid.UUID) (string, error)
	Parse(token string) (userID, deviceID uuid.UUID, err error)
}

type jwtIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

var _ TokenIssuer = (*jwtIssuer)(nil)

// NewTokenIssuer returns an HS256 issuer. ttl <= 0 falls back to
// DefaultTokenTTL.
func NewTokenIssuer(secret []byte, issuer string, ttl time.Duration) TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &jwtIssuer{secret: secret, issuer: issuer, ttl: ttl}
}

func (i *jwtIssuer) Issue(userID, deviceID uuid.UUID) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId":   userID.String(),
		"deviceId": deviceID.String(),
		"iss":      i.issuer,
		"iat":      now.Unix(),
		"exp":      now.Add(i.ttl).Unix(),
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fault.Internal(err, "sign session token")
	}
	return signed, nil
}

func (i *jwtIssuer) Parse(token string) (uuid.UUID, uuid.UUID, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fault.Unauthorized("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return uuid.Nil, uuid.Nil, fault.Unauthorized("invalid session token: %v", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, uuid.Nil, fault.Unauthorized("invalid token claims")
	}
	userID, err := claimUUID(claims, "userId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	deviceID, err := claimUUID(claims, "deviceId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return userID, deviceID, nil
}

func claimUUID(claims jwt.MapClaims, key string) (uuid.UUID, error) {
	raw, ok := claims[key].(string)
	if !ok {
		return uuid.Nil, fault.Unauthorized("token missing %s claim", key)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fault.Unauthorized("token %s claim is not a uuid", key)
	}
	return id, nil
}

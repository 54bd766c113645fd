package identity

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"tokokasir/terminal/internal/domain"
)

var (
	ErrInvalidToken = errors.New("invalid or expired operator token")
	ErrForbidden    = errors.New("operator role not permitted")
)

type operatorClaims struct {
	jwtlib.RegisteredClaims
	Branch string `json:"branch"`
	Role   string `json:"role"`
}

// NewToken mints an operator badge carrying branch, cashier and role. The
// back office signs badges; the terminal only verifies them.
func NewToken(secret []byte, op domain.Operator, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	now := time.Now().UTC()
	claims := operatorClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   op.Cashier,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			Issuer:    "tokokasir",
		},
		Branch: op.Branch,
		Role:   op.Role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseToken verifies a badge and extracts the operator identity.
func ParseToken(secret []byte, tokenStr string) (domain.Operator, error) {
	claims := &operatorClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return domain.Operator{}, ErrInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Operator{}, ErrInvalidToken
	}
	return domain.Operator{Branch: claims.Branch, Cashier: sub, Role: claims.Role}, nil
}

// CanViewProfit reports whether the operator may see purchase costs and
// margin figures.
func CanViewProfit(op domain.Operator) bool {
	return op.Role == domain.RoleOwner || op.Role == domain.RoleManager
}

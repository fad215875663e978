package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/lumiskin/internal/model"
)

// tokenIssuer はBearerトークンのiss値。
const tokenIssuer = "lumiskin"

// ErrInvalidToken はトークンが不正または期限切れであることを示す。
var ErrInvalidToken = errors.New("invalid token")

// Claims はBearerトークンのクレーム。
// sidはセッションIDで、トークン自体は権限を持たずセッションの参照として扱う。
type Claims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// TokenIssuer はセッションに紐づくHS256署名トークンを発行・検証する。
type TokenIssuer struct {
	secret []byte
}

// NewTokenIssuer はTokenIssuerを生成する。
func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret)}
}

// Issue はセッションを参照するトークンを発行する。
// 有効期限はセッションの有効期限と同じにする。
func (i *TokenIssuer) Issue(session *model.Session) (string, error) {
	claims := &Claims{
		SessionID: session.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   session.UserID,
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// Parse はトークンを検証し、参照しているセッションIDを返す。
// 署名不一致、期限切れ、sid欠落の場合はErrInvalidTokenを返す。
func (i *TokenIssuer) Parse(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return "", ErrInvalidToken
	}
	return claims.SessionID, nil
}

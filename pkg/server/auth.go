package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// tokenCookie is the httpOnly cookie carrying the session token.
const tokenCookie = "token"

// contextUserID is the gin context key the auth middleware sets.
const contextUserID = "userID"

var (
	// ErrInvalidToken indicates the session token is missing, malformed or expired.
	ErrInvalidToken = errors.New("invalid session token")
	// ErrWrongCredentials indicates the email/password pair did not match.
	ErrWrongCredentials = errors.New("incorrect email or password")
)

// Auth issues and validates session tokens and hashes passwords.
type Auth struct {
	secret     []byte
	tokenTTL   time.Duration
	bcryptCost int
}

// NewAuth creates an Auth from the config's auth section.
func NewAuth(cfg AuthSection) *Auth {
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	ttl := time.Duration(cfg.TokenTTLHours) * time.Hour
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &Auth{
		secret:     []byte(cfg.JWTSecret),
		tokenTTL:   ttl,
		bcryptCost: cost,
	}
}

// HashPassword hashes a plaintext password with bcrypt.
func (a *Auth) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a stored hash.
func (a *Auth) CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// IssueToken signs a session token for the user.
func (a *Auth) IssueToken(userID string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ValidateToken returns the user ID a token was issued for.
func (a *Auth) ValidateToken(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// TokenTTL returns the configured token lifetime.
func (a *Auth) TokenTTL() time.Duration {
	return a.tokenTTL
}

// Middleware authenticates requests via the session cookie, with an
// Authorization: Bearer fallback for non-browser clients. On success the
// user ID is stored on the gin context.
func (a *Auth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(tokenCookie)
		if err != nil || token == "" {
			header := c.GetHeader("Authorization")
			if strings.HasPrefix(header, "Bearer ") {
				token = strings.TrimPrefix(header, "Bearer ")
			}
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "user not authenticated",
				"success": false,
			})
			return
		}

		userID, err := a.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "user not authenticated",
				"success": false,
			})
			return
		}

		c.Set(contextUserID, userID)
		c.Next()
	}
}

// currentUserID returns the authenticated user ID set by the middleware.
func currentUserID(c *gin.Context) string {
	return c.GetString(contextUserID)
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const (
	cookieName      = "auth_token"
	sessionAudience = "session"
	tokenExpiry     = 30 * 24 * time.Hour // 1 month
	principalKey    = "principal"

	RoleUser  = "user"
	RoleAdmin = "admin"
)

type sessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller of an API request.
type Principal struct {
	UserID int64
	Role   string
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// LoginRecorder stores the IP an owner's session was last used from.
type LoginRecorder interface {
	RecordLogin(ctx context.Context, userID int64, ip string) error
}

// Authenticator verifies session tokens issued by the account service. It
// shares the signing secret with that service but not with payout tokens.
type Authenticator struct {
	jwtSecret string
	logins    LoginRecorder
}

func NewAuthenticator(jwtSecret string, logins LoginRecorder) *Authenticator {
	return &Authenticator{jwtSecret: jwtSecret, logins: logins}
}

// SignToken creates a session token for the user.
func (a Authenticator) SignToken(userID int64, role string) (string, error) {
	now := time.Now()
	claims := &sessionClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Audience:  jwt.ClaimStrings{sessionAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (a Authenticator) checkJWT(tokenStr string) (*Principal, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &sessionClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(a.jwtSecret), nil
	},
		jwt.WithAudience(sessionAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok {
		return nil, errors.New("invalid token claims")
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid subject %q: %w", claims.Subject, err)
	}

	role := claims.Role
	if role == "" {
		role = RoleUser
	}
	return &Principal{UserID: userID, Role: role}, nil
}

// NewAuthMiddleware accepts a session token from the Authorization header
// or the auth cookie and stores the caller's Principal on the context.
func NewAuthMiddleware(auther *Authenticator) echo.MiddlewareFunc {
	type authStrategy func(c echo.Context) (*Principal, error)
	strategies := []authStrategy{
		auther.authWithBearer,
		auther.authWithCookie,
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, strategy := range strategies {
				principal, err := strategy(c)
				if err != nil {
					log.Debug().Err(err).Str("path", c.Path()).Msg("session rejected")
					continue
				}

				if principal != nil {
					c.Set(principalKey, *principal)
					auther.recordLogin(c, principal.UserID)
					return next(c)
				}
			}
			return echo.ErrUnauthorized
		}
	}
}

// RequireAdmin must run after the auth middleware.
func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		principal, ok := FromContext(c)
		if !ok {
			return echo.ErrUnauthorized
		}
		if !principal.IsAdmin() {
			return echo.NewHTTPError(http.StatusForbidden, "admin access required")
		}
		return next(c)
	}
}

func FromContext(c echo.Context) (Principal, bool) {
	principal, ok := c.Get(principalKey).(Principal)
	return principal, ok
}

func (a Authenticator) authWithBearer(c echo.Context) (*Principal, error) {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	tokenStr, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenStr == "" {
		return nil, nil
	}
	return a.checkJWT(strings.TrimSpace(tokenStr))
}

func (a Authenticator) authWithCookie(c echo.Context) (*Principal, error) {
	cookie, err := c.Cookie(cookieName)
	if err != nil || cookie == nil || cookie.Value == "" {
		return nil, nil
	}
	return a.checkJWT(cookie.Value)
}

// recordLogin keeps last_login_ip current so self-clicks are recognized
// from wherever the owner is browsing now.
func (a Authenticator) recordLogin(c echo.Context, userID int64) {
	if a.logins == nil {
		return
	}
	if err := a.logins.RecordLogin(c.Request().Context(), userID, c.RealIP()); err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("failed to record login ip")
	}
}

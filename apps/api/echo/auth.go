package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/user"
)

const (
	headerToken    = "token"
	contextUserKey = "user"
)

var errUnexpectedAlg = errors.New("unexpected signing method")

type (
	// LongTokenClaims identify a user. Long tokens are only good for getting short tokens.
	LongTokenClaims struct {
		jwt.RegisteredClaims
		UserID  string `json:"userId"`
		UserKey string `json:"userKey"`
	}

	// ShortTokenClaims authenticate every other request of a session.
	ShortTokenClaims struct {
		jwt.RegisteredClaims
		UserID    string `json:"userId"`
		UserKey   string `json:"userKey"`
		SessionID string `json:"sessionId"`
		DeviceID  string `json:"deviceId"`
	}

	TokenManager struct {
		issuer      string
		longSecret  []byte
		shortSecret []byte
		longTTL     time.Duration
		shortTTL    time.Duration
	}
)

func NewTokenManager(conf *core.Config) *TokenManager {
	return &TokenManager{
		issuer:      conf.AppName,
		longSecret:  []byte(conf.Auth.LongTokenSecret),
		shortSecret: []byte(conf.Auth.ShortTokenSecret),
		longTTL:     conf.Auth.LongTokenTTL,
		shortTTL:    conf.Auth.ShortTokenTTL,
	}
}

func (tm *TokenManager) registeredClaims(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := core.NowFunc()
	return jwt.RegisteredClaims{
		Issuer:    tm.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

// GenLongToken signs a long token for usr.
func (tm *TokenManager) GenLongToken(usr user.User) (string, error) {
	claims := LongTokenClaims{
		RegisteredClaims: tm.registeredClaims(usr.ID, tm.longTTL),
		UserID:           usr.ID,
		UserKey:          usr.Key,
	}
	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.longSecret)
	return ss, errors.Wrap(err, "signing long token")
}

// GenShortToken signs a new session token for the holder of a verified long token.
func (tm *TokenManager) GenShortToken(long LongTokenClaims, deviceID string) (string, error) {
	sessionID := core.NewID()
	claims := ShortTokenClaims{
		RegisteredClaims: tm.registeredClaims(long.UserID, tm.shortTTL),
		UserID:           long.UserID,
		UserKey:          long.UserKey,
		SessionID:        sessionID,
		DeviceID:         deviceID,
	}
	claims.ID = sessionID
	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.shortSecret)
	return ss, errors.Wrap(err, "signing short token")
}

func (tm *TokenManager) parse(token string, claims jwt.Claims, secret []byte) error {
	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errUnexpectedAlg
			}
			return secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tm.issuer),
		jwt.WithExpirationRequired(),
	)
	return err
}

func (tm *TokenManager) VerifyLongToken(token string) (LongTokenClaims, error) {
	var claims LongTokenClaims
	if err := tm.parse(token, &claims, tm.longSecret); err != nil {
		return LongTokenClaims{}, errors.Wrap(err, "verifying long token")
	}
	return claims, nil
}

func (tm *TokenManager) VerifyShortToken(token string) (ShortTokenClaims, error) {
	var claims ShortTokenClaims
	if err := tm.parse(token, &claims, tm.shortSecret); err != nil {
		return ShortTokenClaims{}, errors.Wrap(err, "verifying short token")
	}
	return claims, nil
}

// extractToken reads the `token` header, falling back to a bearer Authorization header.
func extractToken(req *http.Request) string {
	if token := strings.TrimSpace(req.Header.Get(headerToken)); token != "" {
		return token
	}
	scheme, credentials, found := strings.Cut(req.Header.Get(echo.HeaderAuthorization), " ")
	if found && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(credentials)
	}
	return ""
}

// authMiddleware authenticates requests carrying a valid short token and stores the
// caller's user in the context.
func authMiddleware(tokens *TokenManager, svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			token := extractToken(ctx.Request())
			if token == "" {
				return errTokenMissing
			}
			claims, err := tokens.VerifyShortToken(token)
			if err != nil {
				return errTokenInvalid
			}

			usr, err := loadTokenUser(ctx, svc, claims.UserID, claims.UserKey)
			if err != nil {
				return err
			}
			ctx.Set(contextUserKey, usr)
			return next(ctx)
		}
	}
}

// loadTokenUser returns the active user a token was issued to.
// Tokens issued before the user's key was rotated are rejected.
func loadTokenUser(ctx echo.Context, svc *user.Service, userID, userKey string) (user.User, error) {
	usr, err := svc.GetByID(ctx.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.User{}, errTokenInvalid
		}
		return user.User{}, errors.Wrap(err, "finding token user")
	}
	if usr.Key != userKey {
		return user.User{}, errTokenInvalid
	}
	if !usr.IsActive() {
		return user.User{}, errUserInactive
	}
	return usr, nil
}

func contextUser(ctx echo.Context) (user.User, bool) {
	usr, ok := ctx.Get(contextUserKey).(user.User)
	return usr, ok
}

// contextCaller returns the identity of the authenticated user, if any.
func contextCaller(ctx echo.Context) access.Caller {
	if usr, ok := contextUser(ctx); ok {
		return usr.Caller()
	}
	return access.Caller{}
}

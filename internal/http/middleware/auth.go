package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/atelier-backend/internal/http/response"
	"github.com/yungbote/atelier-backend/internal/platform/ctxutil"
	"github.com/yungbote/atelier-backend/internal/platform/logger"
)

// AuthMiddleware resolves the caller from an HS256 bearer token issued by the
// account service. The subject claim is the user id.
type AuthMiddleware struct {
	log    *logger.Logger
	secret []byte
	issuer string
	leeway time.Duration
}

func NewAuthMiddleware(log *logger.Logger, secret, issuer string) (*AuthMiddleware, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &AuthMiddleware{
		log:    log.With("middleware", "AuthMiddleware"),
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		leeway: 30 * time.Second,
	}, nil
}

// RequireAuth rejects requests without a valid token.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			response.RespondError(c, http.StatusUnauthorized, "not_authenticated", errors.New("missing or invalid token"))
			return
		}
		userID, err := am.subject(tokenString)
		if err != nil {
			am.log.Debug("token rejected", "error", err)
			response.RespondError(c, http.StatusUnauthorized, "not_authenticated", errors.New("missing or invalid token"))
			return
		}
		am.attach(c, userID)
		c.Next()
	}
}

// OptionalAuth attaches the caller when a valid token is present and lets
// anonymous requests through. An invalid token is treated as anonymous.
func (am *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenString := bearerToken(c); tokenString != "" {
			if userID, err := am.subject(tokenString); err == nil {
				am.attach(c, userID)
			} else {
				am.log.Debug("optional token ignored", "error", err)
			}
		}
		c.Next()
	}
}

func (am *AuthMiddleware) attach(c *gin.Context, userID string) {
	ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{UserID: userID})
	c.Request = c.Request.WithContext(ctx)
	c.Set("user_id", userID)
}

func (am *AuthMiddleware) subject(tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(am.leeway),
		jwt.WithExpirationRequired(),
	}
	if am.issuer != "" {
		opts = append(opts, jwt.WithIssuer(am.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return am.secret, nil
	}, opts...)
	if err != nil {
		return "", err
	}
	sub := strings.TrimSpace(claims.Subject)
	if sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}

// IssueToken signs a token for userID. Used by tests and the local dev tooling.
func IssueToken(secret, issuer, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

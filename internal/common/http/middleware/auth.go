package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	appErr "pvjudge/pkg/errors"
	"pvjudge/pkg/utils/logger"
	"pvjudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const (
	ctxPrincipal = "auth_principal"
	ctxRole      = "auth_role"
)

// AuthConfig configures HS256 bearer tokens.
type AuthConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// Claims are the token claims the judge API understands.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenVerifier issues and checks bearer tokens.
type TokenVerifier struct {
	secret []byte
	issuer string
}

// NewTokenVerifier refuses an empty secret so the API can never run open.
func NewTokenVerifier(cfg AuthConfig) (*TokenVerifier, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("auth secret is required")
	}
	return &TokenVerifier{secret: []byte(cfg.Secret), issuer: cfg.Issuer}, nil
}

// Issue signs a token for principal with role, valid for ttl.
func (v *TokenVerifier) Issue(principal, role string, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Verify parses raw and checks signature, expiry and issuer.
func (v *TokenVerifier) Verify(raw string) (*Claims, error) {
	if raw == "" {
		return nil, appErr.New(appErr.Unauthorized).WithMessage("bearer token is required")
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, appErr.New(appErr.TokenExpired)
		}
		return nil, appErr.New(appErr.TokenInvalid)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, appErr.New(appErr.TokenInvalid)
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, appErr.New(appErr.TokenInvalid)
	}
	return claims, nil
}

// AuthMiddleware rejects requests without a valid bearer token.
func AuthMiddleware(verifier *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			response.AbortWithErrorCode(c, appErr.ServiceUnavailable, "auth is not configured")
			return
		}
		claims, err := verifier.Verify(extractBearerToken(c.GetHeader("Authorization")))
		if err != nil {
			response.AbortWithError(c, err)
			return
		}
		c.Set(ctxPrincipal, claims.Subject)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

// RequireRole lets through callers authenticated with one of roles. It
// must run after AuthMiddleware.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ctxRole)
		for _, allowed := range roles {
			if strings.EqualFold(role, allowed) {
				c.Next()
				return
			}
		}
		logger.Warn(c.Request.Context(), "role rejected",
			zap.String("principal", c.GetString(ctxPrincipal)),
			zap.String("role", role),
		)
		response.AbortWithErrorCode(c, appErr.Forbidden, "insufficient role")
	}
}

func extractBearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

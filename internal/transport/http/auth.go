package httptransport

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"marketplace-order-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TokenVerifier validates HS256 access tokens issued by the auth service.
type TokenVerifier struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

func NewTokenVerifier(secret, issuer, audience string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer, audience: audience, now: time.Now}
}

type customClaims struct {
	Sub      string `json:"sub"`
	Role     string `json:"role"`
	VendorID string `json:"vid,omitempty"`
	jwt.RegisteredClaims
}

type Claims struct {
	UserID   uuid.UUID
	Role     service.Role
	VendorID uuid.UUID
}

// Sign issues a token with the same claim layout. Used by tooling and tests.
func (v *TokenVerifier) Sign(c Claims, ttl time.Duration) (string, error) {
	now := v.now()
	claims := customClaims{
		Sub:  c.UserID.String(),
		Role: string(c.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.UserID.String(),
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = []string{v.audience}
	}
	if c.VendorID != uuid.Nil {
		claims.VendorID = c.VendorID.String()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func (v *TokenVerifier) Parse(token string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithTimeFunc(v.now), jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	parsed, err := jwt.ParseWithClaims(token, &customClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	cc, ok := parsed.Claims.(*customClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	uid, err := uuid.Parse(cc.Sub)
	if err != nil {
		return nil, err
	}
	out := &Claims{UserID: uid, Role: service.Role(cc.Role)}
	switch out.Role {
	case service.RoleCustomer, service.RoleVendor, service.RoleAdmin:
	case "":
		out.Role = service.RoleCustomer
	default:
		return nil, errors.New("unknown role")
	}
	if cc.VendorID != "" {
		if out.VendorID, err = uuid.Parse(cc.VendorID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// AuthRequired validates the Bearer token and binds the caller to the
// request context.
func AuthRequired(v *TokenVerifier, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := ExtractBearerToken(c.GetHeader("Authorization"))
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, NewUnauthorizedError("missing or invalid Authorization header"))
			return
		}
		claims, err := v.Parse(token)
		if err != nil {
			log.Debug("Токен отклонён", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, NewUnauthorizedError("invalid token"))
			return
		}

		ctx := service.WithUserID(c.Request.Context(), claims.UserID)
		ctx = service.WithRole(ctx, claims.Role)
		if claims.VendorID != uuid.Nil {
			ctx = service.WithVendorID(ctx, claims.VendorID)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// ExtractBearerToken returns the token of a "Bearer <token>" header,
// tolerating surrounding quotes.
func ExtractBearerToken(authz string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(authz), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	t := strings.Trim(strings.TrimSpace(parts[1]), "\"'")
	if i := strings.IndexAny(t, ", "); i >= 0 {
		t = t[:i]
	}
	return t, true
}

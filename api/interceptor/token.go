package interceptor

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"cartograph/api/api/common"
	"cartograph/api/codes"
	"cartograph/api/log"
)

const (
	// ContextUID / ContextPrivileges 放进 gin.Context 的键
	ContextUID        = "uid"
	ContextPrivileges = "privileges"
	ContextLanguage   = "lang"

	PrivilegeRoot = "root"
)

var ErrInvalidToken = errors.New("interceptor: invalid token")

// Claims of the tokens accepted by the map endpoints.
type Claims struct {
	Privileges []string `json:"priv,omitempty"`
	Language   string   `json:"lang,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for uid.
func IssueToken(secret []byte, uid string, privileges []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Privileges: privileges,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken 只接受 HS256，校验签名与过期时间
func ParseToken(secret []byte, tokenStr string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// BearerToken reads "Authorization: Bearer ..." or the token query parameter.
func BearerToken(c *gin.Context) string {
	if ah := c.GetHeader("Authorization"); strings.HasPrefix(ah, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
	}
	return c.Query("token")
}

// TokenInterceptor 校验玩家 token，把 uid 与权限放进 context
func TokenInterceptor(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := ParseToken(secret, BearerToken(c))
		if err != nil {
			log.Info("token check failed: ", err)
			makeFaileRes(c, codes.CODE_ERR_SECURITY, "token check failed")
			return
		}
		c.Set(ContextUID, claims.Subject)
		c.Set(ContextPrivileges, claims.Privileges)
		c.Set(ContextLanguage, claims.Language)
		c.Next()
	}
}

// OperatorInterceptor 额外要求 root 权限
func OperatorInterceptor(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := ParseToken(secret, BearerToken(c))
		if err != nil {
			log.Info("operator token check failed: ", err)
			makeFaileRes(c, codes.CODE_ERR_SECURITY, "token check failed")
			return
		}
		root := false
		for _, p := range claims.Privileges {
			if p == PrivilegeRoot {
				root = true
			}
		}
		if !root {
			log.WithField("uid", claims.Subject).Warn("operator endpoint denied")
			makeFaileRes(c, codes.CODE_ERR_SECURITY, "root privilege required")
			return
		}
		c.Set(ContextUID, claims.Subject)
		c.Set(ContextPrivileges, claims.Privileges)
		c.Set(ContextLanguage, claims.Language)
		c.Next()
	}
}

func makeFaileRes(c *gin.Context, code int, msg string) {
	res := common.NewResponse()
	res.Code = code
	res.Msg = msg
	c.AbortWithStatusJSON(http.StatusUnauthorized, res)
}

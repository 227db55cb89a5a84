package middleware

import (
	"context"
	"net/http"
	"strings"

	"friendsync/internal/auth"
	"friendsync/internal/config"
)

// contextKey 是用于在 context.Context 中存储值的自定义类型，以避免键冲突。
type contextKey string

// IdentityKey 是用于在上下文中存储用户身份的键。
const IdentityKey contextKey = "identity"

// ClaimsKey 是用于在上下文中存储完整令牌声明的键。
const ClaimsKey contextKey = "claims"

// AuthMiddleware 验证 JWT 并将身份信息添加到请求上下文中。
func AuthMiddleware(authCfg config.AuthConfig, blacklist auth.TokenBlacklist) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				http.Error(w, "请求未包含有效的授权令牌", http.StatusUnauthorized)
				return
			}

			claims, err := auth.ValidateToken(r.Context(), tokenString, authCfg.JWTSecretKey, blacklist)
			if err != nil {
				http.Error(w, "令牌无效", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), IdentityKey, claims.Identity)
			ctx = context.WithValue(ctx, ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken 从 Authorization 头或 token 查询参数中提取令牌。
// 查询参数用于 WebSocket 握手（浏览器无法在升级请求上设置头部）。
func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		headerParts := strings.Split(authHeader, " ")
		if len(headerParts) == 2 && strings.ToLower(headerParts[0]) == "bearer" {
			return headerParts[1], true
		}
		return "", false
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}
	return "", false
}

// GetIdentityFromContext 从上下文中获取当前用户身份。
func GetIdentityFromContext(ctx context.Context) (string, bool) {
	identity, ok := ctx.Value(IdentityKey).(string)
	return identity, ok && identity != ""
}

// GetClaimsFromContext 从上下文中获取完整令牌声明。
func GetClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*auth.Claims)
	return claims, ok
}

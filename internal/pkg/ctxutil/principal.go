package ctxutil

import "context"

// Principal 已认证的调用方
type Principal struct {
	UserID   string `json:"uid"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Provider string `json:"provider"` // jwt / dev
}

// principalKeyType 使用私有类型避免与其他 context key 冲突
type principalKeyType struct{}

var principalKey = principalKeyType{}

// WithPrincipal 将调用方信息注入到 context 中
// 在认证中间件解析 token 成功后调用：
//
//	ctx := ctxutil.WithPrincipal(c.Request.Context(), p)
//	c.Request = c.Request.WithContext(ctx)
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal 从 context 中解析调用方
func GetPrincipal(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok || p.UserID == "" {
		return Principal{}, false
	}
	return p, true
}

// GetUserID 从 context 中解析 userID
func GetUserID(ctx context.Context) (string, bool) {
	p, ok := GetPrincipal(ctx)
	if !ok {
		return "", false
	}
	return p.UserID, true
}

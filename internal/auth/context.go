package auth

import "context"

// subjectKey 是上下文中存储 Subject 的键类型。
type subjectKey struct{}

// WithSubject 将经过身份验证的主体信息存储到上下文中。
func WithSubject(ctx context.Context, subject *Subject) context.Context {
	if subject == nil {
		return ctx
	}
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext 从上下文中提取经过身份验证的主体信息。
func SubjectFromContext(ctx context.Context) *Subject {
	if ctx == nil {
		return nil
	}
	if subject, ok := ctx.Value(subjectKey{}).(*Subject); ok {
		return subject
	}
	return nil
}

// Authorize 检查请求中的 user_id 是否与认证主体一致。未认证时放行。
func Authorize(ctx context.Context, userID string) error {
	subject := SubjectFromContext(ctx)
	if subject == nil || userID == "" {
		return nil
	}
	if subject.ID != userID {
		return ErrForbidden
	}
	return nil
}

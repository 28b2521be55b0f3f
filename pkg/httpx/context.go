package httpx

import "context"

type ctxKey string

const (
	// CtxKeyKeyValue holds the opaque key the request authenticated with.
	CtxKeyKeyValue ctxKey = "key_value"
)

// KeyValueFromContext returns the key stored by RequireKey, or "".
func KeyValueFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyKeyValue).(string); ok {
		return v
	}
	return ""
}

func contextWithKeyValue(ctx context.Context, value string) context.Context {
	return context.WithValue(ctx, CtxKeyKeyValue, value)
}

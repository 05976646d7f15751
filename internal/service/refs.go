package service

import (
	"context"
	"maps"

	"go.uber.org/zap"

	"github.com/notifyhub/notice-dispatch/internal/domain"
)

// UserDirectory resolves a recipient's identity and email address.
// The host application owns users; the store's users table is one backing.
type UserDirectory interface {
	GetUser(ctx context.Context, id domain.UserID) (*domain.User, error)
}

// RefResolver turns a context reference into the object templates render.
// Returning (nil, nil) leaves the reference in place.
type RefResolver interface {
	ResolveRef(ctx context.Context, ref domain.Ref) (any, error)
}

// UserRefs resolves "user" refs through a UserDirectory.
type UserRefs struct {
	Users UserDirectory
}

func (u UserRefs) ResolveRef(ctx context.Context, ref domain.Ref) (any, error) {
	if ref.Kind != domain.RefKindUser {
		return nil, nil
	}
	return u.Users.GetUser(ctx, domain.UserID(ref.ID))
}

// resolveContext copies c with every ref replaced by its resolved object.
// Unresolvable refs stay as refs so templates still see something.
func resolveContext(ctx context.Context, c domain.Context, r RefResolver, logger *zap.Logger) map[string]any {
	out := make(map[string]any, len(c))
	for k, v := range c {
		out[k] = resolveValue(ctx, v, r, logger)
	}
	return out
}

func resolveValue(ctx context.Context, v any, r RefResolver, logger *zap.Logger) any {
	switch t := v.(type) {
	case domain.Ref:
		obj, err := r.ResolveRef(ctx, t)
		if err != nil {
			logger.Warn("unresolved context ref", zap.Stringer("ref", t), zap.Error(err))
			return t
		}
		if obj == nil {
			return t
		}
		return obj
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = resolveValue(ctx, e, r, logger)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = resolveValue(ctx, e, r, logger)
		}
		return out
	case domain.Context:
		return resolveContext(ctx, t, r, logger)
	}
	return v
}

func mergeData(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	maps.Copy(out, base)
	maps.Copy(out, extra)
	return out
}

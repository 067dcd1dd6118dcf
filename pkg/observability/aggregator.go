package observability

import "github.com/aretw0/parley/pkg/domain"

// Combine merges hook sets into one. Hooks run in argument order.
func Combine(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range hooks {
		out = out.Merge(h)
	}
	return out
}

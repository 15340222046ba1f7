package tools

import (
	"context"
	"sync"

	"github.com/wingleeio/chat-zeron/internal/event"
	"github.com/wingleeio/chat-zeron/internal/log"
	"github.com/wingleeio/chat-zeron/internal/store"
)

// Accounting accumulates token usage and tool credit charges for one
// turn. Safe for concurrent use; search fans out per-query goroutines.
type Accounting struct {
	mu       sync.Mutex
	usage    event.Usage
	toolCost int
}

// AddUsage folds token counts into the turn total.
func (a *Accounting) AddUsage(u event.Usage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.usage.Add(u)
}

// AddToolCost records credits spent on a successful tool invocation.
func (a *Accounting) AddToolCost(cost int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.toolCost += cost
}

// Totals returns the accumulated usage and tool cost.
func (a *Accounting) Totals() (event.Usage, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usage, a.toolCost
}

// Runtime carries the per-turn state tool handlers need. It is attached
// to the generation context once per turn; handlers themselves hold no
// mutable state.
type Runtime struct {
	User    *store.User
	Message *store.Message
	Guard   *CreditGuard
	Acct    *Accounting
	Emit    func(event.Frame) error
	Logger  log.Logger
}

// Annotate publishes an out-of-band annotation frame on the turn's
// stream. A turn without an emitter drops annotations silently.
func (rt *Runtime) Annotate(v any) {
	if rt.Emit == nil {
		return
	}
	if err := rt.Emit(event.NewAnnotationFrame(v)); err != nil {
		rt.Logger.Warn("annotation emit failed", "error", err)
	}
}

type runtimeKey struct{}

// ContextWithRuntime attaches the turn runtime to ctx.
func ContextWithRuntime(ctx context.Context, rt *Runtime) context.Context {
	return context.WithValue(ctx, runtimeKey{}, rt)
}

// RuntimeFromContext retrieves the turn runtime, or nil when the context
// does not belong to a generation turn.
func RuntimeFromContext(ctx context.Context) *Runtime {
	rt, _ := ctx.Value(runtimeKey{}).(*Runtime)
	return rt
}

package tools

import "github.com/wingleeio/chat-zeron/internal/store"

// QuotaExceededMessage is returned to the model, not the caller, when a
// tool invocation would exceed the user's credit quota. Quota exhaustion
// is a conversational outcome for the model to relay, never an error.
const QuotaExceededMessage = "The user has run out of credits for this tool. " +
	"Do not retry. Tell the user their credit quota is exhausted and that it " +
	"resets at the start of the next billing period."

// CreditGuard decides whether a user may spend credits on a tool call.
type CreditGuard struct {
	FreeLimit    int
	PremiumLimit int
}

// LimitFor returns the credit ceiling for a user's plan.
func (g *CreditGuard) LimitFor(u *store.User) int {
	if u.Premium {
		return g.PremiumLimit
	}
	return g.FreeLimit
}

// Allow reports whether a charge of cost credits fits within the user's
// remaining quota. Usage above the limit (from a plan downgrade) yields
// zero remaining rather than going negative.
func (g *CreditGuard) Allow(u *store.User, cost int) bool {
	limit := g.LimitFor(u)
	ceiling := limit
	if u.CreditsUsed > ceiling {
		ceiling = u.CreditsUsed
	}
	return ceiling-u.CreditsUsed >= cost
}

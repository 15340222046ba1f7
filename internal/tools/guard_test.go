package tools

import (
	"testing"

	"github.com/wingleeio/chat-zeron/internal/store"
)

func TestCreditGuardAllow(t *testing.T) {
	guard := &CreditGuard{FreeLimit: 25, PremiumLimit: 500}

	tests := []struct {
		name    string
		premium bool
		used    int
		cost    int
		want    bool
	}{
		{"fresh free user", false, 0, 1, true},
		{"free user at limit", false, 25, 1, false},
		{"free user exact remaining", false, 20, 5, true},
		{"free user one over remaining", false, 21, 5, false},
		{"premium headroom", true, 400, 100, true},
		{"premium exhausted", true, 500, 1, false},
		{"usage above limit after downgrade", false, 600, 1, false},
		{"zero cost always allowed", false, 25, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &store.User{Premium: tt.premium, CreditsUsed: tt.used}
			if got := guard.Allow(u, tt.cost); got != tt.want {
				t.Errorf("Allow(used=%d, premium=%v, cost=%d) = %v, want %v",
					tt.used, tt.premium, tt.cost, got, tt.want)
			}
		})
	}
}

func TestLimitFor(t *testing.T) {
	guard := &CreditGuard{FreeLimit: 25, PremiumLimit: 500}
	if got := guard.LimitFor(&store.User{}); got != 25 {
		t.Errorf("free limit = %d", got)
	}
	if got := guard.LimitFor(&store.User{Premium: true}); got != 500 {
		t.Errorf("premium limit = %d", got)
	}
}

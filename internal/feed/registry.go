package feed

import (
	"sort"

	"stock-dashboard/internal/interfaces"
	"stock-dashboard/internal/types"
)

// Handler receives ticks for the symbols it is subscribed to. Handlers are
// compared by interface equality, so the dynamic type must be comparable.
type Handler = interfaces.TickHandler

type funcHandler struct {
	fn func(types.Tick)
}

func (h *funcHandler) HandleTick(t types.Tick) { h.fn(t) }

// Func adapts fn into a Handler. Each call returns a distinct handler; keep
// the result to unsubscribe it later.
func Func(fn func(types.Tick)) Handler {
	return &funcHandler{fn: fn}
}

// registry maps symbol to the set of its handlers. A symbol is present iff it
// has at least one handler. Callers hold the manager lock.
type registry struct {
	subs map[string]map[Handler]struct{}
}

func newRegistry() *registry {
	return &registry{subs: make(map[string]map[Handler]struct{})}
}

// add registers h for symbol and reports whether symbol was not tracked
// before. Adding the same handler twice is a no-op.
func (r *registry) add(symbol string, h Handler) (newSymbol bool) {
	set, ok := r.subs[symbol]
	if !ok {
		set = make(map[Handler]struct{})
		r.subs[symbol] = set
	}
	set[h] = struct{}{}
	return !ok
}

// remove drops h from symbol. symbolGone is true when h was the last handler
// and the symbol left the registry.
func (r *registry) remove(symbol string, h Handler) (removed, symbolGone bool) {
	set, ok := r.subs[symbol]
	if !ok {
		return false, false
	}
	if _, ok := set[h]; !ok {
		return false, false
	}
	delete(set, h)
	if len(set) == 0 {
		delete(r.subs, symbol)
		return true, true
	}
	return true, false
}

// handlers returns a snapshot of symbol's handlers that stays valid after the
// lock is released.
func (r *registry) handlers(symbol string) []Handler {
	set := r.subs[symbol]
	if len(set) == 0 {
		return nil
	}
	out := make([]Handler, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	return out
}

func (r *registry) symbols() []string {
	out := make([]string, 0, len(r.subs))
	for s := range r.subs {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (r *registry) len() int { return len(r.subs) }

func (r *registry) clear() {
	r.subs = make(map[string]map[Handler]struct{})
}

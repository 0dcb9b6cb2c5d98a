// Package events implements the publish/subscribe primitive spec.md's
// Design Notes §9 describes: "a mapping from a monotonically increasing
// subscription token to a handler function ... a rewrite keeps this
// contract and exposes explicit subscribe/unsubscribe." It is the Go
// generics equivalent of the original's events::Event<T> (a
// BTreeMap<usize, fn(T)>), used by the timer for tick events and by the
// keyboard driver for key events.
package events

import "sort"

// Token identifies a subscription, handed back by Subscribe so the caller
// can later Unsubscribe.
type Token uint

// Bus is a single event's set of subscribers. The zero value is ready to
// use. Not safe for concurrent use; callers touching a Bus from both
// interrupt and non-interrupt context must hold their own lock, the same
// discipline spec.md §5 requires of every other process-wide singleton.
type Bus[T any] struct {
	next     Token
	handlers map[Token]func(T)
}

// Subscribe registers fn and returns a token that later unsubscribes it.
func (b *Bus[T]) Subscribe(fn func(T)) Token {
	if b.handlers == nil {
		b.handlers = make(map[Token]func(T))
	}
	tok := b.next
	b.next++
	b.handlers[tok] = fn
	return tok
}

// Unsubscribe removes a previously subscribed handler. It reports whether
// the token was found.
func (b *Bus[T]) Unsubscribe(tok Token) bool {
	if _, ok := b.handlers[tok]; !ok {
		return false
	}
	delete(b.handlers, tok)
	return true
}

// Invoke calls every subscribed handler with args, in subscription order.
func (b *Bus[T]) Invoke(args T) {
	if len(b.handlers) == 0 {
		return
	}
	toks := make([]Token, 0, len(b.handlers))
	for t := range b.handlers {
		toks = append(toks, t)
	}
	sort.Slice(toks, func(i, j int) bool { return toks[i] < toks[j] })
	for _, t := range toks {
		b.handlers[t](args)
	}
}

// Len reports the number of live subscriptions, mostly useful in tests.
func (b *Bus[T]) Len() int { return len(b.handlers) }

package widget

import "sync"

// Link keeps a and b in sync in both directions, converting with aToB and
// bToA. b is first set from a. Each change crosses the link once; the echo
// from the other side is suppressed. If a normalises a value coming from b
// (bToA clamps, say), b is updated to match. The returned function removes
// the link.
func Link[A, B comparable](a *Value[A], b *Value[B], aToB func(A) B, bToA func(B) A) (unlink func()) {
	var (
		mu       sync.Mutex
		updating bool
	)

	guard := func(fn func()) {
		mu.Lock()
		if updating {
			mu.Unlock()
			return
		}
		updating = true
		mu.Unlock()

		fn()

		mu.Lock()
		updating = false
		mu.Unlock()
	}

	b.Set(aToB(a.Get()))

	cancelA := a.Observe(func(_, x A) {
		guard(func() { b.Set(aToB(x)) })
	})
	cancelB := b.Observe(func(_, y B) {
		guard(func() {
			x := bToA(y)
			a.Set(x)
			// A may have normalised the value (e.g. clamping); reflect it back
			if back := aToB(a.Get()); back != y {
				b.Set(back)
			}
		})
	})

	return func() {
		cancelA()
		cancelB()
	}
}

// Identity returns its argument; use it with Link for same-typed values.
func Identity[T any](x T) T { return x }

package shuffle

import (
	"math/rand"
	"time"
)

// Func permutes n elements by calling swap, like rand.Shuffle.
type Func func(n int, swap func(i, j int))

// New returns a Fisher-Yates shuffle backed by a seeded source.
// A zero seed uses the current time.
func New(seed int64) Func {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	r := rand.New(rand.NewSource(seed))
	return func(n int, swap func(i, j int)) {
		for i := n - 1; i > 0; i-- {
			j := r.Intn(i + 1)
			swap(i, j)
		}
	}
}

// None leaves the order untouched.
func None(int, func(i, j int)) {}

// Strings shuffles a string slice in place.
func Strings(f Func, s []string) {
	f(len(s), func(i, j int) {
		s[i], s[j] = s[j], s[i]
	})
}

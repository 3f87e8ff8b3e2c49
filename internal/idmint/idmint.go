// Package idmint produces opaque, collision-resistant entity ids, grounded
// on the teacher's internal/audit.newID (crypto/rand + a fixed-width
// encoding) but generalized to the prefix-routing table spec.md §4.2
// requires and lengthened to hit its collision-probability target.
package idmint

import (
	"crypto/rand"
	"fmt"
)

// alphabet is lowercase alphanumeric, 36 symbols. At length 12 the space is
// 36^12 ≈ 4.7e18; by the birthday bound, 1e6 draws collide with
// probability ≈ (1e6)^2 / (2·4.7e18) ≈ 1.06e-7, under the 1e-6 target
// spec.md §4.2 sets.
const (
	alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	length   = 12
)

// Entity routes to the short typed prefix spec.md §4.2 assigns it.
type Entity int

const (
	Trace Entity = iota
	Step
	Snapshot
	Evaluation
	Policy
)

func (e Entity) prefix() string {
	switch e {
	case Trace:
		return "trc"
	case Step:
		return "stp"
	case Snapshot:
		return "snp"
	case Evaluation:
		return "evl"
	case Policy:
		return "pol"
	default:
		return "unk"
	}
}

// New mints an id of the form "<prefix>_<12-char random alphanumeric>".
func New(e Entity) string {
	return e.prefix() + "_" + randomSuffix()
}

func randomSuffix() string {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand reading from the OS CSPRNG is not expected to fail;
		// if it does, the process environment is broken enough that a
		// panic surfaces the problem faster than a degraded fallback id.
		panic(fmt.Sprintf("idmint: reading random bytes: %v", err))
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out)
}

package jitcache

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/jitcache/jitcache/kit/errors"
)

// Signature uniquely identifies one compilation output: the computation name
// plus the types and shapes of its non-constant arguments and the values of
// its compile-time constants. Signatures are immutable once built and cheap
// to copy.
type Signature struct {
	name string

	// (kind, shape) per parameter argument, in argument order.
	args []argShape

	// Constant literals, in argument order.
	values []Literal

	// Canonical form. Two signatures are equal iff their keys are equal.
	key  string
	hash uint64
}

type argShape struct {
	kind  DataKind
	shape Shape
}

// BuildSignature derives the signature for a compilation request.
// Constant arguments contribute their values; parameter and resource
// arguments contribute their type and shape. Identical inputs always
// produce equal signatures with equal hashes.
func BuildSignature(name string, args []Argument) (Signature, error) {
	const op = "jitcache.BuildSignature"

	sig := Signature{name: name}
	for i, arg := range args {
		switch arg.Kind {
		case ArgumentConstant:
			if arg.Value == nil {
				return Signature{}, &errors.Error{
					Code: errors.EInvalid,
					Msg:  fmt.Sprintf("constant argument %d has no value", i),
					Op:   op,
				}
			}
			sig.values = append(sig.values, Literal{
				Type:  arg.Value.Type,
				Shape: append(Shape(nil), arg.Value.Shape...),
				Data:  append([]byte(nil), arg.Value.Data...),
			})

		case ArgumentParameter, ArgumentResource:
			if arg.Type == Invalid {
				return Signature{}, &errors.Error{
					Code: errors.EInvalid,
					Msg:  fmt.Sprintf("argument %d has no element type", i),
					Op:   op,
				}
			}
			for _, d := range arg.Shape {
				if d < 0 {
					return Signature{}, &errors.Error{
						Code: errors.EInvalid,
						Msg:  fmt.Sprintf("argument %d has negative dimension %d", i, d),
						Op:   op,
					}
				}
			}
			sig.args = append(sig.args, argShape{
				kind:  arg.Type,
				shape: append(Shape(nil), arg.Shape...),
			})

		default:
			return Signature{}, &errors.Error{
				Code: errors.EInvalid,
				Msg:  fmt.Sprintf("unhandled kind %q for argument %d", arg.Kind, i),
				Op:   op,
			}
		}
	}

	sig.key = sig.buildKey()
	sig.hash = xxhash.Sum64String(sig.key)
	return sig, nil
}

// buildKey produces the canonical form of the signature. The name is
// length-prefixed so that no choice of name can collide with the argument
// sections.
func (s *Signature) buildKey() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d:%s|", len(s.name), s.name)
	for _, a := range s.args {
		fmt.Fprintf(&b, "%s%s;", a.kind, a.shape)
	}
	b.WriteByte('|')
	for i := range s.values {
		fmt.Fprintf(&b, "%s;", s.values[i])
	}
	return b.String()
}

// Name returns the computation name the signature was built for.
func (s Signature) Name() string { return s.name }

// Key returns the canonical string form. It is injective: distinct
// signatures always have distinct keys.
func (s Signature) Key() string { return s.key }

// Hash returns the xxhash of the canonical form. Equal signatures have
// equal hashes.
func (s Signature) Hash() uint64 { return s.hash }

// Equal reports whether two signatures are structurally identical.
func (s Signature) Equal(other Signature) bool { return s.key == other.key }

// HumanString returns a human-readable description of the signature.
func (s Signature) HumanString() string {
	var b strings.Builder
	b.WriteString(s.name)
	for _, a := range s.args {
		fmt.Fprintf(&b, ",%s%s", a.kind, a.shape)
	}
	for i := range s.values {
		fmt.Fprintf(&b, ",%s", s.values[i])
	}
	return b.String()
}

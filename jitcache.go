// Package jitcache defines the domain types shared by the compilation cache:
// argument descriptions, signatures, compiled artifacts, and the Compiler
// boundary. The cache engine itself lives in the jit package.
package jitcache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// DataKind identifies the element type of an argument value.
type DataKind byte

const (
	Invalid DataKind = iota
	Bool
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float16
	Float32
	Float64
	Complex64
	Complex128
)

// String returns the short element-type name, e.g. "f32".
func (k DataKind) String() string {
	switch k {
	case Bool:
		return "pred"
	case Int8:
		return "i8"
	case Int16:
		return "i16"
	case Int32:
		return "i32"
	case Int64:
		return "i64"
	case Uint8:
		return "u8"
	case Uint16:
		return "u16"
	case Uint32:
		return "u32"
	case Uint64:
		return "u64"
	case Float16:
		return "f16"
	case Float32:
		return "f32"
	case Float64:
		return "f64"
	case Complex64:
		return "c64"
	case Complex128:
		return "c128"
	default:
		return "invalid"
	}
}

// Shape holds the dimension extents of a value. A scalar has an empty shape.
type Shape []int64

// String renders the shape as "[2,3]". Scalars render as "[]".
func (s Shape) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, d := range s {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(d, 10))
	}
	b.WriteByte(']')
	return b.String()
}

// Equal reports whether two shapes have identical rank and extents.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// NumElements returns the number of elements a value of this shape holds.
func (s Shape) NumElements() int64 {
	n := int64(1)
	for _, d := range s {
		n *= d
	}
	return n
}

// ArgumentKind describes how an argument participates in compilation.
type ArgumentKind int

const (
	// ArgumentInvalid is the zero value; BuildSignature rejects it.
	ArgumentInvalid ArgumentKind = iota

	// ArgumentParameter is a runtime value whose type and shape are fixed
	// at compile time.
	ArgumentParameter

	// ArgumentConstant is a compile-time constant; its value becomes part
	// of the signature.
	ArgumentConstant

	// ArgumentResource is a stateful value compiled like a parameter.
	ArgumentResource
)

// String returns the argument kind name.
func (k ArgumentKind) String() string {
	switch k {
	case ArgumentParameter:
		return "parameter"
	case ArgumentConstant:
		return "constant"
	case ArgumentResource:
		return "resource"
	default:
		return "invalid"
	}
}

// Argument describes one argument to a compilation request.
type Argument struct {
	Kind  ArgumentKind
	Type  DataKind
	Shape Shape

	// Value holds the literal for ArgumentConstant arguments and is nil
	// otherwise.
	Value *Literal
}

// Literal is a constant value in host memory.
type Literal struct {
	Type  DataKind
	Shape Shape
	Data  []byte
}

// String renders the literal as type, shape, and hex contents.
func (l Literal) String() string {
	return fmt.Sprintf("%s%s=%x", l.Type, l.Shape, l.Data)
}

// Equal reports whether two literals are structurally identical.
func (l Literal) Equal(other Literal) bool {
	if l.Type != other.Type || !l.Shape.Equal(other.Shape) {
		return false
	}
	if len(l.Data) != len(other.Data) {
		return false
	}
	for i := range l.Data {
		if l.Data[i] != other.Data[i] {
			return false
		}
	}
	return true
}

// CompileMode controls cache behavior on a miss.
type CompileMode int

const (
	// ModeLazy defers compilation until a signature has been requested
	// enough times to look profitable.
	ModeLazy CompileMode = iota

	// ModeStrict always compiles on a miss, blocking the caller until the
	// Compiler returns.
	ModeStrict

	// ModeAsync compiles on a background worker while the caller proceeds
	// without a result.
	ModeAsync
)

// String returns the mode name used in flags, config, and metric labels.
func (m CompileMode) String() string {
	switch m {
	case ModeLazy:
		return "lazy"
	case ModeStrict:
		return "strict"
	case ModeAsync:
		return "async"
	default:
		return "unknown"
	}
}

// ParseCompileMode converts a mode name into a CompileMode.
func ParseCompileMode(s string) (CompileMode, error) {
	switch s {
	case "lazy":
		return ModeLazy, nil
	case "strict":
		return ModeStrict, nil
	case "async":
		return ModeAsync, nil
	default:
		return ModeLazy, fmt.Errorf("unknown compile mode: %q", s)
	}
}

// MarshalText encodes the mode name for config files.
func (m CompileMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a mode name from a config file.
func (m *CompileMode) UnmarshalText(text []byte) error {
	mode, err := ParseCompileMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// CompileOptions adjust how the Compiler lowers a computation.
type CompileOptions struct {
	// EntryComputation marks the computation as a whole-program entry point
	// rather than a fragment.
	EntryComputation bool

	// AlwaysReturnTuple forces a tuple result even for single-output
	// computations.
	AlwaysReturnTuple bool

	// SingleOp requests the single-operation lowering path.
	SingleOp bool
}

// CompilationResult is the Compiler's output for one signature. The artifact
// bytes are opaque to the cache.
type CompilationResult struct {
	Object []byte
}

// Executable is the runnable form of a CompilationResult. It may
// legitimately be nil for computations with no non-constant outputs.
// Running it is the caller's concern, not the cache's.
type Executable struct {
	// Handle is an opaque reference owned by the Compiler.
	Handle interface{}
}

// Compiler turns computation descriptions into compiled artifacts. It is
// consumed by the cache and implemented elsewhere.
type Compiler interface {
	// Compile lowers the computation identified by sig.
	Compile(ctx context.Context, opts CompileOptions, sig Signature, args []Argument) (*CompilationResult, error)

	// BuildExecutable produces the runnable form of a compilation result.
	// A nil executable with a nil error means the computation has nothing
	// to run.
	BuildExecutable(ctx context.Context, result *CompilationResult) (*Executable, error)
}

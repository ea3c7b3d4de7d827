// Package stdlib provides the default set of native functions an Engine
// binds into the global environment a Dōji script runs against: print,
// len, and hash. This supersedes the teacher's crypto_ref.go/math_ref.go
// (blockchain signature verification and PQC primitives — Falcon-512,
// ML-DSA, SLH-DSA, secp256k1 recovery — none of which has any analogue in
// an embeddable scripting engine's native surface); the one piece worth
// keeping, SHA3 hashing, is rebuilt here as a guest-callable function
// instead of a raw byte-slice helper.
package stdlib

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/ravern/doji/vm"
	"github.com/ravern/doji/vmerr"
)

// Print writes a Value's DebugString to stdout, and returns Nil (spec.md
// does not define any stdout-facing primitive; a Dōji embedder needs one
// to make the REPL and `run` subcommand useful at all).
func Print(heap *vm.Heap) *vm.NativeFunction {
	return &vm.NativeFunction{
		Name:  "print",
		Arity: 1,
		Fn: func(fr *vm.Frame, args []vm.Value) (vm.Value, error) {
			fmt.Println(displayString(args[0]))
			return vm.Nil, nil
		},
	}
}

// displayString renders a Value the way guest code expects printed output
// to look: unquoted strings, DebugString for everything else.
func displayString(v vm.Value) string {
	if v.Kind() == vm.KindString {
		return v.AsString().Data
	}
	return v.DebugString()
}

// Len returns a List's element count, a Map's entry count, or a String's
// rune-independent byte length, as an Int.
func Len(heap *vm.Heap) *vm.NativeFunction {
	return &vm.NativeFunction{
		Name:  "len",
		Arity: 1,
		Fn: func(fr *vm.Frame, args []vm.Value) (vm.Value, error) {
			switch v := args[0]; v.Kind() {
			case vm.KindList:
				return vm.Int(int64(len(v.AsList().Items))), nil
			case vm.KindMap:
				return vm.Int(int64(v.AsMap().Len())), nil
			case vm.KindString:
				return vm.Int(int64(len(v.AsString().Data))), nil
			default:
				return vm.Nil, vmerr.NewWrongType([]string{"List", "Map", "String"}, v.Kind().String())
			}
		},
	}
}

// Hash computes the SHA3-256 digest of a String argument and returns its
// hex encoding as a new String, grounded in the teacher's vm_test.go fixture
// data that already exercises golang.org/x/crypto/sha3.
func Hash(heap *vm.Heap) *vm.NativeFunction {
	return &vm.NativeFunction{
		Name:  "hash",
		Arity: 1,
		Fn: func(fr *vm.Frame, args []vm.Value) (vm.Value, error) {
			v := args[0]
			if v.Kind() != vm.KindString {
				return vm.Nil, vmerr.NewWrongType([]string{"String"}, v.Kind().String())
			}
			sum := sha3.Sum256([]byte(v.AsString().Data))
			return vm.NewString(heap, hex.EncodeToString(sum[:])), nil
		},
	}
}

// globalNames is the default global environment's binding order. The
// compiler resolves an unbound identifier in a compiled script's top-level
// scope as an upvalue of this function's root closure at this same index,
// so the order here must match the order Values returns.
var globalNames = []string{"print", "len", "hash"}

// GlobalNames returns the default global environment's binding names, for
// the compiler to pre-seed the root scope's resolvable identifiers.
func GlobalNames() []string {
	return append([]string(nil), globalNames...)
}

// Values returns the default global environment's NativeFunction Values, in
// GlobalNames order, for an Engine to wire in as the root closure's
// upvalues (SPEC_FULL.md §3 domain-stack wiring).
func Values(heap *vm.Heap) []vm.Value {
	return []vm.Value{
		vm.NativeFunc(Print(heap)),
		vm.NativeFunc(Len(heap)),
		vm.NativeFunc(Hash(heap)),
	}
}

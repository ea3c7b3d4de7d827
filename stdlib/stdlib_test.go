package stdlib

import (
	"testing"

	"github.com/ravern/doji/vm"
)

func callNative(t *testing.T, nf *vm.NativeFunction, args ...vm.Value) vm.Value {
	t.Helper()
	v, err := nf.Fn(nil, args)
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", nf.Name, err)
	}
	return v
}

func TestLenOverListMapString(t *testing.T) {
	h := vm.NewHeap(0)
	lenFn := Len(h)

	list := vm.NewList(h, []vm.Value{vm.Int(1), vm.Int(2)})
	if v := callNative(t, lenFn, list); v.AsInt() != 2 {
		t.Fatalf("expected len(list)=2, got %d", v.AsInt())
	}

	m := vm.NewMap(h)
	m.AsMap().Set(vm.NewString(h, "a"), vm.Int(1))
	if v := callNative(t, lenFn, m); v.AsInt() != 1 {
		t.Fatalf("expected len(map)=1, got %d", v.AsInt())
	}

	s := vm.NewString(h, "hello")
	if v := callNative(t, lenFn, s); v.AsInt() != 5 {
		t.Fatalf("expected len(\"hello\")=5, got %d", v.AsInt())
	}
}

func TestLenRejectsWrongType(t *testing.T) {
	h := vm.NewHeap(0)
	if _, err := Len(h).Fn(nil, []vm.Value{vm.Int(1)}); err == nil {
		t.Fatalf("expected an error for len(Int)")
	}
}

func TestHashIsDeterministicHexDigest(t *testing.T) {
	h := vm.NewHeap(0)
	hashFn := Hash(h)
	a := callNative(t, hashFn, vm.NewString(h, "doji"))
	b := callNative(t, hashFn, vm.NewString(h, "doji"))
	if a.AsString().Data != b.AsString().Data {
		t.Fatalf("expected hash(\"doji\") to be deterministic")
	}
	if len(a.AsString().Data) != 64 {
		t.Fatalf("expected a 64-char hex SHA3-256 digest, got %d chars", len(a.AsString().Data))
	}
}

func TestGlobalNamesMatchesValuesOrder(t *testing.T) {
	h := vm.NewHeap(0)
	names := GlobalNames()
	values := Values(h)
	if len(names) != len(values) {
		t.Fatalf("GlobalNames/Values length mismatch: %d vs %d", len(names), len(values))
	}
	for i, name := range names {
		if got := values[i].AsNative().Name; got != name {
			t.Fatalf("index %d: GlobalNames has %q, Values has %q", i, name, got)
		}
	}
}

package typeinfo

import "reflect"

// UnionN wrapper types give Go handler signatures a typed way to declare
// "one of these" parameters and response variants, standing in for the
// source language's native union annotations (§3, §4.1 step 2). Exactly
// one field is non-nil at a time; callers build tightly against that
// value rather than reflecting over the wrapper.

type Union2[A, B any] struct {
	A *A
	B *B
}

func (Union2[A, B]) unionVariants() []reflect.Type {
	return []reflect.Type{typeOf[A](), typeOf[B]()}
}

// ResponseUnion marks Union2 as a multi-variant response type: the
// Endpoint Runtime (endpointrt) type-asserts against this to know it
// must pick the encoder by whichever field is non-nil rather than by
// the declared type alone (§4.2 Return analysis).
func (Union2[A, B]) ResponseUnion() {}

type Union3[A, B, C any] struct {
	A *A
	B *B
	C *C
}

func (Union3[A, B, C]) unionVariants() []reflect.Type {
	return []reflect.Type{typeOf[A](), typeOf[B](), typeOf[C]()}
}

// ResponseUnion marks Union3, see Union2.ResponseUnion.
func (Union3[A, B, C]) ResponseUnion() {}

func typeOf[T any]() reflect.Type {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		// T is itself an interface/pointer whose zero value is nil;
		// reconstruct via the generic parameter's static type instead.
		return reflect.TypeOf((*T)(nil)).Elem()
	}
	return t
}

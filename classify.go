package xsplit

import (
	"context"
	"iter"
	"reflect"
	"strings"

	"github.com/trickstertwo/xsplit/reactive"
)

// Shape is the splittable form of a payload.
type Shape int

const (
	ShapeNotSplittable Shape = iota
	ShapeArray
	ShapeCollection
	ShapeLazySequence
	ShapeAsyncStream
)

func (s Shape) String() string {
	switch s {
	case ShapeArray:
		return "array"
	case ShapeCollection:
		return "collection"
	case ShapeLazySequence:
		return "lazy_sequence"
	case ShapeAsyncStream:
		return "async_stream"
	default:
		return "not_splittable"
	}
}

// Classify reports the shape of payload without consuming it.
//
// Asynchronous streams are recognized as reactive.Publisher[any]; wrap typed
// publishers such as reactive.Range or reactive.Just with reactive.Erase.
// Lazy sequences may be an Iterator, an iter.Seq of any element type or a
// receive-capable channel.
func Classify(payload any) Shape {
	s := classify(payload, "")
	s.release()
	return s.shape
}

// splittable is the tagged result of classification. Exactly one of the
// source fields is set, matching shape.
type splittable struct {
	shape  Shape
	array  reflect.Value
	coll   Collection
	lazy   Iterator
	stream reactive.Publisher[any]
}

// classify inspects payload once. Strings are tokenized into an array when
// delimiters is not empty. Publisher is checked first because a stream may
// also expose iteration helpers.
func classify(payload any, delimiters string) splittable {
	switch p := payload.(type) {
	case nil:
		return splittable{}
	case reactive.Publisher[any]:
		return splittable{shape: ShapeAsyncStream, stream: p}
	case Collection:
		return splittable{shape: ShapeCollection, coll: p}
	case Iterator:
		return splittable{shape: ShapeLazySequence, lazy: p}
	case iter.Seq[any]:
		if p == nil {
			return splittable{}
		}
		return splittable{shape: ShapeLazySequence, lazy: newSeqIterator(p)}
	case func(func(any) bool):
		if p == nil {
			return splittable{}
		}
		return splittable{shape: ShapeLazySequence, lazy: newSeqIterator(iter.Seq[any](p))}
	case string:
		if delimiters == "" {
			return splittable{}
		}
		tokens := strings.FieldsFunc(p, func(r rune) bool { return strings.ContainsRune(delimiters, r) })
		return splittable{shape: ShapeArray, array: reflect.ValueOf(tokens)}
	}

	v := reflect.ValueOf(payload)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		return splittable{shape: ShapeArray, array: v}
	case reflect.Chan:
		if v.Type().ChanDir()&reflect.RecvDir != 0 {
			return splittable{shape: ShapeLazySequence, lazy: &chanIterator{ch: v}}
		}
	case reflect.Func:
		if !v.IsNil() && isSeqFunc(v.Type()) {
			return splittable{shape: ShapeLazySequence, lazy: newSeqIterator(reflectSeq(v))}
		}
	}
	return splittable{}
}

// isSeqFunc reports whether t has the shape of iter.Seq[E] for some E:
// func(yield func(E) bool).
func isSeqFunc(t reflect.Type) bool {
	if t.NumIn() != 1 || t.NumOut() != 0 {
		return false
	}
	y := t.In(0)
	return y.Kind() == reflect.Func &&
		y.NumIn() == 1 && y.NumOut() == 1 &&
		y.Out(0).Kind() == reflect.Bool
}

// reflectSeq drives a typed sequence function through a yield built at run
// time, exposing its elements as any.
func reflectSeq(fn reflect.Value) iter.Seq[any] {
	yieldType := fn.Type().In(0)
	resultType := yieldType.Out(0)
	return func(yield func(any) bool) {
		y := reflect.MakeFunc(yieldType, func(args []reflect.Value) []reflect.Value {
			return []reflect.Value{reflect.ValueOf(yield(args[0].Interface())).Convert(resultType)}
		})
		fn.Call([]reflect.Value{y})
	}
}

// size returns the element count, or SequenceSizeUnknown for unsized shapes.
func (s splittable) size() int {
	switch s.shape {
	case ShapeArray:
		return s.array.Len()
	case ShapeCollection:
		return s.coll.Len()
	default:
		return SequenceSizeUnknown
	}
}

// at returns element i of a sized source.
func (s splittable) at(i int) any {
	if s.shape == ShapeCollection {
		return s.coll.At(i)
	}
	return s.array.Index(i).Interface()
}

// bind attaches ctx to sources whose pulls may block.
func (s splittable) bind(ctx context.Context) splittable {
	if c, ok := s.lazy.(*chanIterator); ok {
		s.lazy = &chanIterator{ch: c.ch, ctx: ctx}
	}
	return s
}

// interrupted reports the context error that stopped a channel pull early.
func (s splittable) interrupted() error {
	if c, ok := s.lazy.(*chanIterator); ok {
		return c.err
	}
	return nil
}

// release frees resources held by a lazy source that was not drained.
func (s splittable) release() {
	if r, ok := s.lazy.(interface{ stop() }); ok {
		r.stop()
	}
}

// seqIterator adapts a push iterator to HasNext/Next via iter.Pull.
type seqIterator struct {
	next   func() (any, bool)
	halt   func()
	peeked bool
	ok     bool
	val    any
}

func newSeqIterator(seq iter.Seq[any]) *seqIterator {
	next, stop := iter.Pull(seq)
	return &seqIterator{next: next, halt: stop}
}

func (it *seqIterator) HasNext() bool {
	if !it.peeked {
		it.val, it.ok = it.next()
		it.peeked = true
	}
	return it.ok
}

func (it *seqIterator) Next() any {
	if !it.HasNext() {
		return nil
	}
	it.peeked = false
	v := it.val
	it.val = nil
	return v
}

func (it *seqIterator) stop() { it.halt() }

// chanIterator pulls from a receive-capable channel of any element type.
type chanIterator struct {
	ch     reflect.Value
	ctx    context.Context
	err    error
	peeked bool
	ok     bool
	val    any
}

func (it *chanIterator) HasNext() bool {
	if it.peeked {
		return it.ok
	}
	it.peeked, it.ok = true, false
	cases := []reflect.SelectCase{{Dir: reflect.SelectRecv, Chan: it.ch}}
	if it.ctx != nil {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(it.ctx.Done())})
	}
	chosen, v, ok := reflect.Select(cases)
	if chosen != 0 {
		it.err = it.ctx.Err()
		return false
	}
	if !ok {
		return false
	}
	it.val, it.ok = v.Interface(), true
	return true
}

func (it *chanIterator) Next() any {
	if !it.HasNext() {
		return nil
	}
	it.peeked = false
	v := it.val
	it.val = nil
	return v
}

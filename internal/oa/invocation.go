package oa

import "orb-server/internal/ior"

// InvocationInfo records which adapter and operation the current worker is
// executing. It is owned by the worker that pushed it.
type InvocationInfo struct {
	Adapter   ObjectAdapter
	ObjectID  ior.ObjectID
	Operation string
	Servant   Servant
	// Cookie is opaque state a servant locator hands back on postinvoke.
	Cookie any
	// Entered is set while the info brackets an adapter Enter/Exit pair.
	Entered bool
}

func NewInvocationInfo(adapter ObjectAdapter, id ior.ObjectID) *InvocationInfo {
	return &InvocationInfo{Adapter: adapter, ObjectID: id}
}

// Clone returns an independent copy carrying op.
func (i *InvocationInfo) Clone(op string) *InvocationInfo {
	c := *i
	c.Operation = op
	c.ObjectID = append(ior.ObjectID(nil), i.ObjectID...)
	c.Entered = false
	return &c
}

// Stack is a worker-owned invocation stack. It is not safe for concurrent use;
// each worker goroutine holds its own.
type Stack struct {
	frames []*InvocationInfo
}

func NewStack() *Stack {
	return &Stack{frames: make([]*InvocationInfo, 0, 4)}
}

func (s *Stack) Push(info *InvocationInfo) {
	s.frames = append(s.frames, info)
}

// Pop removes the top frame. Popping an empty stack panics; it means an
// unbalanced push/pop somewhere in the dispatch path.
func (s *Stack) Pop() *InvocationInfo {
	n := len(s.frames)
	if n == 0 {
		panic("oa: pop of empty invocation stack")
	}
	top := s.frames[n-1]
	s.frames[n-1] = nil
	s.frames = s.frames[:n-1]
	return top
}

func (s *Stack) Peek() *InvocationInfo {
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

func (s *Stack) Len() int {
	return len(s.frames)
}

// With pushes info for the duration of fn and pops it on every exit path.
func (s *Stack) With(info *InvocationInfo, fn func() error) error {
	s.Push(info)
	defer s.Pop()
	return fn()
}

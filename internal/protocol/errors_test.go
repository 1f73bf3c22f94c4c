package protocol

import (
	"errors"
	"fmt"
	"testing"

	"orb-server/internal/cdr"
	"orb-server/internal/ior"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Fault
	}{
		{"nil", nil, FaultNone},
		{"forward", &ForwardRequest{Target: ior.Nil()}, FaultForward},
		{"wrapped forward", fmt.Errorf("locate: %w", &ForwardRequest{}), FaultForward},
		{"termination", &ThreadDeath{Reason: "stop"}, FaultTermination},
		{"system exception", BadSkeleton(), FaultOther},
		{"plain", errors.New("boom"), FaultOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify = %v, want %v", got, tc.want)
			}
		})
	}

	if ClassifyPanic("string panic") != FaultOther {
		t.Fatal("non-error panic must classify as other")
	}
	if ClassifyPanic(&ThreadDeath{}) != FaultTermination {
		t.Fatal("thread death panic must classify as termination")
	}
}

func TestSystemExceptionIs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", InsObjectNotFound("foo"))
	if !errors.Is(err, InsObjectNotFound("")) {
		t.Fatal("errors.Is should match on kind and minor")
	}
	if errors.Is(err, NoAdapter("")) {
		t.Fatal("different minor must not match")
	}
}

func TestSystemExceptionWireRoundTrip(t *testing.T) {
	ex := IllegalBootstrapOperation("delete")
	enc := cdr.NewEncoder()
	if err := ex.Write(enc); err != nil {
		t.Fatal(err)
	}
	back, err := ReadSystemException(cdr.NewDecoder(enc.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if back.Kind != KindBadOperation || back.Minor != MinorIllegalBootstrapOp || back.Message != ex.Message {
		t.Fatalf("round trip = %+v", back)
	}
}

func TestToSystemException(t *testing.T) {
	if se := ToSystemException(fmt.Errorf("read: %w", cdr.ErrUnderflow)); se.Kind != KindMarshal {
		t.Fatalf("underflow kind = %v", se.Kind)
	}
	orig := NoAdapter("RootPOA/x")
	if se := ToSystemException(fmt.Errorf("find: %w", orig)); se != orig {
		t.Fatal("system exceptions must pass through unchanged")
	}
	if se := ToSystemException(errors.New("x")); se.Kind != KindUnknown {
		t.Fatalf("plain error kind = %v", se.Kind)
	}
}

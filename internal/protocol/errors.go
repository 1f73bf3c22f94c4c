package protocol

import (
	"errors"
	"fmt"

	"orb-server/internal/cdr"
	"orb-server/internal/ior"
)

var (
	InternalErrConnClosed      = errors.New("connection closed")
	InternalErrServerClosed    = errors.New("server closed")
	InternalErrNoReply         = errors.New("no reply created")
	InternalErrUnexpectedReply = errors.New("unexpected reply")
	InternalErrTooManyForwards = errors.New("too many location forwards")
)

type ExceptionKind int

const (
	KindUnknown ExceptionKind = iota
	KindBadOperation
	KindObjectNotExist
	KindObjAdapter
	KindNoImplement
	KindInternal
	KindMarshal
	KindTransient
	KindBadParam
)

var repositoryIDs = map[ExceptionKind]string{
	KindUnknown:        "IDL:omg.org/CORBA/UNKNOWN:1.0",
	KindBadOperation:   "IDL:omg.org/CORBA/BAD_OPERATION:1.0",
	KindObjectNotExist: "IDL:omg.org/CORBA/OBJECT_NOT_EXIST:1.0",
	KindObjAdapter:     "IDL:omg.org/CORBA/OBJ_ADAPTER:1.0",
	KindNoImplement:    "IDL:omg.org/CORBA/NO_IMPLEMENT:1.0",
	KindInternal:       "IDL:omg.org/CORBA/INTERNAL:1.0",
	KindMarshal:        "IDL:omg.org/CORBA/MARSHAL:1.0",
	KindTransient:      "IDL:omg.org/CORBA/TRANSIENT:1.0",
	KindBadParam:       "IDL:omg.org/CORBA/BAD_PARAM:1.0",
}

func (k ExceptionKind) RepositoryID() string {
	return repositoryIDs[k]
}

func kindFromRepositoryID(id string) ExceptionKind {
	for k, v := range repositoryIDs {
		if v == id {
			return k
		}
	}
	return KindUnknown
}

type Completion uint32

const (
	CompletedYes   Completion = 0
	CompletedNo    Completion = 1
	CompletedMaybe Completion = 2
)

// Minor codes.
const (
	MinorBadSkeleton           uint32 = 1
	MinorIllegalBootstrapOp    uint32 = 2
	MinorInsNotFound           uint32 = 3
	MinorNoAdapter             uint32 = 4
	MinorLocateFailed          uint32 = 5
	MinorActivatorFailed       uint32 = 6
	MinorGetInterfaceNotImpl   uint32 = 7
	MinorServantPanic          uint32 = 8
	MinorDispatchPanic         uint32 = 9
	MinorAdapterEnterFailed    uint32 = 10
	MinorMalformedRequest      uint32 = 11
	MinorUnknownOperation      uint32 = 12
	MinorNoServant             uint32 = 13
	MinorServerShuttingDown    uint32 = 14
	MinorUnexpectedServantType uint32 = 15
)

// SystemException is a fault that travels back to the caller as a
// SYSTEM_EXCEPTION reply.
type SystemException struct {
	Kind      ExceptionKind
	Minor     uint32
	Completed Completion
	Message   string
}

func (e *SystemException) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s minor=%d", e.Kind.RepositoryID(), e.Minor)
	}
	return fmt.Sprintf("%s minor=%d: %s", e.Kind.RepositoryID(), e.Minor, e.Message)
}

// Is matches on kind and minor code so errors.Is works against constructors.
func (e *SystemException) Is(target error) bool {
	t, ok := target.(*SystemException)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Minor == e.Minor
}

// Write marshals the exception body of a SYSTEM_EXCEPTION reply. The
// message is not part of the standard body and is appended as a string.
func (e *SystemException) Write(enc *cdr.Encoder) error {
	if err := enc.WriteRepositoryID(e.Kind.RepositoryID()); err != nil {
		return err
	}
	enc.WriteULong(e.Minor)
	enc.WriteULong(uint32(e.Completed))
	enc.WriteString(e.Message)
	return nil
}

func ReadSystemException(d *cdr.Decoder) (*SystemException, error) {
	id, err := d.ReadRepositoryID()
	if err != nil {
		return nil, err
	}
	minor, err := d.ReadULong()
	if err != nil {
		return nil, err
	}
	completed, err := d.ReadULong()
	if err != nil {
		return nil, err
	}
	msg, err := d.ReadString()
	if err != nil {
		return nil, err
	}
	return &SystemException{
		Kind:      kindFromRepositoryID(id),
		Minor:     minor,
		Completed: Completion(completed),
		Message:   msg,
	}, nil
}

func newSystemException(kind ExceptionKind, minor uint32, completed Completion, format string, args ...any) *SystemException {
	return &SystemException{
		Kind:      kind,
		Minor:     minor,
		Completed: completed,
		Message:   fmt.Sprintf(format, args...),
	}
}

func BadSkeleton() *SystemException {
	return newSystemException(KindBadOperation, MinorBadSkeleton, CompletedNo, "servant not available")
}

func IllegalBootstrapOperation(op string) *SystemException {
	return newSystemException(KindBadOperation, MinorIllegalBootstrapOp, CompletedNo, "illegal bootstrap operation %q", op)
}

func UnknownOperation(op string) *SystemException {
	return newSystemException(KindBadOperation, MinorUnknownOperation, CompletedNo, "unknown operation %q", op)
}

func InsObjectNotFound(key string) *SystemException {
	return newSystemException(KindObjectNotExist, MinorInsNotFound, CompletedNo, "no initial reference %q", key)
}

func NoAdapter(adapter string) *SystemException {
	return newSystemException(KindObjectNotExist, MinorNoAdapter, CompletedNo, "no object adapter %q", adapter)
}

func NoServant(id string) *SystemException {
	return newSystemException(KindObjectNotExist, MinorNoServant, CompletedNo, "no servant for object %q", id)
}

func LocateFailed(cause error) *SystemException {
	return newSystemException(KindObjAdapter, MinorLocateFailed, CompletedNo, "servant lookup failed: %v", cause)
}

func AdapterActivatorFailed(adapter string, cause error) *SystemException {
	return newSystemException(KindObjAdapter, MinorActivatorFailed, CompletedNo, "recreate adapter %q: %v", adapter, cause)
}

func AdapterEnterFailed(cause error) *SystemException {
	return newSystemException(KindObjAdapter, MinorAdapterEnterFailed, CompletedNo, "enter adapter: %v", cause)
}

func GetInterfaceNotImplemented() *SystemException {
	return newSystemException(KindNoImplement, MinorGetInterfaceNotImpl, CompletedNo, "get interface is not implemented")
}

func ServantPanic(v any) *SystemException {
	return newSystemException(KindUnknown, MinorServantPanic, CompletedMaybe, "servant panic: %v", v)
}

func DispatchPanic(v any) *SystemException {
	return newSystemException(KindInternal, MinorDispatchPanic, CompletedMaybe, "dispatch panic: %v", v)
}

func Marshal(cause error) *SystemException {
	return newSystemException(KindMarshal, MinorMalformedRequest, CompletedNo, "%v", cause)
}

func Transient(reason string) *SystemException {
	return newSystemException(KindTransient, MinorServerShuttingDown, CompletedNo, "%s", reason)
}

func UnexpectedServantType(id string) *SystemException {
	return newSystemException(KindBadParam, MinorUnexpectedServantType, CompletedNo, "servant for %q has an unexpected type", id)
}

// ForwardRequest redirects the caller to another reference.
type ForwardRequest struct {
	Target *ior.IOR
}

func (f *ForwardRequest) Error() string {
	return "location forward"
}

// ThreadDeath asks the dispatch path to unwind without producing a reply.
// It must never be converted into a fault reply.
type ThreadDeath struct {
	Reason string
}

func (t *ThreadDeath) Error() string {
	return "thread death: " + t.Reason
}

type Fault int

const (
	FaultNone Fault = iota
	FaultForward
	FaultTermination
	FaultOther
)

func (f Fault) String() string {
	switch f {
	case FaultNone:
		return "none"
	case FaultForward:
		return "forward"
	case FaultTermination:
		return "termination"
	default:
		return "other"
	}
}

// Classify decides once how a locate or invoke failure is handled.
func Classify(err error) Fault {
	if err == nil {
		return FaultNone
	}
	var td *ThreadDeath
	if errors.As(err, &td) {
		return FaultTermination
	}
	var fwd *ForwardRequest
	if errors.As(err, &fwd) {
		return FaultForward
	}
	return FaultOther
}

// ClassifyPanic classifies a recovered panic value.
func ClassifyPanic(v any) Fault {
	if v == nil {
		return FaultNone
	}
	if err, ok := v.(error); ok {
		return Classify(err)
	}
	return FaultOther
}

func AsSystemException(err error) (*SystemException, bool) {
	var se *SystemException
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func AsForward(err error) (*ForwardRequest, bool) {
	var fwd *ForwardRequest
	if errors.As(err, &fwd) {
		return fwd, true
	}
	return nil, false
}

// ToSystemException maps any non-termination error to a reply-able fault.
func ToSystemException(err error) *SystemException {
	if se, ok := AsSystemException(err); ok {
		return se
	}
	if errors.Is(err, cdr.ErrUnderflow) || errors.Is(err, cdr.ErrMalformed) || errors.Is(err, ior.ErrMalformedKey) {
		return Marshal(err)
	}
	return newSystemException(KindUnknown, 0, CompletedMaybe, "%v", err)
}

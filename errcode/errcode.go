package errcode

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK          Code = "ok"
	Busy        Code = "busy"
	Unsupported Code = "unsupported"
	Timeout     Code = "timeout"

	// Driver contract violations. Each maps to one or more AUTOSAR
	// development error identifiers reported through det.
	InvalidPin            Code = "invalid_pin"
	InvalidConfig         Code = "invalid_config"
	InvalidMode           Code = "invalid_mode"
	InvalidValue          Code = "invalid_value"
	AttributeUnchangeable Code = "attribute_unchangeable"
	NotInitialized        Code = "not_initialized"
	AlreadyInitialized    Code = "already_initialized"
	InvalidChannel        Code = "invalid_channel"
	InvalidPort           Code = "invalid_port"
	InvalidGroup          Code = "invalid_group"
	InvalidInstance       Code = "invalid_instance"
	NullPointer           Code = "null_pointer"
	InvalidPayload        Code = "invalid_payload"
	InvalidTopic          Code = "invalid_topic"
	UnknownBoard          Code = "unknown_board"

	Error Code = "error" // generic fallback
)

// Optional wrapper when we want to keep context and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is match an *E against its bare Code.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Wrap builds an *E for op with an optional message.
func Wrap(c Code, op, msg string) error {
	return &E{C: c, Op: op, Msg: msg}
}

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		if inner := u.Unwrap(); inner != nil {
			return Of(inner)
		}
	}
	return Error
}

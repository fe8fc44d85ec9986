package errs

import (
	"encoding/json"
	"fmt"
)

// ErrCode identifies a member of the closed error taxonomy.
type ErrCode struct {
	value int
}

// Value returns the integer value of the code.
func (ec ErrCode) Value() int {
	return ec.value
}

// String returns the string form of the code.
func (ec ErrCode) String() string {
	return codeNames[ec.value]
}

// MarshalText implements encoding.TextMarshaler.
func (ec ErrCode) MarshalText() ([]byte, error) {
	return []byte(ec.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (ec *ErrCode) UnmarshalText(data []byte) error {
	name := string(data)
	v, ok := codeNumbers[name]
	if !ok {
		return fmt.Errorf("unknown error code %q", name)
	}
	ec.value = v
	return nil
}

var (
	Unknown          = ErrCode{0}
	PermissionDenied = ErrCode{1}
	Unavailable      = ErrCode{2}
	DeadlineExceeded = ErrCode{3}
	Unauthenticated  = ErrCode{4}
	NotFound         = ErrCode{5}
	InvalidArgument  = ErrCode{6}
	Internal         = ErrCode{7}

	// InternalOnlyLog marks errors whose detail must stay in the logs; the
	// client sees a generic internal error instead.
	InternalOnlyLog = ErrCode{8}
)

var codeNames = map[int]string{
	0: "unknown",
	1: "permission_denied",
	2: "unavailable",
	3: "deadline_exceeded",
	4: "unauthenticated",
	5: "not_found",
	6: "invalid_argument",
	7: "internal",
	8: "internal_only_log",
}

var codeNumbers = map[string]int{
	"unknown":           0,
	"permission_denied": 1,
	"unavailable":       2,
	"deadline_exceeded": 3,
	"unauthenticated":   4,
	"not_found":         5,
	"invalid_argument":  6,
	"internal":          7,
	"internal_only_log": 8,
}

func marshal(e *Error) ([]byte, error) {
	return json.Marshal(struct {
		Error *Error `json:"error"`
	}{Error: e})
}

package status

import "fmt"

// Code is a platform-layer status code. Success is the only non-failure value.
type Code uint32

const (
	Success          Code = 0x00
	Error            Code = 0x01
	NotFound         Code = 0x02
	InvalidArgs      Code = 0x03
	Unsupported      Code = 0x04
	InsufficientSize Code = 0x05
	Timeout          Code = 0x06
	DataMismatch     Code = 0x07
	IncorrectValue   Code = 0x08
	CertInvalid      Code = 0x09
	UnexpectedFault  Code = 0x0A
	HandlerBusy      Code = 0x0B
)

var codeNames = map[Code]string{
	Success:          "SUCCESS",
	Error:            "ERROR",
	NotFound:         "NOT_FOUND",
	InvalidArgs:      "INVALID_ARGS",
	Unsupported:      "UNSUPPORTED",
	InsufficientSize: "INSUFFICIENT_SIZE",
	Timeout:          "TIMEOUT",
	DataMismatch:     "DATA_MISMATCH",
	IncorrectValue:   "INCORRECT_VALUE",
	CertInvalid:      "CERT_INVALID",
	UnexpectedFault:  "UNEXPECTED_FAULT",
	HandlerBusy:      "HANDLER_BUSY",
}

// String returns the stable name of the code, or its hex value if unknown.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", uint32(c))
}

// Failed reports whether c signals a failure.
func (c Code) Failed() bool {
	return c != Success
}

// ParseCode maps a stable name back to its Code.
func ParseCode(name string) (Code, bool) {
	for c, n := range codeNames {
		if n == name {
			return c, true
		}
	}
	return 0, false
}

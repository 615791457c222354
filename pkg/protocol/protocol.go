// Package protocol defines the fixed-size binary records exchanged between the
// namenode, its clients and its datanodes. Every connection carries exactly one
// request (or heartbeat) and at most one response.
package protocol

import (
	"errors"
	"fmt"
)

// OpCode selects the client operation.
type OpCode int32

const (
	OpRead   OpCode = 0
	OpWrite  OpCode = 1
	OpStatus OpCode = 2
	OpModify OpCode = 3
)

func (o OpCode) String() string {
	switch o {
	case OpRead:
		return "read"
	case OpWrite:
		return "write"
	case OpStatus:
		return "status"
	case OpModify:
		return "modify"
	default:
		return fmt.Sprintf("op(%d)", int32(o))
	}
}

// Status is the first byte of every response.
type Status uint8

const (
	StatusOK Status = iota
	StatusNotFound
	StatusCatalogFull
	StatusNoNodesAvailable
	StatusBadRequest
	StatusFileTooLarge
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not found"
	case StatusCatalogFull:
		return "catalog full"
	case StatusNoNodesAvailable:
		return "no datanodes available"
	case StatusBadRequest:
		return "bad request"
	case StatusFileTooLarge:
		return "file too large"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

const (
	NameFieldSize    = 256
	AddressFieldSize = 46
)

var (
	ErrMalformedRecord  = errors.New("malformed record")
	ErrUnknownOperation = errors.New("unknown operation")
	ErrFieldTooLong     = errors.New("field exceeds record size")
)

// StatusError is returned by the response readers for any non-OK status.
type StatusError struct {
	Status Status
}

func (e *StatusError) Error() string {
	return "namenode replied: " + e.Status.String()
}

// IsStatus reports whether err carries the given response status.
func IsStatus(err error, status Status) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}

// Request is a client request.
type Request struct {
	Op       OpCode
	FileName string
	FileSize uint64
}

// Heartbeat is the status record a datanode sends. The datanode's address is
// taken from the connection, not from the record.
type Heartbeat struct {
	DatanodeID int32
	ListenPort int32
}

// Package target implements the simulated platform the harness runs against.
//
// A target is described by a YAML file (see Load). It provides configuration
// records by logical key, a memory map with secure and non-secure regions, and
// certificate cryptography for debug-unlock credentials. Records returned by a
// Platform are owned by it; callers read them and never mutate them.
package target

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no record exists for a ConfigID.
var ErrNotFound = errors.New("config record not found")

// Group is the top-level configuration domain of a record.
type Group uint8

const (
	GroupMemory Group = 1
	GroupClocks Group = 2
	GroupDPM    Group = 3
)

// String returns the group name.
func (g Group) String() string {
	switch g {
	case GroupMemory:
		return "MEMORY"
	case GroupClocks:
		return "CLOCKS"
	case GroupDPM:
		return "DPM"
	default:
		return fmt.Sprintf("GROUP(%d)", uint8(g))
	}
}

// Kind selects a record type within a group. Kind 0 is the group header.
type Kind uint8

const (
	KindHeader Kind = 0

	KindDPM          Kind = 1
	KindClocksSysFrq Kind = 1
	KindMemRegion    Kind = 1
)

// ConfigID is the logical key of a record: group<<24 | kind<<16 | instance.
type ConfigID uint32

// CreateID builds a ConfigID.
func CreateID(g Group, k Kind, instance uint16) ConfigID {
	return ConfigID(uint32(g)<<24 | uint32(k)<<16 | uint32(instance))
}

// Group returns the group part of the ID.
func (id ConfigID) Group() Group { return Group(id >> 24) }

// Kind returns the kind part of the ID.
func (id ConfigID) Kind() Kind { return Kind(id >> 16) }

// Instance returns the instance part of the ID.
func (id ConfigID) Instance() uint16 { return uint16(id) }

func (id ConfigID) String() string {
	return fmt.Sprintf("%s/%d/%d", id.Group(), id.Kind(), id.Instance())
}

// Record is an opaque configuration record returned by key. Concrete values
// are DPMHeader, DPMDesc, ClocksDesc, MemoryHeader and MemoryDesc.
type Record interface {
	// recordMarker restricts implementers to this package.
	recordMarker()
}

// Token is the kind of credential a DPM accepts for debug unlock.
type Token string

const (
	TokenCertificate Token = "certificate"
	TokenPassword    Token = "password"
	TokenNone        Token = "none"
)

// Algorithm is the scheme a DPM uses to check its unlock credential.
type Algorithm string

const (
	AlgoRSA  Algorithm = "RSA"
	AlgoECC  Algorithm = "ECC"
	AlgoAES  Algorithm = "AES"
	AlgoHMAC Algorithm = "HMAC"
	AlgoNone Algorithm = "NONE"
)

// DPMHeader reports how many DPM instances the platform has.
type DPMHeader struct {
	Num uint32
}

// DPMDesc describes one Debug Privilege Manager instance.
// Certificate and PublicKey are PEM or DER bytes owned by the Platform.
type DPMDesc struct {
	Instance    uint32
	Name        string
	UnlockToken Token
	UnlockAlgo  Algorithm
	Certificate []byte
	PublicKey   []byte
}

// ClocksDesc locates the system PLL control registers.
type ClocksDesc struct {
	Instance uint32
	PLLBase  uint64
	Offset   uint64
}

// MemoryHeader reports how many memory regions are described.
type MemoryHeader struct {
	Num uint32
}

// MemoryDesc is one region of the memory map.
type MemoryDesc struct {
	Instance uint32
	Name     string
	Base     uint64
	Size     uint64
	Secure   bool
	Value    uint64
}

// Contains reports whether addr falls inside the region.
func (m MemoryDesc) Contains(addr uint64) bool {
	return addr >= m.Base && addr-m.Base < m.Size
}

func (DPMHeader) recordMarker()    {}
func (DPMDesc) recordMarker()      {}
func (ClocksDesc) recordMarker()   {}
func (MemoryHeader) recordMarker() {}
func (MemoryDesc) recordMarker()   {}

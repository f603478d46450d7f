package target

import (
	"fmt"
	"os"
	"path/filepath"
)

// World is the security state an access is made from.
type World int

const (
	NonSecure World = iota
	Secure
)

func (w World) String() string {
	if w == Secure {
		return "S"
	}
	return "NS"
}

// AccessFault is returned by ReadWide when the access must trap.
type AccessFault struct {
	Addr   uint64
	Region string
	World  World
}

func (e *AccessFault) Error() string {
	return fmt.Sprintf("%s access to secure region %s at %#x", e.World, e.Region, e.Addr)
}

// Platform is a loaded target.
type Platform struct {
	name        string
	version     string
	secureFault bool
	records     map[ConfigID]Record
	regions     []MemoryDesc
}

// New builds a Platform from a validated document. Credential paths are read
// relative to baseDir.
func New(doc *Document, baseDir string) (*Platform, error) {
	p := &Platform{
		name:        doc.Name,
		version:     doc.TBSAVersion,
		secureFault: doc.SecureFault,
		records:     make(map[ConfigID]Record),
	}

	// The DPM header always exists; a target without DPMs reports zero.
	p.records[CreateID(GroupDPM, KindHeader, 0)] = DPMHeader{Num: uint32(len(doc.DPM))}
	for i, e := range doc.DPM {
		desc := DPMDesc{
			Instance:    uint32(i),
			Name:        e.Name,
			UnlockToken: Token(e.UnlockToken),
			UnlockAlgo:  Algorithm(e.UnlockAlgo),
		}
		if e.Certificate != "" {
			data, err := readRelative(baseDir, e.Certificate)
			if err != nil {
				return nil, fmt.Errorf("dpm[%d]: certificate: %w", i, err)
			}
			desc.Certificate = data
		}
		if e.PublicKey != "" {
			data, err := readRelative(baseDir, e.PublicKey)
			if err != nil {
				return nil, fmt.Errorf("dpm[%d]: public key: %w", i, err)
			}
			desc.PublicKey = data
		}
		p.records[CreateID(GroupDPM, KindDPM, uint16(i))] = desc
	}

	for i, e := range doc.Clocks {
		p.records[CreateID(GroupClocks, KindClocksSysFrq, uint16(i))] = ClocksDesc{
			Instance: uint32(i),
			PLLBase:  e.PLLBase,
			Offset:   e.Offset,
		}
	}

	if len(doc.Memory) > 0 {
		p.records[CreateID(GroupMemory, KindHeader, 0)] = MemoryHeader{Num: uint32(len(doc.Memory))}
	}
	for i, e := range doc.Memory {
		desc := MemoryDesc{
			Instance: uint32(i),
			Name:     e.Name,
			Base:     e.Base,
			Size:     e.Size,
			Secure:   e.Security == SecuritySecure,
			Value:    e.Value,
		}
		p.regions = append(p.regions, desc)
		p.records[CreateID(GroupMemory, KindMemRegion, uint16(i))] = desc
	}

	return p, nil
}

func readRelative(baseDir, path string) ([]byte, error) {
	if !filepath.IsAbs(path) && baseDir != "" {
		path = filepath.Join(baseDir, path)
	}
	return os.ReadFile(path)
}

// Name returns the target name.
func (p *Platform) Name() string { return p.name }

// Version returns the TBSA version the target claims.
func (p *Platform) Version() string { return p.version }

// SecureFaultSupported reports whether the target implements SecureFault.
func (p *Platform) SecureFaultSupported() bool { return p.secureFault }

// GetConfig returns the record stored under id, or ErrNotFound.
func (p *Platform) GetConfig(id ConfigID) (Record, error) {
	r, ok := p.records[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return r, nil
}

// ReadWide performs a 64-bit read at addr from world.
//
// A non-secure read of a secure region returns *AccessFault; the caller is
// expected to raise the corresponding exception. A read outside every region
// returns ErrNotFound.
func (p *Platform) ReadWide(addr uint64, world World) (uint64, error) {
	for _, r := range p.regions {
		if !r.Contains(addr) {
			continue
		}
		if r.Secure && world == NonSecure {
			return 0, &AccessFault{Addr: addr, Region: r.Name, World: world}
		}
		return r.Value, nil
	}
	return 0, fmt.Errorf("address %#x unmapped: %w", addr, ErrNotFound)
}

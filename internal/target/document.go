package target

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Document is the on-disk description of a target.
//
// Example:
//
//	name: fvp-sse200
//	tbsa_version: 1.0.0
//	secure_fault: true
//	dpm:
//	  - name: debug-dpm
//	    unlock_token: certificate
//	    unlock_algo: ECC
//	    certificate: certs/dpm0.pem
//	    public_key: certs/dpm0.pub.pem
//	clocks:
//	  - pll_base: 0x50021000
//	    offset: 0x10
//	memory:
//	  - name: sysctrl
//	    base: 0x50021000
//	    size: 0x1000
//	    security: secure
//
// The json tags name the fields for schema validation.
type Document struct {
	Name        string        `yaml:"name" json:"name"`
	TBSAVersion string        `yaml:"tbsa_version" json:"tbsa_version"`
	SecureFault bool          `yaml:"secure_fault" json:"secure_fault"`
	DPM         []DPMEntry    `yaml:"dpm,omitempty" json:"dpm,omitempty"`
	Clocks      []ClockEntry  `yaml:"clocks,omitempty" json:"clocks,omitempty"`
	Memory      []RegionEntry `yaml:"memory,omitempty" json:"memory,omitempty"`
}

// DPMEntry is a DPM instance in a Document.
// Certificate and PublicKey are paths relative to the document.
type DPMEntry struct {
	Name        string `yaml:"name,omitempty" json:"name,omitempty"`
	UnlockToken string `yaml:"unlock_token" json:"unlock_token"`
	UnlockAlgo  string `yaml:"unlock_algo" json:"unlock_algo"`
	Certificate string `yaml:"certificate,omitempty" json:"certificate,omitempty"`
	PublicKey   string `yaml:"public_key,omitempty" json:"public_key,omitempty"`
}

// ClockEntry is a clock descriptor in a Document.
type ClockEntry struct {
	PLLBase uint64 `yaml:"pll_base" json:"pll_base"`
	Offset  uint64 `yaml:"offset" json:"offset"`
}

// RegionEntry is a memory region in a Document.
type RegionEntry struct {
	Name     string `yaml:"name" json:"name"`
	Base     uint64 `yaml:"base" json:"base"`
	Size     uint64 `yaml:"size" json:"size"`
	Security string `yaml:"security" json:"security"`
	Value    uint64 `yaml:"value,omitempty" json:"value,omitempty"`
}

// Security values accepted in RegionEntry.Security.
const (
	SecuritySecure    = "secure"
	SecurityNonSecure = "non-secure"
)

// Load reads a target description, validates it and builds the Platform.
// Certificate and key paths are resolved relative to the file's directory.
func Load(path string) (*Platform, error) {
	doc, err := ReadDocument(path)
	if err != nil {
		return nil, err
	}
	return New(doc, filepath.Dir(path))
}

// ReadDocument parses and validates a target description without loading
// the credential files it references.
func ReadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read target file: %w", err)
	}
	return ParseDocument(data)
}

// ParseDocument decodes YAML with strict field checking, then validates the
// result against the target schema and the supported TBSA versions.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := ValidateSchema(&doc); err != nil {
		return nil, fmt.Errorf("invalid target: %w", err)
	}
	if err := CheckVersion(doc.TBSAVersion); err != nil {
		return nil, fmt.Errorf("invalid target: %w", err)
	}
	return &doc, nil
}

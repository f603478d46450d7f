package testutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// DPMFixture describes one DPM instance of a generated target.
type DPMFixture struct {
	Name  string
	Token string // default "certificate"
	Algo  string // default "ECC"

	// Serial is the device serial written into the certificate.
	// Zero means instance index + 1.
	Serial int64

	// ForeignKey writes a public key that did not sign the certificate.
	ForeignKey bool
}

// ClockFixture is a clock descriptor of a generated target.
type ClockFixture struct {
	PLLBase uint64
	Offset  uint64
}

// RegionFixture is a memory region of a generated target.
type RegionFixture struct {
	Name   string
	Base   uint64
	Size   uint64
	Secure bool
	Value  uint64
}

// TargetFixture is the input to WriteTarget.
type TargetFixture struct {
	Name        string // default "test-target"
	Version     string // default "1.0.0"
	SecureFault bool
	DPMs        []DPMFixture
	Clocks      []ClockFixture
	Regions     []RegionFixture
}

type fixtureDoc struct {
	Name        string          `yaml:"name"`
	TBSAVersion string          `yaml:"tbsa_version"`
	SecureFault bool            `yaml:"secure_fault"`
	DPM         []fixtureDPM    `yaml:"dpm,omitempty"`
	Clocks      []fixtureClock  `yaml:"clocks,omitempty"`
	Memory      []fixtureRegion `yaml:"memory,omitempty"`
}

type fixtureDPM struct {
	Name        string `yaml:"name,omitempty"`
	UnlockToken string `yaml:"unlock_token"`
	UnlockAlgo  string `yaml:"unlock_algo"`
	Certificate string `yaml:"certificate,omitempty"`
	PublicKey   string `yaml:"public_key,omitempty"`
}

type fixtureClock struct {
	PLLBase uint64 `yaml:"pll_base"`
	Offset  uint64 `yaml:"offset"`
}

type fixtureRegion struct {
	Name     string `yaml:"name"`
	Base     uint64 `yaml:"base"`
	Size     uint64 `yaml:"size"`
	Security string `yaml:"security"`
	Value    uint64 `yaml:"value,omitempty"`
}

// WriteTarget writes a target description and its credential files into dir
// and returns the path of the YAML file.
func WriteTarget(t testing.TB, dir string, f TargetFixture) string {
	t.Helper()

	doc := fixtureDoc{
		Name:        f.Name,
		TBSAVersion: f.Version,
		SecureFault: f.SecureFault,
	}
	if doc.Name == "" {
		doc.Name = "test-target"
	}
	if doc.TBSAVersion == "" {
		doc.TBSAVersion = "1.0.0"
	}

	for i, d := range f.DPMs {
		entry := fixtureDPM{
			Name:        d.Name,
			UnlockToken: d.Token,
			UnlockAlgo:  d.Algo,
		}
		if entry.UnlockToken == "" {
			entry.UnlockToken = "certificate"
		}
		if entry.UnlockAlgo == "" {
			entry.UnlockAlgo = "ECC"
		}
		if entry.UnlockToken == "certificate" {
			serial := d.Serial
			if serial == 0 {
				serial = int64(i + 1)
			}
			certPEM, pubPEM := NewCertificate(t, serial)
			if d.ForeignKey {
				_, pubPEM = NewCertificate(t, serial)
			}
			entry.Certificate = fmt.Sprintf("dpm%d.pem", i)
			entry.PublicKey = fmt.Sprintf("dpm%d.pub.pem", i)
			writeFile(t, filepath.Join(dir, entry.Certificate), certPEM)
			writeFile(t, filepath.Join(dir, entry.PublicKey), pubPEM)
		}
		doc.DPM = append(doc.DPM, entry)
	}

	for _, c := range f.Clocks {
		doc.Clocks = append(doc.Clocks, fixtureClock{PLLBase: c.PLLBase, Offset: c.Offset})
	}

	for _, r := range f.Regions {
		sec := "non-secure"
		if r.Secure {
			sec = "secure"
		}
		doc.Memory = append(doc.Memory, fixtureRegion{
			Name:     r.Name,
			Base:     r.Base,
			Size:     r.Size,
			Security: sec,
			Value:    r.Value,
		})
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal target fixture: %v", err)
	}
	path := filepath.Join(dir, "target.yaml")
	writeFile(t, path, data)
	return path
}

// NewCertificate returns a self-signed ECDSA P-256 device certificate with
// the given serial and the PEM-encoded public key that signed it.
func NewCertificate(t testing.TB, serial int64) (certPEM, pubPEM []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: "dpm-device"},
		NotBefore:    Epoch,
		NotAfter:     Epoch.Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return certPEM, pubPEM
}

func writeFile(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

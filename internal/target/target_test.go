package target

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tbsa/internal/testutil"
)

func TestLoad_FullTarget(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteTarget(t, dir, testutil.TargetFixture{
		Name:        "fvp",
		SecureFault: true,
		DPMs: []testutil.DPMFixture{
			{Name: "debug"},
			{Name: "pw", Token: "password", Algo: "HMAC"},
		},
		Clocks: []testutil.ClockFixture{{PLLBase: 0x5002_1000, Offset: 0x10}},
		Regions: []testutil.RegionFixture{
			{Name: "sysctrl", Base: 0x5002_1000, Size: 0x1000, Secure: true},
			{Name: "sram", Base: 0x2000_0000, Size: 0x1000, Value: 0xCAFE},
		},
	})

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fvp", p.Name())
	assert.Equal(t, "1.0.0", p.Version())
	assert.True(t, p.SecureFaultSupported())

	rec, err := p.GetConfig(CreateID(GroupDPM, KindHeader, 0))
	require.NoError(t, err)
	assert.Equal(t, DPMHeader{Num: 2}, rec)

	rec, err = p.GetConfig(CreateID(GroupDPM, KindDPM, 0))
	require.NoError(t, err)
	desc, ok := rec.(DPMDesc)
	require.True(t, ok)
	assert.Equal(t, TokenCertificate, desc.UnlockToken)
	assert.Equal(t, AlgoECC, desc.UnlockAlgo)
	assert.NotEmpty(t, desc.Certificate)
	assert.NotEmpty(t, desc.PublicKey)

	rec, err = p.GetConfig(CreateID(GroupDPM, KindDPM, 1))
	require.NoError(t, err)
	assert.Empty(t, rec.(DPMDesc).Certificate)

	rec, err = p.GetConfig(CreateID(GroupClocks, KindClocksSysFrq, 0))
	require.NoError(t, err)
	assert.Equal(t, ClocksDesc{PLLBase: 0x5002_1000, Offset: 0x10}, rec)

	rec, err = p.GetConfig(CreateID(GroupMemory, KindHeader, 0))
	require.NoError(t, err)
	assert.Equal(t, MemoryHeader{Num: 2}, rec)
}

func TestGetConfig_NotFound(t *testing.T) {
	p, err := New(&Document{Name: "empty", TBSAVersion: "1.0.0"}, "")
	require.NoError(t, err)

	_, err = p.GetConfig(CreateID(GroupClocks, KindClocksSysFrq, 0))
	assert.ErrorIs(t, err, ErrNotFound)

	rec, err := p.GetConfig(CreateID(GroupDPM, KindHeader, 0))
	require.NoError(t, err)
	assert.Equal(t, DPMHeader{Num: 0}, rec)
}

func TestReadWide(t *testing.T) {
	p, err := New(&Document{
		Name:        "mem",
		TBSAVersion: "1.0.0",
		Memory: []RegionEntry{
			{Name: "sysctrl", Base: 0x1000, Size: 0x100, Security: SecuritySecure, Value: 7},
			{Name: "sram", Base: 0x2000, Size: 0x100, Security: SecurityNonSecure, Value: 9},
		},
	}, "")
	require.NoError(t, err)

	v, err := p.ReadWide(0x2010, NonSecure)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), v)

	_, err = p.ReadWide(0x1010, NonSecure)
	var fault *AccessFault
	require.True(t, errors.As(err, &fault))
	assert.Equal(t, uint64(0x1010), fault.Addr)
	assert.Equal(t, "sysctrl", fault.Region)

	v, err = p.ReadWide(0x1010, Secure)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), v)

	// One past the end of the secure region is unmapped.
	_, err = p.ReadWide(0x1100, NonSecure)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseDocument_RejectsUnknownField(t *testing.T) {
	_, err := ParseDocument([]byte("name: x\ntbsa_version: 1.0.0\nsecure_fault: true\nbogus: 1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseDocument_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty name", "name: \"\"\ntbsa_version: 1.0.0\nsecure_fault: false\n"},
		{"unknown algorithm", "name: x\ntbsa_version: 1.0.0\nsecure_fault: false\ndpm:\n  - unlock_token: none\n    unlock_algo: DES\n"},
		{"certificate token without files", "name: x\ntbsa_version: 1.0.0\nsecure_fault: false\ndpm:\n  - unlock_token: certificate\n    unlock_algo: ECC\n"},
		{"zero size region", "name: x\ntbsa_version: 1.0.0\nsecure_fault: false\nmemory:\n  - name: r\n    base: 0\n    size: 0\n    security: secure\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDocument([]byte(tt.yaml))
			require.Error(t, err)
			var se *SchemaError
			assert.True(t, errors.As(err, &se), "want SchemaError, got %v", err)
		})
	}
}

func TestCheckVersion(t *testing.T) {
	assert.NoError(t, CheckVersion("1.0.0"))
	assert.NoError(t, CheckVersion("1.4.2"))
	assert.Error(t, CheckVersion("2.0.0"))
	assert.Error(t, CheckVersion("0.9.0"))
	assert.Error(t, CheckVersion("not-a-version"))
}

func TestParseDocument_UnsupportedVersion(t *testing.T) {
	_, err := ParseDocument([]byte("name: x\ntbsa_version: 2.1.0\nsecure_fault: false\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")
}

func TestNew_MissingCredentialFile(t *testing.T) {
	doc := &Document{
		Name:        "x",
		TBSAVersion: "1.0.0",
		DPM: []DPMEntry{{
			UnlockToken: "certificate",
			UnlockAlgo:  "ECC",
			Certificate: "missing.pem",
			PublicKey:   "missing.pub.pem",
		}},
	}
	_, err := New(doc, t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCreateID_RoundTrip(t *testing.T) {
	id := CreateID(GroupClocks, KindClocksSysFrq, 3)
	assert.Equal(t, GroupClocks, id.Group())
	assert.Equal(t, KindClocksSysFrq, id.Kind())
	assert.Equal(t, uint16(3), id.Instance())
	assert.Equal(t, "CLOCKS/1/3", id.String())
}

func TestValidateCertificate(t *testing.T) {
	cert, pub := testutil.NewCertificate(t, 42)
	require.NoError(t, ValidateCertificate(cert, pub))

	id, err := ExtractUniqueID(cert, pub)
	require.NoError(t, err)
	assert.Equal(t, UniqueID("2a"), id)

	_, otherPub := testutil.NewCertificate(t, 43)
	assert.Error(t, ValidateCertificate(cert, otherPub))

	_, err = ExtractUniqueID(cert, otherPub)
	assert.Error(t, err)
}

func TestValidateCertificate_IssuerCertificateAsKey(t *testing.T) {
	cert, _ := testutil.NewCertificate(t, 5)
	// A self-signed certificate carries its own signing key.
	assert.NoError(t, ValidateCertificate(cert, cert))
}

func TestValidateCertificate_Malformed(t *testing.T) {
	_, pub := testutil.NewCertificate(t, 1)
	assert.ErrorIs(t, ValidateCertificate([]byte("garbage"), pub), ErrBadCertificate)

	cert, _ := testutil.NewCertificate(t, 1)
	assert.ErrorIs(t, ValidateCertificate(cert, []byte("garbage")), ErrBadPublicKey)
}

func TestLoad_ExampleTarget(t *testing.T) {
	path := filepath.Join("..", "..", "testdata", "targets", "fvp-sse200.yaml")
	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fvp-sse200", p.Name())
	assert.True(t, p.SecureFaultSupported())
}

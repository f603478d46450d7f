package target

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

// UniqueID identifies the device a debug-unlock certificate was issued for.
type UniqueID string

var (
	// ErrBadCertificate is returned when certificate bytes cannot be parsed.
	ErrBadCertificate = errors.New("malformed certificate")

	// ErrBadPublicKey is returned when public key bytes cannot be parsed.
	ErrBadPublicKey = errors.New("malformed public key")
)

// ValidateCertificate checks that cert is signed by the holder of pubkey.
// Both arguments may be PEM or DER. pubkey may be a PKIX public key or an
// issuer certificate.
func ValidateCertificate(cert, pubkey []byte) error {
	c, err := parseCertificate(cert)
	if err != nil {
		return err
	}
	pub, err := parsePublicKey(pubkey)
	if err != nil {
		return err
	}

	issuer := &x509.Certificate{PublicKey: pub}
	if err := issuer.CheckSignature(c.SignatureAlgorithm, c.RawTBSCertificate, c.Signature); err != nil {
		return fmt.Errorf("certificate signature: %w", err)
	}
	return nil
}

// ExtractUniqueID returns the device identifier carried by a certificate that
// validates against pubkey: the subject serialNumber attribute when present,
// otherwise the certificate serial number in hex.
func ExtractUniqueID(cert, pubkey []byte) (UniqueID, error) {
	if err := ValidateCertificate(cert, pubkey); err != nil {
		return "", err
	}
	c, err := parseCertificate(cert)
	if err != nil {
		return "", err
	}
	if c.Subject.SerialNumber != "" {
		return UniqueID(c.Subject.SerialNumber), nil
	}
	return UniqueID(c.SerialNumber.Text(16)), nil
}

func parseCertificate(data []byte) (*x509.Certificate, error) {
	der := data
	if block, _ := pem.Decode(data); block != nil {
		if block.Type != "CERTIFICATE" {
			return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrBadCertificate, block.Type)
		}
		der = block.Bytes
	}
	c, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCertificate, err)
	}
	return c, nil
}

func parsePublicKey(data []byte) (any, error) {
	der := data
	if block, _ := pem.Decode(data); block != nil {
		switch block.Type {
		case "CERTIFICATE":
			c, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadPublicKey, err)
			}
			return c.PublicKey, nil
		case "PUBLIC KEY":
			der = block.Bytes
		default:
			return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrBadPublicKey, block.Type)
		}
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPublicKey, err)
	}
	return pub, nil
}

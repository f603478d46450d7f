package report

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the iss claim of every attestation.
const Issuer = "tbsa"

// ErrDigestMismatch is returned when a report's content no longer matches
// its attested digest.
var ErrDigestMismatch = errors.New("report digest mismatch")

// Claims is the payload of a report attestation.
type Claims struct {
	RunID         string `json:"run_id"`
	Target        string `json:"target"`
	Digest        string `json:"digest"`
	Pass          int    `json:"pass"`
	Fail          int    `json:"fail"`
	Skip          int    `json:"skip"`
	Indeterminate int    `json:"indeterminate"`
	jwt.RegisteredClaims
}

// Sign seals r if needed and stores an EdDSA attestation token over its
// digest and summary.
func Sign(r *Report, key ed25519.PrivateKey, now time.Time) error {
	if r.Digest == "" {
		if err := r.Seal(); err != nil {
			return err
		}
	}

	claims := Claims{
		RunID:         r.RunID,
		Target:        r.Target,
		Digest:        r.Digest,
		Pass:          r.Summary.Pass,
		Fail:          r.Summary.Fail,
		Skip:          r.Summary.Skip,
		Indeterminate: r.Summary.Indeterminate,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   Issuer,
			Subject:  r.RunID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return fmt.Errorf("failed to sign report: %w", err)
	}
	r.Token = signed
	return nil
}

// ParseToken verifies the token signature and returns its claims.
func ParseToken(token string, pub ed25519.PublicKey) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return pub, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}), jwt.WithIssuer(Issuer))
	if err != nil {
		return nil, fmt.Errorf("invalid attestation: %w", err)
	}
	return claims, nil
}

// Verify checks that r carries a valid attestation and that its content,
// digest and summary all match what was signed.
func Verify(r *Report, pub ed25519.PublicKey) (*Claims, error) {
	if r.Token == "" {
		return nil, errors.New("report has no attestation")
	}
	claims, err := ParseToken(r.Token, pub)
	if err != nil {
		return nil, err
	}

	digest, err := r.ComputeDigest()
	if err != nil {
		return nil, err
	}
	if digest != claims.Digest || r.Digest != claims.Digest {
		return nil, fmt.Errorf("%w: attested %s, computed %s", ErrDigestMismatch, claims.Digest, digest)
	}
	if claims.RunID != r.RunID || claims.Target != r.Target {
		return nil, fmt.Errorf("%w: run or target differs from attestation", ErrDigestMismatch)
	}
	return claims, nil
}

// GenerateKey creates an Ed25519 key pair in PEM form (PKCS#8 private key,
// PKIX public key).
func GenerateKey() (privPEM, pubPEM []byte, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	privPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privPEM, pubPEM, nil
}

// LoadPrivateKey reads a PEM PKCS#8 Ed25519 private key.
func LoadPrivateKey(path string) (ed25519.PrivateKey, error) {
	der, err := readPEM(path, "PRIVATE KEY")
	if err != nil {
		return nil, err
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key %s: %w", path, err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key %s is %T, want Ed25519", path, key)
	}
	return priv, nil
}

// LoadPublicKey reads a PEM PKIX Ed25519 public key.
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	der, err := readPEM(path, "PUBLIC KEY")
	if err != nil {
		return nil, err
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key %s: %w", path, err)
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key %s is %T, want Ed25519", path, key)
	}
	return pub, nil
}

func readPEM(path, blockType string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != blockType {
		return nil, fmt.Errorf("%s: no %s PEM block", path, blockType)
	}
	return block.Bytes, nil
}

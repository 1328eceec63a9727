package jwtx

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/shield/pkg/cryptox"
	"github.com/golang-jwt/jwt/v5"
)

// Supported JWT signing algorithms.
const (
	AlgorithmHS256 = "HS256"
	AlgorithmHS384 = "HS384"
	AlgorithmHS512 = "HS512"
	AlgorithmRS256 = "RS256"
	AlgorithmES256 = "ES256"
	AlgorithmEdDSA = "EdDSA"
)

// MinHMACSecretLength is the shortest accepted HMAC secret in bytes.
const MinHMACSecretLength = 32

// KeyConfig describes one key of a keyset as it appears in configuration.
// Symmetric algorithms use Secret; asymmetric ones use PrivateKeyPEM, or
// PublicKeyPEM alone for a verify-only key.
type KeyConfig struct {
	Kid           string `toml:"kid"`
	Alg           string `toml:"alg"`
	Secret        string `toml:"secret"`
	PrivateKeyPEM string `toml:"private_key"`
	PublicKeyPEM  string `toml:"public_key"`
}

// Key is a parsed signing/verification key.
type Key struct {
	Kid string
	Alg string

	method jwt.SigningMethod
	sign   any // nil for verify-only keys
	verify any
}

// NewKey parses a KeyConfig.
func NewKey(cfg KeyConfig) (*Key, error) {
	if cfg.Kid == "" {
		return nil, errors.New("jwtx: key requires a kid")
	}

	method := jwt.GetSigningMethod(cfg.Alg)
	if method == nil || !supported(cfg.Alg) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlg, cfg.Alg)
	}
	k := &Key{Kid: cfg.Kid, Alg: cfg.Alg, method: method}

	if k.Symmetric() {
		if len(cfg.Secret) < MinHMACSecretLength {
			return nil, fmt.Errorf("jwtx: %s secret for kid %q must be at least %d bytes", cfg.Alg, cfg.Kid, MinHMACSecretLength)
		}
		k.sign = []byte(cfg.Secret)
		k.verify = []byte(cfg.Secret)
		return k, nil
	}

	switch {
	case cfg.PrivateKeyPEM != "":
		priv, err := parsePrivateKey([]byte(cfg.PrivateKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("jwtx: kid %q: %w", cfg.Kid, err)
		}
		pub := priv.(crypto.Signer).Public()
		if err := checkKeyType(cfg.Alg, pub); err != nil {
			return nil, fmt.Errorf("jwtx: kid %q: %w", cfg.Kid, err)
		}
		k.sign = priv
		k.verify = pub
	case cfg.PublicKeyPEM != "":
		pub, err := parsePublicKey([]byte(cfg.PublicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("jwtx: kid %q: %w", cfg.Kid, err)
		}
		if err := checkKeyType(cfg.Alg, pub); err != nil {
			return nil, fmt.Errorf("jwtx: kid %q: %w", cfg.Kid, err)
		}
		k.verify = pub
	default:
		return nil, fmt.Errorf("jwtx: kid %q has no key material", cfg.Kid)
	}
	return k, nil
}

// GenerateKey creates an ephemeral key for alg. Tokens signed with it do not
// survive a restart.
func GenerateKey(kid, alg string) (*Key, error) {
	cfg := KeyConfig{Kid: kid, Alg: alg}

	var (
		pemKey []byte
		err    error
	)
	switch alg {
	case AlgorithmHS256, AlgorithmHS384, AlgorithmHS512:
		cfg.Secret, err = cryptox.GenerateToken(cryptox.TokenSize512)
		if err != nil {
			return nil, err
		}
		return NewKey(cfg)
	case AlgorithmRS256:
		pemKey, err = cryptox.GenerateRSAKey(2048)
	case AlgorithmES256:
		pemKey, err = cryptox.GenerateES256Key()
	case AlgorithmEdDSA:
		pemKey, err = cryptox.GenerateEd25519Key()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlg, alg)
	}
	if err != nil {
		return nil, err
	}
	cfg.PrivateKeyPEM = string(pemKey)
	return NewKey(cfg)
}

// NewKID returns a random key id.
func NewKID() string {
	return "key-" + NewJTI()[:12]
}

// Symmetric reports whether the key is an HMAC secret.
func (k *Key) Symmetric() bool {
	switch k.Alg {
	case AlgorithmHS256, AlgorithmHS384, AlgorithmHS512:
		return true
	}
	return false
}

// CanSign reports whether the key holds private material.
func (k *Key) CanSign() bool { return k.sign != nil }

// PublicJWK returns the JWK for asymmetric keys. Symmetric keys are never published.
func (k *Key) PublicJWK() (JWK, bool) {
	switch pub := k.verify.(type) {
	case *rsa.PublicKey:
		return NewRSAJWK(k.Kid, "sig", k.Alg, pub), true
	case *ecdsa.PublicKey:
		return NewES256JWK(k.Kid, "sig", k.Alg, pub), true
	case ed25519.PublicKey:
		return NewEd25519JWK(k.Kid, "sig", k.Alg, pub), true
	}
	return JWK{}, false
}

func supported(alg string) bool {
	switch alg {
	case AlgorithmHS256, AlgorithmHS384, AlgorithmHS512, AlgorithmRS256, AlgorithmES256, AlgorithmEdDSA:
		return true
	}
	return false
}

func checkKeyType(alg string, pub any) error {
	ok := false
	switch alg {
	case AlgorithmRS256:
		_, ok = pub.(*rsa.PublicKey)
	case AlgorithmES256:
		var ec *ecdsa.PublicKey
		ec, ok = pub.(*ecdsa.PublicKey)
		ok = ok && ec.Curve == elliptic.P256()
	case AlgorithmEdDSA:
		_, ok = pub.(ed25519.PublicKey)
	}
	if !ok {
		return fmt.Errorf("%w: key type %T does not match %s", ErrAlgMismatch, pub, alg)
	}
	return nil
}

func parsePrivateKey(data []byte) (any, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("invalid PEM private key")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		return x509.ParsePKCS8PrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unexpected PEM block %q", block.Type)
	}
}

func parsePublicKey(data []byte) (any, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("invalid PEM public key")
	}
	if block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("unexpected PEM block %q", block.Type)
	}
	return x509.ParsePKIXPublicKey(block.Bytes)
}

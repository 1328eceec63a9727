package jwtx

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// KeySet is a named group of keys. The first key that can sign is used for
// signing; every key verifies, which is how rotation works: put the new key
// in front and keep the old one until its tokens have expired.
type KeySet struct {
	name string

	mu    sync.RWMutex
	keys  []*Key
	byKID map[string]*Key
}

// NewKeySet returns a keyset holding keys in order.
func NewKeySet(name string, keys ...*Key) (*KeySet, error) {
	k := &KeySet{name: name, byKID: make(map[string]*Key, len(keys))}
	for _, key := range keys {
		if err := k.Add(key); err != nil {
			return nil, err
		}
	}
	return k, nil
}

// Name returns the keyset's configured name.
func (k *KeySet) Name() string { return k.name }

// Add appends a key.
func (k *KeySet) Add(key *Key) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, dup := k.byKID[key.Kid]; dup {
		return fmt.Errorf("%w: %q in keyset %q", ErrDuplicateKID, key.Kid, k.name)
	}
	k.keys = append(k.keys, key)
	k.byKID[key.Kid] = key
	return nil
}

// Rotate makes key the signing key while keeping older keys for verification.
func (k *KeySet) Rotate(key *Key) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, dup := k.byKID[key.Kid]; dup {
		return fmt.Errorf("%w: %q in keyset %q", ErrDuplicateKID, key.Kid, k.name)
	}
	k.keys = append([]*Key{key}, k.keys...)
	k.byKID[key.Kid] = key
	return nil
}

// Retire removes a key. Tokens signed by it stop verifying.
func (k *KeySet) Retire(kid string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.byKID[kid]; !ok {
		return false
	}
	delete(k.byKID, kid)
	k.keys = slices.DeleteFunc(k.keys, func(key *Key) bool { return key.Kid == kid })
	return true
}

// Signer returns the key used for signing.
func (k *KeySet) Signer() (*Key, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	for _, key := range k.keys {
		if key.CanSign() {
			return key, nil
		}
	}
	return nil, fmt.Errorf("%w in keyset %q", ErrNoKey, k.name)
}

// Get returns the key for kid. An empty kid resolves only when the keyset
// holds exactly one key.
func (k *KeySet) Get(kid string) (*Key, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if kid == "" {
		if len(k.keys) == 1 {
			return k.keys[0], nil
		}
		return nil, fmt.Errorf("%w: token has no kid", ErrUnknownKID)
	}
	if key, ok := k.byKID[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKID, kid)
}

// JWKS returns the public keys of the keyset. Symmetric keys are skipped.
func (k *KeySet) JWKS() JWKS {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := JWKS{Keys: []JWK{}}
	for _, key := range k.keys {
		if j, ok := key.PublicJWK(); ok {
			out.Keys = append(out.Keys, j)
		}
	}
	return out
}

// AddJWK adds a verify-only key published by another issuer.
func (k *KeySet) AddJWK(j JWK) error {
	pub, err := parseJWKToKey(j)
	if err != nil {
		return err
	}
	alg := j.Alg
	if alg == "" {
		return fmt.Errorf("jwtx: JWK %q has no alg", j.Kid)
	}
	if err := checkKeyType(alg, pub); err != nil {
		return err
	}
	return k.Add(&Key{Kid: j.Kid, Alg: alg, method: jwt.GetSigningMethod(alg), verify: pub})
}

// parseJWKToKey converts a JWK into a public key.
// Supports RSA, Ed25519 (OKP), and P-256 (EC).
func parseJWKToKey(j JWK) (any, error) {
	switch j.Kty {
	case "RSA":
		nb, err := base64.RawURLEncoding.DecodeString(j.N)
		if err != nil {
			return nil, err
		}
		eb, err := base64.RawURLEncoding.DecodeString(j.E)
		if err != nil {
			return nil, err
		}
		return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(new(big.Int).SetBytes(eb).Int64())}, nil

	case "OKP":
		if j.Crv != "Ed25519" {
			return nil, errors.New("jwtx: unsupported OKP curve " + j.Crv)
		}
		xb, err := base64.RawURLEncoding.DecodeString(j.X)
		if err != nil {
			return nil, err
		}
		if len(xb) != ed25519.PublicKeySize {
			return nil, errors.New("jwtx: invalid Ed25519 public key size")
		}
		return ed25519.PublicKey(xb), nil

	case "EC":
		if j.Crv != "P-256" {
			return nil, errors.New("jwtx: unsupported EC curve " + j.Crv)
		}
		xb, err := base64.RawURLEncoding.DecodeString(j.X)
		if err != nil {
			return nil, err
		}
		yb, err := base64.RawURLEncoding.DecodeString(j.Y)
		if err != nil {
			return nil, err
		}
		return &ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(xb),
			Y:     new(big.Int).SetBytes(yb),
		}, nil

	default:
		return nil, errors.New("jwtx: unsupported kty " + j.Kty)
	}
}

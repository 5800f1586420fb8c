// Package identity loads the server's long-term Ed25519 signing key and
// its client whitelist from disk. Parsing real GPG/SSH key file formats is
// out of scope here; both files are the minimal raw formats the core
// needs: a 32-byte seed for the identity key, and one hex-encoded public
// key per line for the whitelist.
package identity

import (
	"bufio"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

// LoadKey reads a 32-byte Ed25519 seed from path and expands it to a
// private key. Missing file is returned as an error, not silently
// generated, so a server never starts silently without the identity its
// known-hosts-anchored clients expect.
func LoadKey(path string) (ed25519.PrivateKey, error) {
	seed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: read key file: %w", err)
	}
	seed = []byte(strings.TrimSpace(string(seed)))

	if len(seed) == hex.EncodedLen(ed25519.SeedSize) {
		decoded := make([]byte, ed25519.SeedSize)
		if _, err := hex.Decode(decoded, seed); err != nil {
			return nil, fmt.Errorf("identity: key file is not valid hex: %w", err)
		}
		seed = decoded
	}

	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("identity: key file must contain a %d-byte seed (raw or hex-encoded), got %d bytes", ed25519.SeedSize, len(seed))
	}

	return ed25519.NewKeyFromSeed(seed), nil
}

// GenerateAndSaveKey creates a fresh identity key and writes its seed,
// hex-encoded, to path. Used by the `keygen` subcommand.
func GenerateAndSaveKey(path string) (ed25519.PrivateKey, error) {
	priv, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(priv.Seed())+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("identity: write key file: %w", err)
	}
	return priv, nil
}

// GenerateKey creates a fresh identity key without persisting it, for a
// server run with encryption_disabled and no identity_key_path set.
func GenerateKey() (ed25519.PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	return priv, nil
}

// Whitelist is the set of client public keys a server accepts, loaded
// once at startup from a flat file of hex-encoded keys (one per line,
// '#'-prefixed lines and blank lines ignored).
type Whitelist struct {
	allowed map[string]struct{}
}

// LoadWhitelist reads path into a Whitelist. An empty path yields an
// always-allow whitelist of nil, matching the server's "no whitelist
// configured" behavior.
func LoadWhitelist(path string) (*Whitelist, error) {
	if path == "" {
		return nil, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("identity: read whitelist: %w", err)
	}
	defer f.Close()

	wl := &Whitelist{allowed: make(map[string]struct{})}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key := make([]byte, ed25519.PublicKeySize)
		if _, err := hex.Decode(key, []byte(line)); err != nil {
			return nil, fmt.Errorf("identity: whitelist entry %q is not a valid hex-encoded public key: %w", line, err)
		}
		wl.allowed[strings.ToLower(line)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("identity: scan whitelist: %w", err)
	}
	return wl, nil
}

// Allowed reports whether pub is present in the whitelist.
func (w *Whitelist) Allowed(pub ed25519.PublicKey) bool {
	if w == nil {
		return true
	}
	_, ok := w.allowed[strings.ToLower(hex.EncodeToString(pub))]
	return ok
}

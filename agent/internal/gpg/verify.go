package gpg

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/crypto/openpgp" //nolint:staticcheck // frozen but still the x/crypto OpenPGP implementation
)

const armorPrefix = "-----BEGIN "

// Verifier validates detached signatures with a trusted OpenPGP key ring.
// The key ring is read from disk on every call unless one was supplied
// up front, so a Verifier holds no state between verifications.
type Verifier struct {
	keyPath string
	keyring openpgp.EntityList
}

// New returns a Verifier that trusts the keys in the file at keyPath.
// The file may be armored or binary.
func New(keyPath string) *Verifier {
	return &Verifier{keyPath: keyPath}
}

// NewWithKeyRing returns a Verifier that trusts keyring.
func NewWithKeyRing(keyring openpgp.EntityList) *Verifier {
	return &Verifier{keyring: keyring}
}

// Verify reports whether signature is a valid detached signature over
// payload by a trusted key. A missing, corrupt or foreign signature yields
// false with a nil error; an unreadable key ring is an error.
func (v *Verifier) Verify(payload, signature []byte) (bool, error) {
	keyring, err := v.keys()
	if err != nil {
		return false, err
	}
	if len(bytes.TrimSpace(signature)) == 0 {
		slog.Debug("gpg: no signature supplied")
		return false, nil
	}

	check := openpgp.CheckDetachedSignature
	if isArmored(signature) {
		check = openpgp.CheckArmoredDetachedSignature
	}
	signer, err := check(keyring, bytes.NewReader(payload), bytes.NewReader(signature))
	if err != nil {
		slog.Debug("gpg: signature rejected", "err", err)
		return false, nil
	}
	slog.Debug("gpg: signature verified", "key_id", fmt.Sprintf("%X", signer.PrimaryKey.KeyId))
	return true, nil
}

func (v *Verifier) keys() (openpgp.EntityList, error) {
	if v.keyring != nil {
		return v.keyring, nil
	}
	if v.keyPath == "" {
		return nil, fmt.Errorf("gpg: no key ring configured")
	}
	f, err := os.Open(v.keyPath)
	if err != nil {
		return nil, fmt.Errorf("gpg: open key ring: %w", err)
	}
	defer f.Close()
	return ReadKeyRing(f)
}

// ReadKeyRing parses an armored or binary OpenPGP key ring.
func ReadKeyRing(r io.Reader) (openpgp.EntityList, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gpg: read key ring: %w", err)
	}

	var keyring openpgp.EntityList
	if isArmored(data) {
		keyring, err = openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	} else {
		keyring, err = openpgp.ReadKeyRing(bytes.NewReader(data))
	}
	if err != nil {
		return nil, fmt.Errorf("gpg: parse key ring: %w", err)
	}
	if len(keyring) == 0 {
		return nil, fmt.Errorf("gpg: key ring is empty")
	}
	return keyring, nil
}

func isArmored(b []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(b), []byte(armorPrefix))
}

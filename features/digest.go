package features

import (
	"bytes"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
)

// DigestLength is the size of a feature digest in bytes.
const DigestLength = 32

// Digest is the content hash of a feature definition. It's the only identity used for a feature
// on the wire and in the activation ledgers.
type Digest [DigestLength]byte

// ZeroDigest is never a valid feature, the catalog will always reject it.
var ZeroDigest Digest

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

func (d Digest) Bytes() []byte {
	return d[:]
}

func (d Digest) IsZero() bool {
	return d == ZeroDigest
}

func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseDigest(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDigest parses a hex encoded digest, the 0x prefix is optional.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, errors.Wrapf(err, "invalid feature digest %q", s)
	}
	if len(b) != DigestLength {
		return d, errors.Errorf("invalid feature digest length %d, expected %d bytes", len(b), DigestLength)
	}
	copy(d[:], b)
	return d, nil
}

// DigestFromBytes converts a raw byte slice to a Digest.
func DigestFromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != DigestLength {
		return d, errors.Errorf("invalid feature digest length %d, expected %d bytes", len(b), DigestLength)
	}
	copy(d[:], b)
	return d, nil
}

const (
	kindBuiltin = "builtin"
	kindCustom  = "custom"
)

// canonicalDescription is the RLP encoded preimage of a feature digest. Subjective restrictions
// are left out on purpose, each node is free to pick its own.
type canonicalDescription struct {
	Kind         string
	Codename     string
	Name         string
	Description  string
	Dependencies [][DigestLength]byte
}

func computeDigest(kind, codename, name, description string, deps []Digest) Digest {
	sorted := make([][DigestLength]byte, 0, len(deps))
	for _, dep := range deps {
		sorted = append(sorted, dep)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i][:], sorted[j][:]) < 0
	})
	enc, err := rlp.EncodeToBytes(&canonicalDescription{
		Kind:         kind,
		Codename:     codename,
		Name:         name,
		Description:  description,
		Dependencies: sorted,
	})
	if err != nil {
		// strings and fixed size arrays always encode
		panic(err)
	}
	return Digest(crypto.Keccak256Hash(enc))
}

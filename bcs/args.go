package bcs

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha3"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

// U64Arg encodes v as an entry function argument.
func U64Arg(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// AddressArg encodes addr as an entry function argument.
func AddressArg(addr AccountAddress) []byte {
	return bytes.Clone(addr[:])
}

// DecodeU64Arg decodes an entry function argument of type u64.
func DecodeU64Arg(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("u64 argument must be 8 bytes, got %d", len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}

// DecodeAddressArg decodes an entry function argument of type address.
func DecodeAddressArg(b []byte) (AccountAddress, error) {
	var addr AccountAddress
	if len(b) != AddressLength {
		return addr, fmt.Errorf("address argument must be %d bytes, got %d", AddressLength, len(b))
	}
	copy(addr[:], b)
	return addr, nil
}

// rawTransactionSalt is the domain separator prepended to a RawTransaction
// before signing: sha3-256("APTOS::RawTransaction").
var rawTransactionSalt = sha3.Sum256([]byte("APTOS::RawTransaction"))

// SigningMessage returns the bytes an account signs for tx.
func SigningMessage(tx *RawTransaction) ([]byte, error) {
	body, err := tx.MarshalBCS()
	if err != nil {
		return nil, err
	}
	return append(bytes.Clone(rawTransactionSalt[:]), body...), nil
}

// Ed25519Authenticator encodes the single-key AccountAuthenticator for an
// ed25519 signature.
func Ed25519Authenticator(pub ed25519.PublicKey, sig []byte) ([]byte, error) {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return nil, fmt.Errorf("ed25519 authenticator: bad key or signature size")
	}
	var buf bytes.Buffer
	w := &writer{enc: bin.NewBinEncoder(&buf)}
	w.do(func(e *bin.Encoder) error { return e.WriteUVarInt(0) })
	w.do(func(e *bin.Encoder) error { return e.WriteBytes(pub, true) })
	w.do(func(e *bin.Encoder) error { return e.WriteBytes(sig, true) })
	if w.err != nil {
		return nil, w.err
	}
	return buf.Bytes(), nil
}

// AuthenticationKey derives the single-key ed25519 account address for pub:
// sha3-256(pub || 0x00).
func AuthenticationKey(pub ed25519.PublicKey) AccountAddress {
	return AccountAddress(sha3.Sum256(append(bytes.Clone(pub), 0x00)))
}

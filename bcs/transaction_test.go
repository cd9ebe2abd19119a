package bcs

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleTransaction(t *testing.T) *RawTransaction {
	t.Helper()
	coin, err := NewStructTypeTag("0x1::aptos_coin::AptosCoin")
	require.NoError(t, err)
	return &RawTransaction{
		Sender:                  MustParseAddress("0xa11ce"),
		SequenceNumber:          7,
		Payload:                 CoinTransfer(coin, MustParseAddress("0xb0b"), 100_000_000),
		MaxGasAmount:            2000,
		GasUnitPrice:            100,
		ExpirationTimestampSecs: 1_700_000_600,
		ChainID:                 126,
	}
}

func TestRawTransactionRoundTrip(t *testing.T) {
	tx := sampleTransaction(t)

	data, err := tx.MarshalBCS()
	require.NoError(t, err)

	got, err := DecodeRawTransaction(data)
	require.NoError(t, err)
	require.Equal(t, tx.Sender, got.Sender)
	require.Equal(t, uint64(7), got.SequenceNumber)
	require.Equal(t, uint64(1_700_000_600), got.ExpirationTimestampSecs)
	require.Equal(t, uint8(126), got.ChainID)

	f, ok := got.Payload.EntryFunctionCall()
	require.True(t, ok)
	require.Equal(t, "0x1::coin::transfer", f.FunctionID())
	require.Len(t, f.TypeArgs, 1)
	require.Equal(t, "0x1::aptos_coin::AptosCoin", f.TypeArgs[0].String())
	require.Len(t, f.Args, 2)

	recipient, err := DecodeAddressArg(f.Args[0])
	require.NoError(t, err)
	require.Equal(t, MustParseAddress("0xb0b"), recipient)

	amount, err := DecodeU64Arg(f.Args[1])
	require.NoError(t, err)
	require.Equal(t, uint64(100_000_000), amount)
}

func TestDecodeRawTransactionLayout(t *testing.T) {
	data, err := sampleTransaction(t).MarshalBCS()
	require.NoError(t, err)

	// sender(32) + seq(8) + variant(1) + module address(32) + "coin"(1+4)
	require.Equal(t, byte(0x02), data[40], "entry function variant")
	require.Equal(t, byte(4), data[73], "module name length prefix")
	require.Equal(t, "coin", string(data[74:78]))
	require.Equal(t, byte(126), data[len(data)-1], "chain id is the final byte")
}

func TestDecodeRawTransactionToleratesTrailingBytes(t *testing.T) {
	data, err := sampleTransaction(t).MarshalBCS()
	require.NoError(t, err)

	withFeePayer := append(bytes.Clone(data), bytes.Repeat([]byte{0xee}, 33)...)
	got, err := DecodeRawTransaction(withFeePayer)
	require.NoError(t, err)
	require.Equal(t, uint8(126), got.ChainID)
}

func TestDecodeRawTransactionTruncated(t *testing.T) {
	data, err := sampleTransaction(t).MarshalBCS()
	require.NoError(t, err)

	for _, n := range []int{0, 10, 32, 41, 80, len(data) - 1} {
		_, err := DecodeRawTransaction(data[:n])
		require.Error(t, err, "prefix of %d bytes", n)
	}
}

func TestDecodeRawTransactionRejectsHugeLengths(t *testing.T) {
	data := make([]byte, 0, 64)
	data = append(data, make([]byte, 32)...)               // sender
	data = append(data, make([]byte, 8)...)                // sequence number
	data = append(data, 0x02)                              // entry function
	data = append(data, make([]byte, 32)...)               // module address
	data = append(data, 0xff, 0xff, 0xff, 0xff, 0x07, 'a') // module name length 2^31-1

	_, err := DecodeRawTransaction(data)
	require.Error(t, err)
}

func TestDecodeRawTransactionUnknownPayload(t *testing.T) {
	data := append(make([]byte, 40), 0x09)
	_, err := DecodeRawTransaction(data)
	require.ErrorContains(t, err, "unsupported payload variant 9")
}

func TestDecodeScriptPayload(t *testing.T) {
	var b bytes.Buffer
	b.Write(make([]byte, 32))         // sender
	b.Write(U64Arg(1))                // sequence number
	b.WriteByte(0x00)                 // script
	b.Write([]byte{0x02, 0xca, 0xfe}) // code
	b.WriteByte(0x00)                 // no type args
	b.WriteByte(0x02)                 // two args
	b.WriteByte(0x01)                 // u64
	b.Write(U64Arg(42))
	b.WriteByte(0x04) // vector<u8>
	b.Write([]byte{0x01, 0x7f})
	b.Write(U64Arg(10))   // max gas
	b.Write(U64Arg(1))    // gas price
	b.Write(U64Arg(1000)) // expiration
	b.WriteByte(0x02)     // chain id

	tx, err := DecodeRawTransaction(b.Bytes())
	require.NoError(t, err)
	require.Equal(t, PayloadScript, tx.Payload.Kind)
	require.Len(t, tx.Payload.Script.Args, 2)
	require.Equal(t, []byte{0x7f}, tx.Payload.Script.Args[1].Value)
	_, ok := tx.Payload.EntryFunctionCall()
	require.False(t, ok)
	require.Equal(t, uint64(1000), tx.ExpirationTimestampSecs)
}

func TestDecodeMultisigPayload(t *testing.T) {
	inner, err := (&RawTransaction{Payload: AptosAccountTransfer(MustParseAddress("0xb0b"), 5)}).MarshalBCS()
	require.NoError(t, err)
	// Skip sender(32), sequence(8) and the payload variant byte.
	entryFunction := inner[41 : len(inner)-25]

	var b bytes.Buffer
	b.Write(make([]byte, 40))
	b.WriteByte(0x03)                           // multisig
	b.Write(MustParseAddress("0xcafe").Bytes()) // multisig account
	b.WriteByte(0x01)                           // Some
	b.WriteByte(0x00)                           // MultisigTransactionPayload::EntryFunction
	b.Write(entryFunction)
	b.Write(make([]byte, 24))
	b.WriteByte(0x01)

	tx, err := DecodeRawTransaction(b.Bytes())
	require.NoError(t, err)
	f, ok := tx.Payload.EntryFunctionCall()
	require.True(t, ok)
	require.Equal(t, "0x1::aptos_account::transfer", f.FunctionID())
}

func TestMarshalRejectsNonEntryFunction(t *testing.T) {
	_, err := (&RawTransaction{Payload: TransactionPayload{Kind: PayloadScript}}).MarshalBCS()
	require.Error(t, err)
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("0x1")
	require.NoError(t, err)
	require.Equal(t, "0x"+strings.Repeat("0", 63)+"1", addr.String())
	require.Equal(t, "0x1", addr.ShortString())

	long := "0x" + strings.Repeat("ab", 32)
	addr, err = ParseAddress(strings.ToUpper(long[2:]))
	require.NoError(t, err)
	require.Equal(t, long, addr.String())
	require.Equal(t, long, addr.ShortString())

	for _, bad := range []string{"", "0x", "0xzz", "0x" + strings.Repeat("1", 65)} {
		_, err := ParseAddress(bad)
		require.Error(t, err, bad)
	}

	require.Equal(t, NormalizeAddress("0xB0B"), NormalizeAddress("0x0000000000000000000000000000000000000000000000000000000000000b0b"))
}

func TestNewStructTypeTag(t *testing.T) {
	tag, err := NewStructTypeTag("0x0001::aptos_coin::AptosCoin")
	require.NoError(t, err)
	require.Equal(t, "0x1::aptos_coin::AptosCoin", tag.String())

	for _, bad := range []string{"aptos_coin::AptosCoin", "0x1::coin::Coin<T>", "0x1::::X", "nothex::a::B"} {
		_, err := NewStructTypeTag(bad)
		require.Error(t, err, bad)
	}
}

func TestNestedTypeTagRoundTrip(t *testing.T) {
	coin, err := NewStructTypeTag("0x1::aptos_coin::AptosCoin")
	require.NoError(t, err)
	vec := TypeTag{Kind: TypeTagVector, Elem: &TypeTag{Kind: TypeTagU8}}
	coin.Struct.TypeArgs = []TypeTag{vec}

	tx := &RawTransaction{Payload: CoinTransfer(coin, MustParseAddress("0x2"), 1)}
	data, err := tx.MarshalBCS()
	require.NoError(t, err)

	got, err := DecodeRawTransaction(data)
	require.NoError(t, err)
	require.Equal(t, "0x1::aptos_coin::AptosCoin<vector<u8>>", got.Payload.EntryFunction.TypeArgs[0].String())
}

func TestSigningMessageAndAuthenticator(t *testing.T) {
	tx := sampleTransaction(t)
	msg, err := SigningMessage(tx)
	require.NoError(t, err)
	require.Equal(t, "b5e97db07fa0bd0e5598aa3643a9bc6f6693bddc1a9fec9e674a461eaa00b193", hex.EncodeToString(msg[:32]))

	seed := bytes.Repeat([]byte{1}, ed25519.SeedSize)
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	sig := ed25519.Sign(priv, msg)

	auth, err := Ed25519Authenticator(pub, sig)
	require.NoError(t, err)
	require.Len(t, auth, 1+1+32+1+64)
	require.Equal(t, byte(0x00), auth[0])
	require.Equal(t, byte(32), auth[1])
	require.Equal(t, []byte(pub), auth[2:34])
	require.Equal(t, byte(64), auth[34])

	_, err = Ed25519Authenticator(pub[:10], sig)
	require.Error(t, err)

	require.NotEqual(t, AccountAddress{}, AuthenticationKey(pub))
}

func FuzzDecodeRawTransaction(f *testing.F) {
	tx := &RawTransaction{
		Sender:                  MustParseAddress("0xa11ce"),
		SequenceNumber:          7,
		Payload:                 AptosAccountTransfer(MustParseAddress("0xb0b"), 100_000_000),
		MaxGasAmount:            2000,
		GasUnitPrice:            100,
		ExpirationTimestampSecs: 1_700_000_600,
		ChainID:                 126,
	}
	valid, err := tx.MarshalBCS()
	require.NoError(f, err)

	f.Add(valid)
	f.Add(valid[:len(valid)/2])
	f.Add(append(bytes.Clone(valid), 0x00, 0x01))
	f.Add([]byte{})
	f.Add(bytes.Repeat([]byte{0xff}, 64))

	f.Fuzz(func(t *testing.T, data []byte) {
		got, err := DecodeRawTransaction(data)
		if err == nil && got == nil {
			t.Fatal("nil transaction without an error")
		}
	})
}

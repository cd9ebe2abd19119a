package bcs

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	bin "github.com/gagliardetto/binary"
)

// PayloadKind is the BCS variant index of a TransactionPayload.
type PayloadKind uint64

const (
	PayloadScript PayloadKind = iota
	PayloadModuleBundle
	PayloadEntryFunction
	PayloadMultisig
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadScript:
		return "script"
	case PayloadModuleBundle:
		return "module_bundle"
	case PayloadEntryFunction:
		return "entry_function"
	case PayloadMultisig:
		return "multisig"
	}
	return fmt.Sprintf("payload(%d)", uint64(k))
}

// RawTransaction is the unsigned Move transaction that an account signs.
type RawTransaction struct {
	Sender                  AccountAddress
	SequenceNumber          uint64
	Payload                 TransactionPayload
	MaxGasAmount            uint64
	GasUnitPrice            uint64
	ExpirationTimestampSecs uint64
	ChainID                 uint8
}

// TransactionPayload holds exactly one of its variant fields, selected by Kind.
type TransactionPayload struct {
	Kind PayloadKind

	EntryFunction *EntryFunction
	Script        *Script
	Multisig      *Multisig
	Modules       [][]byte
}

// EntryFunctionCall returns the entry function executed by the payload, if any.
// For multisig payloads this is the function run on behalf of the multisig account.
func (p TransactionPayload) EntryFunctionCall() (*EntryFunction, bool) {
	switch p.Kind {
	case PayloadEntryFunction:
		return p.EntryFunction, p.EntryFunction != nil
	case PayloadMultisig:
		if p.Multisig != nil && p.Multisig.EntryFunction != nil {
			return p.Multisig.EntryFunction, true
		}
	}
	return nil, false
}

// ModuleID identifies a published Move module.
type ModuleID struct {
	Address AccountAddress
	Name    string
}

func (m ModuleID) String() string {
	return m.Address.ShortString() + "::" + m.Name
}

// EntryFunction is a call to a public entry function. Args are the individual
// BCS-encoded arguments in declaration order.
type EntryFunction struct {
	Module   ModuleID
	Function string
	TypeArgs []TypeTag
	Args     [][]byte
}

// FunctionID returns "0xADDR::module::function" with the framework address in short form.
func (f EntryFunction) FunctionID() string {
	return f.Module.String() + "::" + f.Function
}

// Script is a transaction script payload. Arguments are kept as raw
// TransactionArgument variants.
type Script struct {
	Code     []byte
	TypeArgs []TypeTag
	Args     []ScriptArgument
}

// ScriptArgument is one TransactionArgument. Value holds its BCS encoding
// without the variant prefix.
type ScriptArgument struct {
	Variant uint64
	Value   []byte
}

// Multisig executes a payload on behalf of a multisig account.
type Multisig struct {
	Address       AccountAddress
	EntryFunction *EntryFunction
}

// DecodeRawTransaction decodes a BCS RawTransaction. Bytes following the
// chain id (for example a fee payer address) are ignored.
func DecodeRawTransaction(data []byte) (*RawTransaction, error) {
	d := &decoder{bin.NewBinDecoder(data)}
	tx := &RawTransaction{}

	var err error
	if tx.Sender, err = d.address(); err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}
	if tx.SequenceNumber, err = d.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("sequence number: %w", err)
	}
	if tx.Payload, err = d.payload(); err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	if tx.MaxGasAmount, err = d.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("max gas amount: %w", err)
	}
	if tx.GasUnitPrice, err = d.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("gas unit price: %w", err)
	}
	if tx.ExpirationTimestampSecs, err = d.ReadUint64(bin.LE); err != nil {
		return nil, fmt.Errorf("expiration timestamp: %w", err)
	}
	if tx.ChainID, err = d.ReadByte(); err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	return tx, nil
}

type decoder struct {
	*bin.Decoder
}

func (d *decoder) address() (AccountAddress, error) {
	var addr AccountAddress
	b, err := d.ReadNBytes(AddressLength)
	if err != nil {
		return addr, fmt.Errorf("address: %w", err)
	}
	copy(addr[:], b)
	return addr, nil
}

// length reads a ULEB128 vector length. Every element takes at least one
// byte, so a length beyond the remaining input is rejected up front.
func (d *decoder) length(what string) (int, error) {
	n, err := d.ReadLength()
	if err != nil {
		return 0, fmt.Errorf("%s length: %w", what, err)
	}
	if n > d.Remaining() {
		return 0, fmt.Errorf("%s length %d exceeds remaining %d bytes", what, n, d.Remaining())
	}
	return n, nil
}

func (d *decoder) bytes(what string) ([]byte, error) {
	b, err := d.ReadByteSlice()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return bytes.Clone(b), nil
}

func (d *decoder) identifier(what string) (string, error) {
	b, err := d.ReadByteSlice()
	if err != nil {
		return "", fmt.Errorf("%s: %w", what, err)
	}
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%s: invalid UTF-8", what)
	}
	return string(b), nil
}

func (d *decoder) payload() (TransactionPayload, error) {
	variant, err := d.ReadUvarint64()
	if err != nil {
		return TransactionPayload{}, fmt.Errorf("variant: %w", err)
	}

	p := TransactionPayload{Kind: PayloadKind(variant)}
	switch p.Kind {
	case PayloadScript:
		p.Script, err = d.script()
	case PayloadModuleBundle:
		p.Modules, err = d.byteVectors("modules")
	case PayloadEntryFunction:
		p.EntryFunction, err = d.entryFunction()
	case PayloadMultisig:
		p.Multisig, err = d.multisig()
	default:
		err = fmt.Errorf("unsupported payload variant %d", variant)
	}
	return p, err
}

func (d *decoder) entryFunction() (*EntryFunction, error) {
	f := &EntryFunction{}
	var err error
	if f.Module.Address, err = d.address(); err != nil {
		return nil, fmt.Errorf("module %w", err)
	}
	if f.Module.Name, err = d.identifier("module name"); err != nil {
		return nil, err
	}
	if f.Function, err = d.identifier("function name"); err != nil {
		return nil, err
	}
	if f.TypeArgs, err = d.typeTags(0); err != nil {
		return nil, err
	}
	if f.Args, err = d.byteVectors("arguments"); err != nil {
		return nil, err
	}
	return f, nil
}

func (d *decoder) byteVectors(what string) ([][]byte, error) {
	n, err := d.length(what)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		b, err := d.bytes(fmt.Sprintf("%s[%d]", what, i))
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (d *decoder) script() (*Script, error) {
	s := &Script{}
	var err error
	if s.Code, err = d.bytes("script code"); err != nil {
		return nil, err
	}
	if s.TypeArgs, err = d.typeTags(0); err != nil {
		return nil, err
	}
	n, err := d.length("script arguments")
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		arg, err := d.scriptArgument()
		if err != nil {
			return nil, fmt.Errorf("script argument %d: %w", i, err)
		}
		s.Args = append(s.Args, arg)
	}
	return s, nil
}

// scriptArgumentSizes maps fixed-width TransactionArgument variants to their size.
var scriptArgumentSizes = map[uint64]int{
	0: 1,  // u8
	1: 8,  // u64
	2: 16, // u128
	3: AddressLength,
	5: 1,  // bool
	6: 2,  // u16
	7: 4,  // u32
	8: 32, // u256
}

func (d *decoder) scriptArgument() (ScriptArgument, error) {
	variant, err := d.ReadUvarint64()
	if err != nil {
		return ScriptArgument{}, fmt.Errorf("variant: %w", err)
	}
	if size, ok := scriptArgumentSizes[variant]; ok {
		b, err := d.ReadNBytes(size)
		if err != nil {
			return ScriptArgument{}, err
		}
		return ScriptArgument{Variant: variant, Value: bytes.Clone(b)}, nil
	}
	switch variant {
	case 4, 9: // vector<u8>, serialized
		b, err := d.bytes("argument")
		if err != nil {
			return ScriptArgument{}, err
		}
		return ScriptArgument{Variant: variant, Value: b}, nil
	}
	return ScriptArgument{}, fmt.Errorf("unknown argument variant %d", variant)
}

func (d *decoder) multisig() (*Multisig, error) {
	m := &Multisig{}
	var err error
	if m.Address, err = d.address(); err != nil {
		return nil, fmt.Errorf("multisig %w", err)
	}
	present, err := d.ReadBool()
	if err != nil {
		return nil, fmt.Errorf("multisig payload option: %w", err)
	}
	if !present {
		return m, nil
	}
	variant, err := d.ReadUvarint64()
	if err != nil {
		return nil, fmt.Errorf("multisig payload variant: %w", err)
	}
	if variant != 0 {
		return nil, fmt.Errorf("unsupported multisig payload variant %d", variant)
	}
	if m.EntryFunction, err = d.entryFunction(); err != nil {
		return nil, err
	}
	return m, nil
}

// MarshalBCS encodes the transaction. Only entry function payloads can be encoded.
func (tx *RawTransaction) MarshalBCS() ([]byte, error) {
	f, ok := tx.Payload.EntryFunctionCall()
	if !ok || tx.Payload.Kind != PayloadEntryFunction {
		return nil, fmt.Errorf("cannot encode %s payload", tx.Payload.Kind)
	}

	var buf bytes.Buffer
	w := &writer{enc: bin.NewBinEncoder(&buf)}

	w.raw(tx.Sender[:])
	w.do(func(e *bin.Encoder) error { return e.WriteUint64(tx.SequenceNumber, bin.LE) })
	w.do(func(e *bin.Encoder) error { return e.WriteUVarInt(int(PayloadEntryFunction)) })
	w.raw(f.Module.Address[:])
	w.do(func(e *bin.Encoder) error { return e.WriteString(f.Module.Name) })
	w.do(func(e *bin.Encoder) error { return e.WriteString(f.Function) })
	w.do(func(e *bin.Encoder) error { return writeTypeTags(e, f.TypeArgs) })
	w.do(func(e *bin.Encoder) error { return e.WriteUVarInt(len(f.Args)) })
	for _, arg := range f.Args {
		w.do(func(e *bin.Encoder) error { return e.WriteBytes(arg, true) })
	}
	w.do(func(e *bin.Encoder) error { return e.WriteUint64(tx.MaxGasAmount, bin.LE) })
	w.do(func(e *bin.Encoder) error { return e.WriteUint64(tx.GasUnitPrice, bin.LE) })
	w.do(func(e *bin.Encoder) error { return e.WriteUint64(tx.ExpirationTimestampSecs, bin.LE) })
	w.do(func(e *bin.Encoder) error { return e.WriteByte(tx.ChainID) })

	if w.err != nil {
		return nil, w.err
	}
	return buf.Bytes(), nil
}

// writer stops at the first encoder error.
type writer struct {
	enc *bin.Encoder
	err error
}

func (w *writer) do(fn func(*bin.Encoder) error) {
	if w.err == nil {
		w.err = fn(w.enc)
	}
}

func (w *writer) raw(b []byte) {
	w.do(func(e *bin.Encoder) error { return e.WriteBytes(b, false) })
}

package bcs

import (
	"fmt"
	"strings"

	bin "github.com/gagliardetto/binary"
)

// TypeTagKind is the BCS variant index of a TypeTag.
type TypeTagKind uint64

const (
	TypeTagBool TypeTagKind = iota
	TypeTagU8
	TypeTagU64
	TypeTagU128
	TypeTagAddress
	TypeTagSigner
	TypeTagVector
	TypeTagStruct
	TypeTagU16
	TypeTagU32
	TypeTagU256
)

const maxTypeTagDepth = 16

// TypeTag is a Move type argument.
type TypeTag struct {
	Kind TypeTagKind
	// Elem is set for TypeTagVector.
	Elem *TypeTag
	// Struct is set for TypeTagStruct.
	Struct *StructTag
}

// StructTag names a Move struct type, e.g. 0x1::aptos_coin::AptosCoin.
type StructTag struct {
	Address  AccountAddress
	Module   string
	Name     string
	TypeArgs []TypeTag
}

var primitiveNames = map[TypeTagKind]string{
	TypeTagBool:    "bool",
	TypeTagU8:      "u8",
	TypeTagU16:     "u16",
	TypeTagU32:     "u32",
	TypeTagU64:     "u64",
	TypeTagU128:    "u128",
	TypeTagU256:    "u256",
	TypeTagAddress: "address",
	TypeTagSigner:  "signer",
}

func (t TypeTag) String() string {
	switch t.Kind {
	case TypeTagVector:
		if t.Elem == nil {
			return "vector<?>"
		}
		return "vector<" + t.Elem.String() + ">"
	case TypeTagStruct:
		if t.Struct == nil {
			return "?"
		}
		return t.Struct.String()
	}
	if name, ok := primitiveNames[t.Kind]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", t.Kind)
}

func (s StructTag) String() string {
	var b strings.Builder
	b.WriteString(s.Address.ShortString())
	b.WriteString("::")
	b.WriteString(s.Module)
	b.WriteString("::")
	b.WriteString(s.Name)
	if len(s.TypeArgs) > 0 {
		args := make([]string, len(s.TypeArgs))
		for i, a := range s.TypeArgs {
			args[i] = a.String()
		}
		b.WriteString("<" + strings.Join(args, ", ") + ">")
	}
	return b.String()
}

// NewStructTypeTag parses "0xADDR::module::Name" into a struct TypeTag.
// Generic parameters are not supported.
func NewStructTypeTag(s string) (TypeTag, error) {
	parts := strings.Split(strings.TrimSpace(s), "::")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" || strings.ContainsAny(parts[2], "<>") {
		return TypeTag{}, fmt.Errorf("invalid struct tag %q", s)
	}
	addr, err := ParseAddress(parts[0])
	if err != nil {
		return TypeTag{}, fmt.Errorf("invalid struct tag %q: %w", s, err)
	}
	return TypeTag{Kind: TypeTagStruct, Struct: &StructTag{Address: addr, Module: parts[1], Name: parts[2]}}, nil
}

func (d *decoder) typeTags(depth int) ([]TypeTag, error) {
	n, err := d.length("type arguments")
	if err != nil {
		return nil, err
	}
	tags := make([]TypeTag, 0, n)
	for i := 0; i < n; i++ {
		tag, err := d.typeTag(depth)
		if err != nil {
			return nil, fmt.Errorf("type argument %d: %w", i, err)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func (d *decoder) typeTag(depth int) (TypeTag, error) {
	if depth > maxTypeTagDepth {
		return TypeTag{}, fmt.Errorf("type tag nested deeper than %d", maxTypeTagDepth)
	}
	variant, err := d.ReadUvarint64()
	if err != nil {
		return TypeTag{}, fmt.Errorf("type tag variant: %w", err)
	}

	tag := TypeTag{Kind: TypeTagKind(variant)}
	switch tag.Kind {
	case TypeTagVector:
		elem, err := d.typeTag(depth + 1)
		if err != nil {
			return TypeTag{}, err
		}
		tag.Elem = &elem
	case TypeTagStruct:
		st := &StructTag{}
		if st.Address, err = d.address(); err != nil {
			return TypeTag{}, err
		}
		if st.Module, err = d.identifier("struct module"); err != nil {
			return TypeTag{}, err
		}
		if st.Name, err = d.identifier("struct name"); err != nil {
			return TypeTag{}, err
		}
		if st.TypeArgs, err = d.typeTags(depth + 1); err != nil {
			return TypeTag{}, err
		}
		tag.Struct = st
	default:
		if _, ok := primitiveNames[tag.Kind]; !ok {
			return TypeTag{}, fmt.Errorf("unknown type tag variant %d", variant)
		}
	}
	return tag, nil
}

func writeTypeTag(enc *bin.Encoder, t TypeTag) error {
	if err := enc.WriteUVarInt(int(t.Kind)); err != nil {
		return err
	}
	switch t.Kind {
	case TypeTagVector:
		if t.Elem == nil {
			return fmt.Errorf("vector type tag without element")
		}
		return writeTypeTag(enc, *t.Elem)
	case TypeTagStruct:
		if t.Struct == nil {
			return fmt.Errorf("struct type tag without struct")
		}
		if err := enc.WriteBytes(t.Struct.Address[:], false); err != nil {
			return err
		}
		if err := enc.WriteString(t.Struct.Module); err != nil {
			return err
		}
		if err := enc.WriteString(t.Struct.Name); err != nil {
			return err
		}
		return writeTypeTags(enc, t.Struct.TypeArgs)
	}
	return nil
}

func writeTypeTags(enc *bin.Encoder, tags []TypeTag) error {
	if err := enc.WriteUVarInt(len(tags)); err != nil {
		return err
	}
	for _, t := range tags {
		if err := writeTypeTag(enc, t); err != nil {
			return err
		}
	}
	return nil
}

package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is the semantic type tag attached to declarations, expressions and IR
// variables. Values are immutable once built.
type Type interface {
	String() string
	isType()
}

// Elementary is a value type named by a Solidity keyword: uintN, intN,
// address, address payable, bool, string, bytes, bytesN.
type Elementary struct {
	Name    string
	Payable bool
}

// Array is a fixed (Length >= 0) or dynamic (Length < 0) array.
type Array struct {
	Elem   Type
	Length int
}

// Mapping is a storage mapping from Key to Value.
type Mapping struct {
	Key   Type
	Value Type
}

// UserDefinedKind tells what a UserDefined type refers to.
type UserDefinedKind string

const (
	KindStruct    UserDefinedKind = "struct"
	KindContract  UserDefinedKind = "contract"
	KindEnum      UserDefinedKind = "enum"
	KindInterface UserDefinedKind = "interface"
	KindLibrary   UserDefinedKind = "library"
)

// UserDefined is a struct, enum or contract type referenced by name.
// Name may be qualified by its declaring contract (e.g. "Bank.Account").
type UserDefined struct {
	Kind UserDefinedKind
	Name string
}

// Function is a function pointer type.
type Function struct {
	Params     []Type
	Returns    []Type
	Visibility string // "internal" or "external"
}

// Tuple groups the results of a multi-value call or tuple expression.
type Tuple struct {
	Elems []Type
}

func (*Elementary) isType()  {}
func (*Array) isType()       {}
func (*Mapping) isType()     {}
func (*UserDefined) isType() {}
func (*Function) isType()    {}
func (*Tuple) isType()       {}

func (e *Elementary) String() string {
	if e.Payable {
		return e.Name + " payable"
	}
	return e.Name
}

func (a *Array) String() string {
	if a.Length < 0 {
		return fmt.Sprintf("%s[]", a.Elem)
	}
	return fmt.Sprintf("%s[%d]", a.Elem, a.Length)
}

func (m *Mapping) String() string {
	return fmt.Sprintf("mapping(%s => %s)", m.Key, m.Value)
}

func (u *UserDefined) String() string { return u.Name }

func (f *Function) String() string {
	var b strings.Builder
	b.WriteString("function(")
	b.WriteString(joinTypes(f.Params))
	b.WriteString(")")
	if f.Visibility != "" {
		b.WriteString(" " + f.Visibility)
	}
	if len(f.Returns) > 0 {
		b.WriteString(" returns(" + joinTypes(f.Returns) + ")")
	}
	return b.String()
}

func (t *Tuple) String() string {
	return "tuple(" + joinTypes(t.Elems) + ")"
}

func joinTypes(ts []Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		if t == nil {
			parts[i] = ""
			continue
		}
		parts[i] = t.String()
	}
	return strings.Join(parts, ",")
}

// Common elementary types.
var (
	Uint256 = &Elementary{Name: "uint256"}
	Int256  = &Elementary{Name: "int256"}
	Bool    = &Elementary{Name: "bool"}
	Address = &Elementary{Name: "address"}
	String  = &Elementary{Name: "string"}
	Bytes   = &Elementary{Name: "bytes"}
	Bytes32 = &Elementary{Name: "bytes32"}
)

// elementaryNames holds the fixed elementary keywords; uintN/intN/bytesN
// are recognised by IsElementaryName.
var elementaryNames = map[string]bool{
	"address": true,
	"bool":    true,
	"string":  true,
	"bytes":   true,
	"byte":    true,
	"uint":    true,
	"int":     true,
	"fixed":   true,
	"ufixed":  true,
}

// IsElementaryName reports whether name is a Solidity elementary type keyword.
func IsElementaryName(name string) bool {
	if elementaryNames[name] {
		return true
	}
	for _, prefix := range []string{"uint", "int", "bytes"} {
		if rest, ok := strings.CutPrefix(name, prefix); ok && rest != "" {
			n, err := strconv.Atoi(rest)
			if err != nil {
				return false
			}
			if prefix == "bytes" {
				return n >= 1 && n <= 32
			}
			return n >= 8 && n <= 256 && n%8 == 0
		}
	}
	return false
}

// NewElementary returns the elementary type for name, normalising the
// "uint", "int" and "byte" aliases.
func NewElementary(name string) *Elementary {
	switch name {
	case "uint":
		name = "uint256"
	case "int":
		name = "int256"
	case "byte":
		name = "bytes1"
	}
	return &Elementary{Name: name}
}

// IsBool reports whether t is the bool type.
func IsBool(t Type) bool {
	e, ok := t.(*Elementary)
	return ok && e.Name == "bool"
}

// IsAddress reports whether t is address or address payable.
func IsAddress(t Type) bool {
	e, ok := t.(*Elementary)
	return ok && e.Name == "address"
}

// IsInteger reports whether t is a signed or unsigned integer type.
func IsInteger(t Type) bool {
	e, ok := t.(*Elementary)
	if !ok {
		return false
	}
	return strings.HasPrefix(e.Name, "uint") || strings.HasPrefix(e.Name, "int")
}

// IsContract reports whether t refers to a contract, interface or library.
func IsContract(t Type) bool {
	u, ok := t.(*UserDefined)
	if !ok {
		return false
	}
	return u.Kind == KindContract || u.Kind == KindInterface || u.Kind == KindLibrary
}

// IsStruct reports whether t refers to a struct.
func IsStruct(t Type) bool {
	u, ok := t.(*UserDefined)
	return ok && u.Kind == KindStruct
}

// IsIndexable reports whether values of t can be indexed with [].
func IsIndexable(t Type) bool {
	switch v := t.(type) {
	case *Array, *Mapping:
		return true
	case *Elementary:
		return v.Name == "bytes" || strings.HasPrefix(v.Name, "bytes")
	}
	return false
}

// IsDynamicArray reports whether t is a dynamically sized array or bytes.
func IsDynamicArray(t Type) bool {
	switch v := t.(type) {
	case *Array:
		return v.Length < 0
	case *Elementary:
		return v.Name == "bytes"
	}
	return false
}

// ElemType returns the element type produced by indexing t, or nil.
func ElemType(t Type) Type {
	switch v := t.(type) {
	case *Array:
		return v.Elem
	case *Mapping:
		return v.Value
	case *Elementary:
		if strings.HasPrefix(v.Name, "bytes") {
			return NewElementary("bytes1")
		}
	}
	return nil
}

// Equal reports structural equality of two types. A nil type only equals nil.
func Equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.String() == b.String()
}

// ABIName returns the canonical ABI spelling of t used in function
// signatures: contracts become address, enums uint8, structs tuples.
func ABIName(t Type) string {
	switch v := t.(type) {
	case nil:
		return ""
	case *Elementary:
		return v.Name
	case *Array:
		if v.Length < 0 {
			return ABIName(v.Elem) + "[]"
		}
		return fmt.Sprintf("%s[%d]", ABIName(v.Elem), v.Length)
	case *UserDefined:
		switch v.Kind {
		case KindEnum:
			return "uint8"
		case KindStruct:
			return v.Name
		default:
			return "address"
		}
	case *Function:
		return "function"
	case *Tuple:
		parts := make([]string, len(v.Elems))
		for i, e := range v.Elems {
			parts[i] = ABIName(e)
		}
		return "(" + strings.Join(parts, ",") + ")"
	default:
		return t.String()
	}
}

package grammar

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"

	"smartfast/internal/types"
)

var typeParser = participle.MustBuild[TypeExpr](
	participle.Lexer(TypeLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// ParseType parses a solc-style type string into a semantic type. Data
// location suffixes ("storage ref", "memory") are accepted and dropped.
func ParseType(s string) (types.Type, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty type string")
	}
	expr, err := typeParser.ParseString("", s)
	if err != nil {
		return nil, fmt.Errorf("invalid type %q: %w", s, err)
	}
	return expr.toType()
}

// MustParseType is ParseType for literals known to be valid.
func MustParseType(s string) types.Type {
	t, err := ParseType(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (e *TypeExpr) toType() (types.Type, error) {
	t, err := e.Base.toType()
	if err != nil {
		return nil, err
	}
	for _, d := range e.Dims {
		length := -1
		if d.Length != nil {
			length = *d.Length
		}
		t = &types.Array{Elem: t, Length: length}
	}
	return t, nil
}

func (b *BaseType) toType() (types.Type, error) {
	switch {
	case b.Mapping != nil:
		key, err := b.Mapping.Key.toType()
		if err != nil {
			return nil, err
		}
		value, err := b.Mapping.Value.toType()
		if err != nil {
			return nil, err
		}
		return &types.Mapping{Key: key, Value: value}, nil

	case b.Function != nil:
		params, err := toTypes(b.Function.Params)
		if err != nil {
			return nil, err
		}
		returns, err := toTypes(b.Function.Returns)
		if err != nil {
			return nil, err
		}
		visibility := "internal"
		for _, m := range b.Function.Modifiers {
			if m == "external" {
				visibility = "external"
			}
		}
		return &types.Function{Params: params, Returns: returns, Visibility: visibility}, nil

	case b.User != nil:
		return &types.UserDefined{
			Kind: types.UserDefinedKind(b.User.Kind),
			Name: strings.Join(b.User.Path, "."),
		}, nil

	case b.Tuple != nil:
		elems, err := toTypes(b.Tuple.Elems)
		if err != nil {
			return nil, err
		}
		return &types.Tuple{Elems: elems}, nil
	}

	if !types.IsElementaryName(b.Name) {
		return nil, fmt.Errorf("unknown elementary type %q", b.Name)
	}
	if b.Payable && b.Name != "address" {
		return nil, fmt.Errorf("only address can be payable, got %q", b.Name)
	}
	t := types.NewElementary(b.Name)
	t.Payable = b.Payable
	return t, nil
}

func toTypes(exprs []*TypeExpr) ([]types.Type, error) {
	if len(exprs) == 0 {
		return nil, nil
	}
	out := make([]types.Type, len(exprs))
	for i, e := range exprs {
		t, err := e.toType()
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

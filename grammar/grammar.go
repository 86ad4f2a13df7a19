package grammar

// TypeExpr is the root of a parsed type string.
type TypeExpr struct {
	Base     *BaseType    `@@`
	Dims     []*Dimension `@@*`
	Location string       `[ @("storage" | "memory" | "calldata") [ "ref" | "pointer" | "slice" ] ]`
}

// Dimension is one "[N]" or "[]" suffix.
type Dimension struct {
	Length *int `"[" @Int? "]"`
}

type BaseType struct {
	Mapping  *MappingType  `  @@`
	Function *FunctionType `| @@`
	User     *UserType     `| @@`
	Tuple    *TupleType    `| @@`
	Name     string        `| @Ident`
	Payable  bool          `  [ @"payable" ]`
}

type MappingType struct {
	Key   *TypeExpr `"mapping" "(" @@ "=>"`
	Value *TypeExpr `@@ ")"`
}

type FunctionType struct {
	Params    []*TypeExpr `"function" "(" [ @@ { "," @@ } ] ")"`
	Modifiers []string    `{ @("internal" | "external" | "pure" | "view" | "payable" | "nonpayable") }`
	Returns   []*TypeExpr `[ "returns" "(" [ @@ { "," @@ } ] ")" ]`
}

type UserType struct {
	Kind string   `@("struct" | "contract" | "enum" | "interface" | "library")`
	Path []string `@Ident { "." @Ident }`
}

type TupleType struct {
	Elems []*TypeExpr `"tuple" "(" [ @@ { "," @@ } ] ")"`
}

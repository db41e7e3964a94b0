package criteria

import (
	"strconv"
	"strings"
)

// Node is a criteria expression. The set of implementations is closed:
// [*Comparison], [*And], [*Or], [*Not] and [*Attr].
type Node interface {
	String() string
	node()
}

// Kind is the value type of an attribute or literal.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindDate
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindBool:
		return "boolean"
	case KindDate:
		return "date"
	}
	return "unknown"
}

// Op is a comparison operator.
type Op string

const (
	OpEq       Op = "="
	OpNe       Op = "!="
	OpLt       Op = "<"
	OpLe       Op = "<="
	OpGt       Op = ">"
	OpGe       Op = ">="
	OpContains Op = "~"
)

// Value is a typed literal. Text holds the string, "true"/"false", or a normalized date.
type Value struct {
	Kind Kind
	Text string
}

func (v Value) String() string {
	switch v.Kind {
	case KindString, KindDate:
		return strconv.Quote(v.Text)
	}
	return v.Text
}

// Bool reports the value of a boolean literal.
func (v Value) Bool() bool {
	return v.Kind == KindBool && v.Text == "true"
}

// Comparison compares an attribute against a literal.
type Comparison struct {
	Attr  *Attribute
	Op    Op
	Value Value
}

// And is a conjunction.
type And struct {
	Left, Right Node
}

// Or is a disjunction.
type Or struct {
	Left, Right Node
}

// Not negates its operand.
type Not struct {
	Expr Node
}

// Attr is a bare reference to a boolean attribute, equivalent to "attr = true".
type Attr struct {
	Attr *Attribute
}

func (*Comparison) node() {}
func (*And) node()        {}
func (*Or) node()         {}
func (*Not) node()        {}
func (*Attr) node()       {}

func (c *Comparison) String() string {
	return c.Attr.Name + " " + string(c.Op) + " " + c.Value.String()
}

func (a *And) String() string {
	return "(" + a.Left.String() + " and " + a.Right.String() + ")"
}

func (o *Or) String() string {
	return "(" + o.Left.String() + " or " + o.Right.String() + ")"
}

func (n *Not) String() string {
	return "not " + n.Expr.String()
}

func (a *Attr) String() string {
	return a.Attr.Name
}

// Attribute is a track property criteria can refer to.
type Attribute struct {
	Name    string
	Aliases []string
	Kind    Kind
	Help    string
}

// Attributes lists every identifier the language understands, in documentation order.
var Attributes = []*Attribute{
	{Name: "artist", Kind: KindString, Help: "any artist name of the track"},
	{Name: "genre", Kind: KindString, Help: "any genre of any artist of the track"},
	{Name: "album", Kind: KindString, Help: "album name"},
	{Name: "name", Aliases: []string{"title", "track"}, Kind: KindString, Help: "track name"},
	{Name: "label", Kind: KindString, Help: "tagged with the static label of that name"},
	{Name: "explicit", Kind: KindBool, Help: "explicit-content flag"},
	{Name: "added", Aliases: []string{"favorited"}, Kind: KindDate, Help: "date the track was favorited"},
	{Name: "released", Aliases: []string{"year"}, Kind: KindDate, Help: "album release date"},
}

var attributeIndex = func() map[string]*Attribute {
	index := make(map[string]*Attribute)
	for _, a := range Attributes {
		index[a.Name] = a
		for _, alias := range a.Aliases {
			index[alias] = a
		}
	}
	return index
}()

// lookupAttribute resolves a case-insensitive identifier.
func lookupAttribute(ident string) (*Attribute, bool) {
	a, ok := attributeIndex[strings.ToLower(ident)]
	return a, ok
}

// allowedOps lists the operators valid for each kind.
var allowedOps = map[Kind][]Op{
	KindString: {OpEq, OpNe, OpContains},
	KindBool:   {OpEq, OpNe},
	KindDate:   {OpEq, OpNe, OpLt, OpLe, OpGt, OpGe},
}

func opAllowed(k Kind, op Op) bool {
	for _, allowed := range allowedOps[k] {
		if allowed == op {
			return true
		}
	}
	return false
}

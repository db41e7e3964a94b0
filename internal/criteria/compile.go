package criteria

import (
	"fmt"
	"strings"
)

// Filter is compiled criteria. It implements models.TrackFilter.
type Filter struct {
	Node Node
	sql  string
	args []any
}

// SQL returns the predicate over tracks (t) and albums (al) and its bind arguments.
func (f *Filter) SQL() (string, []any) {
	return f.sql, f.args
}

func (f *Filter) String() string {
	return f.Node.String()
}

// Compile parses criteria text and renders it as a SQL predicate.
func Compile(text string) (*Filter, error) {
	node, err := Parse(text)
	if err != nil {
		return nil, err
	}

	var c compiler
	sql, err := c.compile(node)
	if err != nil {
		return nil, err
	}
	return &Filter{Node: node, sql: sql, args: c.args}, nil
}

// Validate reports whether text compiles.
func Validate(text string) bool {
	_, err := Compile(text)
	return err == nil
}

type compiler struct {
	args []any
}

func (c *compiler) compile(node Node) (string, error) {
	switch n := node.(type) {
	case *And:
		return c.binary(n.Left, n.Right, "AND")
	case *Or:
		return c.binary(n.Left, n.Right, "OR")
	case *Not:
		inner, err := c.compile(n.Expr)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	case *Attr:
		return c.comparison(&Comparison{Attr: n.Attr, Op: OpEq, Value: Value{Kind: KindBool, Text: "true"}})
	case *Comparison:
		return c.comparison(n)
	default:
		return "", fmt.Errorf("unhandled criteria node %T", node)
	}
}

func (c *compiler) binary(left, right Node, op string) (string, error) {
	l, err := c.compile(left)
	if err != nil {
		return "", err
	}
	r, err := c.compile(right)
	if err != nil {
		return "", err
	}
	return "(" + l + " " + op + " " + r + ")", nil
}

const (
	artistExists = `EXISTS (SELECT 1 FROM track_artists ta JOIN artists ar ON ar.id = ta.artist_id WHERE ta.track_id = t.id AND %s)`
	genreExists  = `EXISTS (SELECT 1 FROM track_artists ta JOIN artists ar ON ar.id = ta.artist_id, json_each(ar.genres) g WHERE ta.track_id = t.id AND %s)`
	labelExists  = `EXISTS (SELECT 1 FROM track_labels tl JOIN labels lb ON lb.id = tl.label_id WHERE tl.track_id = t.id AND %s)`
)

func (c *compiler) comparison(cmp *Comparison) (string, error) {
	switch cmp.Attr.Name {
	case "artist":
		return c.exists(artistExists, "ar.name", cmp), nil
	case "genre":
		return c.exists(genreExists, "g.value", cmp), nil
	case "label":
		return c.exists(labelExists, "lb.name", cmp), nil
	case "album":
		return c.text("al.name", cmp.Op, cmp.Value.Text), nil
	case "name":
		return c.text("t.name", cmp.Op, cmp.Value.Text), nil
	case "explicit":
		c.args = append(c.args, cmp.Value.Bool())
		return "t.explicit " + sqlOp(cmp.Op) + " ?", nil
	case "added":
		return c.date("t.favorited_at", cmp), nil
	case "released":
		return "(al.release_date <> '' AND " + c.date("al.release_date", cmp) + ")", nil
	}
	return "", fmt.Errorf("unhandled criteria attribute %q", cmp.Attr.Name)
}

// exists matches when any related row satisfies the comparison; != negates the whole lookup.
func (c *compiler) exists(tmpl, column string, cmp *Comparison) string {
	op := cmp.Op
	if op == OpNe {
		op = OpEq
	}
	clause := fmt.Sprintf(tmpl, c.text(column, op, cmp.Value.Text))
	if cmp.Op == OpNe {
		return "NOT " + clause
	}
	return clause
}

// text compares a string column case-insensitively.
func (c *compiler) text(column string, op Op, value string) string {
	if op == OpContains {
		c.args = append(c.args, "%"+escapeLike(value)+"%")
		return column + ` LIKE ? ESCAPE '\'`
	}
	c.args = append(c.args, value)
	return column + " " + sqlOp(op) + " ? COLLATE NOCASE"
}

// date compares a stored timestamp or release date at the coarser of the literal's and the
// stored value's granularity, so a year-only release date equals every day of that year.
func (c *compiler) date(column string, cmp *Comparison) string {
	c.args = append(c.args, cmp.Value.Text)
	n := fmt.Sprintf("min(%d, length(%s))", len(cmp.Value.Text), column)
	return fmt.Sprintf("substr(%s, 1, %s) %s substr(?, 1, %s)", column, n, sqlOp(cmp.Op), n)
}

func sqlOp(op Op) string {
	if op == OpNe {
		return "<>"
	}
	return string(op)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

package storage

import (
	"fmt"
	"strings"
)

// setBuilder assembles the SET clause of a partial update with positional
// placeholders.
type setBuilder struct {
	cols []string
	args []interface{}
}

func newSetBuilder() *setBuilder {
	return &setBuilder{}
}

func (b *setBuilder) add(col string, v interface{}) {
	b.args = append(b.args, v)
	b.cols = append(b.cols, fmt.Sprintf("%s = $%d", col, len(b.args)))
}

func (b *setBuilder) addIfSet(col string, a optArg) {
	if a.set {
		b.add(col, a.v)
	}
}

func (b *setBuilder) setClause() string {
	return strings.Join(b.cols, ", ")
}

func (b *setBuilder) n() int {
	return len(b.args)
}

// optArg carries an optional patch value.
type optArg struct {
	v   interface{}
	set bool
}

func strArg(p *string) optArg {
	if p == nil {
		return optArg{}
	}
	return optArg{v: *p, set: true}
}

func boolArg(p *bool) optArg {
	if p == nil {
		return optArg{}
	}
	return optArg{v: *p, set: true}
}

func i64Arg(p *int64) optArg {
	if p == nil {
		return optArg{}
	}
	return optArg{v: *p, set: true}
}

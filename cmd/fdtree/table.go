package main

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

// ruleColumn wraps long rules.
var ruleColumn = table.ColumnConfig{Name: "rule", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft}

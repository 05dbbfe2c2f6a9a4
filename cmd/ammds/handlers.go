package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
)

type handlerRow struct {
	Name      string `json:"name"`
	Component string `json:"component"`
	Author    string `json:"author"`
	GitHub    string `json:"github"`
}

// Run 按发现顺序列出 handler（即 Resolve 的匹配优先级）。
func (c *HandlersCmd) Run(deps *Dependencies) error {
	hs := deps.Handlers.Handlers()
	rows := make([]handlerRow, 0, len(hs))
	for _, h := range hs {
		a := h.Author()
		rows = append(rows, handlerRow{Name: h.Name(), Component: h.View().Component, Author: a.Name, GitHub: a.GitHub})
	}

	if c.JSON {
		enc := json.NewEncoder(deps.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	tw := tabwriter.NewWriter(deps.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tAUTHOR\tGITHUB")
	for i, r := range rows {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, r.Name, r.Author, r.GitHub)
	}
	return tw.Flush()
}

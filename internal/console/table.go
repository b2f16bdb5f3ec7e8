package console

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/vanshika/iamgraph/internal/domain"
)

// RenderTable writes headers and rows as a light, borderless table followed by a newline.
func RenderTable(w io.Writer, headers []string, rows [][]any) error {
	header := make(table.Row, 0, len(headers))
	for _, h := range headers {
		header = append(header, h)
	}

	t := table.NewWriter()
	t.AppendHeader(header)
	for _, row := range rows {
		t.AppendRow(table.Row(row))
	}
	t.SetStyle(table.StyleLight)
	t.Style().Format = table.FormatOptions{
		Footer: text.FormatDefault,
		Header: text.FormatDefault,
		Row:    text.FormatDefault,
	}
	t.Style().Options.DrawBorder = false

	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return err
	}
	return nil
}

// RenderUsers prints users numbered from 1.
func RenderUsers(w io.Writer, users []domain.User) error {
	rows := make([][]any, 0, len(users))
	for i, u := range users {
		rows = append(rows, []any{i + 1, u.FullName, u.Email})
	}
	return RenderTable(w, []string{"#", "full name", "email"}, rows)
}

// RenderFiles prints file matches with their result index.
func RenderFiles(w io.Writer, files []domain.FileMatch) error {
	rows := make([][]any, 0, len(files))
	for _, f := range files {
		rows = append(rows, []any{f.Index, f.Path})
	}
	return RenderTable(w, []string{"#", "path"}, rows)
}

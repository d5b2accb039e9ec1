package dataslice

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ContentList is the package content overview: one row per source, one column per
// package with 1 marking membership.
type ContentList struct {
	Header []string
	rows   []map[string]string
}

func ReadContentList(r io.Reader) (*ContentList, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read content list: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("content list is empty")
	}

	header := records[0]
	sourceCol := -1
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
		if header[i] == "source" {
			sourceCol = i
		}
	}
	if sourceCol < 0 {
		return nil, errors.New("content list has no source column")
	}

	cl := &ContentList{Header: header}
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = strings.TrimSpace(rec[i])
			}
		}
		if row["source"] == "" {
			continue
		}
		cl.rows = append(cl.rows, row)
	}
	return cl, nil
}

func (c *ContentList) Sources() []string {
	out := make([]string, 0, len(c.rows))
	for _, row := range c.rows {
		out = append(out, row["source"])
	}
	return out
}

// Package returns the sources that belong to the named package column, e.g. "A1".
func (c *ContentList) Package(name string) ([]string, error) {
	found := false
	for _, h := range c.Header {
		if h == name {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("unknown package %q", name)
	}
	var out []string
	for _, row := range c.rows {
		if row[name] == "1" {
			out = append(out, row["source"])
		}
	}
	return out, nil
}

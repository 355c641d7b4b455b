// Package table describes user-defined tables backing table widgets, and
// the sources their schemas are fetched from.
package table

import (
	"context"
	"errors"
)

// Column input types.
const (
	InputText         = "text"
	InputNumber       = "number"
	InputDate         = "date"
	InputBoolean      = "boolean"
	InputSingleSelect = "single_select"
)

// ErrNotFound is returned by sources for unknown table ids.
var ErrNotFound = errors.New("table not found")

// Column is one column of a user-defined table.
type Column struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	InputType string `json:"inputType"`
}

// Row maps column ids to cell values.
type Row map[string]string

// Schema is a user-defined table.
type Schema struct {
	ID      string   `json:"id"`
	Columns []Column `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Source fetches table schemas.
type Source interface {
	GetTableSchema(ctx context.Context, id string) (Schema, error)
}

// ColumnOption is a column as offered to axis and stack pickers.
type ColumnOption struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	ColumnType string `json:"columnType"`
}

// Options lists the selectable columns of s in column order. Columns with
// no id are skipped.
func Options(s Schema) []ColumnOption {
	out := make([]ColumnOption, 0, len(s.Columns))
	for _, c := range s.Columns {
		if c.ID == "" {
			continue
		}
		label := c.Title
		if label == "" {
			label = c.ID
		}
		out = append(out, ColumnOption{Key: c.ID, Label: label, ColumnType: c.InputType})
	}
	return out
}

// HasOption reports whether key is among opts.
func HasOption(opts []ColumnOption, key string) bool {
	for _, o := range opts {
		if o.Key == key {
			return true
		}
	}
	return false
}

// Package widgetkit resolves analytics widget filters into normalized
// backend queries.
//
// Usage:
//
//	import (
//	    "github.com/spektr-org/widgetkit/engine"
//	    "github.com/spektr-org/widgetkit/schema"
//	)
//
//	e := engine.New(schema.Default())
//	res := e.ApplyFilterEdit(state, "across", "issue_resolved_week")
//
// The schema package describes which filters each report type offers, the
// engine package applies edits, removals and dependent-setting cascades as
// pure state transforms, and the session package owns one widget while it
// is edited, committing states to a store immediately or debounced.
//
// Axis configuration for table-backed widgets lives in the axis package;
// table column schemas are fetched and cached by the table package.
package widgetkit

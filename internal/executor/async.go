package executor

import (
	language "github.com/hanpama/opgraph/internal/language"
	schema "github.com/hanpama/opgraph/internal/schema"
)

// deferredField is an async field waiting for the next batch.
type deferredField struct {
	task   AsyncResolveTask
	path   Path
	typ    *schema.TypeRef
	fields []*language.Field
}

// flush sends the queued fields of one depth to the runtime in a single
// batch and completes them, which queues the next depth.
func (ex *execution) flush() {
	queued := ex.pending
	ex.pending = nil

	batch := queued[:0]
	for _, d := range queued {
		if !ex.underNulled(d.path) {
			batch = append(batch, d)
		}
	}
	if len(batch) == 0 {
		return
	}
	tasks := make([]AsyncResolveTask, len(batch))
	for i, d := range batch {
		tasks[i] = d.task
	}
	results := ex.rt.BatchResolveAsync(ex.ctx, tasks)

	for i, d := range batch {
		if ex.dataNull {
			return
		}
		var res AsyncResolveResult
		if i < len(results) {
			res = results[i]
		}
		ex.finish(d, res)
	}
}

func (ex *execution) finish(d *deferredField, res AsyncResolveResult) {
	// a sibling of this batch may have nulled an ancestor
	if ex.underNulled(d.path) {
		return
	}
	value := res.Value
	if res.Error != nil {
		ex.addError(res.Error.Error(), d.path)
		value = nil
	}
	v, ok := ex.completeValue(d.typ, d.fields, value, d.path)
	if ok {
		assign(ex.data, d.path, v)
		return
	}
	ex.bubble(d.path)
}

// bubble nulls the nearest nullable ancestor of p, a Non-Null position that
// completed to null. Without one the whole response data becomes null.
func (ex *execution) bubble(p Path) {
	for i := len(p) - 1; i > 0; i-- {
		prefix := p[:i]
		key := prefix.String()
		if ex.nullable[key] {
			assign(ex.data, prefix, nil)
			ex.nulled[key] = true
			return
		}
	}
	ex.dataNull = true
}

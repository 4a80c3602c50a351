package lists

import (
	"encoding/json"
	"iter"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/cel-go/cel"
)

// Filter is a compiled CEL predicate over list items. The zero Filter
// matches everything.
//
// Variables: name, key, etag (hex string), created_ms, size (payload bytes),
// text (payload as string), data (payload decoded as JSON, null when it is
// not JSON) and now_ms.
type Filter struct {
	prog cel.Program
}

// CompileFilter compiles expr. An empty expression yields a match-all filter.
func CompileFilter(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("name", cel.StringType),
		cel.Variable("key", cel.StringType),
		cel.Variable("etag", cel.StringType),
		cel.Variable("created_ms", cel.IntType),
		cel.Variable("size", cel.IntType),
		cel.Variable("text", cel.StringType),
		cel.Variable("data", cel.DynType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return Filter{}, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, errors.Wrapf(iss.Err(), "lists: filter %q", expr)
	}
	prog, err := env.Program(ast)
	if err != nil {
		return Filter{}, err
	}
	return Filter{prog: prog}, nil
}

// Match reports whether item satisfies the filter. Evaluation errors, such
// as a missing JSON field, and non-bool results count as no match.
func (f Filter) Match(item ListItem) bool {
	if f.prog == nil {
		return true
	}
	var data any
	_ = json.Unmarshal(item.Data, &data)
	out, _, err := f.prog.Eval(map[string]any{
		"name":       item.Name,
		"key":        item.Key,
		"etag":       item.Etag.String(),
		"created_ms": item.CreatedAt.UnixMilli(),
		"size":       int64(len(item.Data)),
		"text":       string(item.Data),
		"data":       data,
		"now_ms":     time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// Apply returns seq with non-matching items dropped. Errors pass through.
func (f Filter) Apply(seq iter.Seq2[ListItem, error]) iter.Seq2[ListItem, error] {
	if f.prog == nil {
		return seq
	}
	return func(yield func(ListItem, error) bool) {
		for item, err := range seq {
			if err != nil {
				yield(item, err)
				return
			}
			if f.Match(item) && !yield(item, nil) {
				return
			}
		}
	}
}

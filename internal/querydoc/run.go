package querydoc

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bawdo/querytree/executor"
)

// Execute runs q with ex. Selects write their rows as a table, or the row
// count when count is set; other statements write the affected row count.
func (q *Query) Execute(ctx context.Context, ex *executor.Executor, count bool, w io.Writer) error {
	if q.Kind != KindSelect {
		if count {
			return ErrNotSelect
		}
		sql, params, err := q.ToSQL(ex.Serializer())
		if err != nil {
			return err
		}
		n, err := ex.Exec(ctx, sql, params)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%d rows affected\n", n)
		return err
	}

	md, err := q.Select.Transformed()
	if err != nil {
		return err
	}
	if count {
		n, err := ex.Count(ctx, md)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, n)
		return err
	}
	res, err := ex.Query(ctx, md)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, res.String())
	return err
}

// SplitList splits s at commas outside parentheses and quotes and trims
// each item. Empty items are dropped.
func SplitList(s string) []string {
	var (
		out   []string
		depth int
		quote byte
		start int
	)
	flush := func(end int) {
		if item := strings.TrimSpace(s[start:end]); item != "" {
			out = append(out, item)
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case c == ',' && depth == 0:
			flush(i)
			start = i + 1
		}
	}
	flush(len(s))
	return out
}

// Package querydoc describes queries as YAML documents and builds them with
// the managers package.
//
// A select document:
//
//	from: users u
//	select: [u.id, u.name, "count(p.id) as posts"]
//	joins:
//	  - table: posts p
//	    type: left
//	    on: p.user_id = u.id
//	where: u.age > :min_age
//	group: [u.id, u.name]
//	order: [u.name desc nulls last]
//	limit: 10
//	params: {min_age: 18}
//	softdelete: true
//	policy:
//	  where: {users: tenant_id = :tenant}
//	  deny: [audit_log]
//
// Insert, update and delete documents use the insert, update and delete
// sections instead. String values in values and set are data; prefix them
// with "=" to parse an expression.
package querydoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/bawdo/querytree/nodes"
)

// Document is one query.
type Document struct {
	From     Strings `yaml:"from,omitempty"`
	Select   Strings `yaml:"select,omitempty"`
	Distinct bool    `yaml:"distinct,omitempty"`
	Joins    []Join  `yaml:"joins,omitempty"`
	Where    Strings `yaml:"where,omitempty"`
	Group    Strings `yaml:"group,omitempty"`
	Having   Strings `yaml:"having,omitempty"`
	Order    Strings `yaml:"order,omitempty"`
	Limit    *int    `yaml:"limit,omitempty"`
	Offset   *int    `yaml:"offset,omitempty"`
	Lock     string  `yaml:"lock,omitempty"`
	Comment  string  `yaml:"comment,omitempty"`

	Union    []*Document `yaml:"union,omitempty"`
	UnionAll []*Document `yaml:"union_all,omitempty"`

	Insert *Insert `yaml:"insert,omitempty"`
	Update *Update `yaml:"update,omitempty"`
	Delete *Delete `yaml:"delete,omitempty"`

	Params     map[string]any `yaml:"params,omitempty"`
	SoftDelete *SoftDelete    `yaml:"softdelete,omitempty"`
	Policy     *Policy        `yaml:"policy,omitempty"`
}

// Join is one entry of joins. Type is inner (default), join, left, right,
// full or cross.
type Join struct {
	Table   string `yaml:"table"`
	Type    string `yaml:"type,omitempty"`
	On      string `yaml:"on,omitempty"`
	Lateral bool   `yaml:"lateral,omitempty"`
}

// Insert targets Into with literal rows or the rows of a select document.
type Insert struct {
	Into    string    `yaml:"into"`
	Columns []string  `yaml:"columns"`
	Values  [][]any   `yaml:"values,omitempty"`
	Select  *Document `yaml:"select,omitempty"`
}

// Update assigns Set on the rows of Table matching Where.
type Update struct {
	Table string      `yaml:"table"`
	Set   Assignments `yaml:"set"`
	Where Strings     `yaml:"where,omitempty"`
}

// Delete removes the rows of From matching Where.
type Delete struct {
	From  string  `yaml:"from"`
	Where Strings `yaml:"where,omitempty"`
}

// SoftDelete configures the softdelete transformer. "softdelete: true"
// enables it with defaults.
type SoftDelete struct {
	Column  string            `yaml:"column,omitempty"`
	Tables  []string          `yaml:"tables,omitempty"`
	Columns map[string]string `yaml:"columns,omitempty"`
}

func (s *SoftDelete) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		var on bool
		if err := n.Decode(&on); err != nil {
			return fmt.Errorf("softdelete: %w", err)
		}
		if !on {
			return errSoftDeleteOff
		}
		*s = SoftDelete{}
		return nil
	}
	type plain SoftDelete
	return n.Decode((*plain)(s))
}

func (s SoftDelete) MarshalYAML() (any, error) {
	if s.Column == "" && len(s.Tables) == 0 && len(s.Columns) == 0 {
		return true, nil
	}
	type plain SoftDelete
	return plain(s), nil
}

// Policy configures the policy transformer. Where maps a table to the
// conditions every statement touching it must satisfy. Columns in the
// conditions are unqualified and resolve to whichever alias the statement
// gives the table. Statements touching a table in Deny are rejected.
type Policy struct {
	Where map[string]Strings `yaml:"where,omitempty"`
	Deny  []string           `yaml:"deny,omitempty"`
}

func (p *Policy) conditions(entity *nodes.Path) ([]nodes.Expression, error) {
	srcs := p.Where[entity.Table()]
	if len(srcs) == 0 {
		return nil, nil
	}
	scope, err := NewScope(entity)
	if err != nil {
		return nil, err
	}
	return exprs(scope, "policy."+entity.Table(), srcs)
}

var errSoftDeleteOff = errors.New("softdelete: omit the key to disable")

// Strings accepts a single string or a list of strings.
type Strings []string

func (s *Strings) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			*s = nil
			return nil
		}
		*s = Strings{n.Value}
		return nil
	case yaml.SequenceNode:
		var xs []string
		if err := n.Decode(&xs); err != nil {
			return err
		}
		*s = xs
		return nil
	}
	return fmt.Errorf("line %d: string or list of strings expected", n.Line)
}

func (s Strings) MarshalYAML() (any, error) {
	if len(s) == 1 {
		return s[0], nil
	}
	return []string(s), nil
}

// Assignment is one column of an update.
type Assignment struct {
	Column string
	Value  any
}

// Assignments is an ordered mapping of column to value.
type Assignments []Assignment

func (a *Assignments) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: mapping of column to value expected", n.Line)
	}
	out := make(Assignments, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		var v any
		if err := n.Content[i+1].Decode(&v); err != nil {
			return err
		}
		out = append(out, Assignment{Column: n.Content[i].Value, Value: v})
	}
	*a = out
	return nil
}

func (a Assignments) MarshalYAML() (any, error) {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, x := range a {
		var v yaml.Node
		if err := v.Encode(x.Value); err != nil {
			return nil, err
		}
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: x.Column}, &v)
	}
	return n, nil
}

// Parse decodes one document. Unknown keys are errors.
func Parse(data []byte) (*Document, error) {
	return Decode(bytes.NewReader(data))
}

// Decode reads one document from r.
func Decode(r io.Reader) (*Document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var d Document
	if err := dec.Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("querydoc: empty document")
		}
		return nil, fmt.Errorf("querydoc: %w", err)
	}
	return &d, nil
}

// ReadFile parses the document at path; "-" reads standard input.
func ReadFile(path string) (*Document, error) {
	if path == "-" {
		return Decode(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	d, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Marshal encodes d as YAML.
func (d *Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

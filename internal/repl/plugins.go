package repl

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/bawdo/querytree/internal/querydoc"
	"github.com/bawdo/querytree/nodes"
	"github.com/bawdo/querytree/plugins/policy"
	"github.com/bawdo/querytree/plugins/softdelete"
)

// pluginConfigurer is a plugin that can be enabled with "plugin <name>".
type pluginConfigurer struct {
	name      string
	configure func(s *Session, args string) error
	disable   func(s *Session)
	status    func(s *Session) (string, bool)
}

var knownPlugins = []pluginConfigurer{
	{
		name:      softdelete.Name,
		configure: configureSoftdelete,
		disable:   func(s *Session) { s.doc.SoftDelete = nil },
		status: func(s *Session) (string, bool) {
			if s.doc.SoftDelete == nil {
				return "", false
			}
			return softdeleteStatus(s.doc.SoftDelete), true
		},
	},
	{
		name:      policy.Name,
		configure: configurePolicy,
		disable:   func(s *Session) { s.doc.Policy = nil },
		status: func(s *Session) (string, bool) {
			if s.doc.Policy == nil {
				return "", false
			}
			return policyStatus(s.doc.Policy), true
		},
	},
}

func pluginNames() []string {
	out := make([]string, len(knownPlugins))
	for i, p := range knownPlugins {
		out[i] = p.name
	}
	return out
}

func lookupPlugin(name string) (pluginConfigurer, error) {
	for _, p := range knownPlugins {
		if p.name == name {
			return p, nil
		}
	}
	return pluginConfigurer{}, fmt.Errorf("unknown plugin: %s (available: %s)", name, strings.Join(pluginNames(), ", "))
}

func (s *Session) cmdPlugin(args string) error {
	name, rest, _ := strings.Cut(args, " ")
	if name == "" {
		return errors.New("usage: plugin <name> [args] | plugin off [name]")
	}
	if strings.EqualFold(name, "off") {
		return s.cmdPluginOff(strings.TrimSpace(rest))
	}
	p, err := lookupPlugin(strings.ToLower(name))
	if err != nil {
		return err
	}
	return p.configure(s, strings.TrimSpace(rest))
}

func (s *Session) cmdPluginOff(name string) error {
	if name == "" {
		for _, p := range knownPlugins {
			p.disable(s)
		}
		s.printf("  All plugins disabled\n")
		return nil
	}
	p, err := lookupPlugin(strings.ToLower(name))
	if err != nil {
		return err
	}
	if _, on := p.status(s); !on {
		return fmt.Errorf("plugin %s is not enabled", p.name)
	}
	p.disable(s)
	s.printf("  %s disabled\n", p.name)
	return nil
}

func (s *Session) cmdPlugins() error {
	enabled := false
	for _, p := range knownPlugins {
		if st, on := p.status(s); on {
			s.printf("  %s: %s\n", p.name, st)
			enabled = true
		}
	}
	if !enabled {
		s.printf("  No plugins enabled\n")
	}
	return nil
}

// configureSoftdelete accepts:
//
//	plugin softdelete
//	plugin softdelete removed_at
//	plugin softdelete removed_at on users posts
//	plugin softdelete users.deleted_at, posts.removed_at
func configureSoftdelete(s *Session, args string) error {
	sd := &querydoc.SoftDelete{}
	switch {
	case strings.Contains(args, "."):
		sd.Columns = map[string]string{}
		for _, pair := range querydoc.SplitList(args) {
			table, col, ok := strings.Cut(pair, ".")
			if !ok || table == "" || col == "" {
				return fmt.Errorf("invalid table.column pair: %q", pair)
			}
			sd.Columns[table] = col
		}
		if len(sd.Columns) == 0 {
			return errors.New("usage: plugin softdelete <table>.<column>[, ...]")
		}
	case strings.Contains(strings.ToLower(args), " on "):
		idx := strings.Index(strings.ToLower(args), " on ")
		sd.Column = strings.TrimSpace(args[:idx])
		sd.Tables = strings.Fields(args[idx+4:])
		if sd.Column == "" || len(sd.Tables) == 0 {
			return errors.New("usage: plugin softdelete <column> on <table1> [table2 ...]")
		}
	case args != "":
		sd.Column = strings.Fields(args)[0]
	}
	s.doc.SoftDelete = sd
	s.printf("  Soft-delete enabled (%s)\n", softdeleteStatus(sd))
	return nil
}

func softdeleteStatus(sd *querydoc.SoftDelete) string {
	if len(sd.Columns) > 0 {
		pairs := make([]string, 0, len(sd.Columns))
		for _, t := range slices.Sorted(maps.Keys(sd.Columns)) {
			pairs = append(pairs, t+"."+sd.Columns[t])
		}
		return strings.Join(pairs, ", ")
	}
	col := sd.Column
	if col == "" {
		col = "deleted_at"
	}
	if len(sd.Tables) > 0 {
		return fmt.Sprintf("column: %s, tables: %s", col, strings.Join(sd.Tables, ", "))
	}
	return "column: " + col
}

// configurePolicy adds one rule per call:
//
//	plugin policy users tenant_id = :tenant
//	plugin policy deny audit_log
func configurePolicy(s *Session, args string) error {
	table, cond, _ := strings.Cut(args, " ")
	cond = strings.TrimSpace(cond)
	if table == "" || cond == "" {
		return errors.New("usage: plugin policy <table> <condition> | plugin policy deny <table>")
	}
	pol := s.doc.Policy
	if pol == nil {
		pol = &querydoc.Policy{}
	}
	if strings.EqualFold(table, "deny") {
		for _, t := range strings.Fields(cond) {
			if !slices.Contains(pol.Deny, t) {
				pol.Deny = append(pol.Deny, t)
			}
		}
	} else {
		scope, err := querydoc.NewScope(nodes.NewEntity(table, ""))
		if err != nil {
			return err
		}
		if _, err := scope.Expr(cond); err != nil {
			return err
		}
		if pol.Where == nil {
			pol.Where = map[string]querydoc.Strings{}
		}
		pol.Where[table] = append(pol.Where[table], cond)
	}
	s.doc.Policy = pol
	s.printf("  Policy enabled (%s)\n", policyStatus(pol))
	return nil
}

func policyStatus(pol *querydoc.Policy) string {
	var parts []string
	for _, t := range slices.Sorted(maps.Keys(pol.Where)) {
		parts = append(parts, t+": "+strings.Join(pol.Where[t], " and "))
	}
	if len(pol.Deny) > 0 {
		parts = append(parts, "deny: "+strings.Join(pol.Deny, ", "))
	}
	return strings.Join(parts, "; ")
}

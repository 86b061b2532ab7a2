package managers

import (
	"testing"

	"github.com/bawdo/querytree/nodes"
	"github.com/bawdo/querytree/plugins"
	"github.com/bawdo/querytree/templates"
	"github.com/bawdo/querytree/visitors"
)

func TestNewDeleteManager(t *testing.T) {
	t.Parallel()
	users := nodes.NewEntity("users", "")
	m := NewDeleteManager(users)
	if m.Statement().Entity != users {
		t.Error("expected the users entity as target")
	}
	if m.Statement().Where != nil {
		t.Error("expected no where clause")
	}
}

func TestDeleteWhere(t *testing.T) {
	t.Parallel()
	users := nodes.NewEntity("users", "")
	m := NewDeleteManager(users).Where(users.NumberProp("id").Eq(1))
	assertSQL(t, m, `DELETE FROM "users" WHERE "users"."id" = $1`, 1)
}

func TestDeleteAllRows(t *testing.T) {
	t.Parallel()
	assertSQL(t, NewDeleteManager(nodes.NewEntity("sessions", "")), `DELETE FROM "sessions"`)
}

func TestDeleteWithSubQuery(t *testing.T) {
	t.Parallel()
	users, bans := nodes.NewEntity("users", ""), nodes.NewEntity("bans", "")
	banned, err := NewSelectManager(bans).Select(bans.Col("user_id")).SubQuery()
	if err != nil {
		t.Fatal(err)
	}
	m := NewDeleteManager(users).Where(users.Col("id").In(banned))
	assertSQL(t, m, `DELETE FROM "users" WHERE "users"."id" IN (SELECT "bans"."user_id" FROM "bans")`)
}

func TestDeleteMySQLQuoting(t *testing.T) {
	t.Parallel()
	users := nodes.NewEntity("users", "")
	sql, _, err := NewDeleteManager(users).
		Where(users.NumberProp("id").Eq(1)).
		ToSQL(visitors.NewSerializer(templates.MySQL()))
	if err != nil {
		t.Fatal(err)
	}
	if want := "DELETE FROM `users` WHERE `users`.`id` = ?"; sql != want {
		t.Errorf("expected %s, got %s", want, sql)
	}
}

type archivedOnly struct {
	plugins.BaseTransformer
}

func (archivedOnly) TransformDelete(del *nodes.DeleteClause) (*nodes.DeleteClause, error) {
	del.Where = nodes.AllOf(del.Where, del.Entity.BoolProp("archived").Eq(true))
	return del, nil
}

func TestDeleteTransformer(t *testing.T) {
	t.Parallel()
	users := nodes.NewEntity("users", "")
	m := NewDeleteManager(users).
		Where(users.NumberProp("id").Eq(1)).
		Use(archivedOnly{})

	assertSQL(t, m, `DELETE FROM "users" WHERE "users"."id" = $1 AND "users"."archived" = $2`, 1, true)
	assertSQL(t, m, `DELETE FROM "users" WHERE "users"."id" = $1 AND "users"."archived" = $2`, 1, true)
}

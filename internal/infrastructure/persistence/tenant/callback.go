package tenant

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Guard provides GORM callback hooks that reject unscoped statements on
// tenant-scoped tables
type Guard struct {
	tenantColumn string
}

// NewGuard creates a new guard for the given tenant column
func NewGuard(tenantColumn string) *Guard {
	if tenantColumn == "" {
		tenantColumn = "tenant_id"
	}
	return &Guard{tenantColumn: tenantColumn}
}

// Register installs the guard callbacks
func (g *Guard) Register(db *gorm.DB) error {
	cb := db.Callback()
	if err := cb.Query().Before("gorm:query").Register("tenant:guard_query", g.check); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("tenant:guard_update", g.check); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("tenant:guard_delete", g.check); err != nil {
		return err
	}
	return cb.Row().Before("gorm:row").Register("tenant:guard_row", g.check)
}

// Unregister removes the guard callbacks
func (g *Guard) Unregister(db *gorm.DB) {
	cb := db.Callback()
	_ = cb.Query().Remove("tenant:guard_query")
	_ = cb.Update().Remove("tenant:guard_update")
	_ = cb.Delete().Remove("tenant:guard_delete")
	_ = cb.Row().Remove("tenant:guard_row")
}

func (g *Guard) check(db *gorm.DB) {
	if db.Error != nil || db.Statement.Unscoped || isCrossTenant(db) {
		return
	}
	if !g.tenantScoped(db) {
		return
	}
	if g.hasTenantCondition(db) {
		return
	}
	_ = db.AddError(ErrTenantConditionMissing)
}

// tenantScoped reports whether the statement's table carries the tenant column
func (g *Guard) tenantScoped(db *gorm.DB) bool {
	s := db.Statement.Schema
	if s == nil {
		return false
	}
	_, ok := s.FieldsByDBName[g.tenantColumn]
	return ok
}

func (g *Guard) hasTenantCondition(db *gorm.DB) bool {
	if whereClause, ok := db.Statement.Clauses["WHERE"]; ok {
		if where, ok := whereClause.Expression.(clause.Where); ok {
			for _, expr := range where.Exprs {
				if g.exprContainsTenant(expr) {
					return true
				}
			}
		}
	}

	// Raw statements are already built
	sql := db.Statement.SQL.String()
	return sql != "" && strings.Contains(sql, g.tenantColumn)
}

func (g *Guard) exprContainsTenant(expr clause.Expression) bool {
	switch e := expr.(type) {
	case clause.Eq:
		return g.isTenantColumn(e.Column)
	case clause.IN:
		return g.isTenantColumn(e.Column)
	case clause.Expr:
		return strings.Contains(e.SQL, g.tenantColumn)
	case clause.NamedExpr:
		return strings.Contains(e.SQL, g.tenantColumn)
	case clause.AndConditions:
		for _, cond := range e.Exprs {
			if g.exprContainsTenant(cond) {
				return true
			}
		}
	}
	// A tenant filter inside an OR does not scope the statement
	return false
}

func (g *Guard) isTenantColumn(col any) bool {
	switch c := col.(type) {
	case clause.Column:
		return c.Name == g.tenantColumn
	case string:
		return c == g.tenantColumn
	}
	return false
}

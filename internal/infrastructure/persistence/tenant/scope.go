// Package tenant keeps ledger queries inside one tenant.
//
// Repositories pass the tenant explicitly on every call. The guard installed
// by Guard.Register rejects any statement on a tenant-scoped table whose
// WHERE clause does not mention tenant_id, so a forgotten filter fails loudly
// instead of reading another tenant's documents.
//
// Usage:
//
//	tenant.NewGuard("tenant_id").Register(db)
//	db.Scopes(tenant.Scope(tenantID)).Find(&docs) // allowed
//	db.Find(&docs)                               // ErrTenantConditionMissing
//	tenant.CrossTenant(db).Find(&outbox)         // explicit opt-out
package tenant

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrTenantConditionMissing is returned for a tenant-scoped statement without a tenant filter
var ErrTenantConditionMissing = errors.New("statement on tenant-scoped table has no tenant_id condition")

// ErrNilTenant is returned when a scope is built from the nil UUID
var ErrNilTenant = errors.New("tenant id cannot be nil")

// crossTenantKey marks a statement that deliberately spans tenants
const crossTenantKey = "ledger:cross_tenant"

// Scope applies tenant filtering to GORM queries
func Scope(tenantID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if tenantID == uuid.Nil {
			_ = db.AddError(ErrNilTenant)
			return db
		}
		return db.Where("tenant_id = ?", tenantID)
	}
}

// CrossTenant lets one statement span tenants, e.g. the outbox relay
func CrossTenant(db *gorm.DB) *gorm.DB {
	return db.Set(crossTenantKey, true)
}

func isCrossTenant(db *gorm.DB) bool {
	v, ok := db.Get(crossTenantKey)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

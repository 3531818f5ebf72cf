// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Key Principles:
// 1. Domain entities should be free of GORM tags and infrastructure concerns
// 2. Persistence models contain all GORM annotations and table mappings
// 3. Mappers convert between domain entities and persistence models
// 4. Repositories use persistence models for database operations
//
// Structure:
// - base.go: Base persistence models (BaseModel, CompanyAggregateModel)
// - document.go: Commercial documents, their lines and additional costs
// - payment.go: Received payments and their allocations
// - settings.go: Tenant ledger settings (payment tolerance)
// - journal.go: Journal requests handed to accounting
// - outbox.go: Outbox pattern model for event delivery
//
// Amounts are stored as decimal(18,4) and rounded to cents on the way out,
// so drivers that return floating point (SQLite) still yield exact values.
package models

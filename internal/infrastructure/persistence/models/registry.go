package models

// All returns every ledger model in dependency order, for AutoMigrate on
// SQLite and in tests. PostgreSQL schemas come from the SQL migrations.
func All() []any {
	return []any{
		&DocumentModel{},
		&DocumentLineModel{},
		&AdditionalCostModel{},
		&PaymentModel{},
		&PaymentAllocationModel{},
		&TenantLedgerSettingsModel{},
		&JournalRequestModel{},
		&OutboxEntryModel{},
	}
}

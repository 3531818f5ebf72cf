package strategy

import "github.com/erp/ledger/internal/domain/shared"

var errNegativeTolerance = shared.NewValidationError("INVALID_TOLERANCE", "Tolerance settings must not be negative", "tolerance")

package application

import "github.com/rental-platform/rental-service/internal/domain"

// ToTransactionDTO converts a domain TransactionHeader to TransactionDTO
func ToTransactionDTO(t *domain.TransactionHeader) *TransactionDTO {
	if t == nil {
		return nil
	}

	lines := make([]TransactionLineDTO, 0, len(t.Lines))
	for _, l := range t.Lines {
		lines = append(lines, TransactionLineDTO{
			ID:                 l.ID,
			LineNumber:         l.LineNumber,
			LineType:           string(l.LineType),
			SKUID:              l.SKUID,
			Description:        l.Description,
			UnitIDs:            l.UnitIDs,
			Quantity:           l.Quantity,
			UnitPrice:          l.UnitPrice,
			DailyRate:          l.DailyRate,
			DiscountPercentage: l.DiscountPercentage,
			DiscountAmount:     l.DiscountAmount,
			TaxRate:            l.TaxRate,
			TaxAmount:          l.TaxAmount,
			LineTotal:          l.LineTotal,
			ReturnedQuantity:   l.ReturnedQuantity,
			RemainingQuantity:  l.RemainingQuantity(),
			RentalStartDate:    l.RentalStartDate,
			RentalEndDate:      l.RentalEndDate,
			RentalDays:         l.RentalDays,
		})
	}

	payments := make([]PaymentDTO, 0, len(t.Payments))
	for _, p := range t.Payments {
		payments = append(payments, PaymentDTO{
			ID:         p.ID,
			Kind:       string(p.Kind),
			Method:     string(p.Method),
			Amount:     p.Amount,
			Reference:  p.Reference,
			Notes:      p.Notes,
			RecordedAt: p.RecordedAt,
			RecordedBy: p.RecordedBy,
		})
	}

	return &TransactionDTO{
		ID:                t.ID,
		TransactionNumber: t.TransactionNumber,
		TransactionType:   string(t.TransactionType),
		Status:            string(t.Status),
		PaymentStatus:     string(t.PaymentStatus),
		CustomerID:        t.CustomerID,
		SupplierID:        t.SupplierID,
		LocationID:        t.LocationID,
		TransactionDate:   t.TransactionDate,
		RentalStartDate:   t.RentalStartDate,
		RentalEndDate:     t.RentalEndDate,
		RentalDays:        t.RentalDays(),
		DepositAmount:     t.DepositAmount,
		Subtotal:          t.Subtotal,
		DiscountAmount:    t.DiscountAmount,
		TaxAmount:         t.TaxAmount,
		TotalAmount:       t.TotalAmount,
		PaidAmount:        t.PaidAmount,
		RefundedAmount:    t.RefundedAmount,
		BalanceDue:        t.BalanceDue(),
		InventoryReserved: t.InventoryReserved,
		Lines:             lines,
		Payments:          payments,
		Notes:             t.Notes,
		IsDeleted:         t.IsDeleted,
		Version:           t.Version,
		CreatedAt:         t.CreatedAt,
		UpdatedAt:         t.UpdatedAt,
		CreatedBy:         t.CreatedBy,
	}
}

// ToTransactionDTOs converts a slice of transactions
func ToTransactionDTOs(txns []*domain.TransactionHeader) []TransactionDTO {
	dtos := make([]TransactionDTO, 0, len(txns))
	for _, t := range txns {
		dtos = append(dtos, *ToTransactionDTO(t))
	}
	return dtos
}

// ToInventoryUnitDTO converts a domain InventoryUnit to InventoryUnitDTO
func ToInventoryUnitDTO(u *domain.InventoryUnit) *InventoryUnitDTO {
	if u == nil {
		return nil
	}

	movements := make([]UnitMovementDTO, 0, len(u.Movements))
	for _, m := range u.Movements {
		movements = append(movements, UnitMovementDTO{
			FromStatus:     string(m.FromStatus),
			ToStatus:       string(m.ToStatus),
			FromLocationID: m.FromLocationID,
			ToLocationID:   m.ToLocationID,
			TransactionID:  m.TransactionID,
			Reason:         m.Reason,
			MovedAt:        m.MovedAt,
			MovedBy:        m.MovedBy,
		})
	}

	return &InventoryUnitDTO{
		ID:                  u.ID,
		InventoryCode:       u.InventoryCode,
		SerialNumber:        u.SerialNumber,
		SKUID:               u.SKUID,
		LocationID:          u.LocationID,
		Status:              string(u.Status),
		ConditionGrade:      string(u.ConditionGrade),
		PurchaseCost:        u.PurchaseCost,
		CurrentValue:        u.CurrentValue,
		HeldByTransactionID: u.HeldByTransactionID,
		RentalCount:         u.RentalCount,
		TotalRentalDays:     u.TotalRentalDays,
		LastInspectionDate:  u.LastInspectionDate,
		RequiresInspection:  u.RequiresInspection(),
		IsActive:            u.IsActive,
		Notes:               u.Notes,
		Movements:           movements,
		UpdatedAt:           u.UpdatedAt,
	}
}

// ToInventoryUnitDTOs converts a slice of units
func ToInventoryUnitDTOs(units []*domain.InventoryUnit) []InventoryUnitDTO {
	dtos := make([]InventoryUnitDTO, 0, len(units))
	for _, u := range units {
		dtos = append(dtos, *ToInventoryUnitDTO(u))
	}
	return dtos
}

// ToStockLevelDTO converts a domain StockLevel to StockLevelDTO
func ToStockLevelDTO(s *domain.StockLevel) *StockLevelDTO {
	if s == nil {
		return nil
	}
	return &StockLevelDTO{
		SKUID:             s.SKUID,
		LocationID:        s.LocationID,
		QuantityOnHand:    s.QuantityOnHand,
		QuantityAvailable: s.QuantityAvailable,
		QuantityReserved:  s.QuantityReserved,
		QuantityInTransit: s.QuantityInTransit,
		QuantityDamaged:   s.QuantityDamaged,
		QuantityOnRent:    s.QuantityOnRent,
		ReorderPoint:      s.ReorderPoint,
		ReorderQuantity:   s.ReorderQuantity,
		MaximumStock:      s.MaximumStock,
		NeedsReorder:      s.NeedsReorder(),
		SuggestedOrder:    s.SuggestedOrderQuantity(),
		LastMovementAt:    s.LastMovementAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

// ToStockLevelDTOs converts a slice of stock levels
func ToStockLevelDTOs(levels []*domain.StockLevel) []StockLevelDTO {
	dtos := make([]StockLevelDTO, 0, len(levels))
	for _, s := range levels {
		dtos = append(dtos, *ToStockLevelDTO(s))
	}
	return dtos
}

// ToRentalReturnDTO converts a domain RentalReturn to RentalReturnDTO
func ToRentalReturnDTO(r *domain.RentalReturn) *RentalReturnDTO {
	if r == nil {
		return nil
	}

	lines := make([]RentalReturnLineDTO, 0, len(r.Lines))
	for _, l := range r.Lines {
		lines = append(lines, RentalReturnLineDTO{
			ID:                l.ID,
			TransactionLineID: l.TransactionLineID,
			InventoryUnitID:   l.InventoryUnitID,
			ReturnedUnitIDs:   l.ReturnedUnitIDs,
			OriginalQuantity:  l.OriginalQuantity,
			ReturnedQuantity:  l.ReturnedQuantity,
			DamagedQuantity:   l.DamagedQuantity,
			RemainingQuantity: l.RemainingQuantity(),
			ConditionGrade:    string(l.ConditionGrade),
			LateFee:           l.LateFee,
			DamageFee:         l.DamageFee,
			CleaningFee:       l.CleaningFee,
			ReplacementFee:    l.ReplacementFee,
			TotalFees:         l.TotalFees(),
			IsProcessed:       l.IsProcessed,
			Notes:             l.Notes,
		})
	}

	return &RentalReturnDTO{
		ID:                    r.ID,
		RentalTransactionID:   r.RentalTransactionID,
		ReturnDate:            r.ReturnDate,
		ExpectedReturnDate:    r.ExpectedReturnDate,
		DaysLate:              r.DaysLate(),
		ReturnType:            string(r.ReturnType),
		ReturnStatus:          string(r.ReturnStatus),
		TotalLateFee:          r.TotalLateFee,
		TotalDamageFee:        r.TotalDamageFee,
		TotalCleaningFee:      r.TotalCleaningFee,
		TotalReplacementFee:   r.TotalReplacementFee,
		TotalFees:             r.TotalFees(),
		DepositReleased:       r.DepositReleased,
		DepositReleaseAmount:  r.DepositReleaseAmount,
		DepositWithheldAmount: r.DepositWithheldAmount,
		DepositReleaseDate:    r.DepositReleaseDate,
		DepositReversalReason: r.DepositReversalReason,
		DepositReversedBy:     r.DepositReversedBy,
		DepositReversedAt:     r.DepositReversedAt,
		ProcessedBy:           r.ProcessedBy,
		FinalizedBy:           r.FinalizedBy,
		FinalizedAt:           r.FinalizedAt,
		Notes:                 r.Notes,
		Lines:                 lines,
		Version:               r.Version,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
}

// ToRentalReturnDTOs converts a slice of returns
func ToRentalReturnDTOs(returns []*domain.RentalReturn) []RentalReturnDTO {
	dtos := make([]RentalReturnDTO, 0, len(returns))
	for _, r := range returns {
		dtos = append(dtos, *ToRentalReturnDTO(r))
	}
	return dtos
}

// ToInspectionReportDTO converts a domain InspectionReport to InspectionReportDTO
func ToInspectionReportDTO(r *domain.InspectionReport) *InspectionReportDTO {
	if r == nil {
		return nil
	}

	findings := make([]DamageFindingDTO, 0, len(r.Findings))
	for _, f := range r.Findings {
		findings = append(findings, DamageFindingDTO{
			ID:                f.ID,
			ReturnLineID:      f.ReturnLineID,
			ItemDescription:   f.ItemDescription,
			DamageDescription: f.DamageDescription,
			Severity:          string(f.Severity),
			EstimatedCost:     f.EstimatedCost,
			Photos:            f.Photos,
		})
	}

	return &InspectionReportDTO{
		ID:              r.ID,
		ReturnID:        r.ReturnID,
		InspectorID:     r.InspectorID,
		InspectionDate:  r.InspectionDate,
		Status:          string(r.Status),
		DamageFound:     r.DamageFound,
		Findings:        findings,
		AssessedLineIDs: r.AssessedLineIDs,
		TotalDamageCost: r.TotalDamageCost,
		ApprovedBy:      r.ApprovedBy,
		ApprovedAt:      r.ApprovedAt,
		RejectionReason: r.RejectionReason,
		Notes:           r.Notes,
	}
}

package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rental-platform/rental-service/internal/domain"
)

type transactionRepository struct {
	tx *tableTx[domain.TransactionHeader]
}

func (r *transactionRepository) Save(_ context.Context, t *domain.TransactionHeader) error {
	return r.tx.save(t)
}

func (r *transactionRepository) FindByID(_ context.Context, id string) (*domain.TransactionHeader, error) {
	return r.tx.get(id)
}

func (r *transactionRepository) FindByNumber(_ context.Context, number string) (*domain.TransactionHeader, error) {
	rows, err := r.tx.find(func(t *domain.TransactionHeader) bool { return t.TransactionNumber == number })
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (r *transactionRepository) List(_ context.Context, f domain.TransactionFilter) ([]*domain.TransactionHeader, int64, error) {
	rows, err := r.tx.find(func(t *domain.TransactionHeader) bool { return matchesTransaction(t, f) })
	if err != nil {
		return nil, 0, err
	}
	sortTransactions(rows, f.SortField, f.SortDescending)
	total := int64(len(rows))
	return page(rows, f.Offset, f.Limit), total, nil
}

func (r *transactionRepository) FindOverdueRentals(_ context.Context, asOf time.Time, locationID string) ([]*domain.TransactionHeader, error) {
	rows, err := r.tx.find(func(t *domain.TransactionHeader) bool {
		return !t.IsDeleted && t.IsOverdue(asOf) && (locationID == "" || t.LocationID == locationID)
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].RentalEndDate.Before(*rows[j].RentalEndDate) })
	return rows, nil
}

func matchesTransaction(t *domain.TransactionHeader, f domain.TransactionFilter) bool {
	switch {
	case t.IsDeleted && !f.IncludeDeleted:
		return false
	case f.TransactionType != "" && t.TransactionType != f.TransactionType:
		return false
	case f.Status != "" && t.Status != f.Status:
		return false
	case f.PaymentStatus != "" && t.PaymentStatus != f.PaymentStatus:
		return false
	case f.CustomerID != "" && t.CustomerID != f.CustomerID:
		return false
	case f.LocationID != "" && t.LocationID != f.LocationID:
		return false
	case f.From != nil && t.TransactionDate.Before(*f.From):
		return false
	case f.To != nil && t.TransactionDate.After(*f.To):
		return false
	}
	return true
}

func sortTransactions(rows []*domain.TransactionHeader, field string, descending bool) {
	less := func(a, b *domain.TransactionHeader) bool {
		switch field {
		case "transactionNumber":
			return a.TransactionNumber < b.TransactionNumber
		case "totalAmount":
			return a.TotalAmount.LessThan(b.TotalAmount)
		case "createdAt":
			return a.CreatedAt.Before(b.CreatedAt)
		case "updatedAt":
			return a.UpdatedAt.Before(b.UpdatedAt)
		default:
			return a.TransactionDate.Before(b.TransactionDate)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if descending {
			return less(rows[j], rows[i])
		}
		return less(rows[i], rows[j])
	})
}

// page applies offset and limit; a zero limit returns everything after offset
func page[T any](rows []T, offset, limit int) []T {
	if offset >= len(rows) {
		return rows[:0]
	}
	if offset > 0 {
		rows = rows[offset:]
	}
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}

type unitRepository struct {
	tx *tableTx[domain.InventoryUnit]
}

func (r *unitRepository) Save(_ context.Context, u *domain.InventoryUnit) error {
	if u.SerialNumber != "" {
		dups, err := r.tx.find(func(other *domain.InventoryUnit) bool {
			return other.ID != u.ID && strings.EqualFold(other.SerialNumber, u.SerialNumber)
		})
		if err != nil {
			return err
		}
		if len(dups) > 0 {
			return duplicateKey("inventory unit", "serialNumber", u.SerialNumber)
		}
	}
	return r.tx.save(u)
}

func (r *unitRepository) FindByID(_ context.Context, id string) (*domain.InventoryUnit, error) {
	return r.tx.get(id)
}

func (r *unitRepository) FindByIDs(_ context.Context, ids []string) ([]*domain.InventoryUnit, error) {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	return r.tx.find(func(u *domain.InventoryUnit) bool { return wanted[u.ID] })
}

func (r *unitRepository) FindBySerialNumber(_ context.Context, serial string) (*domain.InventoryUnit, error) {
	rows, err := r.tx.find(func(u *domain.InventoryUnit) bool {
		return u.SerialNumber != "" && strings.EqualFold(u.SerialNumber, serial)
	})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (r *unitRepository) FindByTransaction(_ context.Context, transactionID string) ([]*domain.InventoryUnit, error) {
	return r.tx.find(func(u *domain.InventoryUnit) bool { return u.HeldByTransactionID == transactionID })
}

func (r *unitRepository) FindAvailable(_ context.Context, skuID, locationID string, status domain.InventoryStatus, limit int) ([]*domain.InventoryUnit, error) {
	rows, err := r.tx.find(func(u *domain.InventoryUnit) bool {
		return u.IsActive && u.SKUID == skuID && u.LocationID == locationID && u.Status == status
	})
	if err != nil {
		return nil, err
	}
	sortUnitsOldestFirst(rows)
	return page(rows, 0, limit), nil
}

func (r *unitRepository) List(_ context.Context, f domain.UnitFilter) ([]*domain.InventoryUnit, int64, error) {
	rows, err := r.tx.find(func(u *domain.InventoryUnit) bool {
		switch {
		case f.ActiveOnly && !u.IsActive:
			return false
		case f.SKUID != "" && u.SKUID != f.SKUID:
			return false
		case f.LocationID != "" && u.LocationID != f.LocationID:
			return false
		case f.Status != "" && u.Status != f.Status:
			return false
		}
		return true
	})
	if err != nil {
		return nil, 0, err
	}
	sortUnitsOldestFirst(rows)
	return page(rows, f.Offset, f.Limit), int64(len(rows)), nil
}

func sortUnitsOldestFirst(rows []*domain.InventoryUnit) {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.Before(rows[j].CreatedAt)
		}
		return rows[i].InventoryCode < rows[j].InventoryCode
	})
}

type stockLevelRepository struct {
	tx *tableTx[domain.StockLevel]
}

func (r *stockLevelRepository) Save(_ context.Context, s *domain.StockLevel) error {
	dups, err := r.tx.find(func(other *domain.StockLevel) bool {
		return other.ID != s.ID && other.SKUID == s.SKUID && other.LocationID == s.LocationID
	})
	if err != nil {
		return err
	}
	if len(dups) > 0 {
		return duplicateKey("stock level", "skuId+locationId", s.SKUID+"/"+s.LocationID)
	}
	return r.tx.save(s)
}

func (r *stockLevelRepository) FindBySKUAndLocation(_ context.Context, skuID, locationID string) (*domain.StockLevel, error) {
	rows, err := r.tx.find(func(s *domain.StockLevel) bool { return s.SKUID == skuID && s.LocationID == locationID })
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (r *stockLevelRepository) FindBySKU(_ context.Context, skuID string) ([]*domain.StockLevel, error) {
	rows, err := r.tx.find(func(s *domain.StockLevel) bool { return s.SKUID == skuID })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].LocationID < rows[j].LocationID })
	return rows, nil
}

func (r *stockLevelRepository) FindLowStock(_ context.Context, locationID string) ([]*domain.StockLevel, error) {
	rows, err := r.tx.find(func(s *domain.StockLevel) bool {
		return s.IsActive && s.ReorderPoint > 0 && s.NeedsReorder() && (locationID == "" || s.LocationID == locationID)
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].LocationID != rows[j].LocationID {
			return rows[i].LocationID < rows[j].LocationID
		}
		return rows[i].SKUID < rows[j].SKUID
	})
	return rows, nil
}

type returnRepository struct {
	tx *tableTx[domain.RentalReturn]
}

func (r *returnRepository) Save(_ context.Context, ret *domain.RentalReturn) error {
	return r.tx.save(ret)
}

func (r *returnRepository) FindByID(_ context.Context, id string) (*domain.RentalReturn, error) {
	return r.tx.get(id)
}

func (r *returnRepository) FindByTransaction(_ context.Context, transactionID string) ([]*domain.RentalReturn, error) {
	rows, err := r.tx.find(func(ret *domain.RentalReturn) bool { return ret.RentalTransactionID == transactionID })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].CreatedAt.Before(rows[j].CreatedAt) })
	return rows, nil
}

type inspectionRepository struct {
	tx *tableTx[domain.InspectionReport]
}

func (r *inspectionRepository) Save(_ context.Context, report *domain.InspectionReport) error {
	return r.tx.save(report)
}

func (r *inspectionRepository) FindByID(_ context.Context, id string) (*domain.InspectionReport, error) {
	return r.tx.get(id)
}

func (r *inspectionRepository) FindByReturn(_ context.Context, returnID string) ([]*domain.InspectionReport, error) {
	rows, err := r.tx.find(func(report *domain.InspectionReport) bool { return report.ReturnID == returnID })
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].InspectionDate.Before(rows[j].InspectionDate) })
	return rows, nil
}

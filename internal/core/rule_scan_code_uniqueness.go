package core

import (
	"context"
	"fmt"

	"equiploan/pkg/domain"
)

// NewScanCodeUniquenessRule keeps serial numbers and QR values unambiguous across
// non-archived items so a scan resolves to exactly one item.
func NewScanCodeUniquenessRule() domain.Rule {
	return scanCodeUniquenessRule{}
}

type scanCodeUniquenessRule struct{}

func (scanCodeUniquenessRule) Name() string { return "scan_code_uniqueness" }

func (scanCodeUniquenessRule) Evaluate(_ context.Context, view domain.View, changes []domain.Change) (domain.Result, error) {
	var touched []domain.Item
	for _, change := range changes {
		if change.Entity != domain.EntityItem {
			continue
		}
		if item, ok := changeValue[domain.Item](change.After); ok && item.Status != domain.ItemArchived {
			touched = append(touched, item)
		}
	}
	if len(touched) == 0 {
		return domain.Result{}, nil
	}

	owners := make(map[string][]string)
	for _, item := range view.ListItems() {
		if item.Status == domain.ItemArchived {
			continue
		}
		for _, code := range scanCodes(item) {
			owners[code] = append(owners[code], item.ID)
		}
	}

	res := domain.Result{}
	reported := make(map[string]struct{})
	for _, item := range touched {
		for _, code := range scanCodes(item) {
			ids := owners[code]
			if len(ids) < 2 {
				continue
			}
			if _, done := reported[code]; done {
				continue
			}
			reported[code] = struct{}{}
			res.Violations = append(res.Violations, blocking("scan_code_uniqueness", domain.EntityItem, item.ID,
				fmt.Sprintf("scan code %q is shared by items %v", code, ids)))
		}
	}
	return res, nil
}

// scanCodes returns the distinct non-empty codes an item answers to.
func scanCodes(item domain.Item) []string {
	switch {
	case item.SerialNumber == "" && item.QRCodeValue == "":
		return nil
	case item.QRCodeValue == "" || item.QRCodeValue == item.SerialNumber:
		return []string{item.SerialNumber}
	case item.SerialNumber == "":
		return []string{item.QRCodeValue}
	}
	return []string{item.SerialNumber, item.QRCodeValue}
}

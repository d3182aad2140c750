package storage

import "github.com/vietddude/payverify/internal/core/domain"

// PrependRecord returns list with any record sharing rec.ID removed, rec at
// the front, and at most limit entries. A non-positive limit means unbounded.
func PrependRecord(list []domain.TransferRecord, rec domain.TransferRecord, limit int) []domain.TransferRecord {
	out := make([]domain.TransferRecord, 0, len(list)+1)
	out = append(out, rec)
	for _, r := range list {
		if r.ID == rec.ID {
			continue
		}
		out = append(out, r)
	}
	return Truncate(out, limit)
}

// Truncate keeps the first limit records.
func Truncate(list []domain.TransferRecord, limit int) []domain.TransferRecord {
	if limit > 0 && len(list) > limit {
		return list[:limit]
	}
	return list
}

package license

import "time"

// DefaultCatalog is written to an empty store on first use.
func DefaultCatalog(now time.Time) []LicenseRecord {
	now = now.UTC()
	record := func(id, code, label string, typ LicenseType, duration *int, status RecordStatus, notes string) LicenseRecord {
		return LicenseRecord{
			ID:           id,
			Code:         code,
			Label:        label,
			Type:         typ,
			Status:       status,
			DurationDays: duration,
			Notes:        notes,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
	}

	return []LicenseRecord{
		record("lic-default-1", "SELLERPRO-2025", "Annual Premium License",
			LicenseTypePremium, intPtr(365), RecordStatusActive,
			"Full access to every calculator for 12 months."),
		record("lic-default-2", "SELLER-TRIAL-7", "7-Day Premium Trial",
			LicenseTypeTrial, intPtr(7), RecordStatusActive,
			"Standard trial for new customers."),
		record("lic-default-3", "PREMIUM-999", "Lifetime License 999",
			LicenseTypePremium, nil, RecordStatusInactive,
			"Enable manually for the lifetime promo."),
	}
}

package license

import "time"

// Evaluate derives the entitlement of act against catalog at now. It
// reads nothing else, so the same inputs always give the same status.
//
// The checks run in order: no activation is inactive, an unknown code is
// invalid, a switched-off record is disabled, a passed expiry is expired,
// and anything else is active.
func Evaluate(catalog []LicenseRecord, act *ActivationRecord, now time.Time) EntitlementStatus {
	if act == nil || NormalizeCode(act.Code) == "" {
		return EntitlementStatus{State: StateInactive}
	}

	status := EntitlementStatus{
		State: StateInvalid,
		Code:  NormalizeCode(act.Code),
	}
	if !act.ActivatedAt.IsZero() {
		activatedAt := act.ActivatedAt
		status.ActivatedAt = &activatedAt
	}

	idx := FindByCode(catalog, status.Code)
	if idx < 0 {
		return status
	}
	rec := catalog[idx].Clone()
	status.LicenseType = rec.Type
	status.LicenseLabel = rec.Label
	status.DurationDays = rec.DurationDays
	status.Notes = rec.Notes
	status.IsTrial = rec.IsTrial()

	if rec.Status != RecordStatusActive {
		status.State = StateDisabled
		return status
	}

	status.ExpiresAt = rec.ExpiresAt(act.ActivatedAt)
	if status.ExpiresAt != nil && !now.Before(*status.ExpiresAt) {
		status.State = StateExpired
		return status
	}

	status.State = StateActive
	status.Active = true
	if status.ExpiresAt != nil {
		status.DaysRemaining = intPtr(DaysRemaining(*status.ExpiresAt, now))
	}
	return status
}

// DaysRemaining rounds the time left up to whole days, never below zero.
func DaysRemaining(expiresAt, now time.Time) int {
	if !expiresAt.After(now) {
		return 0
	}
	// Work in seconds and nanoseconds; Sub saturates past ~292 years.
	const daySeconds = int64(Day / time.Second)
	secs := expiresAt.Unix() - now.Unix()
	nanos := int64(expiresAt.Nanosecond() - now.Nanosecond())
	days := secs / daySeconds
	if (secs%daySeconds)*int64(time.Second)+nanos > 0 {
		days++
	}
	return int(days)
}

package extract

// Critical reports whether any vital crosses a fixed absolute threshold.
// Thresholds are age-independent; age-banded comparison is a separate
// concern handled with evidence.
func (v Vitals) Critical() bool {
	if v.SpO2 != nil && *v.SpO2 < 90 {
		return true
	}
	if v.SBP != nil && *v.SBP < 90 {
		return true
	}
	if v.RR != nil && *v.RR >= 30 {
		return true
	}
	if v.HR != nil && *v.HR >= 130 {
		return true
	}
	if v.TempF != nil && *v.TempF >= 104 {
		return true
	}
	return false
}

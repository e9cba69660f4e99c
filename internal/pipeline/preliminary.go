package pipeline

// DerivePreliminary maps red flags and resource count to a preliminary
// acuity level. Pure function: red flags force level 2 regardless of
// resources; otherwise 2+ resources is level 3, one is 4, none is 5.
func DerivePreliminary(hasRedFlags bool, resourceCount int) int {
	if hasRedFlags {
		return 2
	}
	switch {
	case resourceCount >= 2:
		return 3
	case resourceCount == 1:
		return 4
	default:
		return 5
	}
}

// ClampForCriticalVitals escalates the preliminary level to at most 2 when
// any vital crossed a critical threshold. Critical vitals can only lower
// the number (raise severity), never raise it.
func ClampForCriticalVitals(level int, critical bool) int {
	if critical && level > 2 {
		return 2
	}
	return level
}

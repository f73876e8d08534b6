package params

const (
	// ParamsKeyPauses stores the module pause configuration.
	ParamsKeyPauses = "system/pauses"
	// ParamsKeyAllocations stores the allocation ledger limits.
	ParamsKeyAllocations = "allocations/params"
	// ParamsKeyGrants stores the vesting engine limits.
	ParamsKeyGrants = "grants/params"
)

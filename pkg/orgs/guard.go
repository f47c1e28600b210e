package orgs

// DefaultLimits maps a plan tier to its limit vector
func DefaultLimits(tier PlanTier) *PlanLimits {
	switch tier {
	case PlanPro:
		return &PlanLimits{
			MaxStorageBytes:       50 * 1024 * 1024 * 1024, // 50 GB
			MaxProcessedDocuments: 100000,
		}
	case PlanEnterprise:
		return &PlanLimits{
			MaxStorageBytes:       1024 * 1024 * 1024 * 1024, // 1 TB
			MaxProcessedDocuments: 5000000,
		}
	case PlanCustom:
		return &PlanLimits{
			MaxStorageBytes:       10 * 1024 * 1024 * 1024 * 1024, // 10 TB
			MaxProcessedDocuments: 100000000,
		}
	default: // free
		return &PlanLimits{
			MaxStorageBytes:       1024 * 1024 * 1024, // 1 GB
			MaxProcessedDocuments: 1000,
		}
	}
}

// CheckUsage is the usage guard: it compares a usage snapshot against plan
// limits and returns nil when every dimension is at or under its threshold.
// Usage exactly equal to the limit is allowed; strictly greater is denied.
// Pure function: callers must evaluate it before any state mutation.
func CheckUsage(usage *Usage, limits *PlanLimits) error {
	if usage.StorageBytes > limits.MaxStorageBytes {
		return &QuotaExceededError{
			Dimension: "storage_bytes",
			Current:   usage.StorageBytes,
			Limit:     limits.MaxStorageBytes,
		}
	}

	if usage.ProcessedDocuments > limits.MaxProcessedDocuments {
		return &QuotaExceededError{
			Dimension: "processed_documents",
			Current:   usage.ProcessedDocuments,
			Limit:     limits.MaxProcessedDocuments,
		}
	}

	return nil
}

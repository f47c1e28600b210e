package orgs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckUsage_UnderLimits(t *testing.T) {
	usage := &Usage{StorageBytes: 100, ProcessedDocuments: 10}
	limits := &PlanLimits{MaxStorageBytes: 1000, MaxProcessedDocuments: 100}

	assert.NoError(t, CheckUsage(usage, limits))
}

func TestCheckUsage_ExactlyAtLimitIsAllowed(t *testing.T) {
	usage := &Usage{StorageBytes: 1000, ProcessedDocuments: 100}
	limits := &PlanLimits{MaxStorageBytes: 1000, MaxProcessedDocuments: 100}

	assert.NoError(t, CheckUsage(usage, limits))
}

func TestCheckUsage_StorageOverLimit(t *testing.T) {
	usage := &Usage{StorageBytes: 1001, ProcessedDocuments: 0}
	limits := &PlanLimits{MaxStorageBytes: 1000, MaxProcessedDocuments: 100}

	err := CheckUsage(usage, limits)
	require.Error(t, err)
	assert.True(t, IsQuotaExceeded(err))

	quotaErr, ok := err.(*QuotaExceededError)
	require.True(t, ok)
	assert.Equal(t, "storage_bytes", quotaErr.Dimension)
	assert.Equal(t, int64(1001), quotaErr.Current)
	assert.Equal(t, int64(1000), quotaErr.Limit)
}

func TestCheckUsage_DocumentsOverLimit(t *testing.T) {
	usage := &Usage{StorageBytes: 0, ProcessedDocuments: 101}
	limits := &PlanLimits{MaxStorageBytes: 1000, MaxProcessedDocuments: 100}

	err := CheckUsage(usage, limits)
	require.Error(t, err)

	quotaErr, ok := err.(*QuotaExceededError)
	require.True(t, ok)
	assert.Equal(t, "processed_documents", quotaErr.Dimension)
}

func TestCheckUsage_AnyDimensionOverDenies(t *testing.T) {
	limits := &PlanLimits{MaxStorageBytes: 1000, MaxProcessedDocuments: 100}

	cases := []struct {
		name  string
		usage Usage
		allow bool
	}{
		{"both zero", Usage{}, true},
		{"both at limit", Usage{StorageBytes: 1000, ProcessedDocuments: 100}, true},
		{"storage over", Usage{StorageBytes: 1001, ProcessedDocuments: 100}, false},
		{"documents over", Usage{StorageBytes: 1000, ProcessedDocuments: 101}, false},
		{"both over", Usage{StorageBytes: 2000, ProcessedDocuments: 200}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckUsage(&tc.usage, limits)
			if tc.allow {
				assert.NoError(t, err)
			} else {
				assert.True(t, IsQuotaExceeded(err))
			}
		})
	}
}

func TestDefaultLimits_TiersAreOrdered(t *testing.T) {
	free := DefaultLimits(PlanFree)
	pro := DefaultLimits(PlanPro)
	enterprise := DefaultLimits(PlanEnterprise)

	assert.Less(t, free.MaxStorageBytes, pro.MaxStorageBytes)
	assert.Less(t, pro.MaxStorageBytes, enterprise.MaxStorageBytes)
	assert.Less(t, free.MaxProcessedDocuments, pro.MaxProcessedDocuments)
	assert.Less(t, pro.MaxProcessedDocuments, enterprise.MaxProcessedDocuments)
}

func TestDefaultLimits_UnknownTierFallsBackToFree(t *testing.T) {
	assert.Equal(t, DefaultLimits(PlanFree), DefaultLimits(PlanTier("unknown")))
}

package backend

import (
	"strings"
)

// TenantField is the keyword field holding the tenant of a document when the
// discriminator strategy is used.
const TenantField = "searchmap_tenant"

const tenantSeparator = "/"

// Tenancy resolves tenant identifiers for one index.
type Tenancy struct {
	Enabled bool
}

// Check validates the tenant of an operation: multi-tenant indexes require one,
// single-tenant indexes ignore it.
func (t Tenancy) Check(tenantID string) (string, error) {
	if !t.Enabled {
		return "", nil
	}
	if tenantID == "" {
		return "", ErrMissingTenant
	}
	return tenantID, nil
}

// DocumentID returns the engine-level identifier of a document. Tenants of a
// multi-tenant index share the identifier space, so the tenant is prepended.
func (t Tenancy) DocumentID(tenantID, id string) string {
	if !t.Enabled {
		return id
	}
	return tenantID + tenantSeparator + id
}

// DocumentIDs applies DocumentID to every id.
func (t Tenancy) DocumentIDs(tenantID string, ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = t.DocumentID(tenantID, id)
	}
	return out
}

// StripDocumentID reverts DocumentID.
func (t Tenancy) StripDocumentID(tenantID, engineID string) string {
	if !t.Enabled {
		return engineID
	}
	return strings.TrimPrefix(engineID, tenantID+tenantSeparator)
}

package sharecatalog

import "time"

// CreateShareRequest is the request for CreateShare.
type CreateShareRequest struct {
	Tenant      string
	ShareName   string
	Comment     string
	CreateOn    time.Time
	IfNotExists bool
}

// CreateShareReply carries the (possibly pre-existing, under IfNotExists)
// share id.
type CreateShareReply struct {
	ShareID uint64
}

// DropShareRequest is the request for DropShare.
type DropShareRequest struct {
	Tenant    string
	ShareName string
	IfExists  bool
}

// DropShareReply is empty; drop_share has no payload on success.
type DropShareReply struct{}

// AddShareTenantsRequest is the request for AddShareTenants.
type AddShareTenantsRequest struct {
	Tenant    string
	ShareName string
	Accounts  []string
	ShareOn   time.Time
}

// AddShareTenantsReply is empty on success.
type AddShareTenantsReply struct{}

// RemoveShareTenantsRequest is the request for RemoveShareTenants.
type RemoveShareTenantsRequest struct {
	Tenant    string
	ShareName string
	Accounts  []string
}

// RemoveShareTenantsReply is empty on success.
type RemoveShareTenantsReply struct{}

// GrantShareObjectRequest is the request for GrantShareObject.
type GrantShareObjectRequest struct {
	Tenant     string
	ShareName  string
	Object     ObjectName
	Privileges ShareGrantPrivilege
	GrantOn    time.Time
}

// GrantShareObjectReply is empty on success (including the no-op case).
type GrantShareObjectReply struct{}

// RevokeShareObjectRequest is the request for RevokeShareObject.
type RevokeShareObjectRequest struct {
	Tenant     string
	ShareName  string
	Object     ObjectName
	Privileges ShareGrantPrivilege
	UpdateOn   time.Time
}

// RevokeShareObjectReply is empty on success (including the no-op case).
type RevokeShareObjectReply struct{}

// GetShareGrantObjectsRequest is the request for GetShareGrantObjects.
type GetShareGrantObjectsRequest struct {
	Tenant    string
	ShareName string
}

// ShareGrantObjectInfo is one resolved grant entry, name included.
type ShareGrantObjectInfo struct {
	Object     ShareGrantObject
	Name       string // "db" for a database grant, "db.table" for a table grant
	Privileges ShareGrantPrivilege
	GrantOn    time.Time
}

// GetShareGrantObjectsReply lists every resolvable grant entry of a share,
// database entry included (per SPEC_FULL.md §10).
type GetShareGrantObjectsReply struct {
	Objects []ShareGrantObjectInfo
}

// GetGrantTenantsOfShareRequest is the request for GetGrantTenantsOfShare.
type GetGrantTenantsOfShareRequest struct {
	Tenant    string
	ShareName string
}

// GetGrantTenantsOfShareReply lists the share's current recipient accounts.
type GetGrantTenantsOfShareReply struct {
	Accounts []string
}

// GetGrantPrivilegesOfObjectRequest is the request for
// GetGrantPrivilegesOfObject.
type GetGrantPrivilegesOfObjectRequest struct {
	Tenant string
	Object ObjectName
}

// ShareGrantOfObject is one share's grant on a particular object.
type ShareGrantOfObject struct {
	ShareName  string
	Privileges ShareGrantPrivilege
	GrantOn    time.Time
}

// GetGrantPrivilegesOfObjectReply lists every share grant on an object.
type GetGrantPrivilegesOfObjectReply struct {
	Grants []ShareGrantOfObject
}

// ShowSharesRequest is the request for ShowShares.
type ShowSharesRequest struct {
	Tenant string
}

// OutboundShareInfo describes a share owned by the requesting tenant.
type OutboundShareInfo struct {
	ShareName string
	Database  string // empty if nothing is shared yet, or if it could not be resolved
	Accounts  []string
}

// InboundShareInfo describes a share owned by another tenant in which the
// requesting tenant is a listed account.
type InboundShareInfo struct {
	ShareName   string
	OwnerTenant string
}

// ShowSharesReply is the combined outbound/inbound view.
type ShowSharesReply struct {
	OutboundAccounts []OutboundShareInfo
	InboundAccounts  []InboundShareInfo
}

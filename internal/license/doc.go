// Package license implements the license catalog and entitlement engine
// for the seller tools.
//
// # Architecture Overview
//
// The engine consists of several components:
//
//	- CatalogStore: persists the normalized catalog and seeds defaults
//	- ActivationManager: owns the per-installation activation record
//	- Evaluate: pure state machine deriving the entitlement status
//	- Export/Decode: the transfer string used to sync two catalogs
//	- Bus: synchronous notification of catalog and status changes
//	- Engine: the facade every surface calls
//
// # Entitlement States
//
// Evaluate checks, in order:
//
//	1. no activation         -> inactive
//	2. code not in catalog   -> invalid
//	3. record switched off   -> disabled
//	4. expiry reached        -> expired
//	5. otherwise             -> active
//
// # Sync
//
// ExportCatalog produces a base64 string of the catalog as JSON.
// ImportCatalog accepts that string (or plain JSON) and either replaces
// the catalog or merges it by code:
//
//	text, _ := engine.ExportCatalog(ctx, license.ExportFormatBase64)
//	res := other.ImportCatalog(ctx, text, license.ImportModeMerge)
//
// Merging keeps the id of an existing record so an activation that
// references its code keeps working.
package license

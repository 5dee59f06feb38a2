// Package azure implements an alternate transport backend that
// dispatches chunks as Azure Block Blob StageBlock calls, with merge
// as CommitBlockList, instead of the generic precheck/chunk/merge HTTP
// endpoints.
package azure

// Config configures the Azure backend. ServiceURL and Container are
// required; AccountName/AccountKey are optional — when either is empty,
// the client is built with no credential, so ServiceURL has to carry a
// SAS token. No default credential chain is consulted.
type Config struct {
	ServiceURL  string // e.g. "https://<account>.blob.core.windows.net"
	Container   string
	AccountName string
	AccountKey  string
}

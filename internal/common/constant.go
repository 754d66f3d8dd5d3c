package common

const (
	// SharedFolder is the only top-level folder listed at the vault root.
	SharedFolder = "shared"

	// HiddenPrefix marks names that are never listed, walked or encrypted.
	HiddenPrefix = "."

	// LockFileName is the marker that turns a directory into a lock boundary.
	LockFileName = ".locked"

	// SessionInfoName is the side-car record inside an upload session directory.
	SessionInfoName = ".vinfo"

	// KeyHeaderName carries the folder key on read requests.
	KeyHeaderName = "Vault-Key"

	// APIKeyHeaderName carries the static API key.
	APIKeyHeaderName = "X-Api-Key"

	// APIKeyMetadataName carries the static API key on gRPC calls.
	APIKeyMetadataName = "api_key"
)

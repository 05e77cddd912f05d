package config

const (
	// Filesystem paths. apphost normally runs inside a notebook/cloud
	// environment where PlatformProbe supplies BasePath; these are the
	// fallbacks used when no platform override applies.
	DefaultConfigPath = "/etc/apphost/config.yml"
	DefaultDataDir    = "/var/lib/apphost"
	DefaultLogDir     = "/var/log/apphost"

	// Catalog defaults. The catalog itself is an external collaborator
	// (spec §1); apphost only needs to know where to fetch its JSON from.
	DefaultCatalogURL    = "https://raw.githubusercontent.com/apphost/apphost-catalog/main/apps.json"
	DefaultCatalogBranch = "main"

	// Catalog refresh schedules.
	RefreshDaily  = "daily"
	RefreshWeekly = "weekly"
	RefreshManual = "manual"

	// EnvProvisioner backend names.
	BackendCondaClass = "conda"
	BackendVenvClass  = "venv"

	// TunnelAuthEnvVar is the well-known fallback environment variable for
	// TunnelBroker credentials, per spec §6.
	TunnelAuthEnvVar = "TUNNEL_AUTH_TOKEN"
)

package config

// EnvPrefix scopes envconfig lookups; individual fields carry explicit names.
const EnvPrefix = "PROPOSALHUB"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "PROPOSALHUB_DB_DSN"
	EnvDBHost = "PROPOSALHUB_DB_HOST"
	EnvDBUser = "PROPOSALHUB_DB_USER"
	EnvDBName = "PROPOSALHUB_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

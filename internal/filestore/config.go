package filestore

// Provider identifies the object storage backend.
type Provider string

const (
	ProviderLocal    Provider = "local"
	ProviderMinIO    Provider = "minio"
	ProviderS3       Provider = "s3"
	ProviderPostgres Provider = "postgres"
	ProviderMySQL    Provider = "mysql"
	ProviderNoop     Provider = "noop"
)

// DefaultPageSize is the number of keys a driver asks for per listing page
// when Config.PageSize is zero.
const DefaultPageSize = 1000

// Config holds all settings needed to connect to an object storage backend.
type Config struct {
	// Provider is the storage backend (e.g. ProviderMinIO).
	Provider Provider `yaml:"provider" toml:"provider"`

	// Endpoint is the host:port of the storage server (MinIO), or a full
	// http(s) URL for S3-compatible services. Leave empty for AWS S3.
	Endpoint string `yaml:"endpoint" toml:"endpoint"`

	// AccessKey is the access key ID (MinIO / S3 style).
	AccessKey string `yaml:"access_key" toml:"access_key"`

	// SecretKey is the secret access key.
	SecretKey string `yaml:"secret_key" toml:"secret_key"`

	// UseSSL controls whether TLS is used for the MinIO connection.
	UseSSL bool `yaml:"use_ssl" toml:"use_ssl"`

	// Region is used by region-aware backends (e.g. AWS S3).
	Region string `yaml:"region" toml:"region"`

	// Root is the base directory of the local backend.
	Root string `yaml:"root" toml:"root"`

	// DSN is the data source name of the SQL backends.
	DSN string `yaml:"dsn" toml:"dsn"`

	// PageSize caps the keys fetched per listing page. 0 means DefaultPageSize.
	PageSize int `yaml:"page_size" toml:"page_size"`

	// Bucket is the default bucket name handed out by the stack.
	Bucket string `yaml:"bucket" toml:"bucket"`

	// Prefix, when set, scopes the default bucket to keys under it.
	Prefix string `yaml:"prefix" toml:"prefix"`
}

// DefaultConfig returns a sensible local-dev config for MinIO.
func DefaultConfig(endpoint, accessKey, secretKey string) *Config {
	return &Config{
		Provider:  ProviderMinIO,
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    false,
		PageSize:  DefaultPageSize,
	}
}

// PageSizeOrDefault returns PageSize, or DefaultPageSize when it is not positive.
func (c *Config) PageSizeOrDefault() int {
	if c == nil || c.PageSize <= 0 {
		return DefaultPageSize
	}
	return c.PageSize
}

// internal/config/model.go
//
// Typed configuration model for storedash.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                              – dotenv values,
//   • `conf/storedash.yaml`                        – primary static file,
//   • `STOREDASH_`-prefixed environment overrides  – highest precedence.
//
// String values beginning with `vault:` are references, resolved through
// the Vault client by `ResolveSecrets` after loading when `vault.enabled` is
// set.  Validation happens immediately after unmarshal; the app fails fast
// if required fields are missing.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.  Koanf ignores `yaml` tags
//     unless configured otherwise.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
//   • Oxford commas, two spaces after periods.  No em-dash.

package config

import "time"

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
	ForceHTTPS bool   `koanf:"force_https"`

	// UserHeader carries the user id set by the upstream auth proxy.
	UserHeader string `koanf:"user_header" validate:"required"`

	// GeoIPDB is an optional GeoLite2 database used to tag audit rows
	// with the client country.
	GeoIPDB string `koanf:"geoip_db" validate:"omitempty,file"`
}

//
// Backend section
//

// Backend points at the store REST API.
type Backend struct {
	BaseURL string        `koanf:"base_url" validate:"required,url"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout"  validate:"min=0"`
	Retries int           `koanf:"retries"  validate:"min=0,max=10"`

	CacheSize int           `koanf:"cache_size" validate:"min=0"`
	CacheTTL  time.Duration `koanf:"cache_ttl"  validate:"min=0"`
}

//
// Database section
//

// Database holds the MySQL DSN used for roles, permissions, and the audit
// table.  Keep the DSN in Vault (`vault:secret/storedash#dsn`) rather than
// in flat files.
type Database struct {
	DSN          string        `koanf:"dsn"            validate:"required,dsn_or_vault"`
	MaxOpenConns int           `koanf:"max_open_conns" validate:"min=0"`
	MaxIdleConns int           `koanf:"max_idle_conns" validate:"min=0"`
	ConnMaxLife  time.Duration `koanf:"conn_max_life"  validate:"min=0"`
	PingRetries  int           `koanf:"ping_retries"   validate:"min=0"`
}

//
// Forms section
//

// Forms locates the YAML form definitions.
type Forms struct {
	Dir string `koanf:"dir" validate:"required"`
}

//
// Log section
//

// Log controls the zap logger.
type Log struct {
	Level   string `koanf:"level"   validate:"omitempty,oneof=debug info warn error"`
	Console bool   `koanf:"console"`
}

//
// Vault section
//

// Vault toggles secret resolution.  Address and token come from VAULT_ADDR
// and VAULT_TOKEN.
type Vault struct {
	Enabled bool `koanf:"enabled"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.  The loader
// discovers `Root` (repo root or STOREDASH_ROOT override) so later code can
// build absolute file paths.
type Paths struct {
	Root string
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Backend  Backend  `koanf:"backend"`
	Database Database `koanf:"database"`
	Forms    Forms    `koanf:"forms"`
	Log      Log      `koanf:"log"`
	Vault    Vault    `koanf:"vault"`
	Paths    Paths    `koanf:"-"`
}

// applyDefaults fills the tunables operators rarely set.
func (c *Config) applyDefaults() {
	if c.HTTP.UserHeader == "" {
		c.HTTP.UserHeader = "X-User-ID"
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 10 * time.Second
	}
	if c.Backend.CacheSize == 0 {
		c.Backend.CacheSize = 256
	}
	if c.Backend.CacheTTL == 0 {
		c.Backend.CacheTTL = 30 * time.Second
	}
	if c.Forms.Dir == "" {
		c.Forms.Dir = "forms"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

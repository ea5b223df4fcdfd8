// Package config loads opgraph settings from a TOML file and OPGRAPH_*
// environment variables.
//
//	[engine]
//	camel_case = true
//	max_depth = 8
//
//	[server]
//	addr = ":8080"
//	timeout = "10s"
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Engine   Engine   `toml:"engine"`
	Server   Server   `toml:"server"`
	OTel     OTel     `toml:"otel"`
	Metrics  Metrics  `toml:"metrics"`
	Postgres Postgres `toml:"postgres"`
	Redis    Redis    `toml:"redis"`
	GRPC     GRPC     `toml:"grpc"`
}

type Engine struct {
	// CamelCase emits lowerCamel field and argument names.
	CamelCase bool `toml:"camel_case"`
	// GlobalIDs makes extension object types implement Node.
	GlobalIDs     bool `toml:"global_ids"`
	MaxDepth      int  `toml:"max_depth"`
	Introspection bool `toml:"introspection"`
	Debug         bool `toml:"debug"`
}

type Server struct {
	Addr            string   `toml:"addr"`
	GraphiQL        bool     `toml:"graphiql"`
	Pretty          bool     `toml:"pretty"`
	Timeout         Duration `toml:"timeout"`
	MaxBodyBytes    int64    `toml:"max_body_bytes"`
	CORSOrigins     []string `toml:"cors_origins"`
	MetadataHeaders []string `toml:"metadata_headers"`
	// JWTSecret enables HS256 bearer authentication when set.
	JWTSecret string `toml:"jwt_secret"`
}

type OTel struct {
	Endpoint string `toml:"endpoint"`
	Service  string `toml:"service"`
}

type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type Postgres struct {
	DSN string `toml:"dsn"`
}

type Redis struct {
	Addr      string `toml:"addr"`
	Password  string `toml:"password"`
	DB        int    `toml:"db"`
	KeyPrefix string `toml:"key_prefix"`
}

type GRPC struct {
	// Backends maps a fully qualified service name, or "*", to endpoints.
	Backends            map[string][]string `toml:"backends"`
	MaxConnsPerEndpoint int                 `toml:"max_conns_per_endpoint"`
	RPCTimeout          Duration            `toml:"rpc_timeout"`
	// DescriptorSet is a serialized FileDescriptorSet (protoc
	// --descriptor_set_out) listing the backend services.
	DescriptorSet string `toml:"descriptor_set"`
}

// Duration reads TOML strings such as "250ms" or "10s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func Default() Config {
	return Config{
		Engine: Engine{
			CamelCase:     true,
			GlobalIDs:     true,
			MaxDepth:      8,
			Introspection: true,
		},
		Server: Server{
			Addr:    ":8080",
			Timeout: Duration{10 * time.Second},
		},
		OTel:    OTel{Service: "opgraph"},
		Metrics: Metrics{Path: "/metrics"},
		Redis:   Redis{KeyPrefix: "opgraph"},
		GRPC: GRPC{
			MaxConnsPerEndpoint: 2,
			RPCTimeout:          Duration{3 * time.Second},
		},
	}
}

// Load reads path over the defaults. A missing file is not an error; keys the
// file sets that Config does not know are.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("read %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// ApplyEnv overrides settings from OPGRAPH_* environment variables.
func (c *Config) ApplyEnv() error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv("OPGRAPH_" + key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv("OPGRAPH_" + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("OPGRAPH_%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv("OPGRAPH_" + key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("OPGRAPH_%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	boolean("CAMEL_CASE", &c.Engine.CamelCase)
	boolean("GLOBAL_IDS", &c.Engine.GlobalIDs)
	integer("MAX_DEPTH", &c.Engine.MaxDepth)
	boolean("INTROSPECTION", &c.Engine.Introspection)
	boolean("DEBUG", &c.Engine.Debug)
	str("ADDR", &c.Server.Addr)
	boolean("GRAPHIQL", &c.Server.GraphiQL)
	str("JWT_SECRET", &c.Server.JWTSecret)
	if v, ok := os.LookupEnv("OPGRAPH_TIMEOUT"); ok {
		if err := c.Server.Timeout.UnmarshalText([]byte(v)); err != nil {
			errs = append(errs, fmt.Errorf("OPGRAPH_TIMEOUT: %w", err))
		}
	}
	str("OTEL_ENDPOINT", &c.OTel.Endpoint)
	boolean("METRICS", &c.Metrics.Enabled)
	str("POSTGRES_DSN", &c.Postgres.DSN)
	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	integer("REDIS_DB", &c.Redis.DB)
	str("GRPC_DESCRIPTOR_SET", &c.GRPC.DescriptorSet)
	return errors.Join(errs...)
}

func (c Config) Validate() error {
	var errs []error
	if c.Engine.MaxDepth < 0 {
		errs = append(errs, fmt.Errorf("engine.max_depth must not be negative, got %d", c.Engine.MaxDepth))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.Timeout.Duration < 0 {
		errs = append(errs, errors.New("server.timeout must not be negative"))
	}
	if c.Server.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("server.max_body_bytes must not be negative"))
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path))
	}
	if c.GRPC.MaxConnsPerEndpoint < 1 {
		errs = append(errs, errors.New("grpc.max_conns_per_endpoint must be at least 1"))
	}
	if c.GRPC.DescriptorSet != "" && len(c.GRPC.Backends) == 0 {
		errs = append(errs, errors.New("grpc.descriptor_set requires grpc.backends"))
	}
	for svc, eps := range c.GRPC.Backends {
		if len(eps) == 0 {
			errs = append(errs, fmt.Errorf("grpc.backends.%q has no endpoints", svc))
		}
	}
	return errors.Join(errs...)
}

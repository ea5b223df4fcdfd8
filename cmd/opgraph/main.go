package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	config "github.com/hanpama/opgraph/internal/config"
	engine "github.com/hanpama/opgraph/internal/engine"
	eventbus "github.com/hanpama/opgraph/internal/eventbus"
	protoext "github.com/hanpama/opgraph/internal/ext/protoext"
	redisext "github.com/hanpama/opgraph/internal/ext/redisext"
	sqlext "github.com/hanpama/opgraph/internal/ext/sqlext"
	grpctp "github.com/hanpama/opgraph/internal/grpctp"
	logging "github.com/hanpama/opgraph/internal/logging"
	metrics "github.com/hanpama/opgraph/internal/metrics"
	otel "github.com/hanpama/opgraph/internal/otel"
	server "github.com/hanpama/opgraph/internal/server"
)

const version = "0.3.0"

const rootUsage = `opgraph - GraphQL endpoint over Postgres, Redis and gRPC backends

USAGE:
  opgraph <command> [flags]

COMMANDS:
  serve          Run the HTTP GraphQL server
  print-schema   Print the schema in SDL
  help           Show help for any command
`

const commonUsage = `  -config <file>           TOML configuration file (default: opgraph.toml)
  -env <file>              Environment file loaded before OPGRAPH_* variables (default: .env)
  -debug                   Development logging and detailed errors
`

const serveUsage = `serve FLAGS:
` + commonUsage + `  -addr <addr>             HTTP listen address (overrides server.addr)
  -graphiql                Serve GraphiQL to browsers (overrides server.graphiql)
  -seed                    Store sample pets when the collection is empty
`

const printSchemaUsage = `print-schema FLAGS:
` + commonUsage + `  -out <file>              Write the SDL to file (default: stdout)
`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "opgraph:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stderr, rootUsage)
		return errors.New("missing command")
	}
	cmd, cmdArgs := args[0], args[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs, stderr)
	case "print-schema":
		return cmdPrintSchema(cmdArgs, stdout, stderr)
	case "help", "-h", "-help", "--help":
		return cmdHelp(cmdArgs, stdout)
	default:
		fmt.Fprint(stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Fprint(stdout, serveUsage)
	case "print-schema":
		fmt.Fprint(stdout, printSchemaUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type commonFlags struct {
	configPath string
	envPath    string
	debug      bool
}

func (c *commonFlags) register(flags *flag.FlagSet) {
	flags.StringVar(&c.configPath, "config", "opgraph.toml", "TOML configuration file")
	flags.StringVar(&c.envPath, "env", ".env", "Environment file")
	flags.BoolVar(&c.debug, "debug", false, "Development logging")
}

// load reads the environment file, the configuration file and the OPGRAPH_*
// variables, in that order of increasing precedence.
func (c *commonFlags) load() (config.Config, error) {
	if c.envPath != "" {
		if err := godotenv.Load(c.envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config.Config{}, fmt.Errorf("load %s: %w", c.envPath, err)
		}
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return config.Config{}, err
	}
	if c.debug {
		cfg.Engine.Debug = true
	}
	return cfg, nil
}

func cmdServe(args []string, stderr io.Writer) error {
	var (
		common   commonFlags
		addr     string
		graphiql bool
		seedPets bool
	)
	flags := flag.NewFlagSet("serve", flag.ContinueOnError)
	flags.SetOutput(new(bytes.Buffer))
	common.register(flags)
	flags.StringVar(&addr, "addr", "", "HTTP listen address")
	flags.BoolVar(&graphiql, "graphiql", false, "Serve GraphiQL")
	flags.BoolVar(&seedPets, "seed", false, "Store sample pets")
	if err := flags.Parse(args); err != nil {
		fmt.Fprint(stderr, serveUsage)
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if graphiql {
		cfg.Server.GraphiQL = true
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logging.New(cfg.Engine.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := eventbus.New()
	eventbus.Use(bus)
	shutdownTracing, err := otel.Setup(ctx, cfg.OTel, bus)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	eng, cat, closeBackends, err := build(cfg, log)
	if err != nil {
		return err
	}
	defer closeBackends()
	if seedPets && cat.pets != nil {
		if err := seed(ctx, cat.pets); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/graphql", server.New(eng, serverOptions(cfg.Server, log)...))
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		defer metrics.New(reg).Subscribe(bus)()
		mux.Handle(cfg.Metrics.Path, metrics.Handler(reg))
	}

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		log.Info("GraphQL server listening", zap.String("addr", cfg.Server.Addr), zap.String("version", version))
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func cmdPrintSchema(args []string, stdout, stderr io.Writer) error {
	var (
		common commonFlags
		out    string
	)
	flags := flag.NewFlagSet("print-schema", flag.ContinueOnError)
	flags.SetOutput(new(bytes.Buffer))
	common.register(flags)
	flags.StringVar(&out, "out", "", "Write the SDL to file")
	if err := flags.Parse(args); err != nil {
		fmt.Fprint(stderr, printSchemaUsage)
		return err
	}
	cfg, err := common.load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Backends are declared but never contacted.
	eng, _, closeBackends, err := build(cfg, zap.NewNop())
	if err != nil {
		return err
	}
	defer closeBackends()
	sdl, err := eng.SDL()
	if err != nil {
		return err
	}
	if out == "" {
		_, err = io.WriteString(stdout, sdl)
		return err
	}
	return os.WriteFile(out, []byte(sdl), 0o644)
}

// build connects the configured backends and declares the catalog on a new
// engine. Clients are created lazily by their drivers, so nothing is dialed
// here.
func build(cfg config.Config, log *zap.Logger) (*engine.Engine, *catalog, func(), error) {
	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	cat := &catalog{}
	if cfg.Postgres.DSN != "" {
		db, err := sql.Open("postgres", cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("postgres: %w", err)
		}
		closers = append(closers, db.Close)
		cat.owners = sqlext.New(db, sqlext.WithLogger(log))
	}
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		closers = append(closers, client.Close)
		cat.pets = redisext.New(client, redisext.WithKeyPrefix(cfg.Redis.KeyPrefix), redisext.WithLogger(log))
	}
	if cfg.GRPC.DescriptorSet != "" {
		tp := grpctp.New(grpctp.FromConfig(cfg.GRPC)...)
		closers = append(closers, tp.Close)
		cat.remote = protoext.New(tp, protoext.WithLogger(log))
		messages, err := loadServices(cat.remote, cfg.GRPC.DescriptorSet)
		if err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("grpc descriptors: %w", err)
		}
		cat.messages = messages
	}

	eng := engine.New(cfg.Engine, engine.WithLogger(log))
	if err := cat.install(eng.Types()); err != nil {
		closeAll()
		return nil, nil, nil, err
	}
	if err := eng.Declare(cat.declare); err != nil {
		closeAll()
		return nil, nil, nil, err
	}
	return eng, cat, closeAll, nil
}

func serverOptions(c config.Server, log *zap.Logger) []server.Option {
	opts := []server.Option{
		server.WithTimeout(c.Timeout.Duration),
		server.WithMaxBodyBytes(c.MaxBodyBytes),
		server.WithGraphiQL(c.GraphiQL),
		server.WithLogger(log),
	}
	if c.Pretty {
		opts = append(opts, server.WithPretty())
	}
	if len(c.CORSOrigins) > 0 {
		opts = append(opts, server.WithCORS(c.CORSOrigins...))
	}
	if len(c.MetadataHeaders) > 0 {
		opts = append(opts, server.WithMetadataHeaders(c.MetadataHeaders...))
	}
	if secret := strings.TrimSpace(c.JWTSecret); secret != "" {
		opts = append(opts, server.WithJWTSecret([]byte(secret)))
	}
	return opts
}

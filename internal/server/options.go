package server

import (
	"time"

	"go.uber.org/zap"
)

// Options tune a Handler. The zero value serves plain JSON without CORS,
// authentication or GraphiQL.
type Options struct {
	// Timeout bounds requests whose context has no deadline; 0 disables it.
	Timeout      time.Duration
	Pretty       bool
	MaxBodyBytes int64 // 0 means unlimited

	// AllowedOrigins enables CORS for the listed origins, "*" for any.
	AllowedOrigins []string

	// MetadataHeaders are copied into outgoing gRPC metadata under their
	// lower-cased names.
	MetadataHeaders []string

	GraphiQL bool

	// JWTSecret enables HS256 bearer tokens. The claims of a valid token
	// become the current user of every operation.
	JWTSecret []byte

	Logger *zap.Logger
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option         { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                         { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option            { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option          { return func(o *Options) { o.AllowedOrigins = origins } }
func WithMetadataHeaders(names ...string) Option { return func(o *Options) { o.MetadataHeaders = names } }
func WithGraphiQL(enable bool) Option            { return func(o *Options) { o.GraphiQL = enable } }
func WithJWTSecret(secret []byte) Option         { return func(o *Options) { o.JWTSecret = secret } }
func WithLogger(log *zap.Logger) Option          { return func(o *Options) { o.Logger = log } }

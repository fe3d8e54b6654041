// authctl inspects the local authentication state of a runtime client.
//
// It reports and clears the cached login credential, checks that the
// configured secret backend can supply the session secrets, and reproduces
// the canonical string and signature of a call so a receiving service can be
// debugged against known inputs.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/open-runtime/runtime-aot-client-examples/pkg/config"
	"github.com/open-runtime/runtime-aot-client-examples/pkg/credcache"
	"github.com/open-runtime/runtime-aot-client-examples/pkg/derive"
	"github.com/open-runtime/runtime-aot-client-examples/pkg/interfaces/logger"
	"github.com/open-runtime/runtime-aot-client-examples/pkg/signing"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type signFlags struct {
	secret      string
	globalKey   string
	method      string
	body        string
	accessToken string
	nonce       string
	timestamp   int64
}

type app struct {
	cfg config.Config
	out io.Writer
	log logger.Logger
	now func() time.Time
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		configPath string
		cacheDir   string
		logLevel   string
		sign       signFlags
	)

	flagSet := pflag.NewFlagSet("authctl", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	flagSet.StringVar(&cacheDir, "cache-dir", "", "credential cache directory (default: system temp dir)")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	flagSet.StringVar(&sign.secret, "secret", "", "HMAC secret for derive-check")
	flagSet.StringVar(&sign.globalKey, "global-key", "", "session global key for derive-check")
	flagSet.StringVar(&sign.method, "method", "", "full RPC method for derive-check")
	flagSet.StringVar(&sign.body, "body", "", "serialized request body for derive-check")
	flagSet.StringVar(&sign.accessToken, "access-token", "", "access token for derive-check")
	flagSet.StringVar(&sign.nonce, "nonce", "", "nonce for derive-check (default: random)")
	flagSet.Int64Var(&sign.timestamp, "timestamp", 0, "unix milliseconds for derive-check (default: now)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet, stderr)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet, stderr)
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cacheDir != "" {
		cfg.Cache.Dir = cacheDir
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	a := &app{
		cfg: cfg,
		out: stdout,
		log: logger.NewConsole(stderr, logger.ParseLevel(cfg.Logging.Level)),
		now: time.Now,
	}

	command := strings.Join(flagSet.Args(), " ")
	switch command {
	case "cache status":
		return a.cacheStatus()
	case "cache clear":
		return a.cacheClear()
	case "derive-check":
		return a.deriveCheck(sign)
	case "secrets check":
		return a.secretsCheck(ctx)
	case "":
		printHelp(flagSet, stderr)
		return fmt.Errorf("missing command")
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Load(nil)
	}
	return config.LoadFile(path)
}

func (a *app) cache() *credcache.Cache {
	opts := []credcache.Option{credcache.WithLogger(a.log), credcache.WithClock(a.now)}
	if a.cfg.Cache.Dir != "" {
		opts = append(opts, credcache.WithDir(a.cfg.Cache.Dir))
	}
	return credcache.New(opts...)
}

func (a *app) cacheStatus() error {
	cache := a.cache()
	fmt.Fprintf(a.out, "path: %s\n", cache.Path())
	cred, ok := cache.Load()
	if !ok {
		fmt.Fprintln(a.out, "status: empty")
		return nil
	}
	fmt.Fprintln(a.out, "status: valid")
	fmt.Fprintf(a.out, "user_id: %s\n", cred.UserID)
	if email := cred.EmailOrEmpty(); email != "" {
		fmt.Fprintf(a.out, "email: %s\n", email)
	}
	fmt.Fprintf(a.out, "cached_at: %s\n", cred.CachedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(a.out, "expires_at: %s\n", cred.ExpiresAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(a.out, "remaining: %s\n", cred.ExpiresAt.Sub(a.now()).Truncate(time.Second))
	return nil
}

func (a *app) cacheClear() error {
	cache := a.cache()
	cache.Clear()
	fmt.Fprintf(a.out, "cleared %s\n", cache.Path())
	return nil
}

func (a *app) deriveCheck(f signFlags) error {
	if f.method == "" {
		return fmt.Errorf("derive-check: --method is required")
	}
	if f.timestamp == 0 {
		f.timestamp = a.now().UnixMilli()
	}
	if f.nonce == "" {
		buf := make([]byte, 16)
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("derive-check: nonce: %w", err)
		}
		f.nonce = hex.EncodeToString(buf)
	}
	req := signing.Request{
		Method:      f.method,
		Timestamp:   f.timestamp,
		Nonce:       f.nonce,
		Body:        []byte(f.body),
		AccessToken: f.accessToken,
	}
	key := derive.Derive(f.secret, f.globalKey, derive.PurposeSigning)
	fmt.Fprintf(a.out, "canonical: %s\n", signing.CanonicalString(req))
	fmt.Fprintf(a.out, "signature: %s\n", signing.HMACSigner{}.Sign(req, key.Bytes()))
	return nil
}

func printHelp(flagSet *pflag.FlagSet, w io.Writer) {
	fmt.Fprint(w, `authctl inspects runtime client authentication state.

Usage:
  authctl [flags] <command>

Commands:
  cache status    show the cached login credential
  cache clear     delete the cached login credential
  secrets check   resolve the session secrets from the configured backend
  derive-check    print the canonical string and signature for a call

Examples:
  authctl cache status
  authctl --config authctl.yaml secrets check
  authctl derive-check --secret s --global-key g --method /pkg.Svc/Call --body '{}'

Flags:
`)
	flagSet.SetOutput(w)
	flagSet.PrintDefaults()
}

// Command mtmitm is the MTProto interception proxy's entry point. It wires
// together the SOCKS5 front-end, the envelope/TL decode pipeline, the
// persistence sink, and the metrics/health HTTP server, and runs a
// signal-driven lifecycle grounded on
// skrashevich-MTProxy/cmd/mtproto-proxy/main.go (SIGHUP reload, SIGTERM/
// SIGINT shutdown, SIGUSR1 log reopen) stripped of its multi-worker
// supervisor and DC-forwarding concerns, neither of which this proxy has.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/quietwire/mtmitm/internal/cli"
	"github.com/quietwire/mtmitm/internal/config"
	"github.com/quietwire/mtmitm/internal/httpapi"
	"github.com/quietwire/mtmitm/internal/keystore"
	"github.com/quietwire/mtmitm/internal/metrics"
	"github.com/quietwire/mtmitm/internal/session"
	"github.com/quietwire/mtmitm/internal/sink"
	"github.com/quietwire/mtmitm/internal/socks5"
	"github.com/quietwire/mtmitm/internal/tl"
	"github.com/quietwire/mtmitm/internal/tl/gen"
)

const fullVersion = "mtmitm-go-dev"

func main() {
	opts, err := cli.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Can not parse options: %v\n", err)
		fmt.Fprint(os.Stderr, cli.Usage(os.Args[0], fullVersion))
		os.Exit(2)
	}

	if opts.ShowHelp {
		fmt.Fprint(os.Stdout, cli.Usage(os.Args[0], fullVersion))
		os.Exit(0)
	}

	logw, closeLog, err := setupLogWriter(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "can not initialize log writer: %v\n", err)
		os.Exit(2)
	}
	defer closeLog()

	store := keystore.NewStore()
	if err := loadInitialKeys(store, opts); err != nil {
		fmt.Fprintf(logw, "failed to load authorization keys: %v\n", err)
		os.Exit(2)
	}

	var keyManager *config.Manager
	if opts.KeysFile != "" {
		keyManager = config.NewManager(opts.KeysFile)
	}

	var sessionSink session.Sink
	registry := tl.NewRegistry()
	gen.Register(registry)

	if opts.OutputDir != "" {
		if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
			fmt.Fprintf(logw, "failed to create output directory %s: %v\n", opts.OutputDir, err)
			os.Exit(2)
		}
		sessionSink = sink.New(opts.OutputDir)
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg, store)

	sess := session.NewManager(registry, store, sessionSink, collector, logw, opts.Quiet)

	socksCfg := socks5.Config{
		Addr:        fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		NoAuth:      opts.ProxyNoAuth,
		DialTimeout: 10 * time.Second,
	}
	if !opts.ProxyNoAuth && len(opts.ProxyUsers) > 0 {
		socksCfg.Credential = credentialChecker(opts.ProxyUsers)
	}

	srv, err := socks5.StartServer(socksCfg, sess, logw)
	if err != nil {
		fmt.Fprintf(logw, "failed to start SOCKS5 server: %v\n", err)
		os.Exit(2)
	}

	var httpSrv *http.Server
	if opts.MetricsAddr != "" {
		httpSrv = &http.Server{
			Addr:    opts.MetricsAddr,
			Handler: httpapi.NewRouter(reg, nil),
		}
		go func() {
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintf(logw, "metrics/health server error: %v\n", err)
			}
		}()
		fmt.Fprintf(logw, "metrics/health server listening on %s\n", opts.MetricsAddr)
	}

	fmt.Fprintf(logw, "mtmitm listening on %s: send SIGHUP to reload keys, SIGUSR1 to reopen the log, SIGTERM/SIGINT to stop.\n", srv.Addr())

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGINT, syscall.SIGUSR1)
	defer signal.Stop(sigCh)

runLoop:
	for sig := range sigCh {
		switch sig {
		case syscall.SIGHUP:
			reloadKeys(keyManager, store, logw)
		case syscall.SIGUSR1:
			reopenLog(logw)
		case syscall.SIGTERM, syscall.SIGINT:
			break runLoop
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		fmt.Fprintf(logw, "socks5 server shutdown error: %v\n", err)
	}
	if httpSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(logw, "metrics/health server shutdown error: %v\n", err)
		}
	}
	os.Exit(0)
}

func setupLogWriter(opts cli.Options) (io.Writer, func(), error) {
	if opts.LogFile == "" {
		return os.Stderr, func() {}, nil
	}

	lw, err := newReopenableLogWriter(opts.LogFile)
	if err != nil {
		return nil, nil, err
	}
	return lw, func() { _ = lw.Close() }, nil
}

func reopenLog(logw io.Writer) {
	reopener, ok := logw.(interface{ Reopen() error })
	if !ok {
		return
	}
	if err := reopener.Reopen(); err != nil {
		fmt.Fprintf(logw, "log reopen failed: %v\n", err)
	}
}

func loadInitialKeys(store *keystore.Store, opts cli.Options) error {
	for _, key := range opts.Keys {
		if _, err := store.Register(key); err != nil {
			return fmt.Errorf("registering -k/--key value: %w", err)
		}
	}
	if opts.KeysFile == "" {
		return nil
	}
	keys, err := cli.LoadKeysFile(opts.KeysFile)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if _, err := store.Register(key); err != nil {
			return fmt.Errorf("registering key from %s: %w", opts.KeysFile, err)
		}
	}
	return nil
}

func reloadKeys(mgr *config.Manager, store *keystore.Store, logw io.Writer) {
	if mgr == nil {
		fmt.Fprintln(logw, "SIGHUP received but no -f/--keys-file was configured, ignoring")
		return
	}
	_, n, err := mgr.ReloadInto(store)
	if err != nil {
		fmt.Fprintf(logw, "keys file reload failed: %v\n", err)
		return
	}
	fmt.Fprintf(logw, "keys file reloaded: %d keys registered (total now %d)\n", n, store.Len())
}

func credentialChecker(users []cli.ProxyCredential) func(login, password string) bool {
	return func(login, password string) bool {
		for _, u := range users {
			if u.Login == login && u.Password == password {
				return true
			}
		}
		return false
	}
}

package bootstrap

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-actor/control"
	"github.com/momentics/hioload-actor/log"
	"github.com/momentics/hioload-actor/router"
	"github.com/momentics/hioload-actor/runtimestate"
	"github.com/momentics/hioload-actor/service"
)

// clockTick matches the worker package's wheel resolution; the main loop
// refreshes the router's cached wall clock at the same cadence. The timing
// wheels do not read that clock: each worker advances its own wheel from
// its own ticker.
const clockTick = 10 * time.Millisecond

// shutdownDrainTimeout bounds how long Stop waits for every service to
// finish tearing down before the worker goroutines are force-stopped.
const shutdownDrainTimeout = 5 * time.Second

// errShutdownRequested is returned by the signal-wait goroutine on a clean
// termination request; it cancels the errgroup's shared context so every
// other goroutine (clock tick, control HTTP server) unwinds, and is not
// itself logged as a failure.
var errShutdownRequested = errors.New("bootstrap: shutdown requested")

// errRuntimeStopping is mainTick's analogue of errShutdownRequested: the
// bootstrap service removed itself (e.g. a script called the runtime-exit
// surface) without an OS signal ever arriving.
var errRuntimeStopping = errors.New("bootstrap: runtime entered stopping state")

// Options configures one bootstrap run.
type Options struct {
	WorkerCount int
	InitStat    string
	ScriptName  string
	Args        []string

	LogLevel Level
	LogFile  string

	// DebugAddr, if non-empty, starts the control surface's HTTP listener
	// at this address. Empty means the control package stays entirely
	// inert.
	DebugAddr string
}

// Level re-exports log.Level so callers (cmd/hioload-actor) need not import
// the log package directly just to set Options.LogLevel.
type Level = log.Level

// Run boots the router, the bootstrap service, and (optionally) the control
// HTTP surface, then blocks until a termination signal arrives or the
// bootstrap service removes itself (e.g. a Lua-equivalent service calling
// the runtime-exit surface), whichever comes first. It returns the process
// exit code supplied to RequestExit or Stop; clamping that to a byte on the
// way out via os.Exit is the caller's concern, not this function's.
func Run(ctx context.Context, opts Options, register func(r *router.Server)) (int, error) {
	logger, err := log.New(opts.LogLevel, opts.LogFile)
	if err != nil {
		return 1, err
	}
	defer logger.Close()

	workerCount := opts.WorkerCount
	if workerCount < 1 {
		workerCount = 1
	}

	r := router.New(workerCount, logger)
	r.RegisterFactory(serviceTypeName, newRootService(r, opts.InitStat, opts.Args))
	if register != nil {
		register(r)
	}
	r.Start()

	r.NewService(&service.Config{
		Type:     serviceTypeName,
		Name:     serviceTypeName,
		Unique:   true,
		ThreadID: 1,
		Args:     opts.Args,
	})

	logStartupBanner(logger, workerCount)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error { return mainTick(gctx, r) })
	group.Go(func() error { return waitForSignal(gctx) })

	if opts.DebugAddr != "" {
		surface := control.New(r)
		srv := &http.Server{Addr: opts.DebugAddr, Handler: surface.Handler()}
		group.Go(func() error {
			<-gctx.Done()
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer shutCancel()
			return srv.Shutdown(shutCtx)
		})
		group.Go(func() error {
			logger.Infof("control surface listening on %s", opts.DebugAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	}

	waitErr := group.Wait()
	r.Stop(r.ExitCode(), shutdownDrainTimeout)
	if waitErr != nil && waitErr != errShutdownRequested && waitErr != errRuntimeStopping {
		logger.Errorf("bootstrap: %v", waitErr)
		return r.ExitCode(), waitErr
	}
	return r.ExitCode(), nil
}

// mainTick keeps the router's cached wall clock fresh. An asio-based
// runtime would run this on its io_context's main thread; here it is just
// another goroutine since no component depends on it being the "main"
// thread.
func mainTick(ctx context.Context, r *router.Server) error {
	ticker := time.NewTicker(clockTick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.UpdateClock(time.Now().UnixMilli())
			if s := r.State(); s == runtimestate.Stopping || s == runtimestate.Stopped {
				return errRuntimeStopping
			}
		}
	}
}

// waitForSignal blocks until SIGINT/SIGTERM or ctx cancellation.
func waitForSignal(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	select {
	case <-ctx.Done():
		return nil
	case <-sigCh:
		return errShutdownRequested
	}
}

func logStartupBanner(logger *log.Logger, workerCount int) {
	logger.Infof("INIT with %d workers.", workerCount)
	runID := uuid.New().String()
	totalMB := int64(0)
	if vm, err := mem.VirtualMemory(); err == nil {
		totalMB = int64(vm.Total / (1024 * 1024))
	}
	logger.Infof("run=%s cpus=%d mem_total_mb=%d", runID, runtime.NumCPU(), totalMB)
}

package cmd

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"
)

const (
	HubApp  = "hub"
	RestApp = "rest"
)

// App is a long-running component. Start blocks until the app is stopped.
type App interface {
	Start()
	Stop()
}

type AppsManager struct {
	apps  map[string]App
	order []string
	wg    *sync.WaitGroup

	// exited is closed when an app returns from Start before StopAll.
	exited     chan struct{}
	exitedOnce sync.Once
	stopping   atomic.Bool

	logger *zap.Logger
}

func NewAppsManager(logger *zap.Logger) *AppsManager {
	return &AppsManager{
		apps:   make(map[string]App),
		wg:     &sync.WaitGroup{},
		exited: make(chan struct{}),
		logger: logger,
	}
}

// Register adds an app. Apps start in registration order and stop in
// reverse order, so dependencies are registered first.
func (am *AppsManager) Register(name string, app App) {
	if _, ok := am.apps[name]; !ok {
		am.order = append(am.order, name)
	}
	am.apps[name] = app
}

func (am *AppsManager) RunAll() {
	for _, name := range am.order {
		app := am.apps[name]
		am.wg.Add(1)
		go func(name string, app App) {
			defer am.wg.Done()
			am.logger.Info("App started", zap.String("name", name))
			app.Start()
			if !am.stopping.Load() {
				am.logger.Error("App exited before shutdown", zap.String("name", name))
				am.exitedOnce.Do(func() { close(am.exited) })
			}
		}(name, app)
	}
}

func (am *AppsManager) StopAll() {
	am.stopping.Store(true)
	for i := len(am.order) - 1; i >= 0; i-- {
		name := am.order[i]
		am.apps[name].Stop()
		am.logger.Info("App stopped", zap.String("name", name))
	}
}

// Wait blocks until every started app has returned from Start.
func (am *AppsManager) Wait() {
	am.wg.Wait()
}

// Exited is closed once any app returns from Start on its own.
func (am *AppsManager) Exited() <-chan struct{} {
	return am.exited
}

// WaitForShutdown stops every app on SIGINT/SIGTERM or as soon as one app
// exits on its own. It reports whether the shutdown was caused by an app.
func (am *AppsManager) WaitForShutdown() bool {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	failed := false
	select {
	case sig := <-stop:
		am.logger.Info("Shutting down", zap.String("signal", sig.String()))
	case <-am.exited:
		failed = true
	}
	// A second signal falls back to the default handler and kills the process.
	signal.Stop(stop)

	am.StopAll()
	am.Wait()
	return failed
}

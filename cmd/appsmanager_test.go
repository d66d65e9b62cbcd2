package cmd

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeApp struct {
	name    string
	stopped chan struct{}
	once    sync.Once
	log     *[]string
	mtx     *sync.Mutex
}

func newFakeApp(name string, log *[]string, mtx *sync.Mutex) *fakeApp {
	return &fakeApp{name: name, stopped: make(chan struct{}), log: log, mtx: mtx}
}

func (f *fakeApp) Start() {
	<-f.stopped
}

func (f *fakeApp) Stop() {
	f.mtx.Lock()
	*f.log = append(*f.log, f.name)
	f.mtx.Unlock()
	f.once.Do(func() { close(f.stopped) })
}

func TestAppsManagerStopsInReverseOrder(t *testing.T) {
	var (
		log []string
		mtx sync.Mutex
	)
	am := NewAppsManager(zap.NewNop())
	am.Register(HubApp, newFakeApp(HubApp, &log, &mtx))
	am.Register(RestApp, newFakeApp(RestApp, &log, &mtx))

	am.RunAll()
	am.StopAll()

	done := make(chan struct{})
	go func() {
		am.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("apps did not return after StopAll")
	}

	assert.Equal(t, []string{RestApp, HubApp}, log)
}

func TestAppsManagerRegisterReplaces(t *testing.T) {
	var (
		log []string
		mtx sync.Mutex
	)
	am := NewAppsManager(zap.NewNop())
	am.Register(RestApp, newFakeApp("first", &log, &mtx))
	am.Register(RestApp, newFakeApp("second", &log, &mtx))

	am.StopAll()
	assert.Equal(t, []string{"second"}, log)
}

type exitingApp struct {
	stopped atomic.Bool
}

func (a *exitingApp) Start() {}

func (a *exitingApp) Stop() {
	a.stopped.Store(true)
}

func TestWaitForShutdownWhenAppExits(t *testing.T) {
	var (
		log []string
		mtx sync.Mutex
	)
	am := NewAppsManager(zap.NewNop())
	hubApp := newFakeApp(HubApp, &log, &mtx)
	rest := &exitingApp{}
	am.Register(HubApp, hubApp)
	am.Register(RestApp, rest)

	am.RunAll()

	done := make(chan bool)
	go func() {
		done <- am.WaitForShutdown()
	}()
	select {
	case failed := <-done:
		assert.True(t, failed)
	case <-time.After(2 * time.Second):
		t.Fatal("manager kept waiting after an app exited")
	}

	assert.True(t, rest.stopped.Load())
	assert.Equal(t, []string{HubApp}, log)
}

func TestStoppedAppsDoNotReportExit(t *testing.T) {
	var (
		log []string
		mtx sync.Mutex
	)
	am := NewAppsManager(zap.NewNop())
	am.Register(HubApp, newFakeApp(HubApp, &log, &mtx))

	am.RunAll()
	am.StopAll()
	am.Wait()

	select {
	case <-am.Exited():
		t.Fatal("stopped app reported as exited")
	default:
	}
}

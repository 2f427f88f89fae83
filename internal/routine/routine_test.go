package routine

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mmcdole/tablesync/internal/log"
)

func TestRunnerGoNamed(t *testing.T) {
	runner := New(log.NullLogger(), nil)

	var executed atomic.Bool
	runner.GoNamed("work", func() {
		executed.Store(true)
	})
	runner.Wait()

	if !executed.Load() {
		t.Error("expected function to be executed")
	}
}

func TestRunnerRecoversPanic(t *testing.T) {
	var mu sync.Mutex
	var names []string
	var errs []error
	runner := New(log.NullLogger(), func(name string, err error) {
		mu.Lock()
		names = append(names, name)
		errs = append(errs, err)
		mu.Unlock()
	})

	var afterPanic atomic.Bool
	runner.GoNamed("boom", func() {
		panic("test panic")
	})
	runner.GoNamed("after", func() {
		afterPanic.Store(true)
	})
	runner.Wait()

	if !afterPanic.Load() {
		t.Error("expected goroutine after panic to execute")
	}
	if len(names) != 1 || names[0] != "boom" {
		t.Fatalf("panic names = %v, want [boom]", names)
	}
	if !strings.Contains(errs[0].Error(), "test panic") {
		t.Errorf("panic error = %v", errs[0])
	}
}

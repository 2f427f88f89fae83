package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mmcdole/tablesync/internal/domain"
	"github.com/mmcdole/tablesync/internal/service"
)

func testDatasets(names ...string) []domain.Dataset {
	out := make([]domain.Dataset, len(names))
	for i, n := range names {
		out[i] = domain.Dataset{Name: n}
	}
	return out
}

func rows(n int) *int { return &n }

func TestModelAppliesProgress(t *testing.T) {
	events := make(chan domain.ProgressEvent, 1)
	m := NewModel("Syncing", testDatasets("customers", "transactions"), events, nil)

	steps := []domain.ProgressEvent{
		{Dataset: "customers", Status: domain.StatusLoading, Total: 2},
		{Dataset: "customers", Status: domain.StatusComplete, RowCount: rows(2500), Completed: 1, Total: 2},
		{Dataset: "transactions", Status: domain.StatusFailed, Err: domain.ErrAuthFailed, Completed: 2, Total: 2},
		{Dataset: "unknown", Status: domain.StatusLoading},
	}
	var model tea.Model = m
	for _, ev := range steps {
		var cmd tea.Cmd
		model, cmd = model.Update(ProgressMsg{Event: ev})
		if cmd == nil {
			t.Fatal("progress should keep listening")
		}
	}

	got := model.(Model)
	if got.Completed != 2 {
		t.Errorf("Completed = %d, want 2", got.Completed)
	}
	if c := got.Datasets["customers"]; c.Status != domain.StatusComplete || c.Rows != 2500 {
		t.Errorf("customers = %+v", c)
	}
	if tx := got.Datasets["transactions"]; !errors.Is(tx.Error, domain.ErrAuthFailed) {
		t.Errorf("transactions = %+v", tx)
	}

	view := got.View()
	for _, want := range []string{"customers", "2,500 rows", "transactions", "api key is invalid", "2/2"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModelIgnoresLateRunningEvents(t *testing.T) {
	m := NewModel("Syncing", testDatasets("a"), nil, nil)
	model, _ := m.Update(ProgressMsg{Event: domain.ProgressEvent{Dataset: "a", Status: domain.StatusComplete, RowCount: rows(1), Completed: 1}})
	model, _ = model.Update(ProgressMsg{Event: domain.ProgressEvent{Dataset: "a", Status: domain.StatusLoading}})

	if st := model.(Model).Datasets["a"].Status; st != domain.StatusComplete {
		t.Errorf("status = %s, want complete", st)
	}
}

func TestModelLoadDoneQuits(t *testing.T) {
	m := NewModel("Syncing", testDatasets("a", "b"), nil, nil)

	res := &service.Result{
		Payloads:  map[string][]domain.Record{"a": {{"id": 1}}},
		Failures:  map[string]error{"b": domain.ErrServerOffline},
		FromCache: false,
	}
	model, cmd := m.Update(LoadDoneMsg{Result: res})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("LoadDoneMsg should quit the program")
	}

	got := model.(Model)
	if !got.Done || got.Completed != 2 {
		t.Errorf("model = %+v", got)
	}
	if got.Datasets["a"].Rows != 1 || got.Datasets["b"].Status != domain.StatusFailed {
		t.Errorf("datasets not reconciled with result: a=%+v b=%+v", got.Datasets["a"], got.Datasets["b"])
	}
}

func TestModelQuitKey(t *testing.T) {
	m := NewModel("Syncing", testDatasets("a"), nil, nil)
	model, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil || !model.(Model).Aborted {
		t.Error("ctrl+c should abort")
	}
}

func TestChannelObserverNonBlocking(t *testing.T) {
	ch := make(chan domain.ProgressEvent, 1)
	obs := NewChannelObserver(ch)

	obs.OnProgress(domain.ProgressEvent{Dataset: "a"})
	obs.OnProgress(domain.ProgressEvent{Dataset: "b"}) // dropped, must not block

	if ev := <-ch; ev.Dataset != "a" {
		t.Errorf("got %q, want a", ev.Dataset)
	}
}

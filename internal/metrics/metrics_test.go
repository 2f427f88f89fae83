package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordFetch(t *testing.T) {
	before := testutil.CollectAndCount(FetchDuration)

	RecordFetch("metrics-test-ok", time.Now(), nil)
	RecordFetch("metrics-test-err", time.Now(), errors.New("boom"))

	after := testutil.CollectAndCount(FetchDuration)
	if after-before != 2 {
		t.Errorf("expected 2 new histogram series, got %d", after-before)
	}
}

func TestCounters(t *testing.T) {
	CacheFaults.WithLabelValues("read").Add(0)
	before := testutil.ToFloat64(CacheFaults.WithLabelValues("read"))
	CacheFaults.WithLabelValues("read").Inc()
	if got := testutil.ToFloat64(CacheFaults.WithLabelValues("read")); got != before+1 {
		t.Errorf("CacheFaults = %v, want %v", got, before+1)
	}
}

package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/dokzlo13/tgcollect/internal/collector"
)

type word string

type wordHooks struct{}

func (wordHooks) Collect(w word) (string, bool) { return string(w), w != "" }
func (wordHooks) Dispose(w word) (string, bool) { return string(w), w != "" }
func (wordHooks) EndReason(s collector.State[string, word]) collector.Reason {
	return collector.LimitReason(s)
}

func newCollector(t *testing.T, limit int) *collector.Collector[string, word] {
	t.Helper()
	c, err := collector.New[string, word](wordHooks{}, collector.Options[string, word]{
		Kind:    "test",
		Max:     limit,
		Dispose: true,
		Filter: func(_ context.Context, w word, _ *collector.Collection[string, word]) (bool, error) {
			return w != "skip", nil
		},
	})
	if err != nil {
		t.Fatalf("collector.New error: %v", err)
	}
	return c
}

func TestObserve_CountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	ctx := context.Background()

	c := newCollector(t, 3)
	Observe(m, c)

	if got := testutil.ToFloat64(m.Active.WithLabelValues("test")); got != 1 {
		t.Errorf("active = %v, want 1", got)
	}

	for _, w := range []word{"a", "skip", "b"} {
		if err := c.HandleCollect(ctx, w); err != nil {
			t.Fatalf("HandleCollect error: %v", err)
		}
	}
	if err := c.HandleDispose(ctx, "a"); err != nil {
		t.Fatalf("HandleDispose error: %v", err)
	}

	if got := testutil.ToFloat64(m.Items.WithLabelValues("test", OutcomeCollected)); got != 2 {
		t.Errorf("collected = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Items.WithLabelValues("test", OutcomeIgnored)); got != 1 {
		t.Errorf("ignored = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Items.WithLabelValues("test", OutcomeDisposed)); got != 1 {
		t.Errorf("disposed = %v, want 1", got)
	}

	c.Stop(collector.ReasonUser)
	c.Stop(collector.ReasonTime)

	if got := testutil.ToFloat64(m.Active.WithLabelValues("test")); got != 0 {
		t.Errorf("active after stop = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.Ended.WithLabelValues("test", "user")); got != 1 {
		t.Errorf("ended{user} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Ended.WithLabelValues("test", "time")); got != 0 {
		t.Errorf("ended{time} = %v, want 0", got)
	}
}

func TestObserve_LimitReasonAndDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	c := newCollector(t, 1)
	Observe(m, c)
	if err := c.HandleCollect(context.Background(), "only"); err != nil {
		t.Fatalf("HandleCollect error: %v", err)
	}

	if got := testutil.ToFloat64(m.Ended.WithLabelValues("test", string(collector.ReasonLimit))); got != 1 {
		t.Errorf("ended{limit} = %v, want 1", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	hist := findFamily(families, "tgcollect_collector_duration_seconds")
	if hist == nil {
		t.Fatal("duration histogram not registered")
	}
	if hist.GetType() != dto.MetricType_HISTOGRAM {
		t.Errorf("type = %v, want histogram", hist.GetType())
	}
	if n := hist.GetMetric()[0].GetHistogram().GetSampleCount(); n != 1 {
		t.Errorf("sample count = %d, want 1", n)
	}
}

func TestObserve_SkipsEndedCollector(t *testing.T) {
	m := New(prometheus.NewRegistry())
	c := newCollector(t, 1)
	c.Stop(collector.ReasonUser)

	Observe(m, c)

	if got := testutil.ToFloat64(m.Active.WithLabelValues("test")); got != 0 {
		t.Errorf("active = %v, want 0", got)
	}
}

func TestNew_RegistersOnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Active.WithLabelValues("message").Set(0)
	m.Items.WithLabelValues("message", OutcomeCollected).Add(0)
	m.Ended.WithLabelValues("message", "idle").Add(0)

	if n := testutil.CollectAndCount(m.Active, "tgcollect_collectors_active"); n != 1 {
		t.Errorf("collectors_active series = %d, want 1", n)
	}

	defer func() {
		if recover() == nil {
			t.Error("registering twice on one registry should panic")
		}
	}()
	New(reg)
}

func findFamily(families []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

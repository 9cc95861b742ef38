package collector_test

import (
	"context"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/dokzlo13/tgcollect/internal/collector"
)

// Property: Stop called N>1 times emits end once and keeps the first reason
func TestProperty_IdempotentTermination(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		reasons := rapid.SliceOfN(rapid.SampledFrom([]collector.Reason{
			collector.ReasonUser, collector.ReasonTime, collector.ReasonIdle, collector.ReasonLimit, "custom",
		}), 2, 10).Draw(rt, "reasons")

		c, err := collector.New[string, item](keyHooks{}, collector.Options[string, item]{})
		if err != nil {
			rt.Fatalf("New: %v", err)
		}
		ends := 0
		c.OnEnd(func(*collector.Collection[string, item], collector.Reason) { ends++ })

		for _, r := range reasons {
			c.Stop(r)
		}

		if ends != 1 {
			rt.Fatalf("end emitted %d times, want 1", ends)
		}
		if c.EndReason() != reasons[0] {
			rt.Fatalf("EndReason = %q, want first reason %q", c.EndReason(), reasons[0])
		}
	})
}

// Property: the collection never exceeds max, and reaching max ends with "limit"
func TestProperty_LimitInvariant(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		limit := rapid.IntRange(1, 10).Draw(rt, "max")
		accepts := rapid.SliceOfN(rapid.Bool(), 0, 40).Draw(rt, "accepts")

		c, err := collector.New[string, item](keyHooks{}, collector.Options[string, item]{
			Max:    limit,
			Filter: textIs("ok"),
		})
		if err != nil {
			rt.Fatalf("New: %v", err)
		}
		defer c.Stop(collector.ReasonUser)

		c.OnCollect(func(_ item, collected *collector.Collection[string, item]) {
			if collected.Len() > limit {
				rt.Fatalf("collected %d items, max %d", collected.Len(), limit)
			}
		})

		ctx := context.Background()
		accepted := 0
		for i, ok := range accepts {
			text := "no"
			if ok {
				text = "ok"
			}
			wasEnded := c.Ended()
			if err := c.HandleCollect(ctx, item{Key: fmt.Sprintf("k%d", i), Text: text}); err != nil {
				rt.Fatalf("HandleCollect: %v", err)
			}
			if ok && !wasEnded {
				accepted++
			}
		}

		if c.Collected().Len() > limit {
			rt.Fatalf("collected %d items, max %d", c.Collected().Len(), limit)
		}
		if accepted >= limit {
			if c.EndReason() != collector.ReasonLimit {
				rt.Fatalf("EndReason = %q after %d accepts, want limit", c.EndReason(), accepted)
			}
		} else if c.Ended() {
			rt.Fatalf("ended with %q after only %d accepts", c.EndReason(), accepted)
		}
	})
}

// Property: rejected items are counted as received but never collected,
// and the processed cap counts them
func TestProperty_RejectionTransparency(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		maxProcessed := rapid.IntRange(1, 20).Draw(rt, "maxProcessed")
		accepts := rapid.SliceOfN(rapid.Bool(), 1, 30).Draw(rt, "accepts")

		c, err := collector.New[string, item](keyHooks{}, collector.Options[string, item]{
			Max:          collector.NoLimit,
			MaxProcessed: maxProcessed,
			Filter:       textIs("ok"),
		})
		if err != nil {
			rt.Fatalf("New: %v", err)
		}
		defer c.Stop(collector.ReasonUser)

		ignored := 0
		c.OnIgnore(func(item) { ignored++ })

		ctx := context.Background()
		delivered, acceptedSeen := 0, 0
		for i, ok := range accepts {
			if c.Ended() {
				break
			}
			text := "no"
			if ok {
				text = "ok"
				acceptedSeen++
			}
			delivered++
			if err := c.HandleCollect(ctx, item{Key: fmt.Sprintf("k%d", i), Text: text}); err != nil {
				rt.Fatalf("HandleCollect: %v", err)
			}
		}

		if c.Received() != delivered {
			rt.Fatalf("Received = %d, want %d", c.Received(), delivered)
		}
		if c.Collected().Len() != acceptedSeen {
			rt.Fatalf("collected %d, want %d", c.Collected().Len(), acceptedSeen)
		}
		if ignored != delivered-acceptedSeen {
			rt.Fatalf("ignored %d, want %d", ignored, delivered-acceptedSeen)
		}
		if delivered == maxProcessed && c.EndReason() != collector.ReasonProcessedLimit {
			rt.Fatalf("EndReason = %q at %d processed, want processedLimit", c.EndReason(), delivered)
		}
		if delivered < maxProcessed && c.Ended() {
			rt.Fatalf("ended early with %q", c.EndReason())
		}
	})
}

package health

import (
	"context"
	"testing"
)

// fakeChecker 固定返回一种状态
type fakeChecker struct {
	name   string
	status Status
}

func (c fakeChecker) Name() string { return c.name }

func (c fakeChecker) Check(ctx context.Context) CheckResult {
	return CheckResult{Status: c.status, Message: string(c.status)}
}

func TestOverallStatusPrecedence(t *testing.T) {
	cases := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"degraded wins over healthy", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"unhealthy wins over degraded", []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, StatusUnhealthy},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			agg := NewAggregator()
			for i, s := range tc.statuses {
				agg.AddChecker(fakeChecker{name: string(rune('a' + i)), status: s})
			}
			if got := agg.OverallStatus(context.Background()); got != tc.want {
				t.Errorf("OverallStatus = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestReadyToleratesDegraded(t *testing.T) {
	agg := NewAggregator(fakeChecker{name: "serial", status: StatusDegraded})
	if !agg.Ready(context.Background()) {
		t.Error("degraded system should still be ready")
	}

	agg.AddChecker(fakeChecker{name: "redis", status: StatusUnhealthy})
	if agg.Ready(context.Background()) {
		t.Error("unhealthy system must not be ready")
	}
}

func TestCheckAllCollectsByName(t *testing.T) {
	agg := NewAggregator(
		fakeChecker{name: "serial", status: StatusHealthy},
		fakeChecker{name: "database", status: StatusDegraded},
	)

	results := agg.CheckAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results["serial"].Status != StatusHealthy {
		t.Errorf("serial = %+v", results["serial"])
	}
	if results["database"].Status != StatusDegraded {
		t.Errorf("database = %+v", results["database"])
	}
}

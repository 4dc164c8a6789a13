package domain

import (
	"net/netip"
	"testing"
)

func TestPercentOfEmptyPoolIsZero(t *testing.T) {
	if got := Percent(0, 0); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

func TestSummarizeSumsCountsInsteadOfAveraging(t *testing.T) {
	report := Summarize([]SubnetUsage{
		{Subnet: Subnet{ID: 1}, Allocated: 1, Total: 1},
		{Subnet: Subnet{ID: 2}, Allocated: 0, Total: 99},
	})

	if report.Allocated != 1 || report.Total != 100 || report.Available != 99 {
		t.Fatalf("unexpected totals: %+v", report)
	}
	// An average of percentages would give 50%.
	if report.Percent != 1 {
		t.Fatalf("expected 1%%, got %v", report.Percent)
	}
	if report.Subnets[0].Percent != 100 || report.Subnets[1].Percent != 0 {
		t.Fatalf("unexpected per-subnet figures: %+v", report.Subnets)
	}
}

func TestSummarizeHandlesZeroSizedSubnets(t *testing.T) {
	report := Summarize([]SubnetUsage{{Subnet: Subnet{CIDR: netip.MustParsePrefix("10.0.0.0/31")}}})

	if report.Percent != 0 || report.Subnets[0].Percent != 0 || report.Available != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestSummarizeNoSubnets(t *testing.T) {
	report := Summarize(nil)
	if report.Total != 0 || report.Percent != 0 || len(report.Subnets) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestSummarizeSubtractsReservedFromAvailable(t *testing.T) {
	report := Summarize([]SubnetUsage{{Allocated: 3, Reserved: 1, Total: 254}})

	if report.Available != 250 || report.Subnets[0].Available != 250 {
		t.Fatalf("expected 250 available, got %+v", report)
	}
}

func TestSummarizeTotalIncludesGateway(t *testing.T) {
	report := Summarize([]SubnetUsage{{Allocated: 127, Reserved: 1, Total: 254}})

	got := report.Subnets[0]
	if got.Total != 254 || report.Total != 254 {
		t.Fatalf("expected the gateway inside a total of 254, got %+v", report)
	}
	if got.Percent != 50 {
		t.Fatalf("expected percent relative to all 254 hosts, got %v", got.Percent)
	}
}

package domain

// Summarize turns raw per-subnet counts into a utilization report. The global
// figure is computed from summed counts, not from the per-subnet percentages.
func Summarize(usages []SubnetUsage) UtilizationReport {
	report := UtilizationReport{
		Subnets: make([]SubnetUtilization, 0, len(usages)),
	}
	for _, usage := range usages {
		allocated := min(usage.Allocated, usage.Total)
		reserved := min(usage.Reserved, usage.Total-allocated)
		report.Subnets = append(report.Subnets, SubnetUtilization{
			Subnet:    usage.Subnet,
			Allocated: allocated,
			Reserved:  reserved,
			Total:     usage.Total,
			Available: usage.Total - allocated - reserved,
			// The gateway stays in the denominator.
			Percent: Percent(allocated, usage.Total),
		})
		report.Allocated += allocated
		report.Reserved += reserved
		report.Total += usage.Total
	}
	report.Available = report.Total - report.Allocated - report.Reserved
	report.Percent = Percent(report.Allocated, report.Total)
	return report
}

// Percent returns allocated/total as a percentage; an empty pool is 0%.
func Percent(allocated, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(allocated) / float64(total) * 100
}

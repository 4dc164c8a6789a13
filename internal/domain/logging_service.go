package domain

import (
	"context"
	"log/slog"
)

type loggingNetworkService struct {
	logger *slog.Logger
	next   NetworkService
}

func NewLoggingNetworkService(logger *slog.Logger, next NetworkService) NetworkService {
	if logger == nil || next == nil {
		return next
	}

	return &loggingNetworkService{
		logger: logger,
		next:   next,
	}
}

func (s *loggingNetworkService) ListSubnets(ctx context.Context) ([]Subnet, error) {
	subnets, err := s.next.ListSubnets(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "list subnets failed", "err", err.Error())
	}
	return subnets, err
}

func (s *loggingNetworkService) CreateSubnet(ctx context.Context, input CreateSubnetInput) (Subnet, error) {
	subnet, err := s.next.CreateSubnet(ctx, input)
	if err != nil {
		s.logger.ErrorContext(ctx, "create subnet failed", "cidr", input.CIDR, "err", err.Error())
		return Subnet{}, err
	}

	s.logger.InfoContext(ctx, "subnet created",
		"subnet_id", subnet.ID,
		"cidr", subnet.CIDR.String(),
		"gateway", subnet.Gateway.String(),
	)
	return subnet, nil
}

func (s *loggingNetworkService) GetSubnet(ctx context.Context, ref string) (Subnet, error) {
	subnet, err := s.next.GetSubnet(ctx, ref)
	if err != nil {
		s.logger.ErrorContext(ctx, "get subnet failed", "subnet", ref, "err", err.Error())
	}
	return subnet, err
}

func (s *loggingNetworkService) Allocate(ctx context.Context, input AllocateInput) (Allocation, error) {
	allocation, err := s.next.Allocate(ctx, input)
	if err != nil {
		s.logger.ErrorContext(ctx, "allocate address failed",
			"subnet", input.Subnet,
			"address", input.Address,
			"err", err.Error(),
		)
		return Allocation{}, err
	}

	s.logger.InfoContext(ctx, "address allocated",
		"subnet_id", allocation.SubnetID,
		"address", allocation.Address.String(),
		"kind", string(allocation.Kind),
		"hostname", allocation.Hostname,
	)
	return allocation, nil
}

func (s *loggingNetworkService) Deallocate(ctx context.Context, address string) (Allocation, error) {
	allocation, err := s.next.Deallocate(ctx, address)
	if err != nil {
		s.logger.ErrorContext(ctx, "deallocate address failed", "address", address, "err", err.Error())
		return Allocation{}, err
	}

	s.logger.InfoContext(ctx, "address released", "subnet_id", allocation.SubnetID, "address", address)
	return allocation, nil
}

func (s *loggingNetworkService) FindAllocation(ctx context.Context, address string) (Allocation, error) {
	allocation, err := s.next.FindAllocation(ctx, address)
	if err != nil {
		s.logger.DebugContext(ctx, "allocation lookup failed", "address", address, "err", err.Error())
	}
	return allocation, err
}

func (s *loggingNetworkService) ListAllocations(ctx context.Context, subnetRef string) ([]Allocation, error) {
	allocations, err := s.next.ListAllocations(ctx, subnetRef)
	if err != nil {
		s.logger.ErrorContext(ctx, "list allocations failed", "subnet", subnetRef, "err", err.Error())
	}
	return allocations, err
}

func (s *loggingNetworkService) Discover(ctx context.Context, input DiscoverInput) (Snapshot, error) {
	snapshot, err := s.next.Discover(ctx, input)
	if err != nil {
		s.logger.ErrorContext(ctx, "discovery failed",
			"target", input.Target,
			"subnet", input.Subnet,
			"method", input.Method,
			"err", err.Error(),
		)
		return snapshot, err
	}

	s.logger.InfoContext(ctx, "discovery complete",
		"snapshot_id", snapshot.ID,
		"method", string(snapshot.Method),
		"probed", snapshot.Probed,
		"devices", len(snapshot.Devices),
		"partial", snapshot.Partial,
		"duration", snapshot.Duration().String(),
	)
	return snapshot, nil
}

func (s *loggingNetworkService) CheckConflicts(ctx context.Context) ([]Conflict, error) {
	conflicts, err := s.next.CheckConflicts(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "conflict check failed", "err", err.Error())
		return nil, err
	}

	s.logger.DebugContext(ctx, "conflict check complete", "conflicts", len(conflicts))
	return conflicts, nil
}

func (s *loggingNetworkService) Utilization(ctx context.Context, subnetRef string) (UtilizationReport, error) {
	report, err := s.next.Utilization(ctx, subnetRef)
	if err != nil {
		s.logger.ErrorContext(ctx, "utilization failed", "subnet", subnetRef, "err", err.Error())
	}
	return report, err
}

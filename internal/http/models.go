package http

import (
	"time"

	"github.com/Flarenzy/smart-ipam/internal/domain"
)

// SubnetResponse is the view of a managed subnet returned to clients and used in Swagger.
type SubnetResponse struct {
	ID          int64     `json:"id" example:"1"`
	CIDR        string    `json:"cidr" example:"10.0.0.0/24"`
	Name        string    `json:"name" example:"office"`
	Description string    `json:"description" example:"Office network"`
	VLANID      *int      `json:"vlan_id,omitempty" example:"10"`
	Gateway     string    `json:"gateway" example:"10.0.0.1"`
	CreatedAt   time.Time `json:"created_at" example:"2024-05-10T15:04:05Z"`
}

// CreateSubnetRequest is the payload accepted when creating a subnet.
type CreateSubnetRequest struct {
	CIDR        string `json:"cidr" example:"10.0.0.0/24" validate:"required"`
	Name        string `json:"name" example:"office" validate:"required"`
	Description string `json:"description" example:"Office network"`
	VLANID      *int   `json:"vlan_id,omitempty" example:"10"`
	Gateway     string `json:"gateway,omitempty" example:"10.0.0.1"`
}

// AllocationResponse is an allocation record, active or released.
type AllocationResponse struct {
	ID          string     `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Address     string     `json:"address" example:"10.0.0.2"`
	SubnetID    int64      `json:"subnet_id" example:"1"`
	Hostname    string     `json:"hostname" example:"printer-1"`
	DeviceType  string     `json:"device_type" example:"printer"`
	Owner       string     `json:"owner" example:"facilities"`
	Description string     `json:"description"`
	Kind        string     `json:"kind" example:"dynamic"`
	Status      string     `json:"status" example:"active"`
	CreatedAt   time.Time  `json:"created_at" example:"2024-05-10T15:04:05Z"`
	ReleasedAt  *time.Time `json:"released_at,omitempty"`
}

// CreateAllocationRequest is the payload accepted when allocating an address.
// Without an address the lowest free one is chosen.
type CreateAllocationRequest struct {
	Address     string `json:"address,omitempty" example:"10.0.0.20"`
	Hostname    string `json:"hostname" example:"printer-1"`
	DeviceType  string `json:"device_type,omitempty" example:"printer"`
	Owner       string `json:"owner,omitempty" example:"facilities"`
	Description string `json:"description,omitempty"`
	Kind        string `json:"kind,omitempty" example:"static" enums:"static,dynamic"`
}

// DiscoveryRequest starts a scan. Target wins over Subnet; with neither every
// managed subnet is scanned.
type DiscoveryRequest struct {
	Target  string `json:"target,omitempty" example:"10.0.0.0/24,10.0.1.10-10.0.1.20"`
	Subnet  string `json:"subnet,omitempty" example:"1"`
	Method  string `json:"method,omitempty" example:"full" enums:"ping,arp,snmp,full"`
	Persist bool   `json:"persist,omitempty"`
}

type DeviceResponse struct {
	Address  string    `json:"address" example:"10.0.0.7"`
	MAC      string    `json:"mac,omitempty" example:"00:1b:21:0a:0b:0c"`
	Hostname string    `json:"hostname,omitempty" example:"nas.lan"`
	Vendor   string    `json:"vendor,omitempty" example:"Intel"`
	Method   string    `json:"method" example:"arp"`
	LastSeen time.Time `json:"last_seen"`
}

// SnapshotResponse is the outcome of one discovery run.
type SnapshotResponse struct {
	ID              string           `json:"id"`
	Targets         []string         `json:"targets"`
	Method          string           `json:"method" example:"full"`
	State           string           `json:"state" example:"complete"`
	StartedAt       time.Time        `json:"started_at"`
	FinishedAt      time.Time        `json:"finished_at"`
	DurationSeconds float64          `json:"duration_seconds" example:"2.4"`
	Probed          int              `json:"probed" example:"254"`
	Partial         bool             `json:"partial"`
	Devices         []DeviceResponse `json:"devices"`
}

type ConflictResponse struct {
	Address     string              `json:"address" example:"10.0.0.9"`
	Kind        string              `json:"kind" example:"rogue" enums:"stale,mismatch,rogue"`
	Allocation  *AllocationResponse `json:"allocation,omitempty"`
	Device      *DeviceResponse     `json:"device,omitempty"`
	PreviousMAC string              `json:"previous_mac,omitempty"`
	DetectedAt  time.Time           `json:"detected_at"`
}

// SubnetUtilizationResponse reports pool usage. Total counts every usable
// host, the reserved gateway included.
type SubnetUtilizationResponse struct {
	Subnet    SubnetResponse `json:"subnet"`
	Allocated uint64         `json:"allocated" example:"12"`
	Reserved  uint64         `json:"reserved" example:"1"`
	Total     uint64         `json:"total" example:"254"`
	Available uint64         `json:"available" example:"241"`
	Percent   float64        `json:"percent" example:"4.72"`
}

// UtilizationResponse sums counts across subnets before computing Percent.
type UtilizationResponse struct {
	Subnets   []SubnetUtilizationResponse `json:"subnets"`
	Allocated uint64                      `json:"allocated"`
	Reserved  uint64                      `json:"reserved"`
	Total     uint64                      `json:"total"`
	Available uint64                      `json:"available"`
	Percent   float64                     `json:"percent"`
}

// ErrorResponse is a simple envelope for error messages.
type ErrorResponse struct {
	Error string `json:"error" example:"subnet not found"`
}

func (r CreateSubnetRequest) toInput() domain.CreateSubnetInput {
	return domain.CreateSubnetInput{
		CIDR:        r.CIDR,
		Name:        r.Name,
		Description: r.Description,
		VLANID:      r.VLANID,
		Gateway:     r.Gateway,
	}
}

func (r CreateAllocationRequest) toInput(subnetRef string) domain.AllocateInput {
	return domain.AllocateInput{
		Subnet:      subnetRef,
		Address:     r.Address,
		Hostname:    r.Hostname,
		DeviceType:  r.DeviceType,
		Owner:       r.Owner,
		Description: r.Description,
		Kind:        domain.AllocationKind(r.Kind),
	}
}

func (r DiscoveryRequest) toInput() domain.DiscoverInput {
	return domain.DiscoverInput{
		Target:  r.Target,
		Subnet:  r.Subnet,
		Method:  r.Method,
		Persist: r.Persist,
	}
}

// SubnetToResponse and the mappers below are shared by the handlers and the
// ipamctl json output.
func SubnetToResponse(s domain.Subnet) SubnetResponse {
	return SubnetResponse{
		ID:          s.ID,
		CIDR:        s.CIDR.String(),
		Name:        s.Name,
		Description: s.Description,
		VLANID:      s.VLANID,
		Gateway:     s.Gateway.String(),
		CreatedAt:   s.CreatedAt,
	}
}

func SubnetsToResponse(subnets []domain.Subnet) []SubnetResponse {
	out := make([]SubnetResponse, 0, len(subnets))
	for _, s := range subnets {
		out = append(out, SubnetToResponse(s))
	}
	return out
}

func AllocationToResponse(a domain.Allocation) AllocationResponse {
	return AllocationResponse{
		ID:          string(a.ID),
		Address:     a.Address.String(),
		SubnetID:    a.SubnetID,
		Hostname:    a.Hostname,
		DeviceType:  a.DeviceType,
		Owner:       a.Owner,
		Description: a.Description,
		Kind:        string(a.Kind),
		Status:      string(a.Status),
		CreatedAt:   a.CreatedAt,
		ReleasedAt:  a.ReleasedAt,
	}
}

func AllocationsToResponse(allocations []domain.Allocation) []AllocationResponse {
	out := make([]AllocationResponse, 0, len(allocations))
	for _, a := range allocations {
		out = append(out, AllocationToResponse(a))
	}
	return out
}

func DeviceToResponse(d domain.DiscoveredDevice) DeviceResponse {
	resp := DeviceResponse{
		Address:  d.Address.String(),
		Hostname: d.Hostname,
		Vendor:   d.Vendor,
		Method:   string(d.Method),
		LastSeen: d.LastSeen,
	}
	if len(d.MAC) > 0 {
		resp.MAC = d.MAC.String()
	}
	return resp
}

func SnapshotToResponse(s domain.Snapshot) SnapshotResponse {
	devices := make([]DeviceResponse, 0, len(s.Devices))
	for _, d := range s.Devices {
		devices = append(devices, DeviceToResponse(d))
	}
	targets := s.Targets
	if targets == nil {
		targets = []string{}
	}
	return SnapshotResponse{
		ID:              s.ID,
		Targets:         targets,
		Method:          string(s.Method),
		State:           string(s.State),
		StartedAt:       s.StartedAt,
		FinishedAt:      s.FinishedAt,
		DurationSeconds: s.Duration().Seconds(),
		Probed:          s.Probed,
		Partial:         s.Partial,
		Devices:         devices,
	}
}

func ConflictsToResponse(conflicts []domain.Conflict) []ConflictResponse {
	out := make([]ConflictResponse, 0, len(conflicts))
	for _, c := range conflicts {
		resp := ConflictResponse{
			Address:    c.Address.String(),
			Kind:       string(c.Kind),
			DetectedAt: c.DetectedAt,
		}
		if c.Allocation != nil {
			allocation := AllocationToResponse(*c.Allocation)
			resp.Allocation = &allocation
		}
		if c.Device != nil {
			device := DeviceToResponse(*c.Device)
			resp.Device = &device
		}
		if len(c.PreviousMAC) > 0 {
			resp.PreviousMAC = c.PreviousMAC.String()
		}
		out = append(out, resp)
	}
	return out
}

func UtilizationToResponse(r domain.UtilizationReport) UtilizationResponse {
	subnets := make([]SubnetUtilizationResponse, 0, len(r.Subnets))
	for _, s := range r.Subnets {
		subnets = append(subnets, SubnetUtilizationResponse{
			Subnet:    SubnetToResponse(s.Subnet),
			Allocated: s.Allocated,
			Reserved:  s.Reserved,
			Total:     s.Total,
			Available: s.Available,
			Percent:   s.Percent,
		})
	}
	return UtilizationResponse{
		Subnets:   subnets,
		Allocated: r.Allocated,
		Reserved:  r.Reserved,
		Total:     r.Total,
		Available: r.Available,
		Percent:   r.Percent,
	}
}

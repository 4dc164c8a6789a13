package http

import (
	"net/http"
	"strings"
)

// @Summary Health check
// @Tags health
// @Success 200 {string} string "ok"
// @Router /healthz [get]
func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// @Summary Readiness check
// @Tags health
// @Success 200 {string} string "ready"
// @Failure 503 {string} string "db unavailable"
// @Router /readyz [get]
func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if a.Health != nil {
		if err := a.Health.Ping(ctx); err != nil {
			a.Logger.ErrorContext(ctx, "db ping failed", "err", err.Error())
			http.Error(w, "db unavailable", http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// @Summary List subnets
// @Tags subnets
// @Produce json
// @Success 200 {array} SubnetResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/subnets [get]
func (a *API) handleListSubnets(w http.ResponseWriter, r *http.Request) {
	subnets, err := a.Service.ListSubnets(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, SubnetsToResponse(subnets))
}

// @Summary Create subnet
// @Tags subnets
// @Accept json
// @Produce json
// @Param subnet body CreateSubnetRequest true "Subnet payload"
// @Success 201 {object} SubnetResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/subnets [post]
func (a *API) handleCreateSubnet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := decode[CreateSubnetRequest](r)
	defer r.Body.Close()
	if err != nil {
		a.Logger.DebugContext(ctx, "unmarshaling subnet from request", "err", err.Error())
		a.respond(w, r, http.StatusBadRequest, ErrorResponse{Error: "bad request"})
		return
	}
	if err := req.validate(); err != nil {
		a.fail(w, r, err)
		return
	}

	subnet, err := a.Service.CreateSubnet(ctx, req.toInput())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusCreated, SubnetToResponse(subnet))
}

// handleSubnetPath routes /api/v1/subnets/{ref} and
// /api/v1/subnets/{ref}/allocations. A CIDR ref contains a slash, so the
// suffix is split off by hand.
func (a *API) handleSubnetPath(w http.ResponseWriter, r *http.Request) {
	ref := strings.TrimSuffix(r.PathValue("ref"), "/")
	if subnetRef, ok := strings.CutSuffix(ref, "/allocations"); ok {
		switch r.Method {
		case http.MethodGet:
			a.handleListAllocations(w, r, subnetRef)
		case http.MethodPost:
			a.handleAllocate(w, r, subnetRef)
		}
		return
	}

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		a.respond(w, r, http.StatusMethodNotAllowed, ErrorResponse{Error: "method not allowed"})
		return
	}
	a.handleGetSubnet(w, r, ref)
}

// @Summary Get subnet by ID or CIDR
// @Tags subnets
// @Produce json
// @Param ref path string true "Subnet ID or CIDR"
// @Success 200 {object} SubnetResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/subnets/{ref} [get]
func (a *API) handleGetSubnet(w http.ResponseWriter, r *http.Request, ref string) {
	subnet, err := a.Service.GetSubnet(r.Context(), ref)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, SubnetToResponse(subnet))
}

// @Summary List allocations of a subnet
// @Description Active and released records, ordered by address then creation time.
// @Tags allocations
// @Produce json
// @Param ref path string true "Subnet ID or CIDR"
// @Success 200 {array} AllocationResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/subnets/{ref}/allocations [get]
func (a *API) handleListAllocations(w http.ResponseWriter, r *http.Request, ref string) {
	allocations, err := a.Service.ListAllocations(r.Context(), ref)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, AllocationsToResponse(allocations))
}

// @Summary Allocate an address
// @Description Without an address the lowest free host is allocated.
// @Tags allocations
// @Accept json
// @Produce json
// @Param ref path string true "Subnet ID or CIDR"
// @Param payload body CreateAllocationRequest true "Allocation payload"
// @Success 201 {object} AllocationResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/subnets/{ref}/allocations [post]
func (a *API) handleAllocate(w http.ResponseWriter, r *http.Request, ref string) {
	ctx := r.Context()
	req, err := decode[CreateAllocationRequest](r)
	defer r.Body.Close()
	if err != nil {
		a.Logger.DebugContext(ctx, "unmarshaling allocation from request", "err", err.Error())
		a.respond(w, r, http.StatusBadRequest, ErrorResponse{Error: "bad request"})
		return
	}
	if err := req.validate(); err != nil {
		a.fail(w, r, err)
		return
	}

	allocation, err := a.Service.Allocate(ctx, req.toInput(ref))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusCreated, AllocationToResponse(allocation))
}

// @Summary Get the active allocation of an address
// @Tags allocations
// @Produce json
// @Param address path string true "IPv4 address"
// @Success 200 {object} AllocationResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /api/v1/allocations/{address} [get]
func (a *API) handleGetAllocation(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if _, err := parseAddressParam(address); err != nil {
		a.fail(w, r, err)
		return
	}

	allocation, err := a.Service.FindAllocation(r.Context(), address)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, AllocationToResponse(allocation))
}

// @Summary Release an address
// @Tags allocations
// @Produce json
// @Param address path string true "IPv4 address"
// @Success 200 {object} AllocationResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/allocations/{address} [delete]
func (a *API) handleDeallocate(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	if _, err := parseAddressParam(address); err != nil {
		a.fail(w, r, err)
		return
	}

	allocation, err := a.Service.Deallocate(r.Context(), address)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, AllocationToResponse(allocation))
}

// @Summary Run a discovery scan
// @Description Blocks until the scan finishes. A cancelled request returns no body.
// @Tags discovery
// @Accept json
// @Produce json
// @Param payload body DiscoveryRequest true "Scan parameters"
// @Success 200 {object} SnapshotResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/discovery [post]
func (a *API) handleDiscover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := decode[DiscoveryRequest](r)
	defer r.Body.Close()
	if err != nil {
		a.Logger.DebugContext(ctx, "unmarshaling discovery request", "err", err.Error())
		a.respond(w, r, http.StatusBadRequest, ErrorResponse{Error: "bad request"})
		return
	}
	if err := req.validate(); err != nil {
		a.fail(w, r, err)
		return
	}

	snapshot, err := a.Service.Discover(ctx, req.toInput())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, SnapshotToResponse(snapshot))
}

// @Summary Reconcile allocations against the latest discovery snapshot
// @Tags discovery
// @Produce json
// @Success 200 {array} ConflictResponse
// @Failure 404 {object} ErrorResponse "no discovery snapshot yet"
// @Failure 500 {object} ErrorResponse
// @Router /api/v1/conflicts [get]
func (a *API) handleCheckConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts, err := a.Service.CheckConflicts(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, ConflictsToResponse(conflicts))
}

// @Summary Utilization report
// @Tags reports
// @Produce json
// @Param subnet query string false "Restrict to one subnet (ID or CIDR)"
// @Success 200 {object} UtilizationResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/utilization [get]
func (a *API) handleUtilization(w http.ResponseWriter, r *http.Request) {
	report, err := a.Service.Utilization(r.Context(), r.URL.Query().Get("subnet"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.respond(w, r, http.StatusOK, UtilizationToResponse(report))
}

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/Flarenzy/smart-ipam/internal/app"
	"github.com/Flarenzy/smart-ipam/internal/domain"
	apihttp "github.com/Flarenzy/smart-ipam/internal/http"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newServeCmd(c *cli) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.cfg
			if port != "" {
				cfg.Port = port
			}
			slog.SetDefault(c.logger)
			pterm.Info.WithWriter(c.out).Printfln("Serving on :%s (%s store)", cfg.Port, cfg.Driver())
			return app.Run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "port to listen on; overrides PORT")
	return cmd
}

// newInitDatabaseCmd relies on setup: opening a store applies its migrations.
func newInitDatabaseCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "init-database",
		Short: "Create or migrate the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			c.success("Database initialized (%s store)", c.cfg.Driver())
			return nil
		},
	}
}

func newCreateSubnetCmd(c *cli) *cobra.Command {
	var (
		input domain.CreateSubnetInput
		vlan  int
	)
	cmd := &cobra.Command{
		Use:   "create-subnet",
		Short: "Create a managed subnet",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("vlan") {
				input.VLANID = &vlan
			}
			subnet, err := c.service.CreateSubnet(cmd.Context(), input)
			if err != nil {
				return err
			}

			c.success("Subnet %s created", subnet.CIDR)
			report, err := c.service.Utilization(cmd.Context(), strconv.FormatInt(subnet.ID, 10))
			if err != nil {
				return err
			}
			props := subnetProps(subnet)
			props = append(props, []string{"Available IPs", strconv.FormatUint(report.Available, 10)})
			return c.details("Subnet Details - "+subnet.Name, props, apihttp.SubnetToResponse(subnet))
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&input.CIDR, "network", "", "network CIDR, e.g. 192.168.1.0/24")
	flags.StringVar(&input.Name, "name", "", "subnet name")
	flags.StringVar(&input.Description, "description", "", "subnet description")
	flags.IntVar(&vlan, "vlan", 0, "VLAN ID")
	flags.StringVar(&input.Gateway, "gateway", "", "gateway address (default: first host)")
	_ = cmd.MarkFlagRequired("network")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newAllocateCmd(c *cli) *cobra.Command {
	var (
		input  domain.AllocateInput
		static bool
	)
	cmd := &cobra.Command{
		Use:   "allocate-ip",
		Short: "Allocate an address from a subnet",
		RunE: func(cmd *cobra.Command, args []string) error {
			if static {
				input.Kind = domain.AllocationStatic
			}
			allocation, err := c.service.Allocate(cmd.Context(), input)
			if err != nil {
				return err
			}

			c.success("Allocated %s", allocation.Address)
			props := [][]string{
				{"IP Address", allocation.Address.String()},
				{"Allocation ID", string(allocation.ID)},
				{"Subnet", input.Subnet},
				{"Type", string(allocation.Kind)},
				{"Hostname", orNA(allocation.Hostname)},
				{"Device Type", allocation.DeviceType},
				{"Owner", orNA(allocation.Owner)},
			}
			return c.details("IP Allocation Details", props, apihttp.AllocationToResponse(allocation))
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&input.Subnet, "subnet", "", "subnet CIDR or ID")
	flags.StringVar(&input.Address, "address", "", "specific address to allocate (implies --static)")
	flags.StringVar(&input.Hostname, "hostname", "", "hostname for the allocation")
	flags.StringVar(&input.DeviceType, "device-type", "", "device type (server, workstation, ...)")
	flags.StringVar(&input.Owner, "owner", "", "owner or department")
	flags.StringVar(&input.Description, "description", "", "description for the allocation")
	flags.BoolVar(&static, "static", false, "create a static allocation")
	_ = cmd.MarkFlagRequired("subnet")
	return cmd
}

func newDeallocateCmd(c *cli) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "deallocate-ip ADDRESS",
		Short: "Release an allocated address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address := args[0]
			if !force {
				ok, err := c.confirm(fmt.Sprintf("Are you sure you want to deallocate %s?", address))
				if err != nil {
					return err
				}
				if !ok {
					c.warn("Deallocation cancelled")
					return nil
				}
			}

			allocation, err := c.service.Deallocate(cmd.Context(), address)
			if err != nil {
				return err
			}
			if c.format != formatTable {
				return c.render(tabular{value: apihttp.AllocationToResponse(allocation)})
			}
			c.success("Released %s (was %s)", allocation.Address, orNA(allocation.Hostname))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "release without confirmation")
	return cmd
}

func newListSubnetsCmd(c *cli) *cobra.Command {
	var subnetRef string
	cmd := &cobra.Command{
		Use:   "list-subnets",
		Short: "List subnets with their utilization",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := c.service.Utilization(cmd.Context(), subnetRef)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(report.Subnets))
			for _, s := range report.Subnets {
				rows = append(rows, []string{
					strconv.FormatInt(s.Subnet.ID, 10),
					s.Subnet.Name,
					s.Subnet.CIDR.String(),
					utilizationCell(s.Percent, c.format),
					strconv.FormatUint(s.Available, 10),
					vlanString(s.Subnet.VLANID),
				})
			}
			return c.render(tabular{
				title:  "subnets",
				header: []string{"ID", "Name", "Network", "Utilization", "Available IPs", "VLAN"},
				rows:   rows,
				value:  apihttp.UtilizationToResponse(report).Subnets,
			})
		},
	}
	cmd.Flags().StringVar(&subnetRef, "subnet", "", "show only this subnet (CIDR or ID)")
	return cmd
}

func newListAllocationsCmd(c *cli) *cobra.Command {
	var subnetRef string
	cmd := &cobra.Command{
		Use:   "list-allocations",
		Short: "List active and released allocations of a subnet",
		RunE: func(cmd *cobra.Command, args []string) error {
			allocations, err := c.service.ListAllocations(cmd.Context(), subnetRef)
			if err != nil {
				return err
			}
			return c.render(tabular{
				title:  "allocations",
				header: []string{"Address", "Hostname", "Device Type", "Owner", "Kind", "Status", "Created"},
				rows:   allocationRows(allocations),
				value:  apihttp.AllocationsToResponse(allocations),
			})
		},
	}
	cmd.Flags().StringVar(&subnetRef, "subnet", "", "subnet CIDR or ID")
	_ = cmd.MarkFlagRequired("subnet")
	return cmd
}

func newDiscoverCmd(c *cli) *cobra.Command {
	var input domain.DiscoverInput
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Probe the network for devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := c.discover(cmd, input)
			if err != nil {
				return err
			}

			if c.format != formatTable {
				return c.render(tabular{
					header: []string{"Address", "MAC", "Hostname", "Vendor", "Method"},
					rows:   deviceRows(snapshot.Devices),
					value:  apihttp.SnapshotToResponse(snapshot),
				})
			}

			c.success("Discovery completed, found %d devices", len(snapshot.Devices))
			if err = c.render(tabular{
				title:  "devices",
				header: []string{"IP Address", "MAC Address", "Hostname", "Vendor", "Method"},
				rows:   deviceRows(snapshot.Devices),
			}); err != nil {
				return err
			}
			summary := fmt.Sprintf("Total devices found: %d\nAddresses probed: %d\nDiscovery method: %s\nSnapshot saved: %t\nScan duration: %s",
				len(snapshot.Devices), snapshot.Probed, snapshot.Method, input.Persist, snapshot.Duration().Round(time.Millisecond))
			if snapshot.Partial {
				summary += "\nScan was interrupted, results are partial"
			}
			fmt.Fprint(c.out, pterm.DefaultBox.WithTitle("Discovery Summary").Sprintln(summary))
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&input.Subnet, "subnet", "", "scan one managed subnet (CIDR or ID)")
	flags.StringVar(&input.Target, "target", "", "explicit targets: CIDRs, addresses or a-b ranges, comma separated")
	flags.StringVar(&input.Method, "discovery-type", string(domain.MethodFull), "discovery method (ping, arp, snmp, full)")
	flags.BoolVar(&input.Persist, "update-database", false, "save the snapshot for later conflict checks")
	return cmd
}

// discover runs a scan behind a spinner when printing tables.
func (c *cli) discover(cmd *cobra.Command, input domain.DiscoverInput) (domain.Snapshot, error) {
	var spinner *pterm.SpinnerPrinter
	if c.format == formatTable {
		spinner, _ = pterm.DefaultSpinner.WithWriter(c.errWriter()).Start("Discovering devices...")
	}
	snapshot, err := c.service.Discover(cmd.Context(), input)
	if spinner != nil {
		_ = spinner.Stop()
	}
	return snapshot, err
}

func newCheckConflictsCmd(c *cli) *cobra.Command {
	var (
		scan  bool
		input domain.DiscoverInput
	)
	cmd := &cobra.Command{
		Use:   "check-conflicts",
		Short: "Compare allocations with the latest discovery snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			if scan {
				input.Persist = true
				if _, err := c.discover(cmd, input); err != nil {
					return err
				}
			}

			conflicts, err := c.service.CheckConflicts(cmd.Context())
			if errors.Is(err, domain.ErrNoSnapshot) {
				return fmt.Errorf("%w: run discover --update-database or pass --scan", err)
			}
			if err != nil {
				return err
			}

			if c.format == formatTable {
				if len(conflicts) == 0 {
					c.success("No IP conflicts detected")
					return nil
				}
				pterm.Warning.WithWriter(c.out).Printfln("Found %d IP conflicts", len(conflicts))
			}
			return c.render(tabular{
				title:  "conflicts",
				header: []string{"IP Address", "Conflict Type", "Allocated To", "Detected Device", "Previous MAC"},
				rows:   conflictRows(conflicts),
				value:  apihttp.ConflictsToResponse(conflicts),
			})
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&scan, "scan", false, "run a discovery scan first")
	flags.StringVar(&input.Subnet, "subnet", "", "with --scan, scan one managed subnet")
	flags.StringVar(&input.Method, "discovery-type", string(domain.MethodFull), "with --scan, discovery method")
	return cmd
}

func newReportCmd(c *cli) *cobra.Command {
	var (
		subnetRef string
		output    string
	)
	cmd := &cobra.Command{
		Use:   "generate-report",
		Short: "Report address utilization",
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := c.service.Utilization(cmd.Context(), subnetRef)
			if err != nil {
				return err
			}

			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				saved := *c
				saved.out = f
				if saved.format == formatTable {
					saved.format = formatJSON
				}
				if err = saved.renderReport(report); err != nil {
					return err
				}
				if err = f.Close(); err != nil {
					return err
				}
				c.success("Report saved to %s", output)
				return nil
			}
			return c.renderReport(report)
		},
	}
	cmd.Flags().StringVar(&subnetRef, "subnet", "", "report on one subnet (CIDR or ID)")
	cmd.Flags().StringVar(&output, "output", "", "write the report to a file (json unless --format csv)")
	return cmd
}

func (c *cli) renderReport(report domain.UtilizationReport) error {
	rows := [][]string{
		{"Total Subnets", strconv.Itoa(len(report.Subnets))},
		{"Total IPs", strconv.FormatUint(report.Total, 10)},
		{"Allocated IPs", strconv.FormatUint(report.Allocated, 10)},
		{"Reserved IPs", strconv.FormatUint(report.Reserved, 10)},
		{"Available IPs", strconv.FormatUint(report.Available, 10)},
		{"Utilization", percentString(report.Percent)},
	}
	if c.format == formatTable {
		return c.details("Network Utilization Summary", rows, nil)
	}
	return c.render(tabular{header: []string{"metric", "value"}, rows: rows, value: apihttp.UtilizationToResponse(report)})
}

func utilizationCell(percent float64, format string) string {
	cell := percentString(percent)
	if format != formatTable {
		return cell
	}
	switch {
	case percent > 90:
		return pterm.Red(cell)
	case percent > 75:
		return pterm.Yellow(cell)
	}
	return pterm.Green(cell)
}

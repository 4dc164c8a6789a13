package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/Flarenzy/smart-ipam/internal/domain"
	"github.com/pterm/pterm"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatCSV   = "csv"
)

func validateFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatCSV:
		return nil
	}
	return fmt.Errorf("unknown format %q (want table, json or csv)", format)
}

// tabular is what every listing renders from: a header row plus data rows,
// and the value to marshal for json output.
type tabular struct {
	title  string
	header []string
	rows   [][]string
	value  any
}

func (c *cli) render(t tabular) error {
	switch c.format {
	case formatJSON:
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(t.value)
	case formatCSV:
		w := csv.NewWriter(c.out)
		if err := w.Write(t.header); err != nil {
			return err
		}
		if err := w.WriteAll(t.rows); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
		return nil
	}

	if len(t.rows) == 0 {
		c.warn("No %s found.", t.title)
		return nil
	}
	data := pterm.TableData{t.header}
	data = append(data, t.rows...)
	if err := pterm.DefaultTable.WithWriter(c.out).WithHasHeader(true).WithData(data).Render(); err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	return nil
}

// details renders a two-column property table, or the value as json.
func (c *cli) details(title string, props [][]string, value any) error {
	if c.format != formatTable {
		return c.render(tabular{title: title, header: []string{"property", "value"}, rows: props, value: value})
	}
	fmt.Fprintln(c.out, pterm.Bold.Sprint(title))
	return c.render(tabular{title: title, header: []string{"Property", "Value"}, rows: props, value: value})
}

func (c *cli) success(format string, args ...any) {
	if c.format == formatTable {
		pterm.Success.WithWriter(c.out).Printfln(format, args...)
	}
}

func (c *cli) warn(format string, args ...any) {
	pterm.Warning.WithWriter(c.errWriter()).Printfln(format, args...)
}

func (c *cli) errWriter() io.Writer {
	if c.errOut != nil {
		return c.errOut
	}
	return io.Discard
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func vlanString(v *int) string {
	if v == nil {
		return "N/A"
	}
	return strconv.Itoa(*v)
}

func percentString(p float64) string {
	return strconv.FormatFloat(p, 'f', 1, 64) + "%"
}

func subnetProps(s domain.Subnet) [][]string {
	return [][]string{
		{"Subnet ID", strconv.FormatInt(s.ID, 10)},
		{"Network", s.CIDR.String()},
		{"Name", s.Name},
		{"Description", orNA(s.Description)},
		{"Gateway", s.Gateway.String()},
		{"VLAN ID", vlanString(s.VLANID)},
	}
}

func allocationRows(allocations []domain.Allocation) [][]string {
	rows := make([][]string, 0, len(allocations))
	for _, a := range allocations {
		rows = append(rows, []string{
			a.Address.String(),
			orNA(a.Hostname),
			a.DeviceType,
			orNA(a.Owner),
			string(a.Kind),
			string(a.Status),
			a.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return rows
}

func deviceRows(devices []domain.DiscoveredDevice) [][]string {
	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		mac := ""
		if len(d.MAC) > 0 {
			mac = d.MAC.String()
		}
		rows = append(rows, []string{
			d.Address.String(),
			orNA(mac),
			orNA(d.Hostname),
			orNA(d.Vendor),
			string(d.Method),
		})
	}
	return rows
}

func conflictRows(conflicts []domain.Conflict) [][]string {
	rows := make([][]string, 0, len(conflicts))
	for _, conflict := range conflicts {
		allocatedTo := "N/A"
		if conflict.Allocation != nil {
			allocatedTo = orNA(conflict.Allocation.Hostname)
		}
		detected := "N/A"
		if conflict.Device != nil {
			detected = orNA(conflict.Device.Hostname)
			if len(conflict.Device.MAC) > 0 {
				detected = conflict.Device.MAC.String()
			}
		}
		previous := ""
		if len(conflict.PreviousMAC) > 0 {
			previous = conflict.PreviousMAC.String()
		}
		rows = append(rows, []string{
			conflict.Address.String(),
			string(conflict.Kind),
			allocatedTo,
			detected,
			orNA(previous),
		})
	}
	return rows
}

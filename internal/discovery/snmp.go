package discovery

import (
	"context"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
)

const (
	oidSysDescr    = "1.3.6.1.2.1.1.1.0"
	oidSysObjectID = "1.3.6.1.2.1.1.2.0"
	oidSysName     = "1.3.6.1.2.1.1.5.0"

	enterprisesPrefix = ".1.3.6.1.4.1."
)

// Private enterprise numbers of common network equipment vendors.
var enterpriseVendors = map[int]string{
	9:     "Cisco",
	11:    "HP",
	43:    "3Com",
	311:   "Microsoft",
	674:   "Dell",
	1916:  "Extreme Networks",
	1991:  "Brocade",
	2011:  "Huawei",
	2636:  "Juniper",
	3375:  "F5",
	4526:  "Netgear",
	6876:  "VMware",
	8072:  "Net-SNMP",
	11863: "TP-Link",
	12356: "Fortinet",
	14823: "Aruba",
	14988: "MikroTik",
	25461: "Palo Alto Networks",
	25506: "H3C",
	30065: "Arista",
	41112: "Ubiquiti",
}

// SNMPProber reads sysName and sysObjectID with an SNMP v2c GET.
type SNMPProber struct {
	Community string
	Port      uint16
}

func (p SNMPProber) Probe(ctx context.Context, addr netip.Addr) (Observation, error) {
	timeout := 2 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	// GoSNMP is not safe for concurrent use, so every probe gets its own client.
	client := &gosnmp.GoSNMP{
		Target:    addr.String(),
		Port:      p.port(),
		Community: p.community(),
		Version:   gosnmp.Version2c,
		Timeout:   timeout,
		Retries:   0,
		Transport: "udp",
		Context:   ctx,
	}
	if err := client.Connect(); err != nil {
		return Observation{}, fmt.Errorf("snmp connect %s: %w", addr, err)
	}
	defer client.Conn.Close()

	result, err := client.Get([]string{oidSysName, oidSysObjectID, oidSysDescr})
	if err != nil {
		if ctx.Err() != nil {
			return Observation{}, ctx.Err()
		}
		return Observation{}, ErrNoResponse
	}
	if result == nil || result.Error != gosnmp.NoError {
		return Observation{}, ErrNoResponse
	}

	var obs Observation
	var descr string
	for _, v := range result.Variables {
		switch strings.TrimPrefix(v.Name, ".") {
		case oidSysName:
			obs.Hostname = snmpString(v)
		case oidSysObjectID:
			if s, ok := v.Value.(string); ok {
				obs.Vendor = vendorFromObjectID(s)
			}
		case oidSysDescr:
			descr = snmpString(v)
		}
	}
	if obs.Vendor == "" && descr != "" {
		obs.Vendor = strings.Fields(descr)[0]
	}
	return obs, nil
}

func (p SNMPProber) port() uint16 {
	if p.Port == 0 {
		return 161
	}
	return p.Port
}

func (p SNMPProber) community() string {
	if p.Community == "" {
		return "public"
	}
	return p.Community
}

func snmpString(v gosnmp.SnmpPDU) string {
	if v.Type != gosnmp.OctetString {
		return ""
	}
	b, ok := v.Value.([]byte)
	if !ok {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func vendorFromObjectID(oid string) string {
	if !strings.HasPrefix(oid, ".") {
		oid = "." + oid
	}
	rest, ok := strings.CutPrefix(oid, enterprisesPrefix)
	if !ok {
		return ""
	}
	number, _, _ := strings.Cut(rest, ".")
	pen, err := strconv.Atoi(number)
	if err != nil {
		return ""
	}
	return enterpriseVendors[pen]
}

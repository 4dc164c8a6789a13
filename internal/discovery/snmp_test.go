package discovery

import "testing"

func TestVendorFromObjectID(t *testing.T) {
	tests := map[string]string{
		".1.3.6.1.4.1.9.1.516":        "Cisco",
		"1.3.6.1.4.1.2636.1.1.1.2.29": "Juniper",
		".1.3.6.1.4.1.8072.3.2.10":    "Net-SNMP",
		".1.3.6.1.4.1.999999.1":       "",
		".1.3.6.1.2.1.1":              "",
	}
	for oid, want := range tests {
		if got := vendorFromObjectID(oid); got != want {
			t.Fatalf("%s: expected %q, got %q", oid, want, got)
		}
	}
}

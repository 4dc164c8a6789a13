package discovery

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
)

// Built-in OUI prefixes for hardware commonly found on managed networks.
var builtinOUI = map[[3]byte]string{
	{0x00, 0x00, 0x0c}: "Cisco",
	{0x00, 0x1b, 0x54}: "Cisco",
	{0x00, 0x05, 0x85}: "Juniper",
	{0x28, 0x8a, 0x1c}: "Juniper",
	{0x00, 0x0c, 0x29}: "VMware",
	{0x00, 0x50, 0x56}: "VMware",
	{0x08, 0x00, 0x27}: "Oracle VirtualBox",
	{0x52, 0x54, 0x00}: "QEMU/KVM",
	{0x00, 0x15, 0x5d}: "Microsoft Hyper-V",
	{0x00, 0x16, 0x3e}: "Xen",
	{0x02, 0x42, 0xac}: "Docker",
	{0xb8, 0x27, 0xeb}: "Raspberry Pi",
	{0xdc, 0xa6, 0x32}: "Raspberry Pi",
	{0xe4, 0x5f, 0x01}: "Raspberry Pi",
	{0x00, 0x1a, 0x11}: "Google",
	{0x3c, 0x5a, 0xb4}: "Google",
	{0xf0, 0x9f, 0xc2}: "Ubiquiti",
	{0x24, 0xa4, 0x3c}: "Ubiquiti",
	{0x4c, 0x5e, 0x0c}: "MikroTik",
	{0x00, 0x0c, 0x42}: "MikroTik",
	{0x00, 0x09, 0x0f}: "Fortinet",
	{0x00, 0x1c, 0x73}: "Arista",
	{0x00, 0x25, 0x90}: "Super Micro",
	{0x00, 0x1e, 0x67}: "Intel",
	{0x3c, 0xfd, 0xfe}: "Intel",
	{0x00, 0x14, 0x22}: "Dell",
	{0xf4, 0x8e, 0x38}: "Dell",
	{0x00, 0x17, 0xa4}: "HP",
	{0x3c, 0xd9, 0x2b}: "HP",
	{0x00, 0xe0, 0x4c}: "Realtek",
	{0x00, 0x03, 0x93}: "Apple",
	{0xa4, 0x83, 0xe7}: "Apple",
	{0x00, 0x18, 0x82}: "Huawei",
	{0x50, 0xc7, 0xbf}: "TP-Link",
	{0x00, 0x11, 0x32}: "Synology",
}

// OUITable maps the first three octets of a MAC address to a vendor name.
type OUITable struct {
	entries map[[3]byte]string
}

func NewOUITable() *OUITable {
	entries := make(map[[3]byte]string, len(builtinOUI))
	for k, v := range builtinOUI {
		entries[k] = v
	}
	return &OUITable{entries: entries}
}

// LoadOUIFile extends the built-in table with a Wireshark "manuf" style file:
// lines of "00:11:22<TAB>ShortName<TAB>Long Name", "#" comments allowed.
func LoadOUIFile(path string) (*OUITable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t := NewOUITable()
	if err = t.Read(f); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return t, nil
}

func (t *OUITable) Read(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			fields = strings.Fields(line)
		}
		if len(fields) < 2 {
			continue
		}
		key, ok := parseOUI(fields[0])
		if !ok {
			continue
		}
		name := strings.TrimSpace(fields[len(fields)-1])
		if name == "" {
			name = strings.TrimSpace(fields[1])
		}
		t.entries[key] = name
	}
	return scanner.Err()
}

func (t *OUITable) Vendor(mac net.HardwareAddr) string {
	if len(mac) < 3 {
		return ""
	}
	return t.entries[[3]byte{mac[0], mac[1], mac[2]}]
}

// parseOUI accepts "00:11:22", "00-11-22" and "001122".
func parseOUI(s string) ([3]byte, bool) {
	s = strings.NewReplacer(":", "", "-", "", ".", "").Replace(strings.TrimSpace(s))
	if len(s) != 6 {
		return [3]byte{}, false
	}
	mac, err := net.ParseMAC(s[0:2] + ":" + s[2:4] + ":" + s[4:6] + ":00:00:00")
	if err != nil {
		return [3]byte{}, false
	}
	return [3]byte{mac[0], mac[1], mac[2]}, true
}

package network

import (
	"context"
	"os/exec"
	"strings"
)

// NMCLI drives the Wi-Fi hardware through NetworkManager's CLI. It is the
// production Interface on the station's Linux image.
type NMCLI struct{}

func NewNMCLI() *NMCLI {
	return &NMCLI{}
}

func (n *NMCLI) Join(ctx context.Context, creds Credentials) error {
	cmd := exec.CommandContext(ctx, "nmcli", "device", "wifi", "connect", creds.SSID, "password", creds.Password)
	return cmd.Run()
}

func (n *NMCLI) IsJoined() bool {
	out, err := exec.Command("nmcli", "-t", "-f", "CONNECTIVITY", "general", "status").Output()
	if err != nil {
		return false
	}
	state := strings.TrimSpace(string(out))
	return state == "full" || state == "limited"
}

func (n *NMCLI) Address() string {
	out, err := exec.Command("hostname", "-I").Output()
	if err != nil {
		return ""
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func (n *NMCLI) StartAccessPoint(ssid, password string) error {
	cmd := exec.Command("nmcli", "device", "wifi", "hotspot", "ssid", ssid, "password", password)
	return cmd.Run()
}

func (n *NMCLI) AccessPointActive() bool {
	out, err := exec.Command("nmcli", "-t", "-f", "NAME", "connection", "show", "--active").Output()
	if err != nil {
		return false
	}
	return strings.Contains(string(out), "Hotspot")
}

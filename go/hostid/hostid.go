// Package hostid resolves the identity a box reports to the fleet: the
// factory-burned device serial and the local addresses.
package hostid

import (
	"fmt"
	"net"
	"strings"

	"gopkg.in/ini.v1"
)

const (
	factoryConfigPath = "/factory/OEMconfig.ini"
	snSection         = "BASE"
	snKey             = "DEVICE_SN"
)

// DeviceSN returns the hardware id of this box. A non-empty override from
// the config wins; otherwise the factory INI is consulted.
func DeviceSN(override string) (string, error) {
	if strings.TrimSpace(override) != "" {
		return strings.TrimSpace(override), nil
	}
	return readFactorySN(factoryConfigPath)
}

func readFactorySN(path string) (string, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return "", fmt.Errorf("loading %s: %w", path, err)
	}
	var sn = strings.TrimSpace(cfg.Section(snSection).Key(snKey).String())
	if sn == "" {
		return "", fmt.Errorf("%s: missing %s/%s", path, snSection, snKey)
	}
	return sn, nil
}

// LocalIPv4s lists the non-loopback IPv4 addresses of this host.
func LocalIPv4s() []string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	var ips []string
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if v4 := ipnet.IP.To4(); v4 != nil {
			ips = append(ips, v4.String())
		}
	}
	return ips
}

// Package linkprobe reports whether the dedicated point-to-point interface
// is attached and up.
package linkprobe

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
	psnet "github.com/shirou/gopsutil/v4/net"
	"github.com/sirupsen/logrus"

	"edgelink/internal/logging"
)

// ErrNoCriteria is returned when neither an interface name nor a subnet is
// configured.
var ErrNoCriteria = errors.New("link probe needs an interface name or a subnet")

const listTimeout = 2 * time.Second

// Interface is the part of an OS network interface the probe looks at.
type Interface struct {
	Name     string
	Up       bool
	Loopback bool
	// Addrs are CIDR strings such as "192.168.100.1/24".
	Addrs []string
}

// Lister enumerates network interfaces.
type Lister func(ctx context.Context) ([]Interface, error)

// Probe matches interfaces against a name, a subnet, or both.
type Probe struct {
	name   string
	subnet *net.IPNet
	list   Lister
	log    logrus.FieldLogger

	last bool
}

// New creates a Probe. An empty name or subnet is not matched on.
func New(name, subnet string) (*Probe, error) {
	p := &Probe{
		name: strings.TrimSpace(name),
		list: SystemInterfaces,
		log:  logging.MustGetLogger("linkprobe"),
	}
	if subnet = strings.TrimSpace(subnet); subnet != "" {
		_, ipnet, err := net.ParseCIDR(subnet)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid subnet %q", subnet)
		}
		p.subnet = ipnet
	}
	if p.name == "" && p.subnet == nil {
		return nil, ErrNoCriteria
	}
	return p, nil
}

// WithLister replaces the interface source.
func (p *Probe) WithLister(l Lister) *Probe {
	p.list = l
	return p
}

// IsLinkPresent enumerates interfaces and reports whether one matches.
// Enumeration failures count as absent.
func (p *Probe) IsLinkPresent() bool {
	ctx, cancel := context.WithTimeout(context.Background(), listTimeout)
	defer cancel()

	ifaces, err := p.list(ctx)
	if err != nil {
		p.log.WithError(err).Warn("Failed to list network interfaces")
		return false
	}
	present := p.Match(ifaces)
	if present != p.last {
		p.log.Infof("Link present: %v", present)
		p.last = present
	}
	return present
}

// Match reports whether any interface in ifaces satisfies the probe.
func (p *Probe) Match(ifaces []Interface) bool {
	for _, iface := range ifaces {
		if !iface.Up || iface.Loopback {
			continue
		}
		if p.name != "" && iface.Name != p.name {
			continue
		}
		if p.subnet == nil || p.inSubnet(iface.Addrs) {
			return true
		}
	}
	return false
}

func (p *Probe) inSubnet(addrs []string) bool {
	for _, a := range addrs {
		ip, _, err := net.ParseCIDR(a)
		if err != nil {
			ip = net.ParseIP(a)
		}
		if ip != nil && p.subnet.Contains(ip) {
			return true
		}
	}
	return false
}

// SystemInterfaces lists interfaces through gopsutil.
func SystemInterfaces(ctx context.Context) ([]Interface, error) {
	stats, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to enumerate interfaces")
	}
	out := make([]Interface, 0, len(stats))
	for _, st := range stats {
		iface := Interface{Name: st.Name}
		for _, f := range st.Flags {
			switch f {
			case "up":
				iface.Up = true
			case "loopback":
				iface.Loopback = true
			}
		}
		for _, a := range st.Addrs {
			iface.Addrs = append(iface.Addrs, a.Addr)
		}
		out = append(out, iface)
	}
	return out, nil
}

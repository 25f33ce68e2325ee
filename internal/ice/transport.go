package ice

import (
	"fmt"
	"net"
	"strings"
)

// Transport protocol names used for TransportAddress.protocol.
const (
	UDP = "udp"
	TCP = "tcp"
)

type TransportAddress struct {
	protocol  string // Either "tcp" or "udp"
	ip        string
	port      int
	family    int // 4 or 6
	linkLocal bool
}

func makeTransportAddress(addr net.Addr) TransportAddress {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return TransportAddress{"tcp", a.IP.String(), a.Port, ipFamily(a.IP), a.IP.IsLinkLocalUnicast()}
	case *net.UDPAddr:
		return TransportAddress{"udp", a.IP.String(), a.Port, ipFamily(a.IP), a.IP.IsLinkLocalUnicast()}
	default:
		panic("Unsupported net.Addr type: " + a.String())
	}
}

func ipFamily(ip net.IP) int {
	if ip.To4() != nil {
		return 4
	}
	return 6
}

func (ta *TransportAddress) netAddr() (addr net.Addr) {
	hostport := fmt.Sprintf("%s:%d", ta.ip, ta.port)
	switch ta.protocol {
	case "tcp":
		addr, _ = net.ResolveTCPAddr("tcp", hostport)
	case "udp":
		addr, _ = net.ResolveUDPAddr("udp", hostport)
	}
	return
}

func (ta *TransportAddress) normalize() {
	ta.protocol = strings.ToLower(ta.protocol)
}

func (ta TransportAddress) String() string {
	return fmt.Sprintf("%s/%s:%d", ta.protocol, ta.ip, ta.port)
}

package ice

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransportAddressIPv4(t *testing.T) {
	ta := makeTransportAddress(&net.UDPAddr{
		IP:   net.ParseIP("1.2.3.4"),
		Port: 5678,
	})

	assert.Equal(t, UDP, ta.protocol)
	assert.Equal(t, 4, ta.family)
	assert.Equal(t, "1.2.3.4", ta.ip)
	assert.Equal(t, 5678, ta.port)
	assert.Equal(t, "udp/1.2.3.4:5678", ta.String())
}

func TestTransportAddressIPv6(t *testing.T) {
	ta := makeTransportAddress(&net.UDPAddr{
		IP:   net.ParseIP("1:2:3:4::"),
		Port: 5678,
	})

	assert.Equal(t, UDP, ta.protocol)
	assert.Equal(t, 6, ta.family)
	assert.Equal(t, "1:2:3:4::", ta.ip)
	assert.Equal(t, "udp/1:2:3:4:::5678", ta.String())
}

func TestTransportAddressNormalize(t *testing.T) {
	ta := TransportAddress{protocol: "UDP", ip: "10.0.0.1", port: 1234}
	ta.normalize()
	assert.Equal(t, "udp", ta.protocol)
}

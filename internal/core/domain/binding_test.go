package domain

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMAC(t *testing.T, s string) net.HardwareAddr {
	t.Helper()
	mac, err := net.ParseMAC(s)
	require.NoError(t, err)
	return mac
}

func testBinding(t *testing.T, ownIP string, mask net.IPMask, gateway string) InterfaceBinding {
	t.Helper()
	b, err := NewInterfaceBinding("eth0", net.ParseIP(ownIP), mustMAC(t, "cc:cc:cc:cc:cc:cc"), mask, net.ParseIP(gateway))
	require.NoError(t, err)
	return b
}

func TestHostEnumerationSlash30(t *testing.T) {
	b := testBinding(t, "10.0.0.1", net.CIDRMask(30, 32), "10.0.0.2")

	hosts := b.Hosts()
	require.Len(t, hosts, 2)
	assert.Equal(t, "10.0.0.1", hosts[0].String())
	assert.Equal(t, "10.0.0.2", hosts[1].String())
}

func TestHostEnumerationSlash24(t *testing.T) {
	b := testBinding(t, "192.168.1.10", net.CIDRMask(24, 32), "192.168.1.1")

	hosts := b.Hosts()
	require.Len(t, hosts, 254)
	assert.Equal(t, "192.168.1.1", hosts[0].String())
	assert.Equal(t, "192.168.1.254", hosts[len(hosts)-1].String())

	for _, h := range hosts {
		assert.False(t, h.Equal(b.NetworkAddr()), "network address must not be yielded")
		assert.False(t, h.Equal(b.BroadcastAddr()), "broadcast address must not be yielded")
	}
}

func TestHostEnumerationOrdered(t *testing.T) {
	b := testBinding(t, "192.168.1.10", net.CIDRMask(24, 32), "192.168.1.1")

	prev := uint32(0)
	for _, h := range b.Hosts() {
		cur := uint32(h[0])<<24 | uint32(h[1])<<16 | uint32(h[2])<<8 | uint32(h[3])
		assert.Greater(t, cur, prev)
		prev = cur
	}
}

func TestDerivedAddresses(t *testing.T) {
	b := testBinding(t, "192.168.1.10", net.CIDRMask(24, 32), "192.168.1.1")

	assert.Equal(t, "192.168.1.0", b.NetworkAddr().String())
	assert.Equal(t, "192.168.1.255", b.BroadcastAddr().String())
	assert.Equal(t, 24, b.PrefixLen())
	assert.Equal(t, "192.168.1.0/24", b.CIDR())
}

func TestWiderSubnet(t *testing.T) {
	b := testBinding(t, "10.1.2.3", net.CIDRMask(20, 32), "10.1.0.1")

	assert.Equal(t, 20, b.PrefixLen())
	assert.Equal(t, "10.1.0.0", b.NetworkAddr().String())
	assert.Equal(t, "10.1.15.255", b.BroadcastAddr().String())
	assert.Len(t, b.Hosts(), 4094)
}

func TestNewInterfaceBindingValidation(t *testing.T) {
	mac := mustMAC(t, "cc:cc:cc:cc:cc:cc")

	_, err := NewInterfaceBinding("eth0", net.ParseIP("fe80::1"), mac, net.CIDRMask(24, 32), net.ParseIP("10.0.0.1"))
	assert.Error(t, err, "IPv6 own address must be rejected")

	_, err = NewInterfaceBinding("eth0", net.ParseIP("10.0.0.2"), mac, net.CIDRMask(24, 32), net.ParseIP("fe80::1"))
	assert.Error(t, err, "IPv6 gateway must be rejected")

	_, err = NewInterfaceBinding("eth0", net.ParseIP("10.0.0.2"), net.HardwareAddr{1, 2}, net.CIDRMask(24, 32), net.ParseIP("10.0.0.1"))
	assert.Error(t, err, "short MAC must be rejected")
}

func TestDeviceEquality(t *testing.T) {
	a := Device{MAC: mustMAC(t, "aa:bb:cc:dd:ee:ff"), IP: net.ParseIP("10.0.0.5")}
	b := Device{MAC: mustMAC(t, "AA:BB:CC:DD:EE:FF"), IP: net.ParseIP("10.0.0.9")}
	c := Device{MAC: mustMAC(t, "aa:bb:cc:dd:ee:00"), IP: net.ParseIP("10.0.0.5")}

	assert.True(t, a.Equal(b), "devices with equal MACs are equal regardless of IP")
	assert.False(t, a.Equal(c))
}

package capture

import (
	"bytes"
	"errors"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/arpgate/arpgate/internal/core/domain"
)

// ErrNotARP marks frames that are not ARP over IPv4/Ethernet. Capture
// callbacks drop these silently; the wire carries plenty of them.
var ErrNotARP = errors.New("not an ARP-over-IPv4 ethernet frame")

// arpFrameLen is the 14-byte Ethernet header plus the 28-byte ARP body.
const arpFrameLen = 42

var broadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
var zeroMAC = net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

// SerializeRequest builds a broadcast who-has request for targetIP.
func SerializeRequest(ownMAC net.HardwareAddr, ownIP, targetIP net.IP) ([]byte, error) {
	return serializeARP(broadcastMAC, ownMAC, layers.ARPRequest, ownMAC, ownIP, zeroMAC, targetIP)
}

// SerializePoisonReply builds the unsolicited reply that teaches dst the
// false binding claimIP -> ownMAC. Used in both directions: telling the
// victim the gateway is us, and telling the gateway the victim is us.
func SerializePoisonReply(ownMAC net.HardwareAddr, claimIP net.IP, dstMAC net.HardwareAddr, dstIP net.IP) ([]byte, error) {
	return serializeARP(dstMAC, ownMAC, layers.ARPReply, ownMAC, claimIP, dstMAC, dstIP)
}

// SerializeRestoreReply builds the corrective reply that teaches dst the
// true binding trueIP -> trueMAC. The Ethernet source remains our MAC; only
// the ARP payload carries the restored hardware address.
func SerializeRestoreReply(ownMAC, trueMAC net.HardwareAddr, trueIP net.IP, dstMAC net.HardwareAddr, dstIP net.IP) ([]byte, error) {
	return serializeARP(dstMAC, ownMAC, layers.ARPReply, trueMAC, trueIP, dstMAC, dstIP)
}

func serializeARP(ethDst, ethSrc net.HardwareAddr, op uint16, senderMAC net.HardwareAddr, senderIP net.IP, targetMAC net.HardwareAddr, targetIP net.IP) ([]byte, error) {
	sender4 := senderIP.To4()
	target4 := targetIP.To4()
	if sender4 == nil || target4 == nil {
		return nil, fmt.Errorf("non-IPv4 address in ARP frame (sender=%v target=%v)", senderIP, targetIP)
	}

	eth := &layers.Ethernet{
		DstMAC:       ethDst,
		SrcMAC:       ethSrc,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         op,
		SourceHwAddress:   senderMAC,
		SourceProtAddress: sender4,
		DstHwAddress:      targetMAC,
		DstProtAddress:    target4,
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, arp); err != nil {
		return nil, fmt.Errorf("serialize ARP failed: %w", err)
	}
	// The Ethernet layer pads short frames to the 60-byte minimum; the
	// emitted frame is the bare 42-byte layout with no padding.
	return buf.Bytes()[:arpFrameLen], nil
}

// DecodeARP parses one captured frame. Non-ARP EtherTypes and ARP headers
// that are not IPv4-over-Ethernet return ErrNotARP. Trailing bytes appended
// by the capture driver are ignored.
func DecodeARP(frame []byte) (domain.ARPPacket, error) {
	packet := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.NoCopy)

	ethLayer := packet.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return domain.ARPPacket{}, ErrNotARP
	}
	if eth := ethLayer.(*layers.Ethernet); eth.EthernetType != layers.EthernetTypeARP {
		return domain.ARPPacket{}, ErrNotARP
	}

	arpLayer := packet.Layer(layers.LayerTypeARP)
	if arpLayer == nil {
		return domain.ARPPacket{}, ErrNotARP
	}
	arp := arpLayer.(*layers.ARP)
	if arp.AddrType != layers.LinkTypeEthernet || arp.Protocol != layers.EthernetTypeIPv4 ||
		arp.HwAddressSize != 6 || arp.ProtAddressSize != 4 {
		return domain.ARPPacket{}, ErrNotARP
	}

	return domain.ARPPacket{
		Operation: arp.Operation,
		SenderMAC: cloneMAC(arp.SourceHwAddress),
		SenderIP:  cloneIP(arp.SourceProtAddress),
		TargetMAC: cloneMAC(arp.DstHwAddress),
		TargetIP:  cloneIP(arp.DstProtAddress),
	}, nil
}

// IsBroadcast reports whether mac is the Ethernet broadcast address.
func IsBroadcast(mac net.HardwareAddr) bool {
	return bytes.Equal(mac, broadcastMAC)
}

func cloneMAC(b []byte) net.HardwareAddr {
	mac := make(net.HardwareAddr, len(b))
	copy(mac, b)
	return mac
}

func cloneIP(b []byte) net.IP {
	ip := make(net.IP, len(b))
	copy(ip, b)
	return ip
}

// Package packet builds and parses the IPv4/UDP datagrams sent in the packet demo.
package packet

import (
	"errors"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

var ErrNotUDP = errors.New("packet has no UDP layer")

type Endpoint struct {
	IP   net.IP
	Port uint16
}

func ParseEndpoint(ip string, port int) (Endpoint, error) {
	addr := net.ParseIP(ip).To4()
	if addr == nil {
		return Endpoint{}, fmt.Errorf("%q is not an IPv4 address", ip)
	}
	if port < 0 || port > 0xffff {
		return Endpoint{}, fmt.Errorf("port %d out of range", port)
	}
	return Endpoint{IP: addr, Port: uint16(port)}, nil
}

// BuildUDP serializes an IPv4/UDP datagram with computed lengths and checksums.
func BuildUDP(src, dst Endpoint, payload []byte) ([]byte, error) {
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    src.IP,
		DstIP:    dst.IP,
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(src.Port),
		DstPort: layers.UDPPort(dst.Port),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}

	buffer := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buffer, opts, ip, udp, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("serialize: %w", err)
	}
	return buffer.Bytes(), nil
}

// Datagram is what the receiver could make of the bytes it got.
type Datagram struct {
	Src, Dst      Endpoint
	Payload       []byte
	ChecksumValid bool
	DecodeErr     error
	Layers        []gopacket.LayerType
}

// DecodeIPv4 parses data as an IPv4 packet and validates the UDP checksum.
func DecodeIPv4(data []byte) (*Datagram, error) {
	p := gopacket.NewPacket(data, layers.LayerTypeIPv4, gopacket.Default)

	d := &Datagram{}
	for _, l := range p.Layers() {
		d.Layers = append(d.Layers, l.LayerType())
	}
	if e := p.ErrorLayer(); e != nil {
		d.DecodeErr = e.Error()
	}

	ip, _ := p.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	udp, _ := p.Layer(layers.LayerTypeUDP).(*layers.UDP)
	if ip == nil || udp == nil {
		return d, ErrNotUDP
	}

	d.Src = Endpoint{IP: ip.SrcIP, Port: uint16(udp.SrcPort)}
	d.Dst = Endpoint{IP: ip.DstIP, Port: uint16(udp.DstPort)}
	d.Payload = udp.Payload
	d.ChecksumValid = udpChecksumValid(ip, udp)
	return d, nil
}

// udpChecksumValid recomputes the checksum over the pseudo header, header and payload.
func udpChecksumValid(ip *layers.IPv4, udp *layers.UDP) bool {
	if udp.Checksum == 0 {
		return true
	}
	segment := append(append([]byte{}, udp.Contents...), udp.Payload...)

	var sum uint32
	add := func(b []byte) {
		for i := 0; i+1 < len(b); i += 2 {
			sum += uint32(b[i])<<8 | uint32(b[i+1])
		}
		if len(b)%2 == 1 {
			sum += uint32(b[len(b)-1]) << 8
		}
	}
	add(ip.SrcIP.To4())
	add(ip.DstIP.To4())
	sum += uint32(layers.IPProtocolUDP)
	sum += uint32(len(segment))
	add(segment)
	for sum>>16 != 0 {
		sum = sum&0xffff + sum>>16
	}
	return uint16(sum) == 0xffff
}

// Copyright (c) 2024 The pushtx developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
	"net"
)

// NetAddress describes a peer on the network as embedded in a version
// message: the services it claims to support and its IP/port. Unlike the
// standalone addr/addrv2 messages, the version message's embedded addresses
// carry no timestamp.
type NetAddress struct {
	Services ServiceFlag
	IP       net.IP
	Port     uint16
}

// NewNetAddressIPPort returns a new NetAddress for the given IP, port and
// supported services.
func NewNetAddressIPPort(ip net.IP, port uint16, services ServiceFlag) *NetAddress {
	return &NetAddress{
		Services: services,
		IP:       ip,
		Port:     port,
	}
}

// readNetAddress reads an encoded NetAddress from r as embedded in a version
// message (no timestamp field).
func readNetAddress(r io.Reader, na *NetAddress) error {
	var ip [16]byte
	if err := readElements(r, &na.Services, &ip); err != nil {
		return err
	}

	port, err := binarySerializer.Uint16(r, bigEndian)
	if err != nil {
		return err
	}

	na.IP = net.IP(append([]byte(nil), ip[:]...))
	na.Port = port
	return nil
}

// writeNetAddress serializes a NetAddress to w as embedded in a version
// message (no timestamp field).
func writeNetAddress(w io.Writer, na *NetAddress) error {
	if err := writeElement(w, na.Services); err != nil {
		return err
	}

	var ip [16]byte
	if v4 := na.IP.To4(); v4 != nil {
		// IPv4-mapped IPv6 address.
		copy(ip[10:12], []byte{0xff, 0xff})
		copy(ip[12:16], v4)
	} else if na.IP != nil {
		copy(ip[:], na.IP.To16())
	}

	if err := writeElement(w, ip); err != nil {
		return err
	}

	return binarySerializer.PutUint16(w, bigEndian, na.Port)
}

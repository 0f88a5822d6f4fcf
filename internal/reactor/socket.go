package reactor

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"golang.org/x/sys/unix"
)

// ListenTCP opens a non-blocking, raw TCP listening socket bound to addr
// ("host:port", host may be empty). It deliberately bypasses the net
// package's own listener so that accepted connections stay entirely under
// this package's epoll control instead of the Go runtime's netpoller —
// the two pollers would otherwise race for ownership of the same fd.
//
// Returns the listening fd and the bound port (useful when addr requests
// an ephemeral port with ":0").
func ListenTCP(addr string) (fd int, port int, err error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return -1, 0, fmt.Errorf("reactor: split addr %q: %w", addr, err)
	}
	wantPort := 0
	if portStr != "" {
		wantPort, err = strconv.Atoi(portStr)
		if err != nil {
			return -1, 0, fmt.Errorf("reactor: bad port %q: %w", portStr, err)
		}
	}
	var ip [4]byte
	if host != "" && host != "0.0.0.0" {
		addr, err := netip.ParseAddr(host)
		if err != nil {
			return -1, 0, fmt.Errorf("reactor: bad host %q: %w", host, err)
		}
		if !addr.Is4() {
			return -1, 0, fmt.Errorf("reactor: only IPv4 is supported, got %q", host)
		}
		ip = addr.As4()
	}

	fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, 0, fmt.Errorf("reactor: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, 0, fmt.Errorf("reactor: setsockopt SO_REUSEADDR: %w", err)
	}
	sa := &unix.SockaddrInet4{Port: wantPort, Addr: ip}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, 0, fmt.Errorf("reactor: bind %q: %w", addr, err)
	}
	if err := unix.Listen(fd, 128); err != nil {
		unix.Close(fd)
		return -1, 0, fmt.Errorf("reactor: listen: %w", err)
	}
	bound, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return -1, 0, fmt.Errorf("reactor: getsockname: %w", err)
	}
	if in4, ok := bound.(*unix.SockaddrInet4); ok {
		port = in4.Port
	}
	return fd, port, nil
}

// AcceptNonblock accepts one pending connection on lnFd, returning the new
// non-blocking fd and the remote address. A zero-value fd (-1) with
// err == unix.EAGAIN means no connection is pending right now.
func AcceptNonblock(lnFd int) (fd int, remote netip.AddrPort, err error) {
	nfd, sa, err := unix.Accept4(lnFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, netip.AddrPort{}, err
	}
	addr, ok := SockaddrToAddrPort(sa)
	if !ok {
		unix.Close(nfd)
		return -1, netip.AddrPort{}, fmt.Errorf("reactor: unsupported remote sockaddr %T", sa)
	}
	return nfd, addr, nil
}

// SockaddrToAddrPort converts a raw unix.Sockaddr (as returned by Accept4 or
// Getpeername) into a netip.AddrPort. Only AF_INET is supported, matching
// ListenTCP.
func SockaddrToAddrPort(sa unix.Sockaddr) (netip.AddrPort, bool) {
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return netip.AddrPort{}, false
	}
	return netip.AddrPortFrom(netip.AddrFrom4(in4.Addr), uint16(in4.Port)), true
}

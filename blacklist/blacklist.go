// Package blacklist holds the IPv4 denylist consulted by the socket
// listener's acceptor before handing a new connection to a worker.
// Grounded on the original's src/util/in_addr_list.c (a flat linked list of
// struct in_addr), generalized to accept plain IPs and CIDR blocks since
// Go's net package makes that free.
package blacklist

import "net"

// List is a safe-for-concurrent-reads-after-construction IPv4 blacklist.
// It is rebuilt wholesale on reload rather than mutated in place.
type List struct {
	nets []*net.IPNet
	ips  map[string]struct{}
}

// New builds a List from a set of dotted IPv4 addresses and/or CIDR blocks.
func New(entries []string) (*List, error) {
	l := &List{ips: make(map[string]struct{}, len(entries))}
	for _, entry := range entries {
		if _, network, err := net.ParseCIDR(entry); err == nil {
			l.nets = append(l.nets, network)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			return nil, &net.ParseError{Type: "blacklist entry", Text: entry}
		}
		l.ips[ip.String()] = struct{}{}
	}
	return l, nil
}

// Contains reports whether addr is blacklisted.
func (l *List) Contains(addr net.IP) bool {
	if l == nil {
		return false
	}
	if _, ok := l.ips[addr.String()]; ok {
		return true
	}
	for _, n := range l.nets {
		if n.Contains(addr) {
			return true
		}
	}
	return false
}

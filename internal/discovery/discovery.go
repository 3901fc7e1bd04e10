package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"golang.org/x/net/ipv4"

	"parkserv/internal/config"
)

const probePrefix = "parkserv-probe"

// answer is what central sends back to a probing node.
type answer struct {
	Node      string `json:"node"`
	RelayAddr string `json:"relay_addr"`
}

// Start runs the central-side responder in the background. Floor nodes
// multicast a probe and get the relay address back, so configs only need
// the multicast group when discovery is on.
func Start(ctx context.Context, cfg *config.Config, relayAddr string) error {
	go respond(ctx, cfg, relayAddr)
	return nil
}

func respond(ctx context.Context, cfg *config.Config, relayAddr string) {
	pc, err := net.ListenPacket("udp4", fmt.Sprintf("0.0.0.0:%d", cfg.Discovery.Port))
	if err != nil {
		log.Printf("[discovery] listen error: %v", err)
		return
	}
	defer pc.Close()
	log.Printf("[discovery] listening on UDP :%d", cfg.Discovery.Port)

	p := ipv4.NewPacketConn(pc)
	_ = p.SetControlMessage(ipv4.FlagDst, true)
	_ = p.SetMulticastLoopback(true)

	group := net.ParseIP(cfg.Discovery.Group)
	if ifi, err := net.InterfaceByName(cfg.Discovery.Interface); err != nil {
		log.Printf("[discovery] cannot find iface %s: %v", cfg.Discovery.Interface, err)
	} else {
		if err := p.JoinGroup(ifi, &net.UDPAddr{IP: group}); err != nil {
			log.Printf("[discovery] JoinGroup on %s failed: %v", cfg.Discovery.Interface, err)
		} else {
			log.Printf("[discovery] joined %s on %s", group, cfg.Discovery.Interface)
		}
		_ = p.SetMulticastInterface(ifi)
		_ = p.SetMulticastTTL(1)
	}

	buf := make([]byte, 1500)
	for {
		if err := ctx.Err(); err != nil {
			return
		}

		_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, _, raddr, err := p.ReadFrom(buf)
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			continue
		}
		if err != nil {
			log.Printf("[discovery] read error: %v", err)
			continue
		}

		req := string(buf[:n])
		if !strings.HasPrefix(req, probePrefix) {
			continue
		}
		log.Printf("[discovery] probe from %s", raddr)

		addr := relayAddr
		if host, port, err := net.SplitHostPort(relayAddr); err == nil {
			if host == "" || host == "0.0.0.0" || host == "::" {
				addr = net.JoinHostPort(guessLocalIP(raddr), port)
			}
		}
		rsp, _ := json.Marshal(answer{Node: cfg.Node, RelayAddr: addr})
		_, _ = p.WriteTo(rsp, nil, raddr)
	}
}

// Locate multicasts a probe and waits for central to answer with its relay
// address. Retries until the context is cancelled.
func Locate(ctx context.Context, cfg *config.Config) (string, error) {
	group := &net.UDPAddr{IP: net.ParseIP(cfg.Discovery.Group), Port: cfg.Discovery.Port}

	pc, err := net.ListenPacket("udp4", "0.0.0.0:0")
	if err != nil {
		return "", fmt.Errorf("discovery: listen: %w", err)
	}
	defer pc.Close()

	p := ipv4.NewPacketConn(pc)
	if ifi, err := net.InterfaceByName(cfg.Discovery.Interface); err == nil {
		_ = p.SetMulticastInterface(ifi)
	}
	_ = p.SetMulticastTTL(1)

	buf := make([]byte, 1500)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if _, err := p.WriteTo([]byte(probePrefix+" "+cfg.Node), nil, group); err != nil {
			log.Printf("[discovery] probe send: %v", err)
		}

		_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, _, raddr, err := p.ReadFrom(buf)
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			continue
		}
		if err != nil {
			log.Printf("[discovery] read error: %v", err)
			continue
		}

		var a answer
		if err := json.Unmarshal(buf[:n], &a); err != nil || a.RelayAddr == "" {
			continue
		}
		log.Printf("[discovery] central %s at %s (answered from %s)", a.Node, a.RelayAddr, raddr)
		return a.RelayAddr, nil
	}
}

func guessLocalIP(raddr net.Addr) string {
	ra, _ := net.ResolveUDPAddr("udp4", raddr.String())
	conn, err := net.Dial("udp4", fmt.Sprintf("%s:%d", ra.IP.String(), ra.Port))
	if err == nil {
		defer conn.Close()
		if la, ok := conn.LocalAddr().(*net.UDPAddr); ok {
			return la.IP.String()
		}
	}
	ifaces, _ := net.Interfaces()
	for _, ifc := range ifaces {
		if (ifc.Flags & net.FlagUp) == 0 {
			continue
		}
		addrs, _ := ifc.Addrs()
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok {
				ip := ipnet.IP.To4()
				if ip != nil && !ip.IsLoopback() {
					return ip.String()
				}
			}
		}
	}
	return "127.0.0.1"
}

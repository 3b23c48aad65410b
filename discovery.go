package main

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultConnectPort = 5555
	probeTimeout       = 300 * time.Millisecond
	probeConcurrency   = 64
)

const (
	mdnsPairingService = "_adb-tls-pairing._tcp"
	mdnsConnectService = "_adb-tls-connect._tcp"
)

// ScanForDevices discovers wireless debugging candidates on the local
// network. Service discovery runs first; the subnet probe fills in when it
// comes up empty or when the caller pinned a port. Results are merged per IP.
func (a *App) ScanForDevices(port int) ([]WirelessCandidate, error) {
	if err := a.beginOperation("scan"); err != nil {
		return nil, err
	}
	defer a.endOperation()

	port, portPinned := scanTarget(port)

	a.journal.Append("status", "Scanning for wireless devices...")

	// Both strategies run concurrently. A pinned port always gets a probe;
	// otherwise the probe fills in only when service discovery came up empty.
	var mdns, probed []WirelessCandidate
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		mdns = a.mdnsCandidates()
	}()

	if portPinned {
		wg.Add(1)
		go func() {
			defer wg.Done()
			probed = a.probeSubnet(port)
		}()
	}
	wg.Wait()

	if !portPinned && len(mdns) == 0 {
		probed = a.probeSubnet(port)
	}

	merged := mergeCandidates(append(mdns, probed...))
	ScanLog().Int("mdns", len(mdns)).Int("probed", len(probed)).Int("merged", len(merged)).Msg("scan complete")
	a.journal.Append("status", "Scan found %d candidate(s)", len(merged))
	return merged, nil
}

// scanTarget resolves the probe port. Zero means "no preference" and gets
// the default; any explicit port, the default one included, pins the probe.
func scanTarget(port int) (int, bool) {
	if port == 0 {
		return defaultConnectPort, false
	}
	return port, true
}

// mdnsCandidates parses the bridge's raw mdns services listing. Lines carry
// an instance name, a service type and an ip:port endpoint.
func (a *App) mdnsCandidates() []WirelessCandidate {
	if a.bridge == nil {
		return nil
	}
	raw, err := a.bridge.MDNSServices()
	if err != nil {
		ScanLog().Err(err).Msg("mdns listing failed")
		return nil
	}
	return parseMDNSServices(raw)
}

func parseMDNSServices(raw string) []WirelessCandidate {
	var out []WirelessCandidate
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		instance, service, endpoint := fields[0], fields[1], fields[2]

		host, port, ok := splitHostPort(endpoint)
		if !ok {
			continue
		}

		c := WirelessCandidate{Name: instance, IP: host}
		switch {
		case strings.Contains(service, mdnsPairingService):
			c.PairingPort = port
		case strings.Contains(service, mdnsConnectService):
			c.ConnectPort = port
		default:
			continue
		}
		out = append(out, c)
	}
	return out
}

// probeSubnet dials every host of the local /24 on the target port. Hits are
// unlabeled candidates; the caller merges them with service discovery.
func (a *App) probeSubnet(port int) []WirelessCandidate {
	localIP := getLocalIP()
	if localIP == "" {
		ScanLog().Msg("no local ipv4, skipping subnet probe")
		return nil
	}
	base := localIP[:strings.LastIndex(localIP, ".")+1]

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(500), probeConcurrency)
	sem := make(chan struct{}, probeConcurrency)

	var mu sync.Mutex
	var hits []WirelessCandidate
	var wg sync.WaitGroup

	for i := 1; i <= 254; i++ {
		ip := fmt.Sprintf("%s%d", base, i)
		if ip == localIP {
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(ip string) {
			defer wg.Done()
			defer func() { <-sem }()
			conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", ip, port), probeTimeout)
			if err != nil {
				return
			}
			conn.Close()
			mu.Lock()
			hits = append(hits, WirelessCandidate{
				Name:        fmt.Sprintf("Device at %s", ip),
				IP:          ip,
				ConnectPort: port,
			})
			mu.Unlock()
		}(ip)
	}
	wg.Wait()
	return hits
}

// mergeCandidates groups candidates by IP. Pairing records win the name;
// ports from both roles are kept. Candidates with no name become "Unknown".
func mergeCandidates(candidates []WirelessCandidate) []WirelessCandidate {
	byIP := make(map[string]*WirelessCandidate)
	var order []string

	for _, c := range candidates {
		existing, ok := byIP[c.IP]
		if !ok {
			copied := c
			byIP[c.IP] = &copied
			order = append(order, c.IP)
			continue
		}
		if c.PairingPort != 0 {
			existing.PairingPort = c.PairingPort
			if c.Name != "" {
				existing.Name = c.Name
			}
		}
		if c.ConnectPort != 0 && existing.ConnectPort == 0 {
			existing.ConnectPort = c.ConnectPort
		}
		if existing.Name == "" {
			existing.Name = c.Name
		}
	}

	out := make([]WirelessCandidate, 0, len(order))
	for _, ip := range order {
		c := *byIP[ip]
		if c.Name == "" {
			c.Name = "Unknown"
		}
		out = append(out, c)
	}
	return out
}

// getLocalIP returns the first non-loopback local IPv4 address
func getLocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, address := range addrs {
		if ipnet, ok := address.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}
	return ""
}

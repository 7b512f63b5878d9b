package proxypool

import (
	"bufio"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// schemeForPort infers the proxy scheme when a list file carries no scheme:
// TLS ports map to https, common SOCKS ports to socks5, everything else http.
func schemeForPort(port int) string {
	switch port {
	case 443, 8443:
		return "https"
	case 1080, 1081:
		return "socks5"
	}
	return "http"
}

// ParseFile reads a proxy list file: one record per line, whitespace
// separated `address port [username] [password]`. Blank lines, `#` comments,
// and a leading header line (containing "address"/"port"/...) are skipped;
// malformed lines are logged and dropped rather than failing the whole file.
func ParseFile(path string) ([]*Proxy, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("proxypool: open list: %w", err)
	}
	defer f.Close()

	var proxies []*Proxy
	sc := bufio.NewScanner(f)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if lineNum == 1 && isHeaderLine(line) {
			continue
		}
		p, err := parseRecord(line)
		if err != nil {
			slog.Warn("skipping invalid proxy line",
				slog.Int("line", lineNum), slog.String("content", line), slog.Any("error", err))
			continue
		}
		proxies = append(proxies, p)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("proxypool: read list: %w", err)
	}
	slog.Info("proxy list loaded", slog.String("path", path), slog.Int("proxies", len(proxies)))
	return proxies, nil
}

func isHeaderLine(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range []string{"address", "port", "username", "password"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func parseRecord(line string) (*Proxy, error) {
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return nil, fmt.Errorf("want at least address and port, got %d fields", len(parts))
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("port: %w", err)
	}
	p := &Proxy{
		Address: parts[0],
		Port:    port,
		Scheme:  schemeForPort(port),
	}
	if len(parts) > 2 {
		p.Username = parts[2]
	}
	if len(parts) > 3 {
		p.Password = parts[3]
	}
	return p, nil
}

// ParseURL parses a single proxy URL of the form
// scheme://[user:pass@]host:port.
func ParseURL(raw string) (*Proxy, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("proxypool: parse url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("proxypool: unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" || u.Port() == "" {
		return nil, fmt.Errorf("proxypool: url %q missing host or port", raw)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return nil, fmt.Errorf("proxypool: port: %w", err)
	}
	p := &Proxy{
		Address: u.Hostname(),
		Port:    port,
		Scheme:  u.Scheme,
	}
	if u.User != nil {
		p.Username = u.User.Username()
		p.Password, _ = u.User.Password()
	}
	return p, nil
}

// ParseList parses proxy URLs, skipping invalid entries with a warning.
func ParseList(urls []string) []*Proxy {
	proxies := make([]*Proxy, 0, len(urls))
	for _, raw := range urls {
		p, err := ParseURL(raw)
		if err != nil {
			slog.Warn("skipping invalid proxy url", slog.String("url", raw), slog.Any("error", err))
			continue
		}
		proxies = append(proxies, p)
	}
	return proxies
}

package guardrails

import (
	"fmt"
	"net/netip"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// URLValidation URL 校验结果
type URLValidation struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// URLValidator SSRF 防护：协议白名单、主机黑名单、私有地址字面量与端口黑名单。
//
// 不做 DNS 解析。主机名在抓取时解析到私有地址（DNS rebinding）不在本检查范围内。
type URLValidator struct {
	schemes      []string
	blockedHosts []string
	blockedPorts map[int]bool
}

var dottedQuad = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)

var privateRanges = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("0.0.0.0/8"),
}

// NewURLValidator 基于安全配置创建校验器
func NewURLValidator(cfg SecurityConfig) *URLValidator {
	hosts := make([]string, 0, len(cfg.BlockedHosts()))
	for _, h := range cfg.BlockedHosts() {
		hosts = append(hosts, strings.ToLower(strings.Trim(h, "[]")))
	}
	ports := make(map[int]bool)
	for _, p := range cfg.BlockedPorts() {
		ports[p] = true
	}
	schemes := cfg.AllowedURLSchemes()
	for i := range schemes {
		schemes[i] = strings.ToLower(schemes[i])
	}
	return &URLValidator{schemes: schemes, blockedHosts: hosts, blockedPorts: ports}
}

// Validate 校验 URL
func (v *URLValidator) Validate(raw string) URLValidation {
	if err := v.check(raw); err != nil {
		return URLValidation{Valid: false, Error: err.Error()}
	}
	return URLValidation{Valid: true}
}

func (v *URLValidator) check(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("url is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %v", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if !slices.Contains(v.schemes, scheme) {
		return fmt.Errorf("protocol %q is not allowed", u.Scheme)
	}

	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host == "" {
		return fmt.Errorf("url has no host")
	}
	for _, blocked := range v.blockedHosts {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return fmt.Errorf("host %q is blocked", host)
		}
	}

	if dottedQuad.MatchString(host) {
		addr, err := netip.ParseAddr(host)
		if err != nil {
			return fmt.Errorf("invalid ip address %q", host)
		}
		for _, prefix := range privateRanges {
			if prefix.Contains(addr) {
				return fmt.Errorf("private or loopback address %q is not allowed", host)
			}
		}
	} else if addr, err := netip.ParseAddr(host); err == nil && addr.Is6() {
		if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsUnspecified() {
			return fmt.Errorf("private or loopback address %q is not allowed", host)
		}
		if addr.Is4In6() {
			unmapped := addr.Unmap()
			for _, prefix := range privateRanges {
				if prefix.Contains(unmapped) {
					return fmt.Errorf("private or loopback address %q is not allowed", host)
				}
			}
		}
	}

	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid port %q", p)
		}
		if v.blockedPorts[port] {
			return fmt.Errorf("port %d is blocked", port)
		}
	}
	return nil
}

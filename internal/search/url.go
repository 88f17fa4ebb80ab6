package search

import (
	"net/url"
	"strings"
)

var blockedHostSuffixes = []string{".cn", ".ru", ".kr"}

var blockedHostNames = []string{"baidu.", "alibaba.", "taobao.", "aliexpress."}

var ecommerceHosts = []string{"amazon", "rakuten", "yahoo", "kakaku", "mercari", "yodobashi"}

func hostOf(link string) string {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// IsBlocked reports whether link points at a host the catalog never links to.
// Unparseable links are blocked.
func IsBlocked(link string) bool {
	host := hostOf(link)
	if host == "" {
		return true
	}
	for _, s := range blockedHostSuffixes {
		if strings.HasSuffix(host, s) {
			return true
		}
	}
	for _, n := range blockedHostNames {
		if strings.Contains(host, n) {
			return true
		}
	}
	return false
}

func isEcommerce(link string) bool {
	host := hostOf(link)
	for _, e := range ecommerceHosts {
		if strings.Contains(host, e) {
			return true
		}
	}
	return false
}

// SelectProductURL picks the product page link from ranked results. A
// manufacturer's own page wins over shops; otherwise the first allowed
// result is used.
func SelectProductURL(results []Result, manufacturer string) *string {
	maker := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(manufacturer), " ", ""))

	if maker != "" {
		for _, r := range results {
			if IsBlocked(r.Link) || isEcommerce(r.Link) {
				continue
			}
			normalized := strings.NewReplacer("-", "", "_", "").Replace(strings.ToLower(r.Link))
			if strings.Contains(normalized, maker) {
				link := r.Link
				return &link
			}
		}
	}

	for _, r := range results {
		if !IsBlocked(r.Link) {
			link := r.Link
			return &link
		}
	}
	return nil
}

package validation

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	emailLocalRegex = regexp.MustCompile(`^[A-Za-z0-9._%+-]+$`)
	domainLabel     = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?$`)
	tldRegex        = regexp.MustCompile(`^[A-Za-z]{2,}$`)
	currencyIDRegex = regexp.MustCompile(`^[A-Za-z0-9:]+$`)
	walletLabel     = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)
)

// IsValidEmail is a conservative, best-effort syntax check. It accepts the
// common dot-atom form only and is not an RFC 5322 parser.
func IsValidEmail(email string) bool {
	if len(email) > 254 {
		return false
	}

	at := strings.IndexByte(email, '@')
	if at <= 0 || at != strings.LastIndexByte(email, '@') {
		return false
	}
	local, domain := email[:at], email[at+1:]

	if len(local) > 64 || !emailLocalRegex.MatchString(local) {
		return false
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") || strings.Contains(local, "..") {
		return false
	}

	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if len(l) > 63 || !domainLabel.MatchString(l) {
			return false
		}
	}
	return tldRegex.MatchString(labels[len(labels)-1])
}

// IsValidCurrencyID accepts CoinPayments currency ids such as "4" or
// "4:0xdac17f958d2ee523a2206206994597c13d831ec7".
func IsValidCurrencyID(id string) bool {
	return currencyIDRegex.MatchString(id)
}

// IsValidWalletLabel accepts 1-100 letters, digits, '-' or '_'.
func IsValidWalletLabel(label string) bool {
	return walletLabel.MatchString(label)
}

// IsValidURL accepts absolute http and https URLs with a host.
func IsValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

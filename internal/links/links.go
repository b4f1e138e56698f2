// Package links builds tracked short links: the short code a visitor hits and
// the destination URL they are redirected to.
package links

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"github.com/Priya8975/trackflow/internal/domain"
)

// Alphabet holds the short code characters. 0, O, l and I are left out
// because they are easy to misread.
const Alphabet = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ123456789"

const (
	DefaultCodeLength = 6
	maxCodeAttempts   = 10
)

var (
	ErrCodeExhausted = errors.New("could not find a free short code")
	ErrInvalidTarget = errors.New("target url must be an absolute http or https url")
)

// GenerateShortCode returns a random code of the given length drawn from
// Alphabet.
func GenerateShortCode(length int) (string, error) {
	if length <= 0 {
		length = DefaultCodeLength
	}

	n := big.NewInt(int64(len(Alphabet)))
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		idx, err := rand.Int(rand.Reader, n)
		if err != nil {
			return "", fmt.Errorf("reading random: %w", err)
		}
		b.WriteByte(Alphabet[idx.Int64()])
	}
	return b.String(), nil
}

// UniqueShortCode generates codes until taken reports one as free.
func UniqueShortCode(ctx context.Context, length int, taken func(context.Context, string) (bool, error)) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := GenerateShortCode(length)
		if err != nil {
			return "", err
		}
		exists, err := taken(ctx, code)
		if err != nil {
			return "", fmt.Errorf("checking short code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", ErrCodeExhausted
}

// ValidateTarget checks that raw is an absolute http(s) URL.
func ValidateTarget(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidTarget
	}
	return nil
}

// BuildDestination returns target with the link's UTM parameters and the
// tf_link / tf_campaign markers merged into its query string. Existing
// parameters are kept unless overridden; the fragment is preserved.
func BuildDestination(target string, utm map[string]string, shortCode, campaign string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("parsing target url: %w", err)
	}

	q := u.Query()
	for k, v := range utm {
		if strings.HasPrefix(k, "utm_") && v != "" {
			q.Set(k, v)
		}
	}
	q.Set(domain.LinkParam, shortCode)
	if campaign != "" {
		q.Set(domain.CampaignParam, campaign)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ShortURL joins the public base URL and the redirect path for code.
func ShortURL(baseURL, code string) string {
	return strings.TrimRight(baseURL, "/") + "/r/" + code
}

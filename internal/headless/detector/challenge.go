package detector

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/wayback-crawler/internal/crawler"
)

var challengeSelectors = []string{
	"#g-recaptcha",
	".g-recaptcha",
	`iframe[src*="recaptcha"]`,
	`[class*="h-captcha"]`,
	`iframe[src*="hcaptcha"]`,
	`div[class*="cf-challenge"]`,
}

// Challenge recognizes reCAPTCHA, hCaptcha and Cloudflare interstitials.
type Challenge struct{}

// NewChallenge creates a challenge detector.
func NewChallenge() *Challenge {
	return &Challenge{}
}

// IsChallenge reports whether the rendered page is a bot-verification gate.
func (Challenge) IsChallenge(page crawler.FetchResponse) bool {
	if len(page.Body) == 0 {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return false
	}
	for _, selector := range challengeSelectors {
		if doc.Find(selector).Length() > 0 {
			return true
		}
	}
	if strings.Contains(doc.Find("title").First().Text(), "Attention Required") {
		return true
	}
	return strings.Contains(strings.ToLower(doc.Find("body").Text()), "verify you are human")
}

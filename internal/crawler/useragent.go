package crawler

import (
	"fmt"
	"math/rand/v2"
)

var platforms = []string{
	"Windows NT 10.0; Win64; x64",
	"Windows NT 6.1; Win64; x64",
	"Macintosh; Intel Mac OS X 10_15_7",
	"Macintosh; Intel Mac OS X 13_6_1",
	"X11; Linux x86_64",
	"X11; Ubuntu; Linux x86_64",
	"X11; CrOS x86_64 15633.69.0",
	"Linux; Android 14; Pixel 8",
	"Linux; Android 13; SM-S911B",
	"iPhone; CPU iPhone OS 17_4 like Mac OS X",
	"iPad; CPU OS 17_4 like Mac OS X",
}

type browserFamily struct {
	template   string
	minVersion int
	maxVersion int
}

var browsers = []browserFamily{
	{template: "AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36", minVersion: 110, maxVersion: 131},
	{template: "Gecko/20100101 Firefox/%d.0", minVersion: 110, maxVersion: 132},
	{template: "AppleWebKit/605.1.15 (KHTML, like Gecko) Version/%d.1 Safari/605.1.15", minVersion: 15, maxVersion: 17},
	{template: "AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36 Edg/%[1]d.0.0.0", minVersion: 110, maxVersion: 131},
}

// RandomUserAgent assembles a plausible browser User-Agent from a platform and
// browser pool. A fresh value is drawn for every fetch.
func RandomUserAgent() string {
	platform := platforms[rand.IntN(len(platforms))]
	family := browsers[rand.IntN(len(browsers))]
	version := family.minVersion + rand.IntN(family.maxVersion-family.minVersion+1)
	return fmt.Sprintf("Mozilla/5.0 (%s) %s", platform, fmt.Sprintf(family.template, version))
}

package urlscope

import (
	"net/url"
	"path"
	"strings"
)

var irrelevantExtensions = toSet(
	".3g2", ".3gp", ".7z", ".aac", ".accdb", ".ace", ".aif",
	".aiff", ".ai", ".apk", ".arj", ".arw", ".asm", ".azw3",
	".bak", ".bash", ".bin", ".blend", ".bmp", ".bz2", ".cab",
	".cache", ".c", ".cso", ".conf", ".cpp", ".cr2", ".crt",
	".cs", ".csv", ".dat", ".dae", ".deb", ".dmg", ".doc",
	".docx", ".drv", ".dxf", ".dwg", ".eml", ".eps", ".epub",
	".exe", ".fbx", ".fish", ".flac", ".flv", ".fon", ".gb",
	".gba", ".gif", ".go", ".gz", ".h", ".har", ".hpp",
	".ics", ".ico", ".igs", ".img", ".ini", ".iso", ".java",
	".jpeg", ".jpg", ".js", ".json", ".key", ".kt", ".kts",
	".lock", ".log", ".lua", ".lz", ".lzma", ".m", ".map",
	".max", ".mdb", ".mid", ".midi", ".mkv", ".mobi", ".mov",
	".mp3", ".mp4", ".mpg", ".mpeg", ".msg", ".msi", ".msm",
	".msp", ".nef", ".nes", ".obj", ".odp", ".ods", ".odt",
	".ogg", ".old", ".opus", ".orf", ".otf", ".pak", ".pcap",
	".pcapng", ".pem", ".pdf", ".php", ".pl", ".ply", ".png",
	".ppt", ".pptx", ".prn", ".ps", ".py", ".qbb", ".qbw",
	".qfx", ".rar", ".rb", ".rm", ".rmvb", ".rom", ".rpm",
	".rs", ".rtf", ".r", ".rfa", ".rvt", ".s", ".sav",
	".sh", ".sit", ".sitx", ".skp", ".so", ".sqlite",
	".sqlite3", ".stl", ".step", ".stp", ".sub", ".swift",
	".sys", ".tar", ".temp", ".tif", ".tiff", ".tmp",
	".toml", ".tsv", ".ttf", ".uue", ".vhd", ".vhdx",
	".vmdk", ".vtt", ".wav", ".wbmp", ".webm", ".webp",
	".wma", ".woff", ".woff2", ".wps", ".wmv", ".xcf",
	".xls", ".xlsx", ".xml", ".xz", ".yaml", ".yml",
	".z", ".zip", ".zsh",
)

var irrelevantSegments = []string{
	"/cdn-cgi/",
	"/assets/",
	"/uploads/",
	"/wp-content/",
	"/wp-includes/",
	"/themes/",
	"/plugins/",
	"/node_modules/",
	"/static/",
	"/javascript/",
	"/css/",
	"/img/",
}

func toSet(values ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

// IsIrrelevant reports whether the URL points at a non-HTML asset, either by
// file extension or by a well-known asset directory in its path. It only
// reduces noise; it is not a security boundary.
func IsIrrelevant(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := strings.ToLower(u.Path)
	if _, ok := irrelevantExtensions[path.Ext(p)]; ok {
		return true
	}
	for _, segment := range irrelevantSegments {
		if strings.Contains(p, segment) {
			return true
		}
	}
	return false
}

// InScope reports whether a link on linkDomain may be followed from baseDomain.
func InScope(linkDomain, baseDomain string, allowExternal bool) bool {
	return allowExternal || linkDomain == baseDomain
}

// PassesSideways keeps the crawl inside the scope sub-tree when enabled. The
// scope directory itself ("/blog" for scope "/blog/") is inside the tree.
func PassesSideways(linkPath, scopePath string, enabled bool) bool {
	if !enabled {
		return true
	}
	dir := asDir(scopePath)
	if dir == "/" {
		return true
	}
	return linkPath == strings.TrimSuffix(dir, "/") || strings.HasPrefix(linkPath, dir)
}

// PassesBackwards rejects links that climb above the scope path when enabled.
func PassesBackwards(linkPath, scopePath string, enabled bool) bool {
	if !enabled {
		return true
	}
	return !IsStrictAncestor(linkPath, scopePath)
}

// IsStrictAncestor reports whether linkPath names a directory strictly above
// scopePath. The root is an ancestor of every non-root scope.
func IsStrictAncestor(linkPath, scopePath string) bool {
	scope := strings.TrimSuffix(asDir(scopePath), "/")
	if scope == "" {
		return false
	}
	link := strings.TrimSuffix(linkPath, "/")
	if link == "" {
		return true
	}
	if link == scope {
		return false
	}
	return strings.HasPrefix(scope+"/", link+"/")
}

func asDir(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasSuffix(p, "/") {
		return p + "/"
	}
	return p
}

// Policy is the combined scope filter applied to every discovered link.
type Policy struct {
	AllowExternal     bool
	RestrictSideways  bool
	RestrictBackwards bool
}

// Accept reports whether the normalized link belongs in the crawl and archive
// queues for a page on baseDomain, given the run's scope path.
func (p Policy) Accept(normalizedLink, baseDomain, scopePath string) bool {
	u, err := url.Parse(normalizedLink)
	if err != nil || u.Host == "" {
		return false
	}
	return InScope(RootDomain(u.Host), baseDomain, p.AllowExternal) &&
		!IsIrrelevant(normalizedLink) &&
		PassesSideways(u.Path, scopePath, p.RestrictSideways) &&
		PassesBackwards(u.Path, scopePath, p.RestrictBackwards)
}

// Filter resolves, normalizes, deduplicates and scope-checks the hrefs found
// on pageURL, preserving first-seen order.
func (p Policy) Filter(pageURL string, hrefs []string, scopePath string) []string {
	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		return nil
	}
	baseDomain := RootDomain(base.Host)
	seen := make(map[string]struct{}, len(hrefs))
	out := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		abs, ok := Resolve(base, href)
		if !ok {
			continue
		}
		clean, err := Normalize(abs)
		if err != nil {
			continue
		}
		if _, dup := seen[clean]; dup {
			continue
		}
		seen[clean] = struct{}{}
		if p.Accept(clean, baseDomain, scopePath) {
			out = append(out, clean)
		}
	}
	return out
}

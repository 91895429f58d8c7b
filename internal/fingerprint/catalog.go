package fingerprint

// Candidate pools for fingerprint attributes. Viewports, timezones and
// locales carry a "common" subset used by the uncommon-value weighting in
// Generator; everything else is sampled uniformly.

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
}

var viewports = []Size{
	{1920, 1080}, {1366, 768}, {1440, 900}, {1536, 864},
	{1280, 720}, {1600, 900}, {2560, 1440}, {1680, 1050},
}

var commonViewports = []Size{
	{1920, 1080}, {1366, 768}, {1280, 720},
}

var timezones = []string{
	"America/New_York", "America/Los_Angeles", "America/Chicago",
	"Europe/London", "Europe/Paris", "Europe/Berlin", "Europe/Madrid",
	"Asia/Tokyo", "Asia/Singapore", "Australia/Sydney",
}

var commonTimezones = []string{
	"America/New_York", "Europe/London", "America/Los_Angeles",
}

var locales = []string{
	"en-US", "en-GB", "fr-FR", "de-DE", "es-ES", "ja-JP", "pt-BR", "nl-NL",
}

var commonLocales = []string{"en-US", "en-GB"}

var platforms = []string{"Win32", "MacIntel", "Linux x86_64"}

var colorDepths = []int{24, 32}

// renderStack pairs a WebGL vendor with a renderer template. Templates
// containing a verb get a random numeric suffix so each identity reports a
// distinct driver build. Platforms lists where the pair is plausible; the
// list is consulted only when Policy.PairPlatformVendor is set.
type renderStack struct {
	vendor    string
	renderer  string
	platforms []string
}

var renderStacks = []renderStack{
	{"Google Inc.", "ANGLE (Direct3D11 vs_5_0 ps_5_0, D3D11-%05d)", []string{"Win32"}},
	{"NVIDIA Corporation", "ANGLE (NVIDIA GeForce GTX 1660 Direct3D11 vs_5_0 ps_5_0, D3D11-%05d)", []string{"Win32"}},
	{"AMD", "ANGLE (AMD Radeon RX 580 Direct3D11 vs_5_0 ps_5_0, D3D11-%05d)", []string{"Win32"}},
	{"Google Inc. (Apple)", "ANGLE (Apple, Apple M1, OpenGL 4.1)", []string{"MacIntel"}},
	{"Google Inc. (Intel)", "ANGLE (Intel, Mesa Intel(R) UHD Graphics 620, OpenGL 4.6)", []string{"Linux x86_64"}},
	{"Google Inc. (NVIDIA)", "ANGLE (NVIDIA, NVIDIA GeForce RTX 3060/PCIe/SSE2, OpenGL 4.5)", []string{"Linux x86_64"}},
}

var fontCatalog = []string{
	"Arial", "Times New Roman", "Helvetica", "Georgia", "Verdana",
	"Courier New", "Comic Sans MS", "Trebuchet MS", "Impact",
	"Garamond", "Palatino Linotype", "Tahoma", "Lucida Console",
	"Gill Sans", "Candara", "Futura", "Optima", "Cambria",
}

var commonFonts = []string{"Arial", "Times New Roman", "Verdana", "Georgia"}

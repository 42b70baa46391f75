// internal/browser/capabilities/capabilities.go
package capabilities

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"

	"github.com/xkilldash9x/steadyhand/internal/browser"
)

// Download locations used by remote (containerised) browsers.
const (
	RemoteBrowserDownloadDir = "/home/seluser/Downloads"
	RemoteHostDownloadDir    = "downloads"
	localDownloadDirName     = "downloads"
)

// PageLoadStrategy mirrors the WebDriver page load strategies.
type PageLoadStrategy string

const (
	PageLoadNormal PageLoadStrategy = "normal"
	PageLoadEager  PageLoadStrategy = "eager"
	PageLoadNone   PageLoadStrategy = "none"
)

// LogLevel is the verbosity requested for a log channel.
type LogLevel string

const (
	LogAll  LogLevel = "ALL"
	LogInfo LogLevel = "INFO"
	LogWarn LogLevel = "WARN"
	LogOff  LogLevel = "OFF"
)

// fixedArgs go to every browser kind.
var fixedArgs = []string{"--disable-gpu", "--no-sandbox"}

// firefoxNeverAskMIME is the list of content types Firefox saves without prompting.
const firefoxNeverAskMIME = "application/pdf,application/octet-stream,application/zip," +
	"text/csv,application/csv,text/plain,application/vnd.ms-excel," +
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet," +
	"application/msword,application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Proxy holds the proxy endpoint for each scheme.
type Proxy struct {
	HTTP string `json:"http,omitempty" yaml:"http,omitempty"`
	SSL  string `json:"ssl,omitempty" yaml:"ssl,omitempty"`
	FTP  string `json:"ftp,omitempty" yaml:"ftp,omitempty"`
}

// Enabled reports whether any endpoint is configured.
func (p Proxy) Enabled() bool { return p.HTTP != "" || p.SSL != "" || p.FTP != "" }

// Set is the launch and connection configuration for one session. It is a
// value type; the slice and map accessors return copies so a Set can be
// shared between goroutines without further locking.
type Set struct {
	Kind                browser.Kind     `json:"kind" yaml:"kind"`
	Mode                string           `json:"mode" yaml:"mode"`
	Headless            bool             `json:"headless" yaml:"headless"`
	AcceptInsecureCerts bool             `json:"accept_insecure_certs" yaml:"accept_insecure_certs"`
	PageLoadStrategy    PageLoadStrategy `json:"page_load_strategy" yaml:"page_load_strategy"`
	// DownloadDir is the directory as seen by the browser.
	DownloadDir string `json:"download_dir" yaml:"download_dir"`
	// HostDownloadDir is where downloaded files appear for the test process.
	HostDownloadDir string   `json:"host_download_dir" yaml:"host_download_dir"`
	BrowserLogLevel LogLevel `json:"browser_log_level" yaml:"browser_log_level"`
	DriverLogLevel  LogLevel `json:"driver_log_level" yaml:"driver_log_level"`
	Proxy           Proxy    `json:"proxy" yaml:"proxy"`
	UserDataDir     string   `json:"user_data_dir,omitempty" yaml:"user_data_dir,omitempty"`
	BinaryPath      string   `json:"binary_path,omitempty" yaml:"binary_path,omitempty"`
	// DriverDir is the local driver-service installation for this platform.
	DriverDir string `json:"driver_dir,omitempty" yaml:"driver_dir,omitempty"`

	args  []string
	prefs map[string]any
}

// Args returns a copy of the browser command line switches.
func (s Set) Args() []string { return slices.Clone(s.args) }

// Prefs returns a copy of the browser preferences.
func (s Set) Prefs() map[string]any { return maps.Clone(s.prefs) }

// HasArg reports whether the given switch is present.
func (s Set) HasArg(arg string) bool { return slices.Contains(s.args, arg) }

// MarshalView is the exported form used when printing a Set.
type MarshalView struct {
	Set   `yaml:",inline"`
	Args  []string       `json:"args" yaml:"args"`
	Prefs map[string]any `json:"prefs" yaml:"prefs"`
}

// View flattens the Set, including its private collections, for printing.
func (s Set) View() MarshalView {
	return MarshalView{Set: s, Args: s.Args(), Prefs: s.Prefs()}
}

// Build maps a browser kind, execution mode and environment onto a Set.
func Build(kind browser.Kind, mode browser.Mode, env Environment) (Set, error) {
	if !kind.Valid() {
		return Set{}, fmt.Errorf("%w: %q", browser.ErrUnsupportedBrowserKind, string(kind))
	}

	set := Set{
		Kind:                kind,
		Mode:                mode.String(),
		Headless:            env.GOOS == "linux",
		AcceptInsecureCerts: true,
		PageLoadStrategy:    PageLoadEager,
		Proxy:               proxyFrom(env),
		prefs:               map[string]any{},
	}
	set.DownloadDir, set.HostDownloadDir = downloadDirs(mode, env)

	if mode == browser.Local {
		set.DriverDir = driverDir(env)
	}

	switch kind {
	case browser.Chrome, browser.Edge:
		applyChromium(&set, env)
	case browser.Firefox:
		applyFirefox(&set, env)
	}
	return set, nil
}

func downloadDirs(mode browser.Mode, env Environment) (browserSide, hostSide string) {
	if mode == browser.Remote {
		return RemoteBrowserDownloadDir, RemoteHostDownloadDir
	}
	dir := filepath.Join(env.HomeDir, localDownloadDirName)
	return dir, dir
}

// DownloadDirectory is the host-side download path for a mode.
func DownloadDirectory(mode browser.Mode, env Environment) string {
	_, host := downloadDirs(mode, env)
	return host
}

// proxyFrom needs both host and port; either one alone means no proxy.
func proxyFrom(env Environment) Proxy {
	if env.ProxyHost == "" || env.ProxyPort == "" {
		return Proxy{}
	}
	addr := env.ProxyHost + ":" + env.ProxyPort
	return Proxy{HTTP: addr, SSL: addr, FTP: addr}
}

func driverDir(env Environment) string {
	if env.DriversDir == "" {
		return ""
	}
	name := "playwright"
	if env.DriverVersion != "" {
		name += "-" + env.DriverVersion
	}
	return filepath.Join(env.DriversDir, env.GOOS, name)
}

func applyChromium(set *Set, env Environment) {
	set.BrowserLogLevel = LogAll
	set.DriverLogLevel = LogInfo
	set.args = append(slices.Clone(fixedArgs),
		"--remote-allow-origins=*",
		"--safebrowsing-disable-download-protection",
		"--safebrowsing-disable-extension-blacklist",
	)
	if set.Headless {
		set.args = append(set.args, "--headless=new")
	}
	if set.Proxy.Enabled() {
		set.args = append(set.args, "--proxy-server="+set.Proxy.HTTP)
	}

	set.prefs["safebrowsing.enabled"] = true
	set.prefs["safebrowsing.disable_download_protection"] = true
	set.prefs["download.prompt_for_download"] = false
	set.prefs["download.directory_upgrade"] = true
	set.prefs["download.default_directory"] = set.DownloadDir

	switch set.Kind {
	case browser.Chrome:
		if env.ChromeUserDataDir != "" {
			set.UserDataDir = env.ChromeUserDataDir
			set.args = append(set.args, "--user-data-dir="+env.ChromeUserDataDir)
		}
	case browser.Edge:
		set.BinaryPath = discoverEdge(env)
	}
}

func applyFirefox(set *Set, env Environment) {
	set.BrowserLogLevel = LogAll
	set.DriverLogLevel = LogWarn
	set.args = slices.Clone(fixedArgs)
	if set.Headless {
		set.args = append(set.args, "-headless")
	}

	set.prefs["browser.download.folderList"] = 2
	set.prefs["browser.download.dir"] = set.DownloadDir
	set.prefs["browser.download.useDownloadDir"] = true
	set.prefs["browser.helperApps.neverAsk.saveToDisk"] = firefoxNeverAskMIME
	set.prefs["pdfjs.disabled"] = true
	set.prefs["network.cors_preflight.allow"] = true
	set.prefs["network.cors_preflight.max_age"] = 3600
	if set.Proxy.Enabled() {
		host, port := splitHostPort(set.Proxy.HTTP)
		set.prefs["network.proxy.type"] = 1
		for _, scheme := range []string{"http", "ssl", "ftp"} {
			set.prefs["network.proxy."+scheme] = host
			if port != 0 {
				set.prefs["network.proxy."+scheme+"_port"] = port
			}
		}
	}

	set.BinaryPath = discoverFirefox(env)
}

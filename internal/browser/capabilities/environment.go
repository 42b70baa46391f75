// internal/browser/capabilities/environment.go
package capabilities

import (
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/steadyhand/internal/config"
)

// Environment is everything Build reads from the host. Probes are injected so
// that Build itself stays free of side effects.
type Environment struct {
	GOOS    string
	HomeDir string

	ProxyHost string
	ProxyPort string

	ChromeUserDataDir string
	FirefoxBinary     string
	EdgeBinary        string

	DriversDir    string
	DriverVersion string

	// Getenv, FileExists and LookPath may be nil, in which case the
	// corresponding discovery step is skipped.
	Getenv     func(string) string
	FileExists func(string) bool
	LookPath   func(string) (string, error)
}

// EnvironmentFromConfig builds an Environment for the running host.
func EnvironmentFromConfig(cfg *config.Config) Environment {
	home, err := homedir.Dir()
	if err != nil {
		home = "."
	}
	return Environment{
		GOOS:              runtime.GOOS,
		HomeDir:           home,
		ProxyHost:         cfg.Proxy.Host,
		ProxyPort:         cfg.Proxy.Port,
		ChromeUserDataDir: cfg.Browser.ChromeUserDataDir,
		FirefoxBinary:     cfg.Browser.FirefoxBinary,
		EdgeBinary:        cfg.Browser.EdgeBinary,
		DriversDir:        cfg.Drivers.Directory,
		DriverVersion:     cfg.Drivers.Version,
		Getenv:            os.Getenv,
		FileExists:        fileExists,
		LookPath:          exec.LookPath,
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func (e Environment) getenv(key string) string {
	if e.Getenv == nil {
		return ""
	}
	return e.Getenv(key)
}

func (e Environment) exists(path string) bool {
	return e.FileExists != nil && e.FileExists(path)
}

// discoverFirefox resolves the Firefox binary: explicit override first, then
// the well known Windows install locations, then a PATH lookup. Every probe
// failure is ignored and leaves the browser to its own default.
func discoverFirefox(env Environment) string {
	if env.FirefoxBinary != "" {
		return env.FirefoxBinary
	}
	if env.GOOS != "windows" {
		return ""
	}

	var candidates []string
	for _, root := range []string{env.getenv("ProgramFiles"), env.getenv("ProgramFiles(x86)")} {
		if root != "" {
			candidates = append(candidates, filepath.Join(root, "Mozilla Firefox", "firefox.exe"))
		}
	}
	candidates = append(candidates,
		`C:\Program Files\Mozilla Firefox\firefox.exe`,
		`C:\Program Files (x86)\Mozilla Firefox\firefox.exe`,
	)
	for _, c := range candidates {
		if env.exists(c) {
			return c
		}
	}

	if env.LookPath != nil {
		if p, err := env.LookPath("firefox"); err == nil {
			return p
		}
	}
	return ""
}

func discoverEdge(env Environment) string {
	if env.EdgeBinary != "" {
		return env.EdgeBinary
	}
	var candidates []string
	switch env.GOOS {
	case "windows":
		candidates = []string{
			`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`,
			`C:\Program Files\Microsoft\Edge\Application\msedge.exe`,
		}
	case "darwin":
		candidates = []string{"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge"}
	default:
		candidates = []string{"/usr/bin/microsoft-edge", "/usr/bin/microsoft-edge-stable", "/opt/microsoft/msedge/msedge"}
	}
	for _, c := range candidates {
		if env.exists(c) {
			return c
		}
	}
	if env.LookPath != nil {
		for _, name := range []string{"microsoft-edge", "msedge"} {
			if p, err := env.LookPath(name); err == nil {
				return p
			}
		}
	}
	return ""
}

func splitHostPort(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 0
	}
	return host, port
}

package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPTimeout     = 10 * time.Second
	defaultRefreshInterval = 30 * time.Second
	defaultListenAddr      = ":8080"
	defaultStateDir        = "./data/state"
	defaultJournalDir      = "./data/journal"
)

type Config struct {
	AuthorityURL    string
	HTTPTimeout     time.Duration
	StateDir        string
	JournalDir      string
	ListenAddr      string
	RefreshInterval time.Duration
	TLSDomains      []string
	CertCacheDir    string
}

type configTmp struct {
	AuthorityURL    string        `yaml:"authority_url"`
	HTTPTimeout     time.Duration `yaml:"http_timeout,omitempty"`
	StateDir        string        `yaml:"state_dir,omitempty"`
	JournalDir      string        `yaml:"journal_dir,omitempty"`
	ListenAddr      string        `yaml:"listen_addr,omitempty"`
	RefreshInterval time.Duration `yaml:"refresh_interval,omitempty"`
	TLSDomains      string        `yaml:"tls_domains,omitempty"`
	CertCacheDir    string        `yaml:"cert_cache_dir,omitempty"`
}

func Get() (Config, error) {
	config := flag.String("config", "", "path to yaml config")
	flag.Parse()
	if *config != "" {
		return getYaml(*config)
	}

	return getFromCLI()
}

func getFromCLI() (Config, error) {
	authorityURL := flag.String("authority", "", "base URL of the demo summary authority, example: https://api.example.com")
	httpTimeout := flag.Duration("httptimeout", defaultHTTPTimeout, "timeout for authority requests")
	stateDir := flag.String("statedir", defaultStateDir, "directory for ledger and identity snapshots")
	journalDir := flag.String("journaldir", defaultJournalDir, "directory for the operation journal")
	listenAddr := flag.String("listen", defaultListenAddr, "dashboard listen address")
	refreshInterval := flag.Duration("refreshinterval", defaultRefreshInterval, "authority summary refresh interval")
	tlsDomains := flag.String("tlsdomains", "", "comma-separated domains for automatic TLS, empty disables TLS")
	certCacheDir := flag.String("certcachedir", "./data/certs", "directory for cached TLS certificates")

	flag.Parse()

	cfg := Config{
		AuthorityURL:    *authorityURL,
		HTTPTimeout:     *httpTimeout,
		StateDir:        *stateDir,
		JournalDir:      *journalDir,
		ListenAddr:      *listenAddr,
		RefreshInterval: *refreshInterval,
		TLSDomains:      splitDomains(*tlsDomains),
		CertCacheDir:    *certCacheDir,
	}
	return cfg, validate(cfg)
}

func getYaml(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var tmp configTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AuthorityURL:    tmp.AuthorityURL,
		HTTPTimeout:     tmp.HTTPTimeout,
		StateDir:        tmp.StateDir,
		JournalDir:      tmp.JournalDir,
		ListenAddr:      tmp.ListenAddr,
		RefreshInterval: tmp.RefreshInterval,
		TLSDomains:      splitDomains(tmp.TLSDomains),
		CertCacheDir:    tmp.CertCacheDir,
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}
	if cfg.StateDir == "" {
		cfg.StateDir = defaultStateDir
	}
	if cfg.JournalDir == "" {
		cfg.JournalDir = defaultJournalDir
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}
	return cfg, validate(cfg)
}

func validate(cfg Config) error {
	if cfg.AuthorityURL == "" {
		return fmt.Errorf("authority URL is required, set 'authority_url' in yaml config or pass --authority")
	}
	if !strings.HasPrefix(cfg.AuthorityURL, "http://") && !strings.HasPrefix(cfg.AuthorityURL, "https://") {
		return fmt.Errorf("incorrect authority URL %q, must start with http:// or https://", cfg.AuthorityURL)
	}
	if cfg.HTTPTimeout < 0 {
		return fmt.Errorf("incorrect 'http_timeout' param: %s", cfg.HTTPTimeout)
	}
	if cfg.RefreshInterval < 0 {
		return fmt.Errorf("incorrect 'refresh_interval' param: %s", cfg.RefreshInterval)
	}
	if len(cfg.TLSDomains) > 0 && cfg.CertCacheDir == "" {
		return fmt.Errorf("'cert_cache_dir' is required when TLS domains are set")
	}
	return nil
}

func splitDomains(s string) []string {
	if s == "" {
		return nil
	}
	var domains []string
	for _, d := range strings.Split(s, ",") {
		if d = strings.TrimSpace(d); d != "" {
			domains = append(domains, d)
		}
	}
	return domains
}

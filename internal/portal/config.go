// Package portal drives authenticated Projudi TJGO browsing sessions over
// chromedp. One session owns one Chrome process; the worker opens a session
// per batch and closes it when the batch drains or is torn down.
package portal

import "time"

// Config captures the parameters for portal sessions.
type Config struct {
	// BaseURL is the portal root, e.g. https://projudi.tjgo.jus.br.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// LoginTimeout bounds the authentication exchange.
	LoginTimeout time.Duration `mapstructure:"login_timeout" yaml:"login_timeout"`
	// VerifyTimeout bounds one full case lookup, expansion walk included.
	VerifyTimeout time.Duration `mapstructure:"verify_timeout" yaml:"verify_timeout"`
	// PollInterval is the wait between DOM readiness probes.
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	// UserAgent overrides the browser user agent when non-empty.
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
	// SearchInterval paces case searches across all sessions; the portal
	// throttles accounts that query too fast.
	SearchInterval time.Duration `mapstructure:"search_interval" yaml:"search_interval"`
}

// Portal page paths. PaginaAtual is the portal's own page dispatcher.
const (
	loginPath       = "/LogOn?PaginaAtual=-200"
	searchPath      = "/BuscaProcesso?PaginaAtual=4"
	grantAccessPath = "/DescartarPendenciaProcesso?PaginaAtual=8"
)

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://projudi.tjgo.jus.br"
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = 60 * time.Second
	}
	if c.VerifyTimeout <= 0 {
		c.VerifyTimeout = 120 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.SearchInterval <= 0 {
		c.SearchInterval = 2 * time.Second
	}
	return c
}

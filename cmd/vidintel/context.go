package main

import (
	"context"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"vidintel/internal/config"
	"vidintel/internal/queueaccess"
	"vidintel/internal/store"
	"vidintel/internal/transport"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.LoadWithEnv(c.flagPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

func (c *commandContext) flagPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

// openSession prefers the daemon API and falls back to the store.
func (c *commandContext) openSession(ctx context.Context) (queueaccess.Session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return queueaccess.Session{}, err
	}
	remote, err := queueaccess.NewHTTPAccess(cfg.Paths.APIBind, cfg.Paths.APIToken)
	if err != nil && !queueaccess.IsAPIUnavailable(err) {
		return queueaccess.Session{}, err
	}
	return queueaccess.OpenWithFallback(ctx, remote,
		func() (*store.Store, error) { return store.Open(cfg) },
		func() (queueaccess.EnqueueCloser, error) { return dialEnqueuer(ctx, cfg) },
	)
}

// withSession runs fn against a job session and closes it afterwards.
func (c *commandContext) withSession(cmd *cobra.Command, fn func(queueaccess.Access) error) error {
	session, err := c.openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer session.Close()
	return fn(session.Access)
}

// withStore opens the store directly.
func (c *commandContext) withStore(fn func(*config.Config, *store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(cfg, st)
}

// dialEnqueuer returns the redis transport when configured. The store
// transport needs no announcement because the daemon polls the jobs table.
func dialEnqueuer(ctx context.Context, cfg *config.Config) (queueaccess.EnqueueCloser, error) {
	if cfg.Transport.Backend != config.TransportRedis {
		return nil, nil
	}
	tr, err := transport.DialRedis(ctx, cfg.Transport.RedisURL, cfg.Transport.List)
	if err != nil {
		return nil, err
	}
	return tr, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

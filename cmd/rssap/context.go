package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/rbarrimond/rss-analyzer-poster/internal/config"
	"github.com/rbarrimond/rss-analyzer-poster/internal/contentcache"
	"github.com/rbarrimond/rss-analyzer-poster/internal/queue"
	"github.com/rbarrimond/rss-analyzer-poster/internal/store"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withStore opens the pipeline database for the duration of fn. Commands use
// it for direct reads and writes; the serve process holds its own handle and
// SQLite arbitrates between the two.
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

func (c *commandContext) withQueue(fn func(*config.Config, *store.Store, *queue.Queue) error) error {
	return c.withStore(func(cfg *config.Config, st *store.Store) error {
		q, err := queue.New(st.DB())
		if err != nil {
			return err
		}
		return fn(cfg, st, q)
	})
}

func (c *commandContext) openCache(cfg *config.Config) (*contentcache.Cache, error) {
	return contentcache.New(cfg.Paths.CacheDir)
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

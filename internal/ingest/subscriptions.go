package ingest

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/rbarrimond/rss-analyzer-poster/internal/contenthash"
	"github.com/rbarrimond/rss-analyzer-poster/internal/services"
	"github.com/rbarrimond/rss-analyzer-poster/internal/store"
)

// Subscription is one feed in the feeds.yaml subscription file.
type Subscription struct {
	URL       string `yaml:"url"`
	Title     string `yaml:"title,omitempty"`
	Publisher string `yaml:"publisher,omitempty"`
	Language  string `yaml:"language,omitempty"`
}

type subscriptionFile struct {
	Feeds []Subscription `yaml:"feeds"`
}

// Key returns the stable feed key derived from the subscription URL.
func (s Subscription) Key() string {
	return contenthash.SumKey(strings.TrimSpace(s.URL))
}

// LoadSubscriptions reads the feeds.yaml subscription file. A missing file
// is an empty subscription list, not an error.
func LoadSubscriptions(path string) ([]Subscription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read subscriptions: %w", err)
	}
	var parsed subscriptionFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse subscriptions: %w", err)
	}
	subs := parsed.Feeds[:0]
	for _, sub := range parsed.Feeds {
		if strings.TrimSpace(sub.URL) == "" {
			continue
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// SaveSubscriptions writes the subscription list back to feeds.yaml.
func SaveSubscriptions(path string, subs []Subscription) error {
	data, err := yaml.Marshal(subscriptionFile{Feeds: subs})
	if err != nil {
		return fmt.Errorf("encode subscriptions: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write subscriptions: %w", err)
	}
	return nil
}

// SyncSubscriptions upserts every subscription from feeds.yaml into the
// store. Feeds removed from the file are left in place; removal is an
// explicit operator action.
func (s *Service) SyncSubscriptions(ctx context.Context) (int, error) {
	subs, err := LoadSubscriptions(s.cfg.Paths.FeedsFile)
	if err != nil {
		return 0, services.Wrap(services.ErrConfiguration, "ingest", "sync subscriptions", "load feeds file", err)
	}
	for _, sub := range subs {
		feed := &store.Feed{
			Key:       sub.Key(),
			Title:     strings.TrimSpace(sub.Title),
			SiteURL:   strings.TrimSpace(sub.URL),
			Publisher: strings.TrimSpace(sub.Publisher),
			Language:  normalizeLanguage(sub.Language),
		}
		if err := s.store.UpsertFeed(ctx, feed); err != nil {
			return 0, err
		}
	}
	return len(subs), nil
}

// normalizeLanguage canonicalizes a BCP 47 tag, dropping values that do not
// parse rather than storing junk.
func normalizeLanguage(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	tag, err := language.Parse(value)
	if err != nil {
		return ""
	}
	return tag.String()
}

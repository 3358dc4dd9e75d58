// Package sitemap is the built-in plugin that writes sitemap.xml after a render.
package sitemap

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/platinummonkey/quire/pkg/markup"
	"github.com/platinummonkey/quire/pkg/output"
	"github.com/platinummonkey/quire/pkg/plugins"
)

const (
	// OptionHostedBaseURL is the host option holding the public site URL
	OptionHostedBaseURL = "hostedBaseUrl"

	// FileName is the artifact written to the sink
	FileName = "sitemap.xml"

	// Namespace is the sitemaps.org schema namespace
	Namespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

	declaration = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"
)

// Load activates the plugin. Without a hosted base URL there is nothing to
// link to and the plugin stays idle.
func Load(host plugins.Host) error {
	base := host.Options()[OptionHostedBaseURL]
	if base == "" {
		host.Logger().Debugf("Sitemap disabled: %s is not set", OptionHostedBaseURL)
		return nil
	}

	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid %s: %q", OptionHostedBaseURL, base)
	}

	p := &plugin{
		baseURL: strings.TrimSuffix(base, "/") + "/",
		host:    host,
	}
	host.On(output.EventEndRender, p.onEndRender, 0)

	return nil
}

type plugin struct {
	baseURL string
	host    plugins.Host
}

func (p *plugin) onEndRender(ctx context.Context, payload any) error {
	event, ok := payload.(*output.RenderEvent)
	if !ok {
		return fmt.Errorf("sitemap: unexpected payload %T", payload)
	}

	doc := declaration + markup.Serialize(Build(event, p.baseURL)) + "\n"
	if err := event.Sink.Write(ctx, FileName, []byte(doc)); err != nil {
		return fmt.Errorf("failed to write %s: %w", FileName, err)
	}

	p.host.Logger().Infof("Wrote %s with %d urls", FileName, len(event.URLs))
	return nil
}

// Build returns the urlset element for a render, one url per page in render order
func Build(event *output.RenderEvent, baseURL string) *markup.Element {
	urlset := markup.New("urlset").WithAttr("xmlns", Namespace)
	latest := output.LatestModified(event.Project)

	for _, mapping := range event.URLs {
		entry := markup.New("url", markup.Text("loc", baseURL+mapping.URL))

		modified := latest
		if mapping.Model != nil {
			modified = mapping.Model.Modified
		}
		if !modified.IsZero() {
			entry.Append(markup.Text("lastmod", modified.UTC().Format(time.RFC3339)))
		}

		urlset.Append(entry)
	}

	return urlset
}

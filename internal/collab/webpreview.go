package collab

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// WebPreviewFetcher builds an RDL-friendly title and text snippet for a
// URL-shaped execution result. It is
// grounded on the same "fetch then scrape" shape the pack's goquery/
// html-to-markdown dependencies are meant for: goquery selects the
// <meta property=og:title> tag (or <title> when it is absent), html-to-markdown turns the first
// content block into a plain-text-ish preview for the card body.
type WebPreviewFetcher struct {
	client *http.Client
}

// NewWebPreviewFetcher creates a fetcher using http.DefaultClient unless a
// custom client is supplied.
func NewWebPreviewFetcher(client *http.Client) *WebPreviewFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebPreviewFetcher{client: client}
}

// Preview is the title/snippet pair rendered into an RDLMessage by the
// formatter (internal/formatter).
type Preview struct {
	Title   string
	Snippet string
}

// Fetch retrieves url and extracts a title and a short markdown snippet.
// Any network or parse failure is returned as an error so the caller can
// fall back to a plain Link message instead of an RDL card.
func (f *WebPreviewFetcher) Fetch(ctx context.Context, url string) (Preview, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Preview{}, fmt.Errorf("webpreview: build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Preview{}, fmt.Errorf("webpreview: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return Preview{}, fmt.Errorf("webpreview: parse %s: %w", url, err)
	}

	title := strings.TrimSpace(doc.Find(`meta[property="og:title"]`).AttrOr("content", ""))
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	var snippetHTML string
	if body, err := doc.Find("body").First().Html(); err == nil {
		snippetHTML = body
	}

	converter := md.NewConverter("", true, nil)
	snippet, err := converter.ConvertString(snippetHTML)
	if err != nil {
		snippet = ""
	}
	snippet = firstParagraph(snippet)

	return Preview{Title: title, Snippet: snippet}, nil
}

func firstParagraph(markdown string) string {
	for _, line := range strings.Split(markdown, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			if len(line) > 240 {
				line = line[:240] + "…"
			}
			return line
		}
	}
	return ""
}

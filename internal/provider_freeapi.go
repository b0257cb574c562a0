package internal

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// FreeAPIProvider is a free, credential-less BOOK_METADATA/COVER_URL
// provider backed by scraping a public search-results page, grounded on
// jacoknapp-scriptorum's AmazonPublic goquery scraper (same user-agent
// spoofing, same detail-list parsing idiom) but pointed at an ISBN lookup
// page instead of Amazon's product page.
type FreeAPIProvider struct {
	client *http.Client
	base   string // e.g. https://www.freeapi.example/book
}

var _ BookMetadataProvider = (*FreeAPIProvider)(nil)
var _ CoverURLProvider = (*FreeAPIProvider)(nil)

func NewFreeAPIProvider(base string) *FreeAPIProvider {
	return &FreeAPIProvider{client: &http.Client{Timeout: 10 * time.Second}, base: strings.TrimSuffix(base, "/")}
}

func (p *FreeAPIProvider) Descriptor() ProviderDescriptor {
	return ProviderDescriptor{
		Name: "freeapi",
		Type: ProviderFree,
		Capabilities: []Capability{CapBookMetadata, CapCoverURL},
	}
}

func (p *FreeAPIProvider) IsAvailable(ctx context.Context) bool { return true }

func (p *FreeAPIProvider) BatchCap() int { return 1 } // no batch endpoint; one page per ISBN

func (p *FreeAPIProvider) FetchByISBN(ctx CallContext, isbn string) (*EditionMetadata, error) {
	url := fmt.Sprintf("%s/isbn/%s", p.base, isbn)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, InternalError("request build failed", err.Error())
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; alexandria-enrichment/1.0)")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, TransientError("freeapi request failed", err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		return nil, TransientError("freeapi returned error status", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, TransientError("freeapi parse failed", err.Error())
	}

	md := &EditionMetadata{ISBN: isbn, SourceProvider: "freeapi", Confidence: 60}
	md.Title = strings.TrimSpace(doc.Find("[itemprop='name'], .book-title").First().Text())
	if md.Title == "" {
		md.Title = strings.TrimSpace(doc.Find("meta[property='og:title']").AttrOr("content", ""))
	}
	md.CoverURL = doc.Find("meta[property='og:image']").AttrOr("content", "")
	if md.CoverURL == "" {
		md.CoverURL = strings.TrimSpace(doc.Find("img.cover, .book-cover img").AttrOr("src", ""))
	}

	doc.Find(".author a, [itemprop='author']").Each(func(_ int, s *goquery.Selection) {
		name := strings.TrimSpace(s.Text())
		if name != "" {
			md.Authors = append(md.Authors, name)
		}
	})

	doc.Find(".detail-row").Each(func(_ int, s *goquery.Selection) {
		label := strings.ToLower(strings.TrimSpace(s.Find(".label").First().Text()))
		value := strings.TrimSpace(s.Find(".value").First().Text())
		switch {
		case strings.Contains(label, "publisher"):
			md.Publisher = value
		case strings.Contains(label, "pages"):
			if n, err := strconv.Atoi(value); err == nil {
				md.PageCount = n
			}
		case strings.Contains(label, "year"):
			if n, err := strconv.Atoi(value); err == nil {
				md.PublishedYear = n
			}
		case strings.Contains(label, "language"):
			md.Language = value
		}
	})

	if md.Title == "" && len(md.Authors) == 0 {
		return nil, nil // page rendered but held no recognizable book data
	}
	return md, nil
}

func (p *FreeAPIProvider) FetchBatch(ctx CallContext, isbns []string) (map[string]*EditionMetadata, error) {
	out := make(map[string]*EditionMetadata, len(isbns))
	for _, isbn := range isbns {
		md, err := p.FetchByISBN(ctx, isbn)
		if err != nil || md == nil {
			continue
		}
		out[isbn] = md
	}
	return out, nil
}

func (p *FreeAPIProvider) CoverURL(ctx CallContext, isbn string) (string, error) {
	md, err := p.FetchByISBN(ctx, isbn)
	if err != nil || md == nil {
		return "", err
	}
	return md.CoverURL, nil
}

package internal

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// OpenLibraryProvider is the second free BOOK_METADATA/AUTHOR_BIBLIOGRAPHY
// provider, scraping OpenLibrary's server-rendered edition and author pages
// via XPath rather than calling its JSON search API, so the registry has a
// genuinely independent free source to merge against and fail over to.
type OpenLibraryProvider struct {
	client *http.Client
}

var (
	_ BookMetadataProvider       = (*OpenLibraryProvider)(nil)
	_ AuthorBibliographyProvider = (*OpenLibraryProvider)(nil)
)

func NewOpenLibraryProvider() *OpenLibraryProvider {
	return &OpenLibraryProvider{client: &http.Client{Timeout: 8 * time.Second}}
}

func (p *OpenLibraryProvider) Descriptor() ProviderDescriptor {
	return ProviderDescriptor{
		Name: "openlibrary",
		Type: ProviderFree,
		Capabilities: []Capability{CapBookMetadata, CapAuthorBibliography},
	}
}

func (p *OpenLibraryProvider) IsAvailable(ctx context.Context) bool { return true }

func (p *OpenLibraryProvider) BatchCap() int { return 1 }

func (p *OpenLibraryProvider) FetchByISBN(ctx CallContext, isbn string) (*EditionMetadata, error) {
	doc, err := p.fetchDoc(ctx, fmt.Sprintf("https://openlibrary.org/isbn/%s", isbn))
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}

	md := &EditionMetadata{ISBN: isbn, SourceProvider: "openlibrary", Confidence: 70}
	if n := htmlquery.FindOne(doc, "//h1[contains(@class,'work-title')]"); n != nil {
		md.Title = strings.TrimSpace(htmlquery.InnerText(n))
	}
	for _, n := range htmlquery.Find(doc, "//a[contains(@class,'author')]") {
		name := strings.TrimSpace(htmlquery.InnerText(n))
		if name != "" {
			md.Authors = append(md.Authors, name)
		}
	}
	if n := htmlquery.FindOne(doc, "//td[@class='bookPublisher']"); n != nil {
		md.Publisher = strings.TrimSpace(htmlquery.InnerText(n))
	}
	if n := htmlquery.FindOne(doc, "//td[@class='bookYearPublished']"); n != nil {
		if year, err := strconv.Atoi(strings.TrimSpace(htmlquery.InnerText(n))); err == nil {
			md.PublishedYear = year
		}
	}
	if n := htmlquery.FindOne(doc, "//img[contains(@class,'cover')]"); n != nil {
		md.CoverURL = htmlquery.SelectAttr(n, "src")
	}

	if md.Title == "" && len(md.Authors) == 0 {
		return nil, nil
	}
	return md, nil
}

func (p *OpenLibraryProvider) FetchBatch(ctx CallContext, isbns []string) (map[string]*EditionMetadata, error) {
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

// FetchBibliography requests up to maxPages pages of OpenLibrary results
// for the author, each page yielding partial EditionMetadata: the title,
// the queried author name, and this provider's name. No ISBN is set on the
// entries.
func (p *OpenLibraryProvider) FetchBibliography(ctx CallContext, authorName string, maxPages int) ([]EditionMetadata, error) {
	if maxPages <= 0 {
		maxPages = 1
	}
	slug := strings.ReplaceAll(strings.ToLower(authorName), " ", "_")

	var all []EditionMetadata
	for page := 1; page <= maxPages; page++ {
		doc, err := p.fetchDoc(ctx, fmt.Sprintf("https://openlibrary.org/search.json?author=%s&page=%d", slug, page))
		if err != nil {
			return all, err
		}
		if doc == nil {
			break
		}
		titles := htmlquery.Find(doc, "//span[@itemprop='name']")
		if len(titles) == 0 {
			break
		}
		for _, n := range titles {
			title := strings.TrimSpace(htmlquery.InnerText(n))
			if title == "" {
				continue
			}
			all = append(all, EditionMetadata{Title: title, Authors: []string{authorName}, SourceProvider: "openlibrary", Confidence: 50})
		}
	}
	return all, nil
}

func (p *OpenLibraryProvider) fetchDoc(ctx context.Context, url string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, InternalError("request build failed", err.Error())
	}
	req.Header.Set("User-Agent", "alexandria-enrichment/1.0 (+https://openlibrary.org)")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, TransientError("openlibrary request failed", err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		return nil, TransientError("openlibrary returned error status", resp.Status)
	}

	doc, err := htmlquery.Parse(resp.Body)
	if err != nil {
		return nil, TransientError("openlibrary parse failed", err.Error())
	}
	return doc, nil
}

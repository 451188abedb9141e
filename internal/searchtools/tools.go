package searchtools

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/deepresearch/research-agent/internal/exa"
	"github.com/deepresearch/research-agent/pkg/models"
)

const (
	searchErrPrefix   = "Error performing search: "
	contentsErrPrefix = "Error fetching contents: "
	similarErrPrefix  = "Error finding similar content: "

	unknown = "Unknown"

	defaultNumResults   = 5
	maxNumResults       = 20
	defaultContentWords = 500
	maxContentIDs       = 10

	// Provider text limits are in characters; tools take words.
	charsPerWord        = 5
	defaultSnippetChars = 1000
)

// SearchArgs are the arguments of the search tool.
type SearchArgs struct {
	Query              string   `json:"query"`
	Type               string   `json:"type,omitempty"`
	NumResults         *int     `json:"num_results,omitempty"`
	IncludeDomains     []string `json:"include_domains,omitempty"`
	ExcludeDomains     []string `json:"exclude_domains,omitempty"`
	StartPublishedDate string   `json:"start_published_date,omitempty"`
	EndPublishedDate   string   `json:"end_published_date,omitempty"`
	UseAutoprompt      *bool    `json:"use_autoprompt,omitempty"`
	IncludeText        bool     `json:"include_text,omitempty"`
	TextLengthWords    *int     `json:"text_length_words,omitempty"`
}

// ContentsArgs are the arguments of the get_contents tool.
type ContentsArgs struct {
	IDs             []string `json:"ids"`
	TextLengthWords *int     `json:"text_length_words,omitempty"`
}

// SimilarArgs are the arguments of the find_similar tool.
type SimilarArgs struct {
	URL                 string `json:"url"`
	NumResults          *int   `json:"num_results,omitempty"`
	ExcludeSourceDomain bool   `json:"exclude_source_domain,omitempty"`
}

type SearchResult struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	Author        string   `json:"author"`
	PublishedDate string   `json:"published_date"`
	Score         *float64 `json:"score"`
	Text          *string  `json:"text"`
	Highlights    []string `json:"highlights"`
}

type SearchOutput struct {
	AutopromptString *string        `json:"autoprompt_string"`
	TotalResults     int            `json:"total_results"`
	Results          []SearchResult `json:"results"`
}

type Document struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	Title         string `json:"title"`
	Author        string `json:"author"`
	PublishedDate string `json:"published_date"`
	Text          string `json:"text"`
	WordCount     int    `json:"word_count"`
}

type ContentsOutput struct {
	TotalDocuments int        `json:"total_documents"`
	Documents      []Document `json:"documents"`
}

type SimilarPaper struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	Author        string   `json:"author"`
	PublishedDate string   `json:"published_date"`
	Score         *float64 `json:"score"`
}

type SimilarOutput struct {
	SourceURL     string         `json:"source_url"`
	TotalResults  int            `json:"total_results"`
	SimilarPapers []SimilarPaper `json:"similar_papers"`
}

// Search runs a neural or keyword search.
func (a *Adapter) Search(ctx context.Context, args SearchArgs) *models.MCPToolResult {
	req, err := args.request()
	if err != nil {
		return failure(searchErrPrefix, err)
	}
	resp, err := a.provider.Search(ctx, req)
	if err != nil {
		return failure(searchErrPrefix, err)
	}

	out := SearchOutput{
		AutopromptString: optString(resp.AutopromptString),
		TotalResults:     len(resp.Results),
		Results:          make([]SearchResult, 0, len(resp.Results)),
	}
	for _, r := range resp.Results {
		highlights := r.Highlights
		if highlights == nil {
			highlights = []string{}
		}
		out.Results = append(out.Results, SearchResult{
			ID:            r.ID,
			Title:         r.Title,
			URL:           r.URL,
			Author:        orUnknown(r.Author),
			PublishedDate: orUnknown(r.PublishedDate),
			Score:         optScore(r.Score),
			Text:          optString(r.Text),
			Highlights:    highlights,
		})
	}
	return success(out)
}

func (args SearchArgs) request() (*exa.SearchRequest, error) {
	if strings.TrimSpace(args.Query) == "" {
		return nil, fmt.Errorf("query is required")
	}

	searchType := models.SearchType(args.Type)
	switch searchType {
	case "":
		searchType = models.SearchNeural
	case models.SearchNeural, models.SearchKeyword:
	default:
		return nil, fmt.Errorf("type must be %q or %q, got %q", models.SearchNeural, models.SearchKeyword, searchType)
	}

	numResults, err := intInRange("num_results", args.NumResults, defaultNumResults, 1, maxNumResults)
	if err != nil {
		return nil, err
	}
	for _, d := range []struct{ name, value string }{
		{"start_published_date", args.StartPublishedDate},
		{"end_published_date", args.EndPublishedDate},
	} {
		if d.value != "" && !validDate(d.value) {
			return nil, fmt.Errorf("%s must be an ISO 8601 date, got %q", d.name, d.value)
		}
	}

	req := &exa.SearchRequest{
		Query:              args.Query,
		Type:               string(searchType),
		NumResults:         numResults,
		UseAutoprompt:      args.UseAutoprompt == nil || *args.UseAutoprompt,
		IncludeDomains:     args.IncludeDomains,
		ExcludeDomains:     args.ExcludeDomains,
		StartPublishedDate: args.StartPublishedDate,
		EndPublishedDate:   args.EndPublishedDate,
	}

	if args.TextLengthWords != nil {
		if _, err := intInRange("text_length_words", args.TextLengthWords, 0, 50, 500); err != nil {
			return nil, err
		}
	}
	if args.IncludeText {
		chars := defaultSnippetChars
		if args.TextLengthWords != nil {
			chars = *args.TextLengthWords * charsPerWord
		}
		req.Contents = &exa.ContentsOptions{Text: &exa.TextOptions{MaxCharacters: chars}}
	}
	return req, nil
}

// GetContents fetches the text of up to ten documents.
func (a *Adapter) GetContents(ctx context.Context, args ContentsArgs) *models.MCPToolResult {
	if len(args.IDs) == 0 || len(args.IDs) > maxContentIDs {
		return failure(contentsErrPrefix, fmt.Errorf("ids must contain between 1 and %d entries, got %d", maxContentIDs, len(args.IDs)))
	}
	words, err := intInRange("text_length_words", args.TextLengthWords, defaultContentWords, 100, 2000)
	if err != nil {
		return failure(contentsErrPrefix, err)
	}

	resp, err := a.provider.GetContents(ctx, &exa.ContentsRequest{
		IDs:  args.IDs,
		Text: &exa.TextOptions{MaxCharacters: words * charsPerWord},
	})
	if err != nil {
		return failure(contentsErrPrefix, err)
	}

	out := ContentsOutput{
		TotalDocuments: len(resp.Results),
		Documents:      make([]Document, 0, len(resp.Results)),
	}
	for _, r := range resp.Results {
		out.Documents = append(out.Documents, Document{
			ID:            r.ID,
			URL:           r.URL,
			Title:         r.Title,
			Author:        orUnknown(r.Author),
			PublishedDate: orUnknown(r.PublishedDate),
			Text:          r.Text,
			WordCount:     len(strings.Fields(r.Text)),
		})
	}
	return success(out)
}

// FindSimilar finds documents similar to a URL.
func (a *Adapter) FindSimilar(ctx context.Context, args SimilarArgs) *models.MCPToolResult {
	if !validURL(args.URL) {
		return failure(similarErrPrefix, fmt.Errorf("url must be a valid absolute URL, got %q", args.URL))
	}
	numResults, err := intInRange("num_results", args.NumResults, defaultNumResults, 1, maxNumResults)
	if err != nil {
		return failure(similarErrPrefix, err)
	}

	resp, err := a.provider.FindSimilar(ctx, &exa.FindSimilarRequest{
		URL:                 args.URL,
		NumResults:          numResults,
		ExcludeSourceDomain: args.ExcludeSourceDomain,
	})
	if err != nil {
		return failure(similarErrPrefix, err)
	}

	out := SimilarOutput{
		SourceURL:     args.URL,
		TotalResults:  len(resp.Results),
		SimilarPapers: make([]SimilarPaper, 0, len(resp.Results)),
	}
	for _, r := range resp.Results {
		out.SimilarPapers = append(out.SimilarPapers, SimilarPaper{
			ID:            r.ID,
			Title:         r.Title,
			URL:           r.URL,
			Author:        orUnknown(r.Author),
			PublishedDate: orUnknown(r.PublishedDate),
			Score:         optScore(r.Score),
		})
	}
	return success(out)
}

func intInRange(name string, v *int, def, min, max int) (int, error) {
	if v == nil {
		return def, nil
	}
	if *v < min || *v > max {
		return 0, fmt.Errorf("%s must be between %d and %d, got %d", name, min, max, *v)
	}
	return *v, nil
}

func validDate(s string) bool {
	if _, err := time.Parse("2006-01-02", s); err == nil {
		return true
	}
	_, err := time.Parse(time.RFC3339, s)
	return err == nil
}

func validURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// optScore drops zero scores, which the provider uses for "not scored".
func optScore(s *float64) *float64 {
	if s == nil || *s == 0 {
		return nil
	}
	return s
}

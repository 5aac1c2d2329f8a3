package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	nurl "net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/go-shiori/go-readability"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/agac/browser-action-core/internal/agacerr"
	"github.com/agac/browser-action-core/internal/llm"
	"github.com/agac/browser-action-core/internal/model"
	"github.com/agac/browser-action-core/internal/page"
)

// mainContentSelector prefers a page's semantic main-content container
// over the whole body when one exists, compiled once with cascadia so
// selectContentSlice can match it directly against the parsed document
// without paying goquery's string-selector parsing cost per call.
var mainContentSelector = cascadia.MustCompile(`article, main, [role="main"], #content, .content`)

// strippedAttributes are removed from every element before markdown
// conversion; none of them carry content an extracted schema or
// article would ever need, and leaving them in just bloats the prompt
// sent to the LLM in schema mode.
var strippedAttributes = map[string]bool{
	"style": true, "class": true, "onclick": true, "onload": true,
	"onerror": true, "onmouseover": true, "onmouseout": true,
}

// stripInlineAttributes walks the parsed HTML tree and removes
// strippedAttributes from every element, re-rendering the result.
// Falls back to returning htmlContent unchanged if it does not parse.
func stripInlineAttributes(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return htmlContent
	}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && len(n.Attr) > 0 {
			kept := n.Attr[:0]
			for _, a := range n.Attr {
				if !strippedAttributes[strings.ToLower(a.Key)] {
					kept = append(kept, a)
				}
			}
			n.Attr = kept
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	var sb strings.Builder
	if err := html.Render(&sb, doc); err != nil {
		return htmlContent
	}
	return sb.String()
}

// maxHTMLSliceBytes caps the HTML excerpt sent to the LLM in schema
// mode; goquery selection keeps only content-bearing elements before
// this cap is even likely to matter.
const maxHTMLSliceBytes = 60_000

// ExtractInput is the input contract for one extract() call.
type ExtractInput struct {
	Schema    model.ExtractSchema
	ModelName string
	Timeout   time.Duration
}

// ArticleResult is the article-mode output, returned LLM-free.
type ArticleResult struct {
	Title       string
	Byline      string
	Content     string // readability's cleaned HTML
	TextContent string
}

// Extractor implements the extract handler (4.I).
type Extractor struct {
	Page *page.Page
	LLM  llm.Client
	Log  zerolog.Logger
}

// Extract runs schema-mode extraction: gather content, prompt the LLM,
// validate against the schema, and return the raw validated JSON
// payload.
func (e *Extractor) Extract(ctx context.Context, in ExtractInput) (json.RawMessage, error) {
	log := e.Log.With().Str("component", "extract_handler").Logger()

	timeout := in.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if err := e.Page.WaitForSettledDOM(ctx, timeout); err != nil {
		return nil, err
	}

	htmlContent, err := e.Page.Raw().Content()
	if err != nil {
		return nil, agacerr.NewCDPError("Page.content", err)
	}
	visibleText, err := e.Page.Raw().InnerText("body")
	if err != nil {
		log.Warn().Err(err).Msg("could not read body innerText, continuing with HTML slice only")
	}

	htmlSlice, err := selectContentSlice(htmlContent)
	if err != nil {
		log.Warn().Err(err).Msg("goquery content selection failed, falling back to raw HTML")
		htmlSlice = htmlContent
	}
	if len(htmlSlice) > maxHTMLSliceBytes {
		htmlSlice = htmlSlice[:maxHTMLSliceBytes]
	}

	markdown, err := md.ConvertString(htmlSlice)
	if err != nil {
		log.Warn().Err(err).Msg("html-to-markdown conversion failed, using raw HTML slice")
		markdown = htmlSlice
	}

	title, _ := e.Page.Raw().Title()
	url := e.Page.Raw().URL()

	prompt := buildExtractPrompt(in.Schema, title, url, visibleText, markdown)
	resp, err := e.LLM.Generate(ctx, llm.Request{
		System:      "You output only valid JSON matching the requested schema, no surrounding prose.",
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		Temperature: 0.0,
		MaxTokens:   2000,
		JSONMode:    true,
	})
	if err != nil {
		return nil, agacerr.NewActionFailed("extract", "", err)
	}

	payload := []byte(extractJSONPayload(resp.Text))
	if in.Schema.Validate != nil {
		if err := in.Schema.Validate(payload); err != nil {
			return nil, agacerr.NewSchemaValidationError(string(payload), err)
		}
	} else if err := validateAgainstFields(payload, in.Schema.Fields); err != nil {
		return nil, agacerr.NewSchemaValidationError(string(payload), err)
	}

	return json.RawMessage(payload), nil
}

// ExtractArticle runs article-mode extraction: no LLM call, just
// go-readability over the live page HTML.
func (e *Extractor) ExtractArticle(ctx context.Context, timeout time.Duration) (*ArticleResult, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if err := e.Page.WaitForSettledDOM(ctx, timeout); err != nil {
		return nil, err
	}

	htmlContent, err := e.Page.Raw().Content()
	if err != nil {
		return nil, agacerr.NewCDPError("Page.content", err)
	}
	pageURL, err := nurl.Parse(e.Page.Raw().URL())
	if err != nil {
		pageURL = &nurl.URL{}
	}

	article, err := readability.FromReader(strings.NewReader(htmlContent), pageURL)
	if err != nil {
		return nil, agacerr.NewActionFailed("extract_article", "", err)
	}

	return &ArticleResult{
		Title:       article.Title,
		Byline:      article.Byline,
		Content:     article.Content,
		TextContent: article.TextContent,
	}, nil
}

// selectContentSlice drops script/style/nav/footer noise via goquery
// before an HTML excerpt is ever sent to the LLM, preferring a
// semantic main-content container over the whole body when the page
// has one, and stripping presentation/event attributes that never
// carry extractable content.
func selectContentSlice(htmlContent string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, nav, footer, noscript, svg").Remove()

	target := doc.FindMatcher(mainContentSelector).First()
	if target.Length() == 0 {
		target = doc.Find("body")
	}
	out, err := target.Html()
	if err != nil {
		return "", err
	}
	return stripInlineAttributes(out), nil
}

func buildExtractPrompt(schema model.ExtractSchema, title, url, visibleText, markdown string) string {
	var sb strings.Builder
	sb.WriteString("Extract data matching this schema from the page content below.\n\nSchema fields:\n")
	for _, f := range schema.Fields {
		req := "optional"
		if f.Required {
			req = "required"
		}
		fmt.Fprintf(&sb, "- %s (%s, %s)\n", f.Name, f.Type, req)
	}
	sb.WriteString("\nTitle: ")
	sb.WriteString(title)
	sb.WriteString("\nURL: ")
	sb.WriteString(url)
	sb.WriteString("\n\nVisible text:\n")
	sb.WriteString(truncate(visibleText, 4000))
	sb.WriteString("\n\nPage content (markdown):\n")
	sb.WriteString(truncate(markdown, 8000))
	sb.WriteString("\n\nReturn a single JSON object with exactly the schema's fields.")
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// validateAgainstFields is the fallback schema check used when a
// caller supplies FieldSpecs without a custom Validate func: every
// Required field must be present and non-null.
func validateAgainstFields(payload []byte, fields []model.FieldSpec) error {
	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err != nil {
		return fmt.Errorf("payload is not a JSON object: %w", err)
	}
	for _, f := range fields {
		if !f.Required {
			continue
		}
		v, ok := obj[f.Name]
		if !ok || v == nil {
			return fmt.Errorf("missing required field %q", f.Name)
		}
	}
	return nil
}

package planner

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// Document is one ingested context document, normalized to markdown.
type Document struct {
	Name    string
	Content string
}

// maxDocumentBytes caps how much of a single document reaches the planning
// prompt.
const maxDocumentBytes = 64 * 1024

var excessiveLinesRe = regexp.MustCompile(`\n{4,}`)

// Ingester normalizes planning context documents. HTML goes through
// readability extraction and markdown conversion; everything else is treated
// as plain text.
type Ingester struct {
	converter *md.Converter
}

// NewIngester creates a document ingester.
func NewIngester() *Ingester {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &Ingester{converter: converter}
}

// IngestFile reads and normalizes one file.
func (g *Ingester) IngestFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", path, err)
	}
	return g.Ingest(filepath.Base(path), data)
}

// Ingest normalizes raw content into a document. The name is carried through
// to the prompt so the model can cite its sources.
func (g *Ingester) Ingest(name string, content []byte) (*Document, error) {
	var text string
	if looksLikeHTML(content) {
		converted, err := g.convertHTML(content)
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", name, err)
		}
		text = converted
	} else {
		text = string(content)
	}

	text = excessiveLinesRe.ReplaceAllString(text, "\n\n\n")
	text = strings.TrimSpace(text)
	if len(text) > maxDocumentBytes {
		text = text[:maxDocumentBytes]
	}

	return &Document{Name: name, Content: text}, nil
}

// convertHTML extracts the readable core of an HTML page and renders it as
// markdown. When readability finds nothing usable, the full page is converted
// instead.
func (g *Ingester) convertHTML(content []byte) (string, error) {
	source := string(content)

	// Readability resolves relative links against the page URL; local
	// documents get a placeholder.
	pageURL := &url.URL{Scheme: "file", Path: "/"}
	article, err := readability.FromReader(bytes.NewReader(content), pageURL)
	if err == nil && strings.TrimSpace(article.Content) != "" {
		source = article.Content
	}

	markdown, err := g.converter.ConvertString(source)
	if err != nil {
		return "", err
	}

	if title := htmlTitle(content); title != "" && !strings.HasPrefix(markdown, "# ") {
		markdown = "# " + title + "\n\n" + markdown
	}
	return markdown, nil
}

// looksLikeHTML sniffs for markup without trusting file extensions.
func looksLikeHTML(content []byte) bool {
	head := bytes.ToLower(bytes.TrimSpace(content))
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.HasPrefix(head, []byte("<!doctype html")) ||
		bytes.HasPrefix(head, []byte("<html")) ||
		bytes.Contains(head, []byte("<body")) ||
		bytes.Contains(head, []byte("<head"))
}

// htmlTitle extracts the document title, if any.
func htmlTitle(content []byte) string {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return ""
	}

	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}

package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/suzieq/ceo-office/internal/memory"
	"github.com/suzieq/ceo-office/internal/store"
)

// Rememberer stores ingested chunks.
type Rememberer interface {
	Remember(ctx context.Context, in memory.RememberInput) (*store.LongTermMemory, error)
}

// ErrBlockedAddress is returned when a fetch resolves to a loopback,
// private, link-local or otherwise non-public address.
var ErrBlockedAddress = errors.New("address not allowed for web ingestion")

// WebIngester fetches a page, extracts its visible text and remembers it in
// chunks tagged "web". Only public addresses are dialed; the check runs on
// the resolved IP, so redirects and DNS answers cannot reach internal hosts.
type WebIngester struct {
	client       *http.Client
	memory       Rememberer
	maxBodySize  int64
	userAgent    string
	allowPrivate bool
}

// NewWebIngester creates an ingester.
func NewWebIngester(mem Rememberer, timeout time.Duration, maxBodySize int64) *WebIngester {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if maxBodySize <= 0 {
		maxBodySize = 2 << 20
	}
	w := &WebIngester{
		memory:      mem,
		maxBodySize: maxBodySize,
		userAgent:   "SuzieQ/1.0",
	}
	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: func(network, address string, _ syscall.RawConn) error {
			if w.allowPrivate {
				return nil
			}
			return checkPublic(address)
		},
	}
	w.client = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: 10 * time.Second,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	return w
}

func checkPublic(address string) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast() {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, ip)
	}
	return nil
}

// Ingest implements Ingester.
func (w *WebIngester) Ingest(ctx context.Context, t WebIngestTask) (string, error) {
	url := strings.TrimSpace(t.URL)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", fmt.Errorf("url must start with http:// or https://")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", w.userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch %s: status %s", url, resp.Status)
	}

	body := io.LimitReader(resp.Body, w.maxBodySize)
	var text string
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		text, err = ExtractText(body)
	} else {
		var raw []byte
		raw, err = io.ReadAll(body)
		text = string(raw)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}

	chunks := memory.Chunk(text, memory.ChunkOptions{})
	if len(chunks) == 0 {
		return fmt.Sprintf("No text found at %s", url), nil
	}
	tags := append([]string{"web"}, t.Tags...)
	stored := 0
	for _, c := range chunks {
		if _, err := w.memory.Remember(ctx, memory.RememberInput{
			Content:    c,
			Tags:       tags,
			Source:     url,
			Department: t.Department,
		}); err != nil {
			return "", fmt.Errorf("remember chunk %d of %s: %w", stored+1, url, err)
		}
		stored++
	}
	slog.Info("Web page ingested", "url", url, "chunks", stored)
	return fmt.Sprintf("Ingested %d chunks from %s", stored, url), nil
}

// skipSelector matches elements whose text is never visible content.
const skipSelector = "script, style, noscript, template, svg, head, nav, footer"

var blockElements = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"li": true, "ul": true, "ol": true, "table": true, "tr": true,
	"blockquote": true, "pre": true, "br": true, "header": true,
}

// ExtractText returns the visible text of an HTML document with blank lines
// between block elements.
func ExtractText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}
	doc.Find(skipSelector).Remove()

	var sb strings.Builder
	pendingSpace := false
	separate := func() bool {
		return sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n\n")
	}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode && n.Data != "" {
			s := strings.Join(strings.Fields(n.Data), " ")
			if s == "" {
				pendingSpace = true
			} else {
				first, _ := utf8.DecodeRuneInString(n.Data)
				if separate() && (pendingSpace || unicode.IsSpace(first)) {
					sb.WriteByte(' ')
				}
				sb.WriteString(s)
				last, _ := utf8.DecodeLastRuneInString(n.Data)
				pendingSpace = unicode.IsSpace(last)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			if separate() {
				sb.WriteString("\n\n")
			}
			pendingSpace = false
		}
	}
	for _, n := range doc.Nodes {
		walk(n)
	}
	return strings.TrimSpace(sb.String()), nil
}

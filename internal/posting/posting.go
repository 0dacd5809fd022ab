// Package posting builds job records from public job posting pages.
package posting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// ErrNoPosting is returned when a page carries no usable job metadata.
var ErrNoPosting = errors.New("no job posting found")

const maxPageSize = 4 << 20

// Posting is the job metadata found on a page.
type Posting struct {
	Title       string
	Company     string
	Location    string
	Type        string
	Salary      string
	Description string
	Posted      string
	URL         string
}

// Fetcher downloads and parses posting pages.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a Fetcher. A nil client gets a 15s timeout client.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Fetcher{client: client}
}

// Fetch downloads rawURL and extracts its posting metadata.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Posting, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Posting{}, fmt.Errorf("invalid posting url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Posting{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		return Posting{}, fmt.Errorf("fetching posting: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Posting{}, fmt.Errorf("fetching posting: HTTP %d", resp.StatusCode)
	}

	p, err := Parse(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return Posting{}, err
	}
	p.URL = u.String()
	return p, nil
}

// Parse extracts posting metadata from an HTML document. schema.org
// JobPosting data wins over OpenGraph tags, which win over <title>.
func Parse(r io.Reader) (Posting, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Posting{}, fmt.Errorf("parsing html: %w", err)
	}

	var (
		p       Posting
		meta    = map[string]string{}
		title   string
		ldPosts []jobPostingLD
	)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				key := attr(n, "property")
				if key == "" {
					key = attr(n, "name")
				}
				if key != "" {
					meta[strings.ToLower(key)] = strings.TrimSpace(attr(n, "content"))
				}
			case "title":
				if title == "" && n.FirstChild != nil {
					title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "script":
				if strings.EqualFold(attr(n, "type"), "application/ld+json") && n.FirstChild != nil {
					ldPosts = append(ldPosts, decodeLD(n.FirstChild.Data)...)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if len(ldPosts) > 0 {
		ld := ldPosts[0]
		p.Title = ld.Title
		p.Company = ld.HiringOrganization.Name
		p.Location = ld.location()
		p.Type = ld.employmentType()
		p.Salary = ld.salary()
		p.Description = stripTags(ld.Description)
		p.Posted = ld.DatePosted
	}
	if p.Title == "" {
		p.Title = firstNonEmpty(meta["og:title"], meta["twitter:title"], title)
	}
	if p.Company == "" {
		p.Company = meta["og:site_name"]
	}
	if p.Description == "" {
		p.Description = firstNonEmpty(meta["og:description"], meta["description"])
	}

	if p.Title == "" {
		return Posting{}, ErrNoPosting
	}
	return p, nil
}

type jobPostingLD struct {
	Type               any    `json:"@type"`
	Title              string `json:"title"`
	Description        string `json:"description"`
	DatePosted         string `json:"datePosted"`
	EmploymentType     any    `json:"employmentType"`
	HiringOrganization struct {
		Name string `json:"name"`
	} `json:"hiringOrganization"`
	JobLocation json.RawMessage `json:"jobLocation"`
	BaseSalary  *struct {
		Currency string `json:"currency"`
		Value    struct {
			MinValue float64 `json:"minValue"`
			MaxValue float64 `json:"maxValue"`
			Value    float64 `json:"value"`
			UnitText string  `json:"unitText"`
		} `json:"value"`
	} `json:"baseSalary"`
}

type placeLD struct {
	Address struct {
		Locality string `json:"addressLocality"`
		Region   string `json:"addressRegion"`
		Country  any    `json:"addressCountry"`
	} `json:"address"`
}

func decodeLD(raw string) []jobPostingLD {
	raw = strings.TrimSpace(raw)
	var list []jobPostingLD
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return nil
		}
	} else {
		var graph struct {
			Graph []jobPostingLD `json:"@graph"`
		}
		if err := json.Unmarshal([]byte(raw), &graph); err == nil && len(graph.Graph) > 0 {
			list = graph.Graph
		} else {
			var one jobPostingLD
			if err := json.Unmarshal([]byte(raw), &one); err != nil {
				return nil
			}
			list = []jobPostingLD{one}
		}
	}

	var out []jobPostingLD
	for _, j := range list {
		if isType(j.Type, "JobPosting") {
			out = append(out, j)
		}
	}
	return out
}

func isType(v any, want string) bool {
	switch t := v.(type) {
	case string:
		return t == want
	case []any:
		for _, x := range t {
			if s, ok := x.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

func (j jobPostingLD) location() string {
	if len(j.JobLocation) == 0 {
		return ""
	}
	var places []placeLD
	if err := json.Unmarshal(j.JobLocation, &places); err != nil {
		var one placeLD
		if err := json.Unmarshal(j.JobLocation, &one); err != nil {
			return ""
		}
		places = []placeLD{one}
	}
	if len(places) == 0 {
		return ""
	}
	a := places[0].Address
	country, _ := a.Country.(string)
	var parts []string
	for _, s := range []string{a.Locality, a.Region, country} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

func (j jobPostingLD) employmentType() string {
	var raw []string
	switch t := j.EmploymentType.(type) {
	case string:
		raw = []string{t}
	case []any:
		for _, x := range t {
			if s, ok := x.(string); ok {
				raw = append(raw, s)
			}
		}
	}
	for i, s := range raw {
		words := strings.Split(strings.ToLower(strings.ReplaceAll(s, "_", "-")), "-")
		for k, w := range words {
			if w != "" {
				words[k] = strings.ToUpper(w[:1]) + w[1:]
			}
		}
		raw[i] = strings.Join(words, "-")
	}
	return strings.Join(raw, ", ")
}

func (j jobPostingLD) salary() string {
	if j.BaseSalary == nil {
		return ""
	}
	v := j.BaseSalary.Value
	var amount string
	switch {
	case v.MinValue > 0 && v.MaxValue > 0:
		amount = fmt.Sprintf("%.0f-%.0f", v.MinValue, v.MaxValue)
	case v.Value > 0:
		amount = fmt.Sprintf("%.0f", v.Value)
	default:
		return ""
	}
	out := strings.TrimSpace(j.BaseSalary.Currency + " " + amount)
	if v.UnitText != "" {
		out += " per " + strings.ToLower(v.UnitText)
	}
	return out
}

// stripTags reduces an HTML fragment to its text.
func stripTags(s string) string {
	if !strings.Contains(s, "<") {
		return strings.TrimSpace(s)
	}
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
			b.WriteByte(' ')
		}
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// Package posts loads blog posts from markdown files with YAML front matter
// and keeps an index of them current while the directory changes.
package posts

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// DateLayout is how post dates are shown.
const DateLayout = "January 2, 2006"

var (
	ErrNoFrontMatter = errors.New("missing front matter")
	ErrNotFound      = errors.New("post not found")
)

var frontMatterDelim = []byte("---")

type Author struct {
	Name    string `yaml:"name" json:"name"`
	Picture string `yaml:"picture" json:"picture"`
}

type Post struct {
	Slug       string    `json:"slug"`
	Title      string    `json:"title"`
	Date       time.Time `json:"date"`
	Excerpt    string    `json:"excerpt"`
	CoverImage string    `json:"coverImage"`
	Author     Author    `json:"author"`
	Body       string    `json:"-"`
}

type frontMatter struct {
	Title      string `yaml:"title"`
	Date       string `yaml:"date"`
	Excerpt    string `yaml:"excerpt"`
	CoverImage string `yaml:"coverImage"`
	Author     Author `yaml:"author"`
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	var err error
	for _, layout := range dateLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// FormattedDate renders the post date for display.
func (p Post) FormattedDate() string {
	if p.Date.IsZero() {
		return ""
	}
	return p.Date.Format(DateLayout)
}

// Parse splits a post file into front matter and body.
func Parse(slug string, data []byte) (Post, error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	if !bytes.HasPrefix(data, frontMatterDelim) {
		return Post{}, fmt.Errorf("parse %s: %w", slug, ErrNoFrontMatter)
	}
	rest := data[len(frontMatterDelim):]
	end := bytes.Index(rest, append([]byte("\n"), frontMatterDelim...))
	if end < 0 {
		return Post{}, fmt.Errorf("parse %s: %w", slug, ErrNoFrontMatter)
	}

	var fm frontMatter
	if err := yaml.Unmarshal(rest[:end], &fm); err != nil {
		return Post{}, fmt.Errorf("parse %s front matter: %w", slug, err)
	}
	date, err := parseDate(fm.Date)
	if err != nil {
		return Post{}, fmt.Errorf("parse %s date: %w", slug, err)
	}
	body := rest[end+1+len(frontMatterDelim):]
	return Post{
		Slug:       slug,
		Title:      fm.Title,
		Date:       date,
		Excerpt:    fm.Excerpt,
		CoverImage: fm.CoverImage,
		Author:     fm.Author,
		Body:       strings.TrimSpace(string(body)),
	}, nil
}

// IsPostFile reports whether name is a post source file.
func IsPostFile(name string) bool {
	return filepath.Ext(name) == ".md" && !strings.HasPrefix(name, ".")
}

// SlugOf returns the slug for a post file name.
func SlugOf(name string) string {
	return strings.TrimSuffix(filepath.Base(name), ".md")
}

// Index is the set of posts in a directory, newest first.
type Index struct {
	dir string

	mu     sync.RWMutex
	posts  []Post
	bySlug map[string]int
}

func NewIndex(dir string) *Index {
	return &Index{dir: dir, bySlug: make(map[string]int)}
}

func (x *Index) Dir() string { return x.dir }

// Reload rereads every post file. Files that fail to parse are skipped and
// reported in the returned error; the rest are still indexed.
func (x *Index) Reload() error {
	entries, err := os.ReadDir(x.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			x.replace(nil)
			return nil
		}
		return fmt.Errorf("read posts dir: %w", err)
	}

	var (
		loaded []Post
		errs   []error
	)
	for _, e := range entries {
		if e.IsDir() || !IsPostFile(e.Name()) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(x.dir, e.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		p, err := Parse(SlugOf(e.Name()), data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		loaded = append(loaded, p)
	}

	x.replace(loaded)
	return errors.Join(errs...)
}

func (x *Index) replace(loaded []Post) {
	sort.SliceStable(loaded, func(i, j int) bool {
		if loaded[i].Date.Equal(loaded[j].Date) {
			return loaded[i].Slug < loaded[j].Slug
		}
		return loaded[i].Date.After(loaded[j].Date)
	})
	bySlug := make(map[string]int, len(loaded))
	for i, p := range loaded {
		bySlug[p.Slug] = i
	}

	x.mu.Lock()
	x.posts = loaded
	x.bySlug = bySlug
	x.mu.Unlock()
}

// All returns the posts, newest first.
func (x *Index) All() []Post {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]Post, len(x.posts))
	copy(out, x.posts)
	return out
}

// Get returns the post with the given slug.
func (x *Index) Get(slug string) (Post, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	i, ok := x.bySlug[slug]
	if !ok {
		return Post{}, fmt.Errorf("%q: %w", slug, ErrNotFound)
	}
	return x.posts[i], nil
}

// Split returns the newest post as the hero and the rest. ok is false when
// there are no posts.
func (x *Index) Split() (hero Post, more []Post, ok bool) {
	all := x.All()
	if len(all) == 0 {
		return Post{}, nil, false
	}
	return all[0], all[1:], true
}

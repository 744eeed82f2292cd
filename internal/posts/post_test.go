package posts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const samplePost = `---
title: "Dynamic Routing and Static Generation"
excerpt: "Lorem ipsum dolor sit amet."
coverImage: "/assets/blog/dynamic-routing/cover.jpg"
date: "2020-03-16T05:35:07.322Z"
author:
  name: JJ Kasper
  picture: "/assets/blog/authors/jj.jpeg"
---

Body text here.
`

func writePost(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestParse(t *testing.T) {
	t.Parallel()
	p, err := Parse("dynamic-routing", []byte(samplePost))
	if err != nil {
		t.Fatal(err)
	}
	if p.Title != "Dynamic Routing and Static Generation" || p.Slug != "dynamic-routing" {
		t.Errorf("post = %+v", p)
	}
	if p.Author.Name != "JJ Kasper" || p.Author.Picture != "/assets/blog/authors/jj.jpeg" {
		t.Errorf("author = %+v", p.Author)
	}
	if p.Body != "Body text here." {
		t.Errorf("body = %q", p.Body)
	}
	if p.FormattedDate() != "March 16, 2020" {
		t.Errorf("date = %q", p.FormattedDate())
	}
}

func TestParseMissingFrontMatter(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"no front matter", "---\ntitle: x\nnever closed"} {
		if _, err := Parse("x", []byte(in)); !errors.Is(err, ErrNoFrontMatter) {
			t.Errorf("Parse(%q) err = %v", in, err)
		}
	}
}

func TestIndexReloadSortsNewestFirst(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writePost(t, dir, "old.md", "---\ntitle: Old\ndate: 2020-01-01T00:00:00Z\n---\nold")
	writePost(t, dir, "new.md", "---\ntitle: New\ndate: 2021-01-01T00:00:00Z\n---\nnew")
	writePost(t, dir, "notes.txt", "ignored")
	writePost(t, dir, "broken.md", "nothing")

	idx := NewIndex(dir)
	if err := idx.Reload(); err == nil {
		t.Error("expected error for broken post")
	}

	all := idx.All()
	if len(all) != 2 || all[0].Slug != "new" || all[1].Slug != "old" {
		t.Fatalf("all = %+v", all)
	}

	hero, more, ok := idx.Split()
	if !ok || hero.Slug != "new" || len(more) != 1 {
		t.Errorf("split = %v %v %v", hero.Slug, more, ok)
	}

	if _, err := idx.Get("old"); err != nil {
		t.Error(err)
	}
	if _, err := idx.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
}

func TestIndexMissingDir(t *testing.T) {
	t.Parallel()
	idx := NewIndex(filepath.Join(t.TempDir(), "none"))
	if err := idx.Reload(); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := idx.Split(); ok {
		t.Error("expected no posts")
	}
}

func TestWatcherReloadsOnChange(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	idx := NewIndex(dir)
	idx.Reload()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 4)
	if err := StartWatcher(ctx, idx, func() { changed <- struct{}{} }); err != nil {
		t.Fatal(err)
	}

	writePost(t, dir, "fresh.md", "---\ntitle: Fresh\n---\nhi")

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not fire")
	}
	if _, err := idx.Get("fresh"); err != nil {
		t.Error(err)
	}
}

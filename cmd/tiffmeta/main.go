// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

// Command tiffmeta prints the TIFF and EXIF metadata of the given files.
//
// Usage:
//
//	tiffmeta [-stream] [-json] [-j N] [-thumbnails DIR] [-jpeg] FILE...
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/bep/tiffmeta"
	"golang.org/x/sync/errgroup"
)

type config struct {
	stream        bool
	json          bool
	jpeg          bool
	concurrency   int
	thumbnailsDir string
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("tiffmeta: ")

	var cfg config
	flag.BoolVar(&cfg.stream, "stream", false, "read files as forward-only streams")
	flag.BoolVar(&cfg.json, "json", false, "print JSON")
	flag.BoolVar(&cfg.jpeg, "jpeg", false, "read the EXIF segment of JPEG files")
	flag.IntVar(&cfg.concurrency, "j", runtime.NumCPU(), "number of files to read concurrently")
	flag.StringVar(&cfg.thumbnailsDir, "thumbnails", "", "write embedded thumbnails to this directory")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: tiffmeta [flags] FILE...\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	results := readAll(cfg, flag.Args())

	var failed bool
	if cfg.json {
		views := make([]fileView, len(results))
		for i, res := range results {
			views[i] = newFileView(res)
			failed = failed || res.err != nil
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(views); err != nil {
			log.Fatal(err)
		}
	} else {
		w := bufio.NewWriter(os.Stdout)
		for _, res := range results {
			printResult(w, res)
			failed = failed || res.err != nil
		}
		if err := w.Flush(); err != nil {
			log.Fatal(err)
		}
	}

	if failed {
		os.Exit(1)
	}
}

type result struct {
	filename string
	md       *tiffmeta.Metadata
	err      error
}

// readAll reads the files concurrently and returns the results in argument order.
func readAll(cfg config, filenames []string) []result {
	results := make([]result, len(filenames))

	var g errgroup.Group
	g.SetLimit(max(cfg.concurrency, 1))

	for i, filename := range filenames {
		g.Go(func() error {
			md, err := readFile(cfg, filename)
			if err == nil && cfg.thumbnailsDir != "" {
				err = writeThumbnail(cfg.thumbnailsDir, filename, md)
			}
			results[i] = result{filename: filename, md: md, err: err}
			return nil
		})
	}
	g.Wait()

	return results
}

func readFile(cfg config, filename string) (*tiffmeta.Metadata, error) {
	opts := tiffmeta.Options{
		Warnf: func(format string, args ...any) {
			log.Printf("%s: %s", filename, fmt.Sprintf(format, args...))
		},
	}
	if cfg.thumbnailsDir != "" {
		opts.Handler = &tiffmeta.ThumbnailHandler{}
	}

	if !cfg.stream && !cfg.jpeg {
		return tiffmeta.ReadFile(filename, opts)
	}

	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if cfg.jpeg {
		return tiffmeta.ReadJPEG(r, opts)
	}
	return tiffmeta.Read(r, opts)
}

func writeThumbnail(dir, filename string, md *tiffmeta.Metadata) error {
	b, found := md.Thumbnail()
	if !found {
		return nil
	}
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	return os.WriteFile(filepath.Join(dir, base+".thumb.jpg"), b, 0o644)
}

func printResult(w io.Writer, res result) {
	fmt.Fprintf(w, "== %s\n", res.filename)
	if res.err != nil {
		fmt.Fprintf(w, "error: %v\n\n", res.err)
		return
	}
	for _, d := range res.md.Directories() {
		fmt.Fprintf(w, "[%s] offset %d\n", d.Namespace, d.Offset)
		for _, t := range d.Tags() {
			s, _ := d.StringValue(t.ID)
			fmt.Fprintf(w, "  %-34s %s\n", tiffmeta.TagName(d.Type, t.ID), s)
		}
		for _, err := range d.Errors() {
			fmt.Fprintf(w, "  error: %v\n", err)
		}
	}
	fmt.Fprintln(w)
}

type fileView struct {
	File        string    `json:"file"`
	ByteOrder   string    `json:"byteOrder,omitempty"`
	Directories []dirView `json:"directories,omitempty"`
	Error       string    `json:"error,omitempty"`
}

type dirView struct {
	Namespace string    `json:"namespace"`
	Type      string    `json:"type"`
	Offset    int64     `json:"offset"`
	Tags      []tagView `json:"tags"`
	Errors    []string  `json:"errors,omitempty"`
}

type tagView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Type  string `json:"type"`
	Count uint32 `json:"count"`
	Value any    `json:"value"`
}

func newFileView(res result) fileView {
	v := fileView{File: res.filename}
	if res.err != nil {
		v.Error = res.err.Error()
		return v
	}
	if bo := res.md.ByteOrder(); bo != nil {
		v.ByteOrder = bo.String()
	}
	for _, d := range res.md.Directories() {
		dv := dirView{
			Namespace: d.Namespace,
			Type:      string(d.Type),
			Offset:    d.Offset,
			Tags:      []tagView{},
		}
		for _, t := range d.Tags() {
			value := t.Value
			switch vv := value.(type) {
			case []byte:
				value = fmt.Sprintf("%x", vv)
			case float32, float64, []float32, []float64:
				// JSON has no NaN or Inf.
				value, _ = d.StringValue(t.ID)
			}
			dv.Tags = append(dv.Tags, tagView{
				ID:    fmt.Sprintf("0x%04x", t.ID),
				Name:  tiffmeta.TagName(d.Type, t.ID),
				Type:  t.Type.String(),
				Count: t.Count,
				Value: value,
			})
		}
		for _, err := range d.Errors() {
			dv.Errors = append(dv.Errors, err.Error())
		}
		v.Directories = append(v.Directories, dv)
	}
	return v
}

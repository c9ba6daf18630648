package tle

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var testLogger = slog.New(slog.NewJSONHandler(io.Discard, nil))

const (
	issCatalogText = "ISS (ZARYA)\n" +
		"1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9009\n" +
		"2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    01\n"
	starlinkCatalogText = "STARLINK-1007\n" +
		"1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9998\n" +
		"2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    07\n"
)

// serveText spins up a test server that answers every request with body.
func serveText(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// catalogNames parses raw catalog text and returns the set of satellite names.
func catalogNames(t *testing.T, data []byte) map[string]bool {
	t.Helper()
	entries, err := ParseCatalog(strings.NewReader(string(data)), testLogger)
	if err != nil {
		t.Fatalf("parsing fetched catalog: %v", err)
	}
	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		names[e.Name] = true
	}
	return names
}

func TestFetchSingleSource(t *testing.T) {
	srv := serveText(t, issCatalogText)

	data, err := NewFetcher(srv.URL, testLogger).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(data) != issCatalogText {
		t.Errorf("fetched %d bytes, want the %d byte catalog verbatim", len(data), len(issCatalogText))
	}
}

func TestFetchStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	_, err := NewFetcher(srv.URL, testLogger).Fetch(context.Background())
	if err == nil {
		t.Fatal("want an error for a 404 source, got nil")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error should name the status code, got: %v", err)
	}
}

// repeatReader emits an endless stream of one byte value.
type repeatReader byte

func (rr repeatReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(rr)
	}
	return len(p), nil
}

func TestFetchRejectsOversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// One MB past the cap; the copy stops early once the client bails.
		io.CopyN(w, repeatReader('x'), maxFetchBytes+1<<20)
	}))
	t.Cleanup(srv.Close)

	_, err := NewFetcher(srv.URL, testLogger).Fetch(context.Background())
	if err == nil {
		t.Fatal("want an error for an oversized catalog, got nil")
	}
	if !strings.Contains(err.Error(), "byte limit") {
		t.Errorf("error should mention the byte limit, got: %v", err)
	}
}

func TestFetchMergesExtraSources(t *testing.T) {
	primary := serveText(t, starlinkCatalogText)
	extra := serveText(t, issCatalogText)

	f := NewFetcher(primary.URL, testLogger, extra.URL)
	data, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	names := catalogNames(t, data)
	for _, want := range []string{"STARLINK-1007", "ISS (ZARYA)"} {
		if !names[want] {
			t.Errorf("merged catalog is missing %s (have %v)", want, names)
		}
	}
}

func TestFetchJoinsSourcesWithoutTrailingNewline(t *testing.T) {
	// Primary body ends mid-line; the fetcher must not glue the extra
	// source's name line onto the primary's last element line.
	primary := serveText(t, strings.TrimSuffix(starlinkCatalogText, "\n"))
	extra := serveText(t, issCatalogText)

	f := NewFetcher(primary.URL, testLogger, extra.URL)
	data, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	names := catalogNames(t, data)
	if len(names) != 2 || !names["ISS (ZARYA)"] {
		t.Errorf("want both satellites after the join, have %v", names)
	}
}

func TestFetchSurvivesExtraSourceOutage(t *testing.T) {
	primary := serveText(t, starlinkCatalogText)
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(down.Close)

	f := NewFetcher(primary.URL, testLogger, down.URL)
	data, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("a dead extra source must not fail the fetch: %v", err)
	}

	names := catalogNames(t, data)
	if len(names) != 1 || !names["STARLINK-1007"] {
		t.Errorf("want only the primary catalog, have %v", names)
	}
}

func TestFetchPrimaryFailureIsFatal(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(down.Close)
	extra := serveText(t, issCatalogText)

	f := NewFetcher(down.URL, testLogger, extra.URL)
	if _, err := f.Fetch(context.Background()); err == nil {
		t.Fatal("want an error when the primary source is down, got nil")
	}
}

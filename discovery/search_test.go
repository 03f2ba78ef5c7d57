package discovery

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/petal-labs/toolbridge/tool"
)

func TestSearchBookExample(t *testing.T) {
	client := &fakeClient{descriptors: catalog()}
	result, err := Search(context.Background(), client, "book")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	want := []string{"library.book_checkout", "openlibrary.search", "notes.create"}
	if got := result.Tools.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Search(book) = %v, want %v", got, want)
	}
}

func TestSearchRanksExactNameFirst(t *testing.T) {
	client := &fakeClient{descriptors: catalog()}
	result, err := Search(context.Background(), client, "Weather")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	names := result.Tools.Names()
	if len(names) != 2 || names[0] != "weather" || names[1] != "weather.get_forecast" {
		t.Fatalf("Search(Weather) = %v, want [weather weather.get_forecast]", names)
	}
}

func TestSearchTokenMatch(t *testing.T) {
	client := &fakeClient{descriptors: catalog()}
	result, err := Search(context.Background(), client, "forecast city")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if got := result.Tools.Names(); !reflect.DeepEqual(got, []string{"weather.get_forecast"}) {
		t.Fatalf("Search(forecast city) = %v", got)
	}

	none, _ := Search(context.Background(), client, "forecast spaceship")
	if len(none.Tools) != 0 {
		t.Fatalf("Search(forecast spaceship) = %v, want none", none.Tools.Names())
	}
}

func TestSearchEmptyQueryReturnsLoadPrefix(t *testing.T) {
	client := &fakeClient{descriptors: catalog()}
	loaded, _ := Load(context.Background(), client)
	result, err := Search(context.Background(), client, "", WithMaxResults(3))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if got, want := result.Tools.Names(), loaded.Tools.Names()[:3]; !reflect.DeepEqual(got, want) {
		t.Fatalf("Search(\"\") = %v, want %v", got, want)
	}
}

func TestSearchTruncatesAndMatches(t *testing.T) {
	descriptors := make([]tool.Descriptor, 0, 25)
	for i := 0; i < 25; i++ {
		descriptors = append(descriptors, tool.Descriptor{
			Name:        fmt.Sprintf("files.tool_%02d", i),
			Description: "works with files",
		})
	}
	client := &fakeClient{descriptors: descriptors}

	result, err := Search(context.Background(), client, "files")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(result.Tools) != DefaultMaxResults {
		t.Fatalf("len(Tools) = %d, want %d", len(result.Tools), DefaultMaxResults)
	}
	for _, translated := range result.Tools {
		if !Match(translated, "files") {
			t.Fatalf("%s does not match query", translated.Name())
		}
	}

	limited, _ := Search(context.Background(), client, "files", WithMaxResults(4))
	if len(limited.Tools) != 4 || limited.Tools[0].Name() != "files.tool_00" {
		t.Fatalf("Search(max 4) = %v", limited.Tools.Names())
	}
}

func TestSearchNonPositiveLimitIsEmpty(t *testing.T) {
	client := &fakeClient{descriptors: catalog()}
	for _, limit := range []int{0, -3} {
		result, err := Search(context.Background(), client, "book", WithMaxResults(limit))
		if err != nil {
			t.Fatalf("Search(max %d) error = %v", limit, err)
		}
		if len(result.Tools) != 0 {
			t.Fatalf("Search(max %d) = %v, want empty", limit, result.Tools.Names())
		}
	}
}

func TestSearchKeepsSkippedReport(t *testing.T) {
	descriptors := append(catalog(), tool.Descriptor{Name: ""})
	client := &fakeClient{descriptors: descriptors}
	result, err := Search(context.Background(), client, "book", WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(result.Skipped) != 1 {
		t.Fatalf("Skipped = %+v, want one entry", result.Skipped)
	}
}

func TestSearchCaseFoldsQueryAndText(t *testing.T) {
	client := &fakeClient{descriptors: []tool.Descriptor{
		{Name: "maps.street_lookup", Description: "Find a Straße by postcode"},
		{Name: "maps.route", Description: "Route between two points"},
	}}
	for _, query := range []string{"STRASSE", "  straße  ", "Find A STRASSE"} {
		result, err := Search(context.Background(), client, query)
		if err != nil {
			t.Fatalf("Search(%q) error = %v", query, err)
		}
		if got := result.Tools.Names(); !reflect.DeepEqual(got, []string{"maps.street_lookup"}) {
			t.Fatalf("Search(%q) = %v, want [maps.street_lookup]", query, got)
		}
	}
}

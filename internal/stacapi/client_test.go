package stacapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSearchParams_Body(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC)
	cloudMax := 10.0
	cloudMin := 0.0

	params := &SearchParams{
		Collections:   []string{DefaultCollection},
		Intersects:    json.RawMessage(`{"type":"Polygon","coordinates":[[[10,45],[11,45],[11,46],[10,45]]]}`),
		Start:         &start,
		End:           &end,
		CloudCoverMin: &cloudMin,
		CloudCoverMax: &cloudMax,
		Limit:         50,
	}

	data, err := params.Body()
	if err != nil {
		t.Fatalf("Body() error: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("invalid body: %v", err)
	}

	if body["datetime"] != "2023-01-01T00:00:00Z/2023-01-31T00:00:00Z" {
		t.Errorf("datetime = %v", body["datetime"])
	}
	if body["filter-lang"] != "cql2-json" {
		t.Errorf("filter-lang = %v", body["filter-lang"])
	}
	if body["limit"] != float64(50) {
		t.Errorf("limit = %v", body["limit"])
	}

	f, ok := body["filter"].(map[string]any)
	if !ok {
		t.Fatalf("filter missing: %s", data)
	}
	if f["op"] != "and" {
		t.Errorf("filter op = %v, want and", f["op"])
	}
	if !strings.Contains(string(data), `"property":"eo:cloud_cover"`) {
		t.Errorf("filter does not reference eo:cloud_cover: %s", data)
	}
}

func TestSearchParams_SingleBoundAndNoFilter(t *testing.T) {
	cloudMax := 10.0
	params := &SearchParams{Collections: []string{"c"}, CloudCoverMax: &cloudMax}
	if f := params.Filter(); f == nil {
		t.Fatal("expected a filter")
	}
	data, _ := params.Body()
	if !strings.Contains(string(data), `"op":"<="`) {
		t.Errorf("expected <= comparison: %s", data)
	}

	params = &SearchParams{Collections: []string{"c"}}
	if params.Filter() != nil {
		t.Error("expected no filter without bounds")
	}
	if params.Datetime() != "" {
		t.Error("expected empty datetime without bounds")
	}

	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	params.Start = &start
	if params.Datetime() != "2023-01-01T00:00:00Z/.." {
		t.Errorf("open interval = %s", params.Datetime())
	}
}

func TestSearchParams_Validate(t *testing.T) {
	if err := (&SearchParams{}).Validate(); err == nil {
		t.Error("expected error without collections")
	}
	start := time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := (&SearchParams{Collections: []string{"c"}, Start: &start, End: &end}).Validate(); err == nil {
		t.Error("expected error for inverted interval")
	}
}

func TestClient_SearchAll_Pagination(t *testing.T) {
	var server *httptest.Server
	var bodies []map[string]any
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		json.Unmarshal(raw, &body)
		bodies = append(bodies, body)

		w.Header().Set("Content-Type", "application/geo+json")
		if _, ok := body["token"]; !ok {
			json.NewEncoder(w).Encode(ItemCollection{
				Type:     "FeatureCollection",
				Features: []Feature{{ID: "one"}, {ID: "two"}},
				Links: []Link{{
					Rel:    "next",
					Href:   server.URL + "/search",
					Method: "POST",
					Body:   json.RawMessage(`{"token":"next:two"}`),
					Merge:  true,
				}},
			})
			return
		}
		json.NewEncoder(w).Encode(ItemCollection{Type: "FeatureCollection", Features: []Feature{{ID: "three"}}})
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", 5*time.Second)
	features, err := client.SearchAll(context.Background(), &SearchParams{Collections: []string{DefaultCollection}, Limit: 2}, 0)
	if err != nil {
		t.Fatalf("SearchAll failed: %v", err)
	}
	if len(features) != 3 || features[2].ID != "three" {
		t.Fatalf("unexpected features: %+v", features)
	}
	if len(bodies) != 2 {
		t.Fatalf("Expected 2 requests, got %d", len(bodies))
	}
	// The merged body keeps the original query.
	if bodies[1]["collections"] == nil || bodies[1]["token"] != "next:two" {
		t.Errorf("next body not merged: %v", bodies[1])
	}
}

func TestClient_Search_Non200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, 5*time.Second).Search(context.Background(), &SearchParams{Collections: []string{"c"}})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("Expected status error, got %v", err)
	}
}

func TestFeatureAccessors(t *testing.T) {
	f := Feature{Properties: map[string]any{"datetime": "2023-01-05T10:14:11Z", "eo:cloud_cover": 4.2}}
	if f.String("datetime") != "2023-01-05T10:14:11Z" {
		t.Error("String() failed")
	}
	if n, ok := f.Number("eo:cloud_cover"); !ok || n != 4.2 {
		t.Error("Number() failed")
	}
	if _, ok := f.Number("missing"); ok {
		t.Error("Number() should report missing")
	}
}

package overpass

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestQuery_DecodesElements(t *testing.T) {
	var gotQuery, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("data")
		gotUA = r.Header.Get("User-Agent")
		w.Write([]byte(`{"elements":[
			{"type":"node","id":1,"lat":48.84,"lon":2.37,"tags":{"name":"Paris Gare de Lyon"}},
			{"type":"way","id":2,"center":{"lat":48.5,"lon":2.5},"tags":{"name":"Eglise"}}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 100, 1, time.Second, "test-agent")
	ql := StationQuery(500, 48.8, 2.3)
	resp, err := c.Query(context.Background(), ql)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if gotQuery != ql {
		t.Errorf("server received query %q", gotQuery)
	}
	if gotUA != "test-agent" {
		t.Errorf("User-Agent = %q", gotUA)
	}
	if len(resp.Elements) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(resp.Elements))
	}
	if resp.Elements[0].Tags["name"] != "Paris Gare de Lyon" {
		t.Errorf("unexpected first element %+v", resp.Elements[0])
	}
	lat, lon, ok := resp.Elements[1].Position()
	if !ok || lat != 48.5 || lon != 2.5 {
		t.Errorf("way position = %f,%f ok=%v, expected center", lat, lon, ok)
	}
}

func TestQuery_GatewayTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 100, 1, time.Second, "").Query(context.Background(), "x")
	if !errors.Is(err, ErrGatewayTimeout) {
		t.Errorf("expected ErrGatewayTimeout, got %v", err)
	}
}

func TestQuery_OtherErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"too many requests", http.StatusTooManyRequests, ""},
		{"bad json", http.StatusOK, "<html>"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, 100, 1, time.Second, "").Query(context.Background(), "x")
			if err == nil || errors.Is(err, ErrGatewayTimeout) {
				t.Errorf("expected non-gateway error, got %v", err)
			}
		})
	}
}

func TestQuery_RateLimiterHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"elements":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0.01, 1, time.Second, "")
	if _, err := c.Query(context.Background(), "x"); err != nil {
		t.Fatalf("first query should use the burst: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Query(ctx, "x"); err == nil {
		t.Error("second query should fail waiting for the limiter")
	}
}

func TestQueryBuilders(t *testing.T) {
	station := StationQuery(1000, 48.1, 2.2)
	if !strings.Contains(station, `node["railway"="station"]["train"="yes"](around:1000,48.100000,2.200000)`) {
		t.Errorf("unexpected station query:\n%s", station)
	}
	if !strings.Contains(station, "out body 1;") {
		t.Error("station query should limit output to one element")
	}

	rail := RailQuery(10, 48.1, 2.2)
	if !strings.Contains(rail, `way["railway"="rail"](around:10,48.100000,2.200000)`) {
		t.Errorf("unexpected rail query:\n%s", rail)
	}

	vp := ViewpointQuery(3000, 48.1, 2.2)
	if strings.Count(vp, "(around:3000,48.100000,2.200000)") != 2 {
		t.Errorf("viewpoint query should search nodes and ways:\n%s", vp)
	}
	if !strings.Contains(vp, "out center;") {
		t.Error("viewpoint query should request way centers")
	}
}

func TestQueryURL(t *testing.T) {
	c := NewClient("https://overpass.example/api/interpreter", 1, 1, time.Second, "")
	got := c.QueryURL(`node["a"="b"];`)
	if !strings.HasPrefix(got, "https://overpass.example/api/interpreter?data=") {
		t.Errorf("QueryURL = %s", got)
	}
	if strings.Contains(got, `"`) {
		t.Error("query should be escaped")
	}
}

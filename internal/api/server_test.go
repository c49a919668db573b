package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"shr_parser/internal/geo"
	"shr_parser/internal/metrics"
	"shr_parser/internal/pipeline"
	"shr_parser/internal/storage"
)

const regionsGeoJSON = `{"type":"FeatureCollection","features":[
{"type":"Feature","properties":{"name":"Leningrad"},"geometry":{"type":"Polygon","coordinates":[[[28,58],[33,58],[33,61],[28,61],[28,58]]]}}
]}`

const telegramsCSV = `center,shr,dep,arr
Moscow,"SHR-ABC12
-ZZZZ -0705
-0900
-DEP/5957N02905E DOF/010225 TYP/BLA",-DEP,-ARR
Moscow,"SHR-XYZ
-0800 -DEP/4500N03800E DOF/010225 TYP/AER",-DEP,-ARR
Moscow,"SHR-ABC12
-ZZZZ -0705
-0900
-DEP/5957N02905E DOF/010225 TYP/BLA",-DEP,-ARR
`

func newTestServer(t *testing.T, cfg Config) (*Server, chi.Router) {
	t.Helper()
	store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "shr.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.CreateSchema(context.Background()); err != nil {
		t.Fatal(err)
	}

	m := metrics.New()
	svc := pipeline.New(store, geo.NewResolver(geo.CatalogOptions{}), pipeline.Options{
		Metrics: m,
		TempDir: t.TempDir(),
	})
	server := NewServer(svc, store, m, nil, cfg)
	server.now = func() time.Time { return time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC) }
	return server, server.Router()
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, name := range files {
		fw, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatal(err)
		}
		content := telegramsCSV
		if strings.HasSuffix(name, ".geojson") {
			content = regionsGeoJSON
		}
		if _, err := io.WriteString(fw, content); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func upload(t *testing.T, router http.Handler, path, field, name string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, map[string]string{field: name})
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

// seed loads the Leningrad region and the telegram sheet.
func seed(t *testing.T, router http.Handler) {
	t.Helper()
	if rec := upload(t, router, "/api/v1/regions/geojson", "file", "regions.geojson"); rec.Code != http.StatusOK {
		t.Fatalf("geojson upload: status %d: %s", rec.Code, rec.Body.String())
	}
	if rec := upload(t, router, "/api/v1/telegrams/upload", "file", "telegrams.csv"); rec.Code != http.StatusOK {
		t.Fatalf("telegram upload: status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, router := newTestServer(t, Config{Port: 8081})

	rec := get(router, "/api/v1/health")
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}

	var resp map[string]any
	decode(t, rec, &resp)
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", resp["status"])
	}
	if resp["time"] != "2025-02-01T12:00:00Z" {
		t.Errorf("time = %v", resp["time"])
	}
}

func TestAuthMiddleware(t *testing.T) {
	_, router := newTestServer(t, Config{
		Port:        8081,
		AuthEnabled: true,
		APIKeys:     []string{"test-key-123", "another-key"},
	})

	tests := []struct {
		name       string
		path       string
		apiKey     string
		keyHeader  string
		wantStatus int
	}{
		{
			name:       "no key",
			path:       "/api/v1/flights/drone-types",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid key",
			path:       "/api/v1/flights/drone-types",
			apiKey:     "wrong-key",
			keyHeader:  "X-API-Key",
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "valid key via X-API-Key",
			path:       "/api/v1/flights/drone-types",
			apiKey:     "test-key-123",
			keyHeader:  "X-API-Key",
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid key via Bearer",
			path:       "/api/v1/flights/drone-types",
			apiKey:     "another-key",
			keyHeader:  "Authorization",
			wantStatus: http.StatusOK,
		},
		{
			name:       "valid key via query",
			path:       "/api/v1/flights/drone-types?api_key=another-key",
			wantStatus: http.StatusOK,
		},
		{
			name:       "health needs no key",
			path:       "/api/v1/health",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.apiKey != "" {
				if tt.keyHeader == "Authorization" {
					req.Header.Set("Authorization", "Bearer "+tt.apiKey)
				} else {
					req.Header.Set(tt.keyHeader, tt.apiKey)
				}
			}

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestUploadTelegrams(t *testing.T) {
	_, router := newTestServer(t, Config{})

	if rec := upload(t, router, "/api/v1/regions/geojson", "file", "regions.geojson"); rec.Code != http.StatusOK {
		t.Fatalf("geojson upload: status %d: %s", rec.Code, rec.Body.String())
	}

	rec := upload(t, router, "/api/v1/telegrams/upload", "file", "telegrams.csv")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var sum pipeline.Summary
	decode(t, rec, &sum)
	if sum.TotalRecords != 3 || sum.Inserted != 2 || sum.Duplicates != 1 || sum.Unresolved != 1 {
		t.Errorf("summary = %+v", sum)
	}

	status := get(router, "/api/v1/telegrams/status")
	var counts map[string]int64
	decode(t, status, &counts)
	if counts["PROCESSED"] != 3 {
		t.Errorf("telegram status = %v", counts)
	}
}

func TestUploadValidation(t *testing.T) {
	_, router := newTestServer(t, Config{})

	tests := []struct {
		name       string
		path       string
		field      string
		file       string
		wantStatus int
	}{
		{"unsupported sheet", "/api/v1/telegrams/upload", "file", "telegrams.txt", http.StatusBadRequest},
		{"missing field", "/api/v1/telegrams/upload", "other", "telegrams.csv", http.StatusBadRequest},
		{"bad geojson extension", "/api/v1/regions/geojson", "file", "regions.txt", http.StatusBadRequest},
		{"shapefile parts missing", "/api/v1/regions/shapefile", "shp", "regions.shp", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := upload(t, router, tt.path, tt.field, tt.file)
			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestFlightEndpoints(t *testing.T) {
	_, router := newTestServer(t, Config{})
	seed(t, router)

	rec := get(router, "/api/v1/flights?sort=drone_type&order=desc")
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d: %s", rec.Code, rec.Body.String())
	}
	var page storage.FlightPage
	decode(t, rec, &page)
	if page.Total != 2 || len(page.Flights) != 2 {
		t.Fatalf("page = %+v", page)
	}
	if page.Flights[0].DroneType != "BLA" || page.Flights[1].DroneType != "AER" {
		t.Errorf("order = %s, %s", page.Flights[0].DroneType, page.Flights[1].DroneType)
	}

	filtered := get(router, "/api/v1/flights?drone_type=aer")
	var aer storage.FlightPage
	decode(t, filtered, &aer)
	if aer.Total != 1 {
		t.Errorf("drone_type filter total = %d", aer.Total)
	}

	id := page.Flights[0].ID
	one := get(router, "/api/v1/flights/"+itoa(id))
	if one.Code != http.StatusOK {
		t.Fatalf("get: status %d", one.Code)
	}
	var body map[string]any
	decode(t, one, &body)
	if body["drone_type"] != "BLA" || body["departure_region"] == nil {
		t.Errorf("flight = %v", body)
	}

	del := httptest.NewRequest(http.MethodDelete, "/api/v1/flights/"+itoa(id), nil)
	delRec := httptest.NewRecorder()
	router.ServeHTTP(delRec, del)
	if delRec.Code != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", delRec.Code)
	}
	if rec := get(router, "/api/v1/flights/"+itoa(id)); rec.Code != http.StatusNotFound {
		t.Errorf("get deleted: expected 404, got %d", rec.Code)
	}

	delRec = httptest.NewRecorder()
	router.ServeHTTP(delRec, httptest.NewRequest(http.MethodDelete, "/api/v1/flights/"+itoa(id), nil))
	if delRec.Code != http.StatusNotFound {
		t.Errorf("delete twice: expected 404, got %d", delRec.Code)
	}
}

func TestFlightEndpointErrors(t *testing.T) {
	_, router := newTestServer(t, Config{})

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/api/v1/flights/abc", http.StatusBadRequest},
		{"/api/v1/flights/0", http.StatusBadRequest},
		{"/api/v1/flights/99", http.StatusNotFound},
		{"/api/v1/flights?sort=telegram_text", http.StatusBadRequest},
		{"/api/v1/flights?page=x", http.StatusBadRequest},
		{"/api/v1/flights?from=01.02.2025", http.StatusBadRequest},
		{"/api/v1/flights?from=2025-02-10&to=2025-02-01", http.StatusBadRequest},
		{"/api/v1/flights?region_id=north", http.StatusBadRequest},
		{"/api/v1/regions/top?limit=0", http.StatusBadRequest},
		{"/api/v1/regions/resolve?lat=north&lon=29", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if rec := get(router, tt.path); rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestStatsEndpoints(t *testing.T) {
	_, router := newTestServer(t, Config{})
	seed(t, router)

	var stats storage.FlightStats
	decode(t, get(router, "/api/v1/flights/stats"), &stats)
	if stats.TotalFlights != 2 || stats.TodayFlights != 2 || stats.UniqueDroneTypes != 2 {
		t.Errorf("stats = %+v", stats)
	}

	var types []string
	decode(t, get(router, "/api/v1/flights/drone-types"), &types)
	if len(types) != 2 {
		t.Errorf("drone types = %v", types)
	}

	var byType []storage.DroneTypeCount
	decode(t, get(router, "/api/v1/flights/by-drone-type"), &byType)
	if len(byType) != 2 {
		t.Errorf("by drone type = %+v", byType)
	}

	var top TopRegionsResponse
	decode(t, get(router, "/api/v1/regions/top?from=2025-02-01&to=2025-02-28"), &top)
	if len(top.Regions) != 1 || top.Regions[0].Name != "Leningrad" || top.Regions[0].Flights != 1 {
		t.Errorf("top regions = %+v", top)
	}

	var defaults TopRegionsResponse
	decode(t, get(router, "/api/v1/regions/top"), &defaults)
	if defaults.From != "2025-01-02" || defaults.To != "2025-02-01" {
		t.Errorf("default period = %s..%s", defaults.From, defaults.To)
	}
}

func TestRegionEndpoints(t *testing.T) {
	_, router := newTestServer(t, Config{})
	seed(t, router)

	var regions []RegionResponse
	decode(t, get(router, "/api/v1/regions"), &regions)
	if len(regions) != 1 || regions[0].Name != "Leningrad" || regions[0].AreaKm2 <= 0 {
		t.Errorf("regions = %+v", regions)
	}

	var hit ResolveResponse
	decode(t, get(router, "/api/v1/regions/resolve?lat=59.95&lon=29.083333"), &hit)
	if hit.Region == nil || hit.Region.Name != "Leningrad" || hit.Coordinates != "59.950000,29.083333" {
		t.Errorf("resolve = %+v", hit)
	}

	var miss ResolveResponse
	decode(t, get(router, "/api/v1/regions/resolve?lat=45&lon=38"), &miss)
	if miss.Region != nil {
		t.Errorf("resolve outside = %+v", miss.Region)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/regions/reload", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var reload map[string]int
	decode(t, rec, &reload)
	if reload["regions"] != 1 {
		t.Errorf("reload = %v", reload)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, router := newTestServer(t, Config{})
	get(router, "/api/v1/health")

	rec := get(router, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `shr_http_requests_total{endpoint="/api/v1/health",method="GET",status_code="200"} 1`) {
		t.Errorf("request metric missing from:\n%s", rec.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	_, router := newTestServer(t, Config{AuthEnabled: true, APIKeys: []string{"k"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/flights", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

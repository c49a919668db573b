package api

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb"

	"shr_parser/internal/ingest"
	"shr_parser/internal/patterns"
	"shr_parser/internal/storage"
)

// DefaultReportDays is the period of the top-regions report when no dates are given.
const DefaultReportDays = 30

var errDateOrder = errors.New("to must not be before from")

func errInvalidDate(param string) error {
	return fmt.Errorf("invalid %s date (use YYYY-MM-DD)", param)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"time":    s.now().UTC().Format(time.RFC3339),
		"regions": s.svc.Resolver().Catalog().Len(),
	})
}

func (s *Server) handleUploadTelegrams(w http.ResponseWriter, r *http.Request) {
	file, hdr, ok := s.formFile(w, r, "file")
	if !ok {
		return
	}
	defer file.Close()

	sum, err := s.svc.ProcessFile(r.Context(), hdr.Filename, file)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleTelegramStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountTelegramsByStatus(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleListFlights(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter, err := dateRange(q.Get("from"), q.Get("to"), time.Time{}, time.Time{})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.DroneType = strings.ToUpper(strings.TrimSpace(q.Get("drone_type")))
	if v := q.Get("region_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid region_id")
			return
		}
		filter.RegionID = id
	}

	page := storage.Page{SortBy: q.Get("sort"), Desc: strings.EqualFold(q.Get("order"), "desc")}
	if page.Number, err = intParam(q.Get("page"), 0); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid page")
		return
	}
	if page.Size, err = intParam(q.Get("size"), storage.DefaultPageSize); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid size")
		return
	}

	res, err := s.store.ListFlights(r.Context(), filter, page)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetFlight(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	rec, err := s.store.GetFlight(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "Flight not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteFlight(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	deleted, err := s.store.DeleteFlight(r.Context(), id)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "Flight not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFlightStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.FlightStats(r.Context(), s.now().UTC())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDroneTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.store.DroneTypes(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if types == nil {
		types = []string{}
	}
	writeJSON(w, http.StatusOK, types)
}

func (s *Server) handleCountByDroneType(w http.ResponseWriter, r *http.Request) {
	from, to := s.defaultPeriod()
	filter, err := dateRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"), from, to)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	counts, err := s.store.CountByDroneType(r.Context(), filter.From, filter.To)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if counts == nil {
		counts = []storage.DroneTypeCount{}
	}
	writeJSON(w, http.StatusOK, counts)
}

// RegionResponse is one region without its geometry.
type RegionResponse struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	AreaKm2 float64 `json:"area_km2"`
}

func (s *Server) handleListRegions(w http.ResponseWriter, r *http.Request) {
	bs := s.svc.Resolver().Catalog().Boundaries()
	out := make([]RegionResponse, 0, len(bs))
	for _, b := range bs {
		out = append(out, RegionResponse{ID: b.ID, Name: b.Name, AreaKm2: b.AreaKm2})
	}
	writeJSON(w, http.StatusOK, out)
}

// TopRegionsResponse is the top-regions report for a period.
type TopRegionsResponse struct {
	From    string                `json:"from"`
	To      string                `json:"to"`
	Regions []storage.RegionCount `json:"regions"`
}

func (s *Server) handleTopRegions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := s.defaultPeriod()
	filter, err := dateRange(q.Get("from"), q.Get("to"), from, to)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := intParam(q.Get("limit"), 10)
	if err != nil || limit <= 0 || limit > 100 {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
		return
	}

	regions, err := s.store.TopRegions(r.Context(), filter.From, filter.To, limit)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if regions == nil {
		regions = []storage.RegionCount{}
	}
	writeJSON(w, http.StatusOK, TopRegionsResponse{
		From:    filter.From.Format(storage.DateLayout),
		To:      filter.To.Format(storage.DateLayout),
		Regions: regions,
	})
}

// ResolveResponse reports the region containing a coordinate.
type ResolveResponse struct {
	Coordinates string          `json:"coordinates"`
	Region      *RegionResponse `json:"region"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	c, err := patterns.ParseCanonical(q.Get("lat") + "," + q.Get("lon"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "lat and lon must be decimal degrees")
		return
	}

	resp := ResolveResponse{Coordinates: c.String()}
	if b, ok := s.svc.Resolver().Resolve(orb.Point{c.Lon, c.Lat}); ok {
		resp.Region = &RegionResponse{ID: b.ID, Name: b.Name, AreaKm2: b.AreaKm2}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUploadGeoJSON(w http.ResponseWriter, r *http.Request) {
	file, hdr, ok := s.formFile(w, r, "file")
	if !ok {
		return
	}
	defer file.Close()

	sum, err := s.svc.LoadGeoJSON(r.Context(), hdr.Filename, hdr.Size, file)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleUploadShapefile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	var u ingest.ShapefileUpload
	for field, dst := range map[string]**ingest.UploadPart{
		"shp": &u.SHP,
		"dbf": &u.DBF,
		"shx": &u.SHX,
		"cpg": &u.CPG,
	} {
		file, hdr, err := r.FormFile(field)
		if err != nil {
			continue // Validate reports missing required parts.
		}
		defer file.Close()
		*dst = &ingest.UploadPart{Name: hdr.Filename, Size: hdr.Size, Body: file}
	}

	sum, err := s.svc.LoadShapefileUpload(r.Context(), u)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleReloadRegions(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.RefreshCatalog(r.Context())
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"regions": n})
}

// formFile reads one multipart file field, writing a 400 response when absent.
func (s *Server) formFile(w http.ResponseWriter, r *http.Request, field string) (multipart.File, *multipart.FileHeader, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	file, hdr, err := r.FormFile(field)
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field "+strconv.Quote(field)+" is required")
		return nil, nil, false
	}
	return file, hdr, true
}

func (s *Server) defaultPeriod() (time.Time, time.Time) {
	to := patterns.DateOnly(s.now().UTC())
	return to.AddDate(0, 0, -DefaultReportDays), to
}

// dateRange parses optional YYYY-MM-DD bounds, falling back to the defaults.
func dateRange(fromStr, toStr string, from, to time.Time) (storage.FlightFilter, error) {
	var err error
	if fromStr != "" {
		if from, err = time.Parse(storage.DateLayout, fromStr); err != nil {
			return storage.FlightFilter{}, errInvalidDate("from")
		}
	}
	if toStr != "" {
		if to, err = time.Parse(storage.DateLayout, toStr); err != nil {
			return storage.FlightFilter{}, errInvalidDate("to")
		}
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return storage.FlightFilter{}, errDateOrder
	}
	return storage.FlightFilter{From: from, To: to}, nil
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid flight id")
		return 0, false
	}
	return id, true
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

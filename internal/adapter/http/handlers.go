package http

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bdu-carp/risk-dashboard/internal/domain"
	"github.com/bdu-carp/risk-dashboard/internal/pipeline"
	"github.com/bdu-carp/risk-dashboard/internal/render"
)

const contentTypeGeoJSON = "application/geo+json"

func (s *Server) routes(r chi.Router) {
	r.Get("/variants", s.listVariants)
	r.Get("/variants/{key}", s.getVariant)

	r.Route("/drought", func(r chi.Router) {
		r.Get("/options", s.droughtOptions)
		r.Get("/view", s.droughtView)
		r.Get("/years", s.yearRanking)
		r.Get("/zones.geojson", s.zoneFeatures)
		r.Get("/zones/{zoneID}", s.zoneDetail)
		r.Get("/locate", s.locate)
		r.Get("/charts/loss.{format}", s.lossChart)
	})

	r.Route("/city", func(r chi.Router) {
		r.Get("/categories", s.cityCategories)
		r.Get("/features.geojson", s.cityFeatures)
		r.Get("/{category}", s.cityView)
		r.Get("/{category}/chart.{format}", s.cityChart)
	})

	r.Get("/cache", s.cacheEntries)
	r.Delete("/cache", s.clearCache)
}

func (s *Server) listVariants(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.pipeline.Variants())
}

func (s *Server) getVariant(w http.ResponseWriter, r *http.Request) {
	v, err := s.pipeline.Variant(chi.URLParam(r, "key"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) droughtOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := s.pipeline.DroughtOptions(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (s *Server) droughtView(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	variant := q.Get("variant")
	if variant == "" {
		variant = s.opts.DefaultVariant
	}
	view, err := s.pipeline.DroughtView(r.Context(), variant, q.Get("level"), q.Get("metric"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) yearRanking(w http.ResponseWriter, r *http.Request) {
	var zone *int
	if raw := r.URL.Query().Get("zone"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: zone must be an integer, got %q", domain.ErrInvalidSelection, raw))
			return
		}
		zone = &n
	}
	ranking, err := s.pipeline.YearRanking(r.Context(), zone)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ranking)
}

func (s *Server) zoneFeatures(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	layer, err := s.pipeline.ZoneFeatures(r.Context(), q.Get("level"), q.Get("metric"), q.Get("color"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeLayer(w, r, layer)
}

func (s *Server) writeLayer(w http.ResponseWriter, r *http.Request, layer *pipeline.ZoneLayer) {
	fc, err := render.Features(layer.Table, layer.IDCol, layer.Color, layer.Range)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("X-Color-Property", layer.Color)
	writeBody(w, http.StatusOK, contentTypeGeoJSON, fc)
}

func (s *Server) zoneDetail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	detail, err := s.pipeline.ZoneDetail(r.Context(), q.Get("level"), q.Get("metric"), chi.URLParam(r, "zoneID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// locate accepts either lat and lon or a free-text place.
func (s *Server) locate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	level := q.Get("level")

	if place := strings.TrimSpace(q.Get("place")); place != "" {
		loc, err := s.pipeline.LocatePlace(r.Context(), level, place)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, loc)
		return
	}

	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil {
		s.writeError(w, r, fmt.Errorf("%w: lat and lon must be numbers, or pass place", domain.ErrInvalidSelection))
		return
	}
	loc, err := s.pipeline.Locate(r.Context(), level, pipeline.Point{Lat: lat, Lon: lon})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

func (s *Server) lossChart(w http.ResponseWriter, r *http.Request) {
	format, err := render.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	level := q.Get("level")
	bars, err := s.pipeline.LossBars(r.Context(), level)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := render.LossChart(&buf, format, level, q.Get("metric"), q.Get("mode") == "share", bars); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeImage(w, format, buf.Bytes())
}

func (s *Server) cityCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, pipeline.Categories())
}

func (s *Server) cityView(w http.ResponseWriter, r *http.Request) {
	variant := r.URL.Query().Get("variant")
	if variant == "" {
		variant = s.defaultCityVariant()
	}
	view, err := s.pipeline.CityView(r.Context(), variant, chi.URLParam(r, "category"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// defaultCityVariant is the first configured city dashboard.
func (s *Server) defaultCityVariant() string {
	for _, v := range s.pipeline.Variants() {
		if v.App == pipeline.AppCity {
			return v.Key
		}
	}
	return ""
}

func (s *Server) cityFeatures(w http.ResponseWriter, r *http.Request) {
	column := r.URL.Query().Get("column")
	if column == "" {
		column = "CRI"
	}
	layer, err := s.pipeline.CityFeatures(r.Context(), column)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeLayer(w, r, layer)
}

func (s *Server) cityChart(w http.ResponseWriter, r *http.Request) {
	format, err := render.ParseFormat(chi.URLParam(r, "format"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	panel, err := s.pipeline.CityIndex(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := render.IndexChart(&buf, format, &panel); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeImage(w, format, buf.Bytes())
}

func (s *Server) cacheEntries(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Entries())
}

func (s *Server) clearCache(w http.ResponseWriter, r *http.Request) {
	removed := s.cache.Clear()
	s.logger.Info("dataset cache cleared via api",
		"removed", removed,
		"remote_addr", r.RemoteAddr,
	)
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func writeImage(w http.ResponseWriter, format render.Format, body []byte) {
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	w.Write(body) //nolint:errcheck // client went away
}

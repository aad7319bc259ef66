package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/smukkama/weather-pipeline/internal/ingestion"
	"github.com/smukkama/weather-pipeline/internal/weather"
	"go.uber.org/zap"
)

// RollupPage is one page of every city's rollups
type RollupPage struct {
	Count    int                              `json:"count"`
	Next     *string                          `json:"next"`
	Previous *string                          `json:"previous"`
	Results  map[string][]weather.DailyRollup `json:"results"`
}

func (s *Server) handleGetRollups(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusNotFound, "invalid page")
			return
		}
		page = n
	}

	cities, err := s.store.ListCities(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	size := s.cfg.PageSize
	resp := RollupPage{Results: make(map[string][]weather.DailyRollup, len(cities))}
	for _, c := range cities {
		rollups, total, err := s.store.ListRollups(r.Context(), c.Name, size, (page-1)*size)
		if err != nil {
			s.respondErr(w, r, err)
			return
		}
		if rollups == nil {
			rollups = []weather.DailyRollup{}
		}
		resp.Results[c.Name] = rollups
		if total > resp.Count {
			resp.Count = total
		}
	}

	// page 1 is always valid, even with nothing stored
	pages := (resp.Count + size - 1) / size
	if page > 1 && page > pages {
		respondError(w, http.StatusNotFound, "invalid page")
		return
	}
	if page < pages {
		resp.Next = pageLink(r, page+1)
	}
	if page > 1 {
		resp.Previous = pageLink(r, page-1)
	}

	respondJSON(w, http.StatusOK, resp)
}

func pageLink(r *http.Request, page int) *string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	q := r.URL.Query()
	q.Set("page", strconv.Itoa(page))
	u := url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path, RawQuery: q.Encode()}
	link := u.String()
	return &link
}

func (s *Server) handleCurrentWeather(w http.ResponseWriter, r *http.Request) {
	latest, err := s.store.Latest(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	if !s.ingestor.State().Healthy() || s.missingCity(latest) {
		s.runCycle(r)
		if latest, err = s.store.Latest(r.Context()); err != nil {
			s.respondErr(w, r, err)
			return
		}
	}

	if !s.ingestor.State().Healthy() && len(latest) == 0 {
		respondError(w, http.StatusBadRequest, "server is not connected to the weather station")
		return
	}
	if latest == nil {
		latest = []weather.Observation{}
	}
	respondJSON(w, http.StatusOK, latest)
}

func (s *Server) missingCity(latest []weather.Observation) bool {
	seen := make(map[string]bool, len(latest))
	for _, o := range latest {
		seen[o.City] = true
	}
	for _, c := range s.ingestor.Cities() {
		if !seen[c.Name] {
			return true
		}
	}
	return false
}

// runCycle runs one on-demand cycle; its outcome is reflected in the
// connection state and the store.
func (s *Server) runCycle(r *http.Request) {
	result, err := s.ingestor.RunCycle(r.Context())
	if err != nil {
		s.logger.Warn("On-demand cycle failed", zap.String("path", r.URL.Path), zap.Error(err))
		return
	}
	s.logger.Info("On-demand cycle finished",
		zap.String("cycle_id", result.CycleID),
		zap.Strings("failed", result.Failed))
}

func (s *Server) handleGetCities(w http.ResponseWriter, r *http.Request) {
	cities, err := s.store.ListCities(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if cities == nil {
		cities = []weather.City{}
	}
	respondJSON(w, http.StatusOK, cities)
}

func (s *Server) handleConnectionStatus(w http.ResponseWriter, r *http.Request) {
	if !s.ingestor.State().Healthy() {
		s.runCycle(r)
	}
	respondJSON(w, http.StatusOK, s.ingestor.State().Status())
}

type intervalRequest struct {
	Interval json.Number `json:"interval" validate:"required"`
}

type intervalResponse struct {
	Interval int `json:"interval"`
}

func (s *Server) handleGetInterval(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, intervalResponse{Interval: s.intervals.Interval()})
}

func (s *Server) handleSetInterval(w http.ResponseWriter, r *http.Request) {
	var req intervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "interval must be an integer")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "interval value is required")
		return
	}

	minutes, err := strconv.Atoi(strings.TrimSpace(req.Interval.String()))
	if err != nil {
		respondError(w, http.StatusBadRequest, "interval must be an integer")
		return
	}

	if err := s.intervals.SetInterval(r.Context(), minutes); err != nil {
		s.respondErr(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, intervalResponse{Interval: minutes})
}

func (s *Server) handleGetThresholds(w http.ResponseWriter, r *http.Request) {
	cities, err := s.store.ListCities(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	resp := make(map[string]map[weather.RuleKind][]weather.ThresholdRule, len(cities))
	for _, c := range cities {
		byKind := make(map[weather.RuleKind][]weather.ThresholdRule, len(weather.RuleKinds))
		for _, k := range weather.RuleKinds {
			byKind[k] = []weather.ThresholdRule{}
		}
		resp[c.Name] = byKind
	}

	for _, kind := range weather.RuleKinds {
		rules, err := s.store.ListRules(r.Context(), kind)
		if err != nil {
			s.respondErr(w, r, err)
			return
		}
		for _, rule := range rules {
			if byKind, ok := resp[rule.City]; ok {
				byKind[kind] = append(byKind[kind], rule)
			}
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

type setThresholdsRequest struct {
	City        string                 `json:"city" validate:"required"`
	Temperature map[string]interface{} `json:"temperature"`
	Humidity    map[string]interface{} `json:"humidity"`
	WindSpeed   map[string]interface{} `json:"wind_speed"`
	Condition   map[string]interface{} `json:"condition"`
}

func (req setThresholdsRequest) patches() map[weather.RuleKind]map[string]interface{} {
	return map[weather.RuleKind]map[string]interface{}{
		weather.KindTemperature: req.Temperature,
		weather.KindHumidity:    req.Humidity,
		weather.KindWindSpeed:   req.WindSpeed,
		weather.KindCondition:   req.Condition,
	}
}

func (s *Server) handleSetThresholds(w http.ResponseWriter, r *http.Request) {
	var req setThresholdsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid data provided for thresholds")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "city name is required")
		return
	}

	ctx := r.Context()
	if _, err := s.store.GetCity(ctx, req.City); err != nil {
		s.respondErr(w, r, err)
		return
	}

	// validate every patch before writing any of them
	patches := req.patches()
	rules := make(map[weather.RuleKind]weather.ThresholdRule)
	for _, kind := range weather.RuleKinds {
		patch := patches[kind]
		if patch == nil {
			continue
		}

		rule, err := s.store.GetRule(ctx, req.City, kind)
		var nf *weather.NotFoundError
		switch {
		case errors.As(err, &nf):
			rule = weather.ThresholdRule{City: req.City, Kind: kind, ConsecutiveUpdates: weather.DefaultConsecutiveUpdates}
		case err != nil:
			s.respondErr(w, r, err)
			return
		}

		if err := applyPatch(&rule, patch); err != nil {
			s.respondErr(w, r, err)
			return
		}
		if err := rule.Validate(); err != nil {
			s.respondErr(w, r, err)
			return
		}
		rules[kind] = rule
	}

	resp := make(map[weather.RuleKind]weather.ThresholdRule, len(rules))
	for _, kind := range weather.RuleKinds {
		rule, ok := rules[kind]
		if !ok {
			continue
		}
		stored, err := s.store.UpsertRule(ctx, rule)
		if err != nil {
			s.respondErr(w, r, err)
			return
		}
		resp[kind] = stored
	}

	s.logger.Info("Thresholds updated", zap.String("city", req.City), zap.Int("kinds", len(resp)))
	respondJSON(w, http.StatusOK, resp)
}

// applyPatch merges the fields present in patch into rule. Falsy values
// (null, "", 0, false) clear a bound or condition.
func applyPatch(rule *weather.ThresholdRule, patch map[string]interface{}) error {
	for field, value := range patch {
		switch field {
		case "min_threshold", "max_threshold":
			if !rule.Kind.Numeric() {
				return &weather.ValidationError{Field: field, Message: fmt.Sprintf("%s thresholds do not take bounds", rule.Kind)}
			}
			bound, err := parseBound(field, value)
			if err != nil {
				return err
			}
			if field == "min_threshold" {
				rule.Min = bound
			} else {
				rule.Max = bound
			}
		case "condition":
			if isFalsy(value) {
				rule.Condition = ""
				continue
			}
			cond, ok := value.(string)
			if !ok {
				return &weather.ValidationError{Field: field, Message: "condition must be a string"}
			}
			rule.Condition = strings.TrimSpace(cond)
		case "consecutive_updates":
			if isFalsy(value) {
				rule.ConsecutiveUpdates = weather.DefaultConsecutiveUpdates
				continue
			}
			n, err := parseInt(value)
			if err != nil {
				return &weather.ValidationError{Field: field, Message: "consecutive_updates must be an integer"}
			}
			rule.ConsecutiveUpdates = n
		case "id", "city":
			// identity comes from the request, not the patch
		default:
			return &weather.ValidationError{Field: field, Message: fmt.Sprintf("unknown threshold field %q", field)}
		}
	}
	return nil
}

func isFalsy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case float64:
		return t == 0
	case bool:
		return !t
	default:
		return false
	}
}

func parseBound(field string, v interface{}) (*float64, error) {
	if isFalsy(v) {
		return nil, nil
	}
	switch t := v.(type) {
	case float64:
		return &t, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err == nil {
			return &f, nil
		}
	}
	return nil, &weather.ValidationError{Field: field, Message: fmt.Sprintf("%s must be a number", field)}
}

func parseInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case float64:
		if t != float64(int(t)) {
			return 0, fmt.Errorf("not an integer: %v", t)
		}
		return int(t), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(t))
	default:
		return 0, fmt.Errorf("not an integer: %v", t)
	}
}

type deleteThresholdRequest struct {
	Type string `json:"type" validate:"required,oneof=temperature humidity wind_speed condition"`
	ID   int64  `json:"id" validate:"required,gt=0"`
}

type deleteThresholdBody struct {
	Type string      `json:"type"`
	ID   json.Number `json:"id"`
}

func (s *Server) handleDeleteThreshold(w http.ResponseWriter, r *http.Request) {
	req, err := parseDeleteRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "type must be one of temperature, humidity, wind_speed, condition and id is required")
		return
	}

	kind, err := weather.ParseRuleKind(req.Type)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if err := s.store.DeleteRule(r.Context(), kind, req.ID); err != nil {
		s.respondErr(w, r, err)
		return
	}

	s.logger.Info("Threshold deleted", zap.String("type", req.Type), zap.Int64("id", req.ID))
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// parseDeleteRequest reads {type, id} from the JSON body, falling back to
// the query string when the body is empty
func parseDeleteRequest(r *http.Request) (deleteThresholdRequest, error) {
	var body deleteThresholdBody

	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		return deleteThresholdRequest{}, errors.New("failed to read request body")
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return deleteThresholdRequest{}, errors.New("invalid request body")
		}
	} else {
		q := r.URL.Query()
		body.Type = q.Get("type")
		body.ID = json.Number(q.Get("id"))
	}

	req := deleteThresholdRequest{Type: body.Type}
	if body.ID != "" {
		id, err := body.ID.Int64()
		if err != nil {
			return deleteThresholdRequest{}, errors.New("id must be an integer")
		}
		req.ID = id
	}
	return req, nil
}

var _ Ingestor = (*ingestion.Orchestrator)(nil)

package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/swaggo/swag"

	"github.com/custodia-labs/sercha-catalog/internal/core/domain"
)

// maxEventBytes bounds lifecycle event bodies.
const maxEventBytes = 8 << 20

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid query: size must be between 1 and 10000"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// ReadyResponse reports readiness per dependency
// @Description Readiness per dependency
type ReadyResponse struct {
	Status string            `json:"status" example:"ready"`
	Checks map[string]string `json:"checks,omitempty"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// SuggestResponse wraps suggestion hits
type SuggestResponse struct {
	Suggestions []domain.EntityHit `json:"suggestions"`
}

// reindexRequest is the body of POST /admin/reindex
type reindexRequest struct {
	EntityTypes []string `json:"entityTypes"`
	Recreate    bool     `json:"recreate"`
}

// reindexReferencingRequest is the body of POST /admin/reindex-referencing
type reindexReferencingRequest struct {
	MatchField string                 `json:"matchField" example:"tags.tagFQN"`
	Entity     domain.EntityReference `json:"entity"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the liveness status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Pings the database, redis and the index backend
// @Tags         Health
// @Produce      json
// @Success      200  {object}  ReadyResponse
// @Failure      503  {object}  ReadyResponse
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := ReadyResponse{Status: "ready", Checks: make(map[string]string, len(s.checks))}
	status := http.StatusOK
	for name, check := range s.checks {
		if check == nil {
			continue
		}
		if err := check.Ping(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "not ready"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, VersionResponse{Version: s.version})
}

func (s *Server) handleSwagger(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		writeError(w, http.StatusNotFound, "api documentation not registered")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(doc))
}

// Event endpoint

// handleEvent godoc
// @Summary      Apply a lifecycle event
// @Description  Indexes an entity create, update, soft delete, restore, delete or lineage change
// @Tags         Events
// @Accept       json
// @Produce      json
// @Param        request  body      domain.EntityEvent  true  "Lifecycle event"
// @Success      200      {object}  StatusResponse
// @Failure      400      {object}  ErrorResponse  "Invalid event"
// @Failure      500      {object}  ErrorResponse  "Index write failed"
// @Failure      503      {object}  ErrorResponse  "Index backend unavailable"
// @Router       /events [post]
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev domain.EntityEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes)).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := ev.Validate(); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	ctx := r.Context()
	var err error
	switch ev.EventType {
	case domain.EventEntityCreated:
		err = s.indexService.IndexEntity(ctx, ev.Entity)
	case domain.EventEntityUpdated:
		err = s.indexService.UpdateEntity(ctx, ev.Entity)
	case domain.EventEntitySoftDeleted:
		err = s.indexService.SoftDeleteOrRestore(ctx, ev.Entity, true)
	case domain.EventEntityRestored:
		err = s.indexService.SoftDeleteOrRestore(ctx, ev.Entity, false)
	case domain.EventEntityDeleted:
		err = s.indexService.DeleteEntity(ctx, ev.Entity)
	case domain.EventEntityDeletedByPrefix:
		err = s.indexService.DeleteByFqnPrefix(ctx, ev.Entity)
	case domain.EventLineageAdded:
		err = s.indexService.AddLineage(ctx, *ev.Edge)
	case domain.EventLineageDeleted:
		err = s.indexService.DeleteLineage(ctx, *ev.Edge)
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}

// Search endpoints

// handleSearch godoc
// @Summary      Search entities
// @Description  Runs a paginated query against an entity type or alias (default all)
// @Tags         Search
// @Produce      json
// @Param        q           query     string  false  "Free text; * matches everything"
// @Param        index       query     string  false  "Entity type or alias"
// @Param        filter      query     string  false  "JSON filter expression"
// @Param        sort_field  query     string  false  "Sort field"
// @Param        sort_order  query     string  false  "asc or desc"
// @Param        from        query     int     false  "Offset"
// @Param        size        query     int     false  "Page size"
// @Param        deleted     query     bool    false  "Restrict to the soft-delete state"
// @Success      200         {object}  domain.SearchPage
// @Failure      400         {object}  ErrorResponse  "Invalid query"
// @Failure      503         {object}  ErrorResponse  "Index backend unavailable"
// @Router       /search/query [get]
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := domain.SearchQuery{
		Query:     q.Get("q"),
		Index:     q.Get("index"),
		Filter:    q.Get("filter"),
		SortField: q.Get("sort_field"),
		SortOrder: domain.SortOrder(q.Get("sort_order")),
	}
	var err error
	if query.From, err = intParam(q, "from", 0); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if query.Size, err = intParam(q, "size", 0); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if q.Has("deleted") {
		deleted, err := boolParam(q, "deleted")
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		query.Deleted = &deleted
	}

	page, err := s.searchService.Search(r.Context(), query)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleSuggest godoc
// @Summary      Suggest entities
// @Description  Returns entities whose name or FQN starts with the prefix
// @Tags         Search
// @Produce      json
// @Param        q      query     string  true   "Prefix"
// @Param        index  query     string  false  "Entity type or alias"
// @Param        size   query     int     false  "Number of suggestions"
// @Success      200    {object}  SuggestResponse
// @Failure      400    {object}  ErrorResponse  "Invalid query"
// @Router       /search/suggest [get]
func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	size, err := intParam(q, "size", 0)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	hits, err := s.searchService.Suggest(r.Context(), domain.SuggestQuery{
		Prefix: q.Get("q"),
		Index:  q.Get("index"),
		Size:   size,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if hits == nil {
		hits = []domain.EntityHit{}
	}
	writeJSON(w, http.StatusOK, SuggestResponse{Suggestions: hits})
}

// Lineage endpoints

// handleLineage godoc
// @Summary      Entity lineage
// @Description  Walks upstream and downstream edges from an entity
// @Tags         Lineage
// @Produce      json
// @Param        fqn              query     string  true   "Entity FQN"
// @Param        type             query     string  false  "Entity type or alias"
// @Param        upstreamDepth    query     int     false  "Upstream depth"
// @Param        downstreamDepth  query     int     false  "Downstream depth"
// @Param        query_filter     query     string  false  "JSON filter applied to nodes"
// @Param        includeDeleted   query     bool    false  "Include soft-deleted nodes"
// @Success      200              {object}  domain.LineageResponse
// @Failure      400              {object}  ErrorResponse  "Invalid query"
// @Failure      404              {object}  ErrorResponse  "Entity not found"
// @Router       /lineage [get]
func (s *Server) handleLineage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := domain.LineageRequest{
		FQN:        q.Get("fqn"),
		EntityType: q.Get("type"),
		Filter:     q.Get("query_filter"),
	}
	var err error
	if req.UpstreamDepth, err = intParam(q, "upstreamDepth", 1); err == nil {
		if req.DownstreamDepth, err = intParam(q, "downstreamDepth", 1); err == nil {
			req.IncludeDeleted, err = boolParam(q, "includeDeleted")
		}
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	graph, err := s.lineageService.Lineage(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, graph.Response())
}

// handleDataQualityLineage godoc
// @Summary      Data-quality lineage
// @Description  Returns the upstream paths leading to entities with failing test cases
// @Tags         Lineage
// @Produce      json
// @Param        fqn             query     string  true   "Entity FQN"
// @Param        upstreamDepth   query     int     false  "Upstream depth"
// @Param        query_filter    query     string  false  "JSON filter applied to nodes"
// @Param        includeDeleted  query     bool    false  "Include soft-deleted nodes"
// @Success      200             {object}  domain.LineageResponse
// @Failure      400             {object}  ErrorResponse  "Invalid query"
// @Failure      404             {object}  ErrorResponse  "Entity not found"
// @Router       /lineage/data-quality [get]
func (s *Server) handleDataQualityLineage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := domain.DataQualityRequest{
		FQN:    q.Get("fqn"),
		Filter: q.Get("query_filter"),
	}
	var err error
	if req.UpstreamDepth, err = intParam(q, "upstreamDepth", 1); err == nil {
		req.IncludeDeleted, err = boolParam(q, "includeDeleted")
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	graph, err := s.lineageService.DataQualityLineage(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, graph.Response())
}

// Index admin endpoints

// handleIndexStatus godoc
// @Summary      Index status
// @Description  Reports backend health and the existence of every mapped index
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  driving.IndexAdminStatus
// @Router       /admin/indexes [get]
func (s *Server) handleIndexStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.adminService.Status(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleCreateIndexes godoc
// @Summary      Create indexes
// @Description  Creates the missing indices of the given entity types (all when omitted)
// @Tags         Admin
// @Produce      json
// @Param        entityTypes  query     string  false  "Comma-separated entity types"
// @Success      200          {array}   domain.IndexStatus
// @Failure      400          {object}  ErrorResponse  "Unknown entity type"
// @Router       /admin/indexes [post]
func (s *Server) handleCreateIndexes(w http.ResponseWriter, r *http.Request) {
	s.indexAdmin(w, r, s.adminService.CreateIndexes)
}

// handleUpdateIndexes godoc
// @Summary      Update indexes
// @Description  Pushes the current mappings to existing indices
// @Tags         Admin
// @Produce      json
// @Param        entityTypes  query     string  false  "Comma-separated entity types"
// @Success      200          {array}   domain.IndexStatus
// @Router       /admin/indexes [put]
func (s *Server) handleUpdateIndexes(w http.ResponseWriter, r *http.Request) {
	s.indexAdmin(w, r, s.adminService.UpdateIndexes)
}

// handleDeleteIndexes godoc
// @Summary      Delete indexes
// @Description  Drops the indices of the given entity types (all when omitted)
// @Tags         Admin
// @Produce      json
// @Param        entityTypes  query     string  false  "Comma-separated entity types"
// @Success      200          {array}   domain.IndexStatus
// @Router       /admin/indexes [delete]
func (s *Server) handleDeleteIndexes(w http.ResponseWriter, r *http.Request) {
	s.indexAdmin(w, r, s.adminService.DeleteIndexes)
}

func (s *Server) indexAdmin(w http.ResponseWriter, r *http.Request, op func(context.Context, ...string) ([]domain.IndexStatus, error)) {
	statuses, err := op(r.Context(), listParam(r.URL.Query(), "entityTypes")...)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

// handleTriggerReindex godoc
// @Summary      Trigger full reindex
// @Description  Enqueues a background rebuild of every document of the given types
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request  body      reindexRequest  false  "Entity types and recreate flag"
// @Success      202      {object}  domain.Task
// @Failure      400      {object}  ErrorResponse  "Unknown entity type"
// @Router       /admin/reindex [post]
func (s *Server) handleTriggerReindex(w http.ResponseWriter, r *http.Request) {
	var req reindexRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	task, err := s.adminService.TriggerReindex(r.Context(), req.EntityTypes, req.Recreate)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

// handleReindexReferencing godoc
// @Summary      Reindex referencing documents
// @Description  Enqueues a rebuild of every document whose matchField references the entity
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request  body      reindexReferencingRequest  true  "Match field and referenced entity"
// @Success      202      {object}  domain.Task
// @Failure      400      {object}  ErrorResponse  "Invalid request"
// @Router       /admin/reindex-referencing [post]
func (s *Server) handleReindexReferencing(w http.ResponseWriter, r *http.Request) {
	var req reindexReferencingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MatchField == "" {
		writeError(w, http.StatusBadRequest, "matchField is required")
		return
	}
	task, err := s.indexService.ReindexReferencing(r.Context(), req.MatchField, req.Entity)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task)
}

// Helper functions

func intParam(q url.Values, name string, def int) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidQuery, name)
	}
	return n, nil
}

func boolParam(q url.Values, name string) (bool, error) {
	raw := q.Get(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be true or false", domain.ErrInvalidQuery, name)
	}
	return b, nil
}

// listParam accepts repeated and comma-separated values.
func listParam(q url.Values, name string) []string {
	var out []string
	for _, v := range q[name] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidQuery),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrUnknownEntityType),
		errors.Is(err, domain.ErrMappingNotFound):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrSweepInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

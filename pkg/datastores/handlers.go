package datastores

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/corpushq/corpus/pkg/datasources"
	"github.com/corpushq/corpus/pkg/httputil"
	"github.com/corpushq/corpus/pkg/middleware"
	"github.com/corpushq/corpus/pkg/observability"
	"github.com/corpushq/corpus/pkg/tasks"
)

// Handler serves the datastore and datasource HTTP API
type Handler struct {
	datastores  *Service
	datasources *datasources.Service
	logger      *observability.Logger
}

// NewHandler creates a new API handler
func NewHandler(datastoreService *Service, datasourceService *datasources.Service, logger *observability.Logger) *Handler {
	return &Handler{
		datastores:  datastoreService,
		datasources: datasourceService,
		logger:      logger,
	}
}

// RegisterRoutes registers all API routes on the router
func (h *Handler) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.OrgContext)

	api.HandleFunc("/datastores", h.createDatastore).Methods(http.MethodPost)
	api.HandleFunc("/datastores/{id}", h.listDatasources).Methods(http.MethodGet)
	api.HandleFunc("/datastores/{id}", h.updateDatastore).Methods(http.MethodPatch)
	api.HandleFunc("/datastores/{id}", h.deleteDatastore).Methods(http.MethodDelete)
	api.HandleFunc("/datastores/{id}/datasources", h.createDatasource).Methods(http.MethodPost)
	api.HandleFunc("/datasources/{id}/synch", h.triggerSync).Methods(http.MethodPost)
	api.HandleFunc("/organizations/{id}/datastores", h.listDatastores).Methods(http.MethodGet)
	api.HandleFunc("/organizations/{id}/upload-link", h.generateUploadLink).Methods(http.MethodPost)
}

type syncRequest struct {
	Priority int `json:"priority,omitempty"`
}

func (h *Handler) triggerSync(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	// Body is optional; an empty one means default priority
	req := syncRequest{Priority: tasks.DefaultPriority}
	if r.ContentLength > 0 {
		if !httputil.ParseJSONOrError(w, r, &req) {
			return
		}
		if req.Priority == 0 {
			req.Priority = tasks.DefaultPriority
		}
	}

	ds, err := h.datasources.TriggerSync(r.Context(), middleware.OrgID(r), id, req.Priority)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteSuccess(w, ds)
}

func (h *Handler) createDatastore(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	store, err := h.datastores.Create(r.Context(), middleware.OrgID(r), &req)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteCreated(w, store)
}

func (h *Handler) listDatasources(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	offset, err := httputil.ParseQueryInt(r, "offset", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	limit, err := httputil.ParseQueryInt(r, "limit", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	req := &ListRequest{
		Search:  httputil.ParseQueryString(r, "search", ""),
		Status:  datasources.Status(httputil.ParseQueryString(r, "status", "")),
		Type:    datasources.Type(httputil.ParseQueryString(r, "type", "")),
		GroupID: httputil.ParseQueryString(r, "group_id", ""),
		Offset:  offset,
		Limit:   limit,
	}

	resp, err := h.datastores.ListDatasources(r.Context(), middleware.OrgID(r), id, req)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteSuccess(w, resp)
}

func (h *Handler) updateDatastore(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req UpdateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	store, err := h.datastores.Update(r.Context(), middleware.OrgID(r), id, &req)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteSuccess(w, store)
}

func (h *Handler) deleteDatastore(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	summary, err := h.datastores.DeleteDatastore(r.Context(), middleware.OrgID(r), id)
	if err != nil {
		if summary != nil {
			// Deletion completed; only the usage recompute failed. The sweep
			// or the next recompute heals the snapshot.
			h.logger.WithError(err).WithField("datastore_id", id).
				Warn("deletion succeeded with stale usage snapshot")
			httputil.WriteSuccess(w, summary)
			return
		}
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteSuccess(w, summary)
}

func (h *Handler) createDatasource(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	var req datasources.CreateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.DatastoreID = id

	ds, err := h.datasources.Create(r.Context(), middleware.OrgID(r), &req)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteCreated(w, ds)
}

func (h *Handler) listDatastores(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if orgID != middleware.OrgID(r) {
		httputil.WriteErrorMessage(w, http.StatusForbidden, "not authorized for this organization")
		return
	}

	stores, err := h.datastores.ListForOrg(r.Context(), orgID)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{"datastores": stores})
}

type uploadLinkRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"type"`
}

type uploadLinkResponse struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

func (h *Handler) generateUploadLink(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	if orgID != middleware.OrgID(r) {
		httputil.WriteErrorMessage(w, http.StatusForbidden, "not authorized for this organization")
		return
	}

	var req uploadLinkRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	url, key, err := h.datastores.PresignUpload(r.Context(), orgID, req.FileName, req.ContentType)
	if err != nil {
		httputil.WriteServiceError(w, err)
		return
	}

	httputil.WriteSuccess(w, uploadLinkResponse{URL: url, Key: key})
}

package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/phisdata/phis-dal/engine/annotation"
	"github.com/phisdata/phis-dal/engine/data"
	"github.com/phisdata/phis-dal/engine/docstore"
	"github.com/phisdata/phis-dal/engine/domain"
	"github.com/phisdata/phis-dal/engine/event"
	"github.com/phisdata/phis-dal/engine/germplasm"
	"github.com/phisdata/phis-dal/engine/sensor"
	"github.com/phisdata/phis-dal/engine/validate"
	"github.com/phisdata/phis-dal/pkg/mid"
)

// api holds the DAOs behind the HTTP routes.
type api struct {
	events      *event.DAO
	annotations *annotation.DAO
	germplasm   *germplasm.DAO
	sensors     *sensor.DAO
	data        *data.DAO
	accounts    accounts
	validator   *validate.Validator
	log         *slog.Logger
}

func (a *api) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/events", a.searchEvents)
	mux.HandleFunc("POST /api/events", a.createEvents)
	mux.HandleFunc("PUT /api/events", a.updateEvent)
	mux.HandleFunc("GET /api/events/{uri}/concerned-items", a.concernedItems)
	mux.HandleFunc("GET /api/annotations", a.searchAnnotations)
	mux.HandleFunc("POST /api/annotations", a.createAnnotations)
	mux.HandleFunc("GET /api/germplasm", a.searchGermplasm)
	mux.HandleFunc("POST /api/germplasm", a.createGermplasm)
	mux.HandleFunc("GET /api/sensors/{uri}/profile", a.profile)
	mux.HandleFunc("PUT /api/sensors/{uri}/profile", a.saveProfile)
	mux.HandleFunc("GET /api/data", a.searchData)
	mux.HandleFunc("POST /api/data", a.insertData)
	mux.HandleFunc("POST /api/provenances", a.createProvenance)
	mux.HandleFunc("GET /api/experiments", a.experiments)
	mux.HandleFunc("POST /api/experiments", a.createExperiments)
	mux.HandleFunc("GET /api/users/me", a.me)
	mux.HandleFunc("POST /api/users", a.createUser)
	return mux
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Error  string                   `json:"error"`
	Errors []domain.ValidationError `json:"errors,omitempty"`
}

// page wraps a search result.
type page[T any] struct {
	Count  int64 `json:"count"`
	Page   int   `json:"page"`
	Size   int   `json:"pageSize"`
	Result []T   `json:"result"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (a *api) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// respond writes the outcome of a mutation: the full list of validation
// errors when the batch was rejected, the mapped store error on failure, or
// v with status ok.
func (a *api) respond(w http.ResponseWriter, r *http.Request, status int, v any, report domain.Report, err error) {
	switch {
	case err != nil:
		a.fail(w, r, err)
	case !report.OK():
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Errors: report.Errors})
	default:
		writeJSON(w, status, v)
	}
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrAdminOnly):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case domain.IsDuplicate(err):
		writeJSON(w, http.StatusConflict, errorBody{Error: domain.PersistenceDuplicate.String()})
	default:
		a.log.Error("request failed", "path", r.URL.Path, "request_id", mid.RequestIDFrom(r.Context()), "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: domain.PersistenceUnexpected.String()})
	}
}

func intParam(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func uriParam(r *http.Request, name string) (domain.ResourceURI, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return "", nil
	}
	return domain.ParseURI(s)
}

// query collects parameter errors so a bad request lists all of them.
type query struct {
	r    *http.Request
	errs domain.Report
}

func (q *query) iri(name string) domain.ResourceURI {
	u, err := uriParam(q.r, name)
	if err != nil {
		q.errs.Addf(0, name, domain.KindMalformed, "", q.r.URL.Query().Get(name), "%v", err)
	}
	return u
}

func (q *query) number(name string) int {
	n, err := intParam(q.r, name)
	if err != nil || n < 0 {
		q.errs.Addf(0, name, domain.KindMalformed, "", q.r.URL.Query().Get(name), "expected a non-negative integer")
	}
	return n
}

// rejected writes the collected parameter errors, if any.
func (q *query) rejected(w http.ResponseWriter) bool {
	if q.errs.OK() {
		return false
	}
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid parameters", Errors: q.errs.Errors})
	return true
}

// pathURI decodes the {uri} path segment, answering 400 when it is not an IRI.
func pathURI(w http.ResponseWriter, r *http.Request) (domain.ResourceURI, bool) {
	u, err := domain.ParseURI(r.PathValue("uri"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return "", false
	}
	return u, true
}

func (a *api) searchEvents(w http.ResponseWriter, r *http.Request) {
	q := &query{r: r}
	p := event.SearchParams{
		URI:                q.iri("uri"),
		Type:               q.iri("rdfType"),
		ConcernedItemURI:   q.iri("concernedItemUri"),
		ConcernedItemLabel: r.URL.Query().Get("concernedItemLabel"),
		Page:               q.number("page"),
		PageSize:           q.number("pageSize"),
	}
	var err error
	p.Start, p.End, err = domain.ParseDateRange(r.URL.Query().Get("startDate"), r.URL.Query().Get("endDate"))
	if err != nil {
		q.errs.Addf(0, "startDate", domain.KindMalformed, "", "", "%v", err)
	}
	if q.rejected(w) {
		return
	}
	if p.PageSize == 0 {
		p.PageSize = event.DefaultPageSize
	}

	n, err := a.events.Count(r.Context(), p)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	evs, err := a.events.Search(r.Context(), p)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page[domain.Event]{Count: int64(n), Page: p.Page, Size: p.PageSize, Result: evs})
}

// created lists the identifiers assigned by a create call.
type created struct {
	URIs []domain.ResourceURI `json:"uris"`
}

func (a *api) createEvents(w http.ResponseWriter, r *http.Request) {
	var evs []domain.Event
	if !a.decode(w, r, &evs) {
		return
	}
	out, report, err := a.events.Create(r.Context(), mid.PrincipalFrom(r.Context()), evs)
	uris := make([]domain.ResourceURI, len(out))
	for i, ev := range out {
		uris[i] = ev.URI
	}
	a.respond(w, r, http.StatusCreated, created{URIs: uris}, report, err)
}

func (a *api) updateEvent(w http.ResponseWriter, r *http.Request) {
	var ev domain.Event
	if !a.decode(w, r, &ev) {
		return
	}
	if ev.URI.IsZero() {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "uri is required"})
		return
	}
	report, err := a.events.Update(r.Context(), mid.PrincipalFrom(r.Context()), ev)
	a.respond(w, r, http.StatusOK, created{URIs: []domain.ResourceURI{ev.URI}}, report, err)
}

func (a *api) createAnnotations(w http.ResponseWriter, r *http.Request) {
	var anns []domain.Annotation
	if !a.decode(w, r, &anns) {
		return
	}
	out, report, err := a.annotations.Create(r.Context(), mid.PrincipalFrom(r.Context()), anns)
	uris := make([]domain.ResourceURI, len(out))
	for i, an := range out {
		uris[i] = an.URI
	}
	a.respond(w, r, http.StatusCreated, created{URIs: uris}, report, err)
}

func (a *api) createGermplasm(w http.ResponseWriter, r *http.Request) {
	var gs []domain.Germplasm
	if !a.decode(w, r, &gs) {
		return
	}
	out, report, err := a.germplasm.Create(r.Context(), mid.PrincipalFrom(r.Context()), gs)
	uris := make([]domain.ResourceURI, len(out))
	for i, g := range out {
		uris[i] = g.URI
	}
	a.respond(w, r, http.StatusCreated, created{URIs: uris}, report, err)
}

func (a *api) concernedItems(w http.ResponseWriter, r *http.Request) {
	u, ok := pathURI(w, r)
	if !ok {
		return
	}
	items, err := a.events.ConcernedItems(r.Context(), u)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if items == nil {
		items = []domain.ConcernedItem{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *api) searchAnnotations(w http.ResponseWriter, r *http.Request) {
	q := &query{r: r}
	p := annotation.SearchParams{
		URI:        q.iri("uri"),
		Creator:    q.iri("creator"),
		Motivation: q.iri("motivatedBy"),
		Target:     q.iri("target"),
		BodyValue:  r.URL.Query().Get("bodyValue"),
		Page:       q.number("page"),
		PageSize:   q.number("pageSize"),
	}
	if q.rejected(w) {
		return
	}
	if p.PageSize == 0 {
		p.PageSize = event.DefaultPageSize
	}

	n, err := a.annotations.Count(r.Context(), p)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	anns, err := a.annotations.Search(r.Context(), p)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page[domain.Annotation]{Count: int64(n), Page: p.Page, Size: p.PageSize, Result: anns})
}

func (a *api) searchGermplasm(w http.ResponseWriter, r *http.Request) {
	q := &query{r: r}
	p := germplasm.SearchParams{
		URI:      q.iri("uri"),
		Type:     q.iri("rdfType"),
		Species:  q.iri("species"),
		Label:    r.URL.Query().Get("label"),
		Page:     q.number("page"),
		PageSize: q.number("pageSize"),
	}
	if q.rejected(w) {
		return
	}
	if p.PageSize == 0 {
		p.PageSize = event.DefaultPageSize
	}

	n, err := a.germplasm.Count(r.Context(), p)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	gs, err := a.germplasm.Search(r.Context(), p)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page[domain.Germplasm]{Count: int64(n), Page: p.Page, Size: p.PageSize, Result: gs})
}

func (a *api) profile(w http.ResponseWriter, r *http.Request) {
	u, ok := pathURI(w, r)
	if !ok {
		return
	}
	props, err := a.sensors.Profile(r.Context(), u)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if props == nil {
		props = []domain.Property{}
	}
	writeJSON(w, http.StatusOK, props)
}

func (a *api) saveProfile(w http.ResponseWriter, r *http.Request) {
	u, ok := pathURI(w, r)
	if !ok {
		return
	}
	var props []domain.Property
	if !a.decode(w, r, &props) {
		return
	}
	report, err := a.sensors.SaveProfile(r.Context(), mid.PrincipalFrom(r.Context()), u, props)
	a.respond(w, r, http.StatusOK, created{URIs: []domain.ResourceURI{u}}, report, err)
}

func (a *api) insertData(w http.ResponseWriter, r *http.Request) {
	var ms []domain.Measurement
	if !a.decode(w, r, &ms) {
		return
	}
	out, report, err := a.data.Insert(r.Context(), mid.PrincipalFrom(r.Context()), ms)
	uris := make([]domain.ResourceURI, len(out))
	for i, m := range out {
		uris[i] = m.URI
	}
	a.respond(w, r, http.StatusCreated, created{URIs: uris}, report, err)
}

func (a *api) createProvenance(w http.ResponseWriter, r *http.Request) {
	var p docstore.Provenance
	if !a.decode(w, r, &p) {
		return
	}
	out, report, err := a.data.CreateProvenance(r.Context(), mid.PrincipalFrom(r.Context()), p)
	a.respond(w, r, http.StatusCreated, created{URIs: []domain.ResourceURI{out.URI}}, report, err)
}

func (a *api) searchData(w http.ResponseWriter, r *http.Request) {
	q := &query{r: r}
	f := docstore.Filter{
		Variable:   q.iri("variable"),
		Object:     q.iri("object"),
		Provenance: q.iri("provenance"),
		Descending: r.URL.Query().Get("dateSortAsc") == "false",
		Page:       q.number("page"),
		PageSize:   q.number("pageSize"),
	}
	var err error
	f.Start, f.End, err = domain.ParseDateRange(r.URL.Query().Get("startDate"), r.URL.Query().Get("endDate"))
	if err != nil {
		q.errs.Addf(0, "startDate", domain.KindMalformed, "", "", "%v", err)
	}
	if q.rejected(w) {
		return
	}

	n, err := a.data.Count(r.Context(), f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	ms, err := a.data.Search(r.Context(), f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page[domain.Measurement]{Count: n, Page: f.Page, Size: f.PageSize, Result: ms})
}

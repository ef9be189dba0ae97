package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/phisdata/phis-dal/engine/account"
	"github.com/phisdata/phis-dal/engine/domain"
	"github.com/phisdata/phis-dal/engine/vocab"
	"github.com/phisdata/phis-dal/pkg/mid"
)

// accounts is the relational store behind the user and experiment routes.
type accounts interface {
	User(ctx context.Context, email string) (account.User, error)
	CreateUser(ctx context.Context, u account.User) error
	GroupsOf(ctx context.Context, email string) ([]account.Group, error)
	CreateExperiments(ctx context.Context, exps []account.Experiment) error
	ExperimentsOf(ctx context.Context, email string) ([]account.Experiment, error)
}

var _ accounts = (*account.Store)(nil)

// whoami is the caller's account and group memberships.
type whoami struct {
	User   account.User    `json:"user"`
	Groups []account.Group `json:"groups"`
}

func (a *api) me(w http.ResponseWriter, r *http.Request) {
	principal := mid.PrincipalFrom(r.Context())
	u, err := a.accounts.User(r.Context(), principal)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	gs, err := a.accounts.GroupsOf(r.Context(), principal)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if gs == nil {
		gs = []account.Group{}
	}
	writeJSON(w, http.StatusOK, whoami{User: u, Groups: gs})
}

func (a *api) createUser(w http.ResponseWriter, r *http.Request) {
	principal := mid.PrincipalFrom(r.Context())
	if err := a.validator.Authorize(r.Context(), principal, "create users"); err != nil {
		a.fail(w, r, err)
		return
	}
	var u account.User
	if !a.decode(w, r, &u) {
		return
	}
	var report domain.Report
	if u.Email == "" {
		report.Addf(0, "user", domain.KindMissing, "", "", "email is required")
	}
	if _, err := domain.ParseURI(u.URI.String()); err != nil {
		report.Addf(0, "user", domain.KindMalformed, "", u.URI.String(), "%v", err)
	}
	if !report.OK() {
		a.respond(w, r, http.StatusCreated, nil, report, nil)
		return
	}
	err := a.accounts.CreateUser(r.Context(), u)
	a.respond(w, r, http.StatusCreated, created{URIs: []domain.ResourceURI{u.URI}}, report, err)
}

func (a *api) experiments(w http.ResponseWriter, r *http.Request) {
	es, err := a.accounts.ExperimentsOf(r.Context(), mid.PrincipalFrom(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if es == nil {
		es = []account.Experiment{}
	}
	writeJSON(w, http.StatusOK, es)
}

func (a *api) createExperiments(w http.ResponseWriter, r *http.Request) {
	principal := mid.PrincipalFrom(r.Context())
	if err := a.validator.Authorize(r.Context(), principal, "create experiments"); err != nil {
		a.fail(w, r, err)
		return
	}
	var es []account.Experiment
	if !a.decode(w, r, &es) {
		return
	}
	var report domain.Report
	for i, e := range es {
		subject := fmt.Sprintf("experiments[%d]", i)
		if _, err := domain.ParseURI(e.URI.String()); err != nil {
			report.Addf(i, subject, domain.KindMalformed, "", e.URI.String(), "%v", err)
		}
		if e.Alias == "" {
			report.Addf(i, subject, domain.KindMissing, vocab.Label, "", "alias is required")
		}
		if e.StartDate.IsZero() {
			report.Addf(i, subject, domain.KindMissing, "", "", "start date is required")
		} else if e.EndDate != nil && e.EndDate.Before(e.StartDate) {
			report.Addf(i, subject, domain.KindMalformed, "", domain.FormatDateTime(*e.EndDate), "end date precedes start date")
		}
	}
	if !report.OK() {
		a.respond(w, r, http.StatusCreated, nil, report, nil)
		return
	}
	err := a.accounts.CreateExperiments(r.Context(), es)
	uris := make([]domain.ResourceURI, len(es))
	for i, e := range es {
		uris[i] = e.URI
	}
	a.respond(w, r, http.StatusCreated, created{URIs: uris}, report, err)
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kylo-io/hadoop-authz/pkg/authz"
	"github.com/kylo-io/hadoop-authz/pkg/ledger"
)

// PolicyResponse is returned by the reconcile routes.
type PolicyResponse struct {
	PolicyName string `json:"policyName"`
	Status     string `json:"status"`
}

// FeedGroupsRequest is the body of PUT /feeds/{category}/{feed}/groups.
type FeedGroupsRequest struct {
	Groups         []string          `json:"groups"`
	FeedProperties map[string]string `json:"feedProperties,omitempty"`
}

func (s *Server) typeHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]authz.Type{"type": s.service.Type()})
}

func (s *Server) listGroupsHandler(w http.ResponseWriter, r *http.Request) {
	groups, err := s.service.ListGroups(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if groups == nil {
		groups = []authz.Group{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (s *Server) getGroupHandler(w http.ResponseWriter, r *http.Request) {
	group, err := s.service.GetGroupByName(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (s *Server) reconcileHiveHandler(w http.ResponseWriter, r *http.Request) {
	var policy authz.HivePolicy
	if err := decode(r, &policy); err != nil {
		writeError(w, err)
		return
	}
	if err := s.service.ReconcileHivePolicy(r.Context(), policy); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PolicyResponse{
		PolicyName: authz.HivePolicyName(policy.Category, policy.Feed),
		Status:     "applied",
	})
}

func (s *Server) reconcileHdfsHandler(w http.ResponseWriter, r *http.Request) {
	var policy authz.HdfsPolicy
	if err := decode(r, &policy); err != nil {
		writeError(w, err)
		return
	}
	if err := s.service.ReconcileHdfsPolicy(r.Context(), policy); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PolicyResponse{
		PolicyName: authz.PolicyName(policy.Category, policy.Feed, authz.RepositoryHdfs),
		Status:     "applied",
	})
}

func (s *Server) deleteHiveHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteHivePolicy(r.Context(), chi.URLParam(r, "category"), chi.URLParam(r, "feed")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteHdfsHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteHdfsPolicy(r.Context(), chi.URLParam(r, "category"), chi.URLParam(r, "feed")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) updateFeedGroupsHandler(w http.ResponseWriter, r *http.Request) {
	var req FeedGroupsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	err := s.service.UpdateSecurityGroupsForAllPolicies(r.Context(),
		chi.URLParam(r, "category"), chi.URLParam(r, "feed"), req.Groups, req.FeedProperties)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listPoliciesHandler(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, errLedgerDisabled)
		return
	}
	records, err := s.ledger.ListPolicies(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []ledger.PolicyRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"policies": records})
}

func (s *Server) getPolicyHandler(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, errLedgerDisabled)
		return
	}
	record, err := s.ledger.GetPolicy(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// listEventsHandler handles GET /events.
// Query params: policy, category, feed, outcome, pageSize, pageToken
func (s *Server) listEventsHandler(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, errLedgerDisabled)
		return
	}
	q := r.URL.Query()
	filter := ledger.EventFilter{
		PolicyName: q.Get("policy"),
		Category:   q.Get("category"),
		Feed:       q.Get("feed"),
		Outcome:    q.Get("outcome"),
	}
	pageSize := 20
	if ps := q.Get("pageSize"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 {
			pageSize = v
		}
	}

	records, nextToken, total, err := s.ledger.ListEvents(r.Context(), filter, pageSize, q.Get("pageToken"))
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []ledger.EventRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events":        records,
		"nextPageToken": nextToken,
		"totalSize":     total,
	})
}

var errLedgerDisabled = &authz.Error{Kind: authz.KindNotSupported, Op: "policy ledger", Err: errors.New("ledger is disabled")}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &authz.Error{Kind: authz.KindInvalidArgument, Op: "decode request", Err: err}
	}
	return nil
}

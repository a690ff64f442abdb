package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/unitdesign/internal/catalog"
	"github.com/leapstack-labs/unitdesign/internal/engine"
	"github.com/leapstack-labs/unitdesign/pkg/record"
)

// maxBodyBytes limits request bodies.
const maxBodyBytes = 1 << 20

// ResolveBody is the body of a resolve request. Input values are numbers
// in the declared unit or strings with a unit, such as "50 L/s".
type ResolveBody struct {
	Inputs  engine.Inputs      `json:"inputs"`
	Guesses map[string]float64 `json:"guesses,omitempty"`
}

// BatchRequest is one entry of a batch body.
type BatchRequest struct {
	Type string `json:"type"`
	ResolveBody
}

// BatchBody is the body of a batch request.
type BatchBody struct {
	Requests []BatchRequest `json:"requests"`
}

// BatchResult is one entry of a batch response. Exactly one of Record and
// Error is set.
type BatchResult struct {
	Type   string         `json:"type"`
	Record *record.Record `json:"record,omitempty"`
	Error  *ErrorBody     `json:"error,omitempty"`
}

// BatchResponse is the response to a batch request.
type BatchResponse struct {
	Results []BatchResult `json:"results"`
	Failed  int           `json:"failed"`
}

// HealthResponse is the response of the health check.
type HealthResponse struct {
	Status        string `json:"status"`
	UnitProcesses int    `json:"unit_processes"`
	Generation    uint64 `json:"generation"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		UnitProcesses: s.Engine().Catalog().Len(),
		Generation:    s.Generation(),
	})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	entries := s.Engine().Catalog().Entries()
	out := make([]catalog.Summary, len(entries))
	for i, e := range entries {
		out[i] = e.Summarize()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleShow(w http.ResponseWriter, r *http.Request) {
	entry, err := s.Engine().Catalog().Lookup(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry.Describe())
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var body ResolveBody
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := toRequest(chi.URLParam(r, "type"), body)
	if err != nil {
		writeError(w, err)
		return
	}

	rec, err := s.Engine().ResolveRequest(r.Context(), req)
	if err != nil {
		s.logger.Debug("resolve failed", "unit_process", req.Type, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var body BatchBody
	if !decodeBody(w, r, &body) {
		return
	}

	resp := BatchResponse{Results: make([]BatchResult, len(body.Requests))}
	reqs := make([]engine.Request, 0, len(body.Requests))
	index := make([]int, 0, len(body.Requests))
	for i, br := range body.Requests {
		resp.Results[i].Type = br.Type
		req, err := toRequest(br.Type, br.ResolveBody)
		if err != nil {
			eb := errorBody(err)
			resp.Results[i].Error = &eb
			continue
		}
		reqs = append(reqs, req)
		index = append(index, i)
	}

	for j, res := range s.Engine().ResolveBatch(r.Context(), reqs, s.cfg.BatchLimit) {
		i := index[j]
		if res.Err != nil {
			eb := errorBody(res.Err)
			resp.Results[i].Error = &eb
			continue
		}
		resp.Results[i].Record = res.Record
	}
	for _, res := range resp.Results {
		if res.Error != nil {
			resp.Failed++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleEvents streams catalog reloads as server-sent events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	// Subscribe before the headers go out.
	ch := s.notifier.Subscribe()
	defer s.notifier.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			data, err := json.Marshal(ev)
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "event: reload\ndata: %s\n\n", data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func toRequest(typeName string, body ResolveBody) (engine.Request, error) {
	inputs, err := body.Inputs.Measures()
	if err != nil {
		return engine.Request{}, err
	}
	return engine.Request{Type: typeName, Inputs: inputs, Guesses: body.Guesses}, nil
}

// decodeBody decodes a JSON body into v, writing a 400 response on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{
			Error: fmt.Sprintf("invalid request body: %v", err),
			Kind:  "bad_request",
		})
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, err error) {
	status, _ := classify(err)
	writeJSON(w, status, errorBody(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

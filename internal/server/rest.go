package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"ephemcp/internal/api"
	"ephemcp/pkg/logging"
)

// REST paths served next to the MCP endpoint on HTTP transports.
const (
	RESTListPath   = "/list_mcp_servers"
	RESTCreatePath = "/create_mcp_server"
	RESTDeletePath = "/delete_mcp_server"
)

const maxRESTBody = 1 << 20

// restError is the body of a failed REST call.
type restError struct {
	Kind    api.ErrorKind `json:"kind,omitempty"`
	Message string        `json:"error"`
	ID      string        `json:"id,omitempty"`
}

func (s *Server) registerREST(mux *http.ServeMux) {
	mux.HandleFunc("GET "+RESTListPath, s.restList)
	mux.HandleFunc("POST "+RESTCreatePath, s.restCreate)
	mux.HandleFunc("POST "+RESTDeletePath, s.restDelete)
}

func (s *Server) restList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, serverInfos(s.opts.Lifecycle.Handles()))
}

// restCreate accepts the create_mcp_server arguments, or any spawn_mcp_server
// argument, as a JSON object. Scalar query parameters fill in arguments the
// body does not set.
func (s *Server) restCreate(w http.ResponseWriter, r *http.Request) {
	args, err := restArguments(r)
	if err != nil {
		writeError(w, err, "")
		return
	}
	if v, ok := args["wait_for_ready"].(string); ok {
		args["wait_for_ready"] = v == "true" || v == "1"
	}

	request := mcp.CallToolRequest{}
	request.Params.Arguments = createArguments(args)
	result, err := s.spawnFromRequest(r.Context(), request, true)
	if err != nil {
		writeError(w, err, result.ID)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// restDelete deletes the server named by id (or name) and waits for its
// resources to go.
func (s *Server) restDelete(w http.ResponseWriter, r *http.Request) {
	args, err := restArguments(r)
	if err != nil {
		writeError(w, err, "")
		return
	}
	id, _ := args["id"].(string)
	if id == "" {
		id, _ = args["name"].(string)
	}
	if id == "" {
		writeError(w, api.NewInvalidSpecError("id is required"), "")
		return
	}

	if err := s.opts.Lifecycle.Delete(r.Context(), id); err != nil {
		writeError(w, err, id)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResult{ID: id, State: api.StateDeleted})
}

func restArguments(r *http.Request) (map[string]interface{}, error) {
	args := map[string]interface{}{}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRESTBody))
	if err != nil {
		return nil, api.NewInvalidSpecError("failed to read request body: %v", err)
	}
	if len(strings.TrimSpace(string(body))) > 0 {
		if err := json.Unmarshal(body, &args); err != nil {
			return nil, api.NewInvalidSpecError("request body must be a JSON object: %v", err)
		}
	}
	for key, values := range r.URL.Query() {
		if _, set := args[key]; !set && len(values) > 0 {
			args[key] = values[0]
		}
	}
	return args, nil
}

func restStatus(err error) int {
	switch api.KindOf(err) {
	case api.KindInvalidSpec:
		return http.StatusBadRequest
	case api.KindNotFound:
		return http.StatusNotFound
	case api.KindNotReady, api.KindWorkloadFailed:
		return http.StatusConflict
	case api.KindReadinessTimeout:
		return http.StatusGatewayTimeout
	case api.KindTransient:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error, id string) {
	writeJSON(w, restStatus(err), restError{Kind: api.KindOf(err), Message: err.Error(), ID: id})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("Server", "Failed to write REST response: %v", err)
	}
}

package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/user/procengine/internal/storage/dao"
	"github.com/user/procengine/pkg/value"
)

// createDeployment handles POST /deployments: multipart-free, the BPMN
// document is the raw request body and its metadata travels as headers —
// matching spec.md's create_procdef/publish_procdef split (a procdef_id
// header selects publish over create).
func (s *Server) createDeployment(w http.ResponseWriter, r *http.Request) {
	xml, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	claims := claimsFromContext(r.Context())
	company := r.Header.Get("X-Company-ID")
	name := r.Header.Get("X-Process-Name")

	if procDefID := r.Header.Get("X-ProcDef-ID"); procDefID != "" {
		procDef, err := s.eng.PublishProcDef(r.Context(), procDefID, claims.UserID, xml)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, procDef)
		return
	}

	procDef, err := s.eng.CreateProcDef(r.Context(), name, claims.UserID, company, xml)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, procDef)
}

type startProcessInstanceRequest struct {
	Key         string                  `json:"key"`
	BusinessKey string                  `json:"business_key"`
	CompanyID   string                  `json:"company_id"`
	Variables   map[string]wireVariable `json:"variables"`
}

// startProcessInstance handles POST /process-instances.
func (s *Server) startProcessInstance(w http.ResponseWriter, r *http.Request) {
	var req startProcessInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	vars, err := decodeVariables(req.Variables)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	claims := claimsFromContext(r.Context())
	inst, err := s.eng.StartProcessInstanceByKey(r.Context(), req.Key, req.CompanyID, req.BusinessKey, claims.UserID, claims.GroupID, vars)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inst)
}

type completeTaskRequest struct {
	Variables map[string]wireVariable `json:"variables"`
}

// completeTask handles POST /tasks/{id}/complete.
func (s *Server) completeTask(w http.ResponseWriter, r *http.Request) {
	var req completeTaskRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	vars, err := decodeVariables(req.Variables)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	claims := claimsFromContext(r.Context())
	taskID := r.PathValue("id")
	if err := s.eng.CompleteTask(r.Context(), taskID, claims.UserID, claims.GroupID, vars); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// queryTasks handles GET /tasks, building a dao.Filter from query
// parameters and returning both the typed rows and their sjson snapshot
// (service.Engine.QueryTasks's second return value).
func (s *Server) queryTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := dao.Filter{
		ID:                   q.Get("id"),
		ExecutionID:          q.Get("execution_id"),
		ProcInstID:           q.Get("proc_inst_id"),
		BusinessKey:          q.Get("business_key"),
		ProcessDefinitionKey: q.Get("process_definition_key"),
		CandidateUser:        q.Get("candidate_user"),
		CandidateGroup:       q.Get("candidate_group"),
	}

	_, snapshot, err := s.eng.QueryTasks(r.Context(), filter)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	if fields := q.Get("fields"); fields != "" {
		snapshot = projectTaskSnapshot(snapshot, strings.Split(fields, ","))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(snapshot))
}

// projectTaskSnapshot narrows each row of a sjson-built task snapshot down
// to the requested dotted paths via gjson, the read-side counterpart to
// encodeTaskRow's sjson writes (SPEC_FULL.md §2.2).
func projectTaskSnapshot(snapshot string, fields []string) string {
	out := "[]"
	gjson.Parse(snapshot).ForEach(func(_, row gjson.Result) bool {
		projected := "{}"
		for _, field := range fields {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			projected, _ = sjson.Set(projected, field, row.Get(field).Value())
		}
		out, _ = sjson.SetRaw(out, "-1", projected)
		return true
	})
	return out
}

// wireVariable is a Value's wire representation: a type tag plus its text
// form, mirroring AsText/FromText's round trip.
type wireVariable struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func decodeVariables(in map[string]wireVariable) (map[string]value.Value, error) {
	out := make(map[string]value.Value, len(in))
	for name, w := range in {
		v, err := value.FromText(value.Type(w.Type), w.Text)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

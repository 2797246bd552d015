package backend

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/docuform-tech/docuform/core"
	"github.com/docuform-tech/docuform/core/access"
	"github.com/docuform-tech/docuform/core/attachment"
	"github.com/docuform-tech/docuform/core/docdb"
	"github.com/docuform-tech/docuform/core/logger"
	"github.com/docuform-tech/docuform/core/repository"
)

// maxUploadMemory is how much of a multipart upload is kept in memory
// before spilling to disk.
const maxUploadMemory = 16 << 20

// entity is the runtime form of an entityConfiguration: its repository, its
// resolved ownership graph and its registered handlers.
type entity struct {
	backend      *Backend
	config       entityConfiguration
	repository   *repository.Repository
	dependencies []access.Dependency
	adminOnly    map[core.Mode]bool
}

// state is the request context the stages pass along. Stages receive it by
// value and return a possibly augmented copy, never sharing mutable state.
type state struct {
	actor   access.Actor
	payload docdb.Document
	prior   docdb.Document
	file    multipart.File
	header  *multipart.FileHeader

	// query parameters of the list endpoints
	skip      int64
	limit     int64
	sortBy    []docdb.SortField
	relations []string
}

// denial terminates a pipeline with a status and message for the caller.
type denial struct {
	status  int
	message string
}

// stage is one step of a handler's authorization pipeline.
type stage func(ctx context.Context, st state) (state, *denial)

// handlerFor composes the pipeline for one mode on one route set. The
// pipeline is fixed at registration time; requests only run it.
func (e *entity) handlerFor(mode core.Mode, admin bool) http.HandlerFunc {
	var stages []stage
	if admin {
		stages = append(stages, e.rightsStage(mode))
	} else {
		stages = append(stages, e.guardStage(mode))
	}
	switch mode {
	case core.ModeCreate:
		if e.config.CreateSchemaID != "" {
			stages = append(stages, e.schemaStage(e.config.CreateSchemaID, http.StatusBadRequest))
		}
		if !admin {
			stages = append(stages, e.ownershipStage(mode))
		}
		if e.config.Attachment {
			stages = append(stages, e.attachmentStage())
		}
	case core.ModeUpdate:
		if e.config.UpdateSchemaID != "" {
			stages = append(stages, e.schemaStage(e.config.UpdateSchemaID, http.StatusBadRequest))
		}
		if !admin {
			stages = append(stages, e.priorStage(), e.ownershipStage(mode))
		}
		if e.config.Attachment {
			stages = append(stages, e.attachmentStage())
		}
	case core.ModeDelete:
		if !admin {
			stages = append(stages, e.priorStage(), e.ownershipStage(mode))
		} else if e.config.Attachment {
			stages = append(stages, e.priorStage())
		}
	default: // the read modes
		if e.config.FilterSchemaID != "" {
			stages = append(stages, e.schemaStage(e.config.FilterSchemaID, http.StatusBadRequest))
		} else {
			stages = append(stages, e.filterGuardStage())
		}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		st, err := e.decodeRequest(r, mode)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		st.actor = access.ActorFromContext(ctx)
		for _, s := range stages {
			next, deny := s(ctx, st)
			if deny != nil {
				http.Error(w, deny.message, deny.status)
				return
			}
			st = next
		}
		e.execute(ctx, w, mode, st)
	}
}

// decodeRequest parses the payload, the optional upload and the query
// parameters of the list endpoints.
func (e *entity) decodeRequest(r *http.Request, mode core.Mode) (state, error) {
	st := state{limit: -1}

	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if contentType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
			return st, fmt.Errorf("cannot parse multipart form: %s", err)
		}
		payload := docdb.Document{}
		if raw := r.FormValue("schema_in"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &payload); err != nil {
				return st, fmt.Errorf("invalid json in schema_in: %s", err)
			}
		}
		st.payload = payload
		file, header, err := r.FormFile("file")
		if err == nil {
			st.file = file
			st.header = header
		} else if err != http.ErrMissingFile {
			return st, fmt.Errorf("cannot read upload: %s", err)
		}
	} else {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return st, fmt.Errorf("cannot read body: %s", err)
		}
		payload := docdb.Document{}
		if len(body) > 0 {
			if err := json.Unmarshal(body, &payload); err != nil {
				return st, fmt.Errorf("invalid json: %s", err)
			}
		}
		st.payload = payload
	}

	if mode == core.ModeUpdate || mode == core.ModeDelete {
		if id, ok := st.payload["_id"].(string); !ok || id == "" {
			return st, fmt.Errorf("_id is missing")
		}
	}

	if mode.IsRead() {
		query := r.URL.Query()
		if raw := query.Get("skip"); raw != "" {
			skip, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || skip < 0 {
				return st, fmt.Errorf("invalid skip parameter")
			}
			st.skip = skip
		}
		if raw := query.Get("limit"); raw != "" {
			limit, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || limit < 1 {
				return st, fmt.Errorf("invalid limit parameter")
			}
			st.limit = limit
		}
		for _, field := range query["sort"] {
			direction := 1
			if strings.HasPrefix(field, "-") {
				direction = -1
				field = field[1:]
			}
			st.sortBy = append(st.sortBy, docdb.SortField{Field: field, Direction: direction})
		}
		st.relations = query["relation"]
	}
	return st, nil
}

// rightsStage requires the actor's rights bitmask to cover the action. An
// unmapped method and mode combination is a registration bug and surfaces
// as an internal error, never as a denial.
func (e *entity) rightsStage(mode core.Mode) stage {
	method := methodFor(mode)
	return func(ctx context.Context, st state) (state, *denial) {
		required, err := access.RequiredRights(method, mode)
		if err != nil {
			logger.FromContext(ctx).Errorln("rights configuration error:", err)
			return st, &denial{http.StatusInternalServerError, "configuration error"}
		}
		if !st.actor.Rights().Covers(required) {
			return st, &denial{http.StatusUnauthorized, "no admin rights for this action"}
		}
		return st, nil
	}
}

// guardStage rejects admin-only actions on the plain route set and
// anonymous mutations of owned entities.
func (e *entity) guardStage(mode core.Mode) stage {
	return func(ctx context.Context, st state) (state, *denial) {
		if e.adminOnly[mode] {
			return st, &denial{http.StatusUnauthorized, "this action requires admin rights"}
		}
		if !mode.IsRead() && e.config.OwnerField != "" && st.actor.IsAnonymous() {
			return st, &denial{http.StatusUnauthorized, "authentication required"}
		}
		return st, nil
	}
}

// schemaStage validates the payload against a registered schema. A schema
// id not known to the validator was already reported at registration and
// passes everything.
func (e *entity) schemaStage(schemaID string, status int) stage {
	return func(ctx context.Context, st state) (state, *denial) {
		if !e.backend.validator.HasSchema(schemaID) {
			return st, nil
		}
		if err := e.backend.validator.ValidateStruct(st.payload, schemaID); err != nil {
			return st, &denial{status, err.Error()}
		}
		return st, nil
	}
}

// filterGuardStage rejects filters carrying store operators on entities
// without a filter schema. A configured filter schema takes over this job
// and decides itself which fields and shapes it allows.
func (e *entity) filterGuardStage() stage {
	return func(ctx context.Context, st state) (state, *denial) {
		if containsOperators(st.payload) {
			return st, &denial{http.StatusBadRequest, "filter must not contain operators"}
		}
		return st, nil
	}
}

func containsOperators(doc map[string]interface{}) bool {
	for key, value := range doc {
		if strings.HasPrefix(key, "$") {
			return true
		}
		if nested, ok := value.(map[string]interface{}); ok && containsOperators(nested) {
			return true
		}
	}
	return false
}

// priorStage loads the record as it is before the request, so the ownership
// check sees the state the caller cannot have tampered with.
func (e *entity) priorStage() stage {
	return func(ctx context.Context, st state) (state, *denial) {
		prior, err := e.repository.Get(ctx, st.actor, repository.Query{
			Filter: docdb.Document{"_id": st.payload["_id"]},
			Mode:   core.ModeGetOne,
		})
		if err != nil {
			logger.FromContext(ctx).Errorln("cannot load prior record:", err)
			return st, &denial{http.StatusInternalServerError, "cannot load record"}
		}
		if len(prior) == 1 {
			st.prior = prior[0]
		}
		return st, nil
	}
}

// ownershipStage evaluates the entity's dependency graph. Creation accepts
// an empty graph and skips dependencies that probe for the record itself.
func (e *entity) ownershipStage(mode core.Mode) stage {
	deps := e.dependencies
	acceptZero := mode == core.ModeCreate
	if acceptZero {
		deps = nil
		for _, dep := range e.dependencies {
			if !dep.SkipOnCreate {
				deps = append(deps, dep)
			}
		}
	}
	return func(ctx context.Context, st state) (state, *denial) {
		allowed, err := access.Evaluate(ctx, deps, st.actor, st.prior, acceptZero)
		if err != nil {
			logger.FromContext(ctx).Errorln("ownership evaluation failed:", err)
			return st, &denial{http.StatusInternalServerError, "cannot evaluate access"}
		}
		if !allowed {
			return st, &denial{http.StatusUnauthorized, "no access to this record"}
		}
		return st, nil
	}
}

// attachmentStage runs the processor over an upload, augmenting the payload
// with the derived fields. Requests without a file pass through.
func (e *entity) attachmentStage() stage {
	return func(ctx context.Context, st state) (state, *denial) {
		if st.file == nil {
			return st, nil
		}
		processed, err := e.backend.processor.Process(ctx, st.payload, st.file, st.header)
		if err != nil {
			return st, &denial{http.StatusUnauthorized, fmt.Sprintf("invalid attachment: %s", err)}
		}
		if !processed {
			return st, &denial{http.StatusForbidden, "attachment was not processed"}
		}
		return st, nil
	}
}

// execute runs the repository operation and writes the response.
func (e *entity) execute(ctx context.Context, w http.ResponseWriter, mode core.Mode, st state) {
	rlog := logger.FromContext(ctx)
	switch mode {
	case core.ModeCreate:
		doc, err := e.repository.Create(ctx, st.actor, st.payload)
		if err == docdb.ErrDuplicateKey {
			http.Error(w, "duplicate key", http.StatusUnauthorized)
			return
		}
		if err != nil {
			rlog.Errorln("create failed:", err)
			http.Error(w, "cannot create record", http.StatusInternalServerError)
			return
		}
		writeJSON(w, doc)

	case core.ModeUpdate:
		doc, err := e.repository.Update(ctx, st.actor, st.payload)
		if err == repository.ErrNotApplied {
			http.Error(w, "record was not updated", http.StatusForbidden)
			return
		}
		if err == docdb.ErrDuplicateKey {
			http.Error(w, "duplicate key", http.StatusUnauthorized)
			return
		}
		if err != nil {
			rlog.Errorln("update failed:", err)
			http.Error(w, "cannot update record", http.StatusInternalServerError)
			return
		}
		writeJSON(w, doc)

	case core.ModeDelete:
		err := e.repository.Delete(ctx, st.payload)
		if err == repository.ErrNotApplied {
			http.Error(w, "no such record", http.StatusNotFound)
			return
		}
		if err != nil {
			rlog.Errorln("delete failed:", err)
			http.Error(w, "cannot delete record", http.StatusInternalServerError)
			return
		}
		if e.config.Attachment && st.prior != nil {
			if remover, ok := e.backend.processor.(attachment.Remover); ok {
				// best effort, the record itself is already gone
				if err := remover.Remove(ctx, st.prior); err != nil {
					rlog.Warnln("cannot remove stored attachment:", err)
				}
			}
		}
		w.WriteHeader(http.StatusNoContent)

	case core.ModeList, core.ModeListOwn:
		docs, err := e.repository.Get(ctx, st.actor, repository.Query{
			Filter:    st.payload,
			Relations: st.relations,
			Sort:      st.sortBy,
			Skip:      st.skip,
			Limit:     st.limit,
			Mode:      mode,
		})
		if err != nil {
			rlog.Errorln("query failed:", err)
			http.Error(w, "cannot query records", http.StatusInternalServerError)
			return
		}
		if len(docs) == 0 {
			http.Error(w, "no records found", http.StatusNotFound)
			return
		}
		writeJSON(w, docs)

	case core.ModeExists:
		docs, err := e.repository.Get(ctx, st.actor, repository.Query{
			Filter: st.payload,
			Mode:   mode,
		})
		if err != nil {
			rlog.Errorln("query failed:", err)
			http.Error(w, "cannot query records", http.StatusInternalServerError)
			return
		}
		if len(docs) == 0 {
			http.Error(w, "no records found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func methodFor(mode core.Mode) string {
	switch mode {
	case core.ModeUpdate:
		return http.MethodPut
	case core.ModeDelete:
		return http.MethodDelete
	default:
		return http.MethodPost
	}
}

func writeJSON(w http.ResponseWriter, value interface{}) {
	body, err := json.Marshal(value)
	if err != nil {
		http.Error(w, "cannot encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

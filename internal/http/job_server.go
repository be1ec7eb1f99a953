package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"job-scheduler/internal/constants"
	herrors "job-scheduler/internal/http/errors"
	"job-scheduler/internal/http/pagination"
	"job-scheduler/internal/http/validation"
	"job-scheduler/internal/model"
	"job-scheduler/internal/schedule"
	"job-scheduler/internal/service"
)

type ServerConfig struct {
	Addr string
	// ExternalUrl is the protocol://host[:port] clients reach the server at.
	ExternalUrl string
	Version     string
}

type jobServer struct {
	jobs     *service.JobService
	validate *validator.Validate
	links    pagination.LinkBuilder
	version  string
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	js, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "error forming response data", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(js)
}

var (
	createJobErrorHandler = herrors.NewErrorHandler("CreateJob")
	listJobsErrorHandler  = herrors.NewErrorHandler("ListJobs")
	getJobErrorHandler    = herrors.NewErrorHandler("GetJob")
	deleteJobErrorHandler = herrors.NewErrorHandler("DeleteJob")
	cancelJobErrorHandler = herrors.NewErrorHandler("CancelJob")
)

type requestTarget struct {
	Url     string                 `json:"url" validate:"required,url"`
	Method  string                 `json:"method" validate:"required,oneof=GET POST PATCH PUT DELETE"`
	Headers map[string]string      `json:"headers"`
	Body    map[string]interface{} `json:"body"`
}

type requestJob struct {
	Type     string         `json:"type" validate:"required,oneof=once every"`
	Interval string         `json:"interval" validate:"required_if=Type every"`
	When     string         `json:"when" validate:"required_if=Type once"`
	Target   *requestTarget `json:"target" validate:"required"`
}

type listQuery struct {
	Page     int `json:"page" validate:"min=1"`
	PageSize int `json:"pageSize" validate:"min=1,max=100"`
}

type responseJob struct {
	Id        model.JobId   `json:"id"`
	Type      model.JobType `json:"type"`
	Interval  string        `json:"interval,omitempty"`
	When      string        `json:"when,omitempty"`
	NextRunAt *time.Time    `json:"nextRunAt,omitempty"`
	Target    model.Target  `json:"target"`
}

type responseJobList struct {
	Results []responseJob `json:"results"`
	Next    string        `json:"next,omitempty"`
	Prev    string        `json:"prev,omitempty"`
}

func newResponseJob(job model.Job) responseJob {
	rj := responseJob{
		Id:        job.Id,
		Type:      job.Type,
		NextRunAt: job.NextRunAt,
		Target:    job.Target,
	}
	if job.Type == model.JobTypeOnce {
		rj.When = job.Schedule.String()
	} else {
		rj.Interval = job.Schedule.String()
	}
	return rj
}

func (js *jobServer) createJobHandler(w http.ResponseWriter, req *http.Request) {
	contentType := req.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		createJobErrorHandler.WriteAndLogError(
			w,
			"failed to parse media type",
			err, http.StatusBadRequest,
			log.Fields{"header": contentType},
		)
		return
	}
	if mediaType != "application/json" {
		createJobErrorHandler.WriteAndLogError(
			w,
			"expect application/json Content-Type",
			errors.New("Content-Type error"),
			http.StatusUnsupportedMediaType,
			log.Fields{"media type": mediaType},
		)
		return
	}
	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	rj := requestJob{}
	if err = dec.Decode(&rj); err != nil {
		createJobErrorHandler.WriteAndLogError(
			w,
			"failed to parse request body",
			err,
			http.StatusBadRequest,
			log.Fields{},
		)
		return
	}

	if err = js.validate.StructCtx(req.Context(), rj); err != nil {
		createJobErrorHandler.WriteAndLogValidationErrors(
			w,
			err.(validator.ValidationErrors),
			log.Fields{"request job": rj},
		)
		return
	}

	timeoutCtx, cancel := context.WithTimeout(req.Context(), constants.StorageOperationTimeout)
	defer cancel()
	job, err := js.jobs.Create(timeoutCtx, service.CreateJobRequest{
		Type:     model.JobType(rj.Type),
		Interval: rj.Interval,
		When:     rj.When,
		Target: model.Target{
			Url:     rj.Target.Url,
			Method:  rj.Target.Method,
			Headers: rj.Target.Headers,
			Body:    rj.Target.Body,
		},
	})
	if err != nil {
		var invalid *schedule.InvalidScheduleError
		if errors.As(err, &invalid) {
			createJobErrorHandler.WriteAndLogErrorMsg(w, invalid.Error(), http.StatusBadRequest, log.Fields{"request job": rj})
			return
		}
		createJobErrorHandler.WriteAndLogError(
			w,
			"failed to save new job",
			err,
			http.StatusInternalServerError,
			log.Fields{"request job": rj},
		)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("%s/%s", js.links.External(req.URL.Path), job.Id))
	writeJSON(w, http.StatusCreated, newResponseJob(job))
}

func (js *jobServer) listJobsHandler(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query()
	lq := listQuery{Page: constants.DefaultPage, PageSize: constants.DefaultPageSize}
	for name, target := range map[string]*int{"page": &lq.Page, "pageSize": &lq.PageSize} {
		value := query.Get(name)
		if value == "" {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			listJobsErrorHandler.WriteAndLogErrorMsg(w, fmt.Sprintf("%s must be an integer", name), http.StatusBadRequest, log.Fields{name: value})
			return
		}
		*target = parsed
	}
	if err := js.validate.Struct(lq); err != nil {
		listJobsErrorHandler.WriteAndLogValidationErrors(w, err.(validator.ValidationErrors), log.Fields{"query": query})
		return
	}

	timeoutCtx, cancel := context.WithTimeout(req.Context(), constants.StorageOperationTimeout)
	defer cancel()
	jobs, err := js.jobs.List(timeoutCtx, lq.Page, lq.PageSize)
	if err != nil {
		listJobsErrorHandler.WriteAndLogError(w, "failed to list jobs", err, http.StatusInternalServerError, log.Fields{"query": query})
		return
	}

	resp := responseJobList{Results: make([]responseJob, 0, len(jobs))}
	for _, job := range jobs {
		resp.Results = append(resp.Results, newResponseJob(job))
	}
	prev, next := pagination.Links(lq.Page, lq.PageSize, len(jobs))
	resp.Prev = js.links.Page(req.URL.Path, prev, query)
	resp.Next = js.links.Page(req.URL.Path, next, query)
	writeJSON(w, http.StatusOK, resp)
}

func (js *jobServer) jobId(w http.ResponseWriter, req *http.Request, eh *herrors.ErrorHandler) (model.JobId, bool) {
	id := mux.Vars(req)["id"]
	if err := js.validate.Var(id, "jobid"); err != nil {
		eh.WriteAndLogValidationErrors(w, err.(validator.ValidationErrors), log.Fields{"id": id})
		return "", false
	}
	return model.JobId(id), true
}

func (js *jobServer) getJobHandler(w http.ResponseWriter, req *http.Request) {
	id, ok := js.jobId(w, req, getJobErrorHandler)
	if !ok {
		return
	}
	timeoutCtx, cancel := context.WithTimeout(req.Context(), constants.StorageOperationTimeout)
	defer cancel()
	job, err := js.jobs.Get(timeoutCtx, id)
	if err != nil {
		statusCode := http.StatusNotFound
		msg := fmt.Sprintf("Job %s cannot be found", id)
		if !errors.Is(err, model.ErrorNotFound) {
			statusCode = http.StatusInternalServerError
			msg = fmt.Sprintf("failed to get job by id %s", id)
		}
		getJobErrorHandler.WriteAndLogErrorMsg(w, msg, statusCode, log.Fields{"error": err})
		return
	}
	writeJSON(w, http.StatusOK, newResponseJob(job))
}

func (js *jobServer) deleteJobHandler(w http.ResponseWriter, req *http.Request) {
	id, ok := js.jobId(w, req, deleteJobErrorHandler)
	if !ok {
		return
	}
	timeoutCtx, cancel := context.WithTimeout(req.Context(), constants.StorageOperationTimeout)
	defer cancel()
	err := js.jobs.Delete(timeoutCtx, id)
	if err != nil {
		deleteJobErrorHandler.WriteAndLogError(
			w,
			fmt.Sprintf("failed to delete job with id %s", id),
			err,
			http.StatusInternalServerError,
			log.Fields{},
		)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (js *jobServer) cancelJobHandler(w http.ResponseWriter, req *http.Request) {
	id, ok := js.jobId(w, req, cancelJobErrorHandler)
	if !ok {
		return
	}
	timeoutCtx, cancel := context.WithTimeout(req.Context(), constants.StorageOperationTimeout)
	defer cancel()
	job, err := js.jobs.Cancel(timeoutCtx, id)
	if err != nil {
		if errors.Is(err, model.ErrorNotFound) {
			cancelJobErrorHandler.WriteAndLogErrorMsg(w, fmt.Sprintf("Job %s cannot be found", id), http.StatusNotFound, log.Fields{})
			return
		}
		cancelJobErrorHandler.WriteAndLogError(w, fmt.Sprintf("failed to cancel job with id %s", id), err, http.StatusInternalServerError, log.Fields{})
		return
	}
	writeJSON(w, http.StatusOK, newResponseJob(job))
}

func (js *jobServer) checkHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (js *jobServer) versionHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": js.version})
}

var quietPaths = map[string]struct{}{
	"/check-health": {},
	"/version":      {},
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, quiet := quietPaths[r.URL.Path]; quiet {
			log.Debugf("%s %s", r.Method, r.RequestURI)
		} else {
			log.Infof("%s %s", r.Method, r.RequestURI)
		}
		next.ServeHTTP(w, r)
	})
}

// NewRouter returns the management API handler.
func NewRouter(jobs *service.JobService, config ServerConfig) (http.Handler, error) {
	server := jobServer{
		jobs:     jobs,
		validate: validator.New(),
		links:    pagination.NewLinkBuilder(config.ExternalUrl),
		version:  config.Version,
	}
	if err := validation.RegisterJobValidation(server.validate); err != nil {
		return nil, fmt.Errorf("error registering job validation: %w", err)
	}

	router := mux.NewRouter()
	router.HandleFunc("/jobs", server.listJobsHandler).Methods("GET")
	router.HandleFunc("/jobs", server.createJobHandler).Methods("POST")
	router.HandleFunc("/jobs/{id}", server.getJobHandler).Methods("GET")
	router.HandleFunc("/jobs/{id}", server.deleteJobHandler).Methods("DELETE")
	router.HandleFunc("/jobs/{id}/cancel", server.cancelJobHandler).Methods("POST")
	router.HandleFunc("/check-health", server.checkHealthHandler).Methods("GET")
	router.HandleFunc("/version", server.versionHandler).Methods("GET")
	router.Use(loggingMiddleware)
	return stripTrailingSlash(router), nil
}

// stripTrailingSlash routes "/jobs/" like "/jobs" without redirecting, so
// request bodies are kept.
func stripTrailingSlash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(r.URL.Path) > 1 && strings.HasSuffix(r.URL.Path, "/") {
			if r.URL.Path = strings.TrimRight(r.URL.Path, "/"); r.URL.Path == "" {
				r.URL.Path = "/"
			}
			r.URL.RawPath = strings.TrimRight(r.URL.RawPath, "/")
		}
		next.ServeHTTP(w, r)
	})
}

func NewJobServer(jobs *service.JobService, config ServerConfig) (*http.Server, error) {
	router, err := NewRouter(jobs, config)
	if err != nil {
		return nil, err
	}
	return &http.Server{Addr: config.Addr, Handler: router}, nil
}

package endpoints

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docscan/internal/api"
	"github.com/jackzampolin/docscan/internal/jobs"
	"github.com/jackzampolin/docscan/internal/svcctx"
)

// ListTasksResponse is the response for listing passes.
type ListTasksResponse struct {
	Tasks []jobs.Record `json:"tasks"`
}

func trackerFrom(w http.ResponseWriter, r *http.Request) *jobs.Tracker {
	holder := svcctx.HolderFrom(r.Context())
	if holder == nil {
		writeError(w, http.StatusServiceUnavailable, "view state not initialized")
		return nil
	}
	return holder.Tracker()
}

// ListTasksEndpoint handles GET /api/tasks.
type ListTasksEndpoint struct{}

func (e *ListTasksEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/tasks", e.handler
}

func (e *ListTasksEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List passes
//	@Description	List recent capture and pick passes, newest first
//	@Tags			tasks
//	@Produce		json
//	@Param			phase	query		string	false	"Filter by phase"
//	@Param			kind	query		string	false	"Filter by kind (capture, pick)"
//	@Param			limit	query		int		false	"Maximum number of results"
//	@Success		200		{object}	ListTasksResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/tasks [get]
func (e *ListTasksEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	tracker := trackerFrom(w, r)
	if tracker == nil {
		return
	}

	q := r.URL.Query()
	filter := jobs.ListFilter{
		Phase: jobs.Phase(q.Get("phase")),
		Kind:  jobs.Kind(q.Get("kind")),
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	writeJSON(w, http.StatusOK, ListTasksResponse{Tasks: tracker.List(filter)})
}

func (e *ListTasksEndpoint) Command(getServerURL func() string) *cobra.Command {
	var phase, kind string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent passes",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())

			path := "/api/tasks"
			params := url.Values{}
			if phase != "" {
				params.Set("phase", phase)
			}
			if kind != "" {
				params.Set("kind", kind)
			}
			if limit > 0 {
				params.Set("limit", strconv.Itoa(limit))
			}
			if len(params) > 0 {
				path += "?" + params.Encode()
			}

			var resp ListTasksResponse
			if err := client.Get(cmd.Context(), path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&phase, "phase", "", "Filter by phase")
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by kind (capture, pick)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")
	return cmd
}

// GetTaskEndpoint handles GET /api/tasks/{id}.
type GetTaskEndpoint struct{}

func (e *GetTaskEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/tasks/{id}", e.handler
}

func (e *GetTaskEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Get pass by ID
//	@Tags		tasks
//	@Produce	json
//	@Param		id	path		string	true	"Task ID"
//	@Success	200	{object}	TaskResponse
//	@Failure	404	{object}	ErrorResponse
//	@Failure	503	{object}	ErrorResponse
//	@Router		/api/tasks/{id} [get]
func (e *GetTaskEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	tracker := trackerFrom(w, r)
	if tracker == nil {
		return
	}
	task, ok := tracker.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, TaskResponse{Task: task.Record()})
}

func (e *GetTaskEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a pass by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp TaskResponse
			if err := client.Get(cmd.Context(), "/api/tasks/"+url.PathEscape(args[0]), &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// CancelTaskResponse reports whether a cancel took effect.
type CancelTaskResponse struct {
	Cancelled bool        `json:"cancelled"`
	Task      jobs.Record `json:"task"`
}

// CancelTaskEndpoint handles POST /api/tasks/{id}/cancel.
type CancelTaskEndpoint struct{}

func (e *CancelTaskEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/tasks/{id}/cancel", e.handler
}

func (e *CancelTaskEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Cancel a pass
//	@Description	A cancelled pass never writes view state. Finished passes are left as they are.
//	@Tags			tasks
//	@Produce		json
//	@Param			id	path		string	true	"Task ID"
//	@Success		200	{object}	CancelTaskResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/tasks/{id}/cancel [post]
func (e *CancelTaskEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	tracker := trackerFrom(w, r)
	if tracker == nil {
		return
	}
	task, ok := tracker.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	cancelled := task.Cancel()
	if cancelled {
		svcctx.LoggerFrom(r.Context()).Info("pass cancelled", "task", task.ID)
	}
	writeJSON(w, http.StatusOK, CancelTaskResponse{Cancelled: cancelled, Task: task.Record()})
}

func (e *CancelTaskEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a running pass",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp CancelTaskResponse
			if err := client.Post(cmd.Context(), "/api/tasks/"+url.PathEscape(args[0])+"/cancel", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

package endpoints

import (
	"context"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docscan/internal/api"
	"github.com/jackzampolin/docscan/internal/jobs"
	"github.com/jackzampolin/docscan/internal/svcctx"
)

// TaskResponse wraps a pass record.
type TaskResponse struct {
	Task jobs.Record `json:"task"`
}

// PlainText renders the pass for --output text.
func (r TaskResponse) PlainText() string { return r.Task.PlainText() }

// CaptureEndpoint handles POST /api/capture.
type CaptureEndpoint struct{}

func (e *CaptureEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/capture", e.handler
}

func (e *CaptureEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Capture and recognize
//	@Description	Takes a still picture, stores it and recognizes its text. With wait=true the response is sent when the pass finishes.
//	@Tags			scan
//	@Produce		json
//	@Param			wait	query		bool	false	"Wait for the pass to finish"
//	@Success		200		{object}	TaskResponse
//	@Success		202		{object}	TaskResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/capture [post]
func (e *CaptureEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	holder := svcctx.HolderFrom(r.Context())
	if holder == nil {
		writeError(w, http.StatusServiceUnavailable, "view state not initialized")
		return
	}

	// The pass outlives the request.
	task, err := holder.Capture(context.WithoutCancel(r.Context()))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondTask(w, r, task)
}

func (e *CaptureEndpoint) Command(getServerURL func() string) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture a picture and recognize its text",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := "/api/capture"
			if wait {
				path += "?wait=true"
			}
			var resp TaskResponse
			if err := client.Post(cmd.Context(), path, nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for recognition to finish")
	return cmd
}

// respondTask writes the task, waiting for it first when ?wait=true.
func respondTask(w http.ResponseWriter, r *http.Request, task *jobs.Task) {
	if r.URL.Query().Get("wait") == "true" {
		select {
		case <-task.Done():
			writeJSON(w, http.StatusOK, TaskResponse{Task: task.Record()})
			return
		case <-r.Context().Done():
			return
		}
	}
	writeJSON(w, http.StatusAccepted, TaskResponse{Task: task.Record()})
}

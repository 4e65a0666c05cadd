package endpoints

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docscan/internal/api"
	"github.com/jackzampolin/docscan/internal/camera"
	"github.com/jackzampolin/docscan/internal/svcctx"
)

// PreviewResponse reports the preview binding.
type PreviewResponse struct {
	Bound bool `json:"bound"`
}

// BindPreviewEndpoint handles POST /api/preview/bind.
type BindPreviewEndpoint struct{}

func (e *BindPreviewEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/preview/bind", e.handler
}

func (e *BindPreviewEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Bind the camera preview
//	@Description	Binds preview, still capture and analysis to a new owner, replacing any previous binding
//	@Tags			preview
//	@Produce		json
//	@Success		200	{object}	PreviewResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/preview/bind [post]
func (e *BindPreviewEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	holder := svcctx.HolderFrom(ctx)
	lifecycle := svcctx.LifecycleFrom(ctx)
	frames := svcctx.FramesFrom(ctx)
	if holder == nil || lifecycle == nil || frames == nil {
		writeError(w, http.StatusServiceUnavailable, "camera not initialized")
		return
	}

	if err := holder.BindPreview(lifecycle.Start(), frames); err != nil {
		lifecycle.Stop()
		if errors.Is(err, camera.ErrNoCamera) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, PreviewResponse{Bound: true})
}

func (e *BindPreviewEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "bind",
		Short: "Bind the camera preview",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp PreviewResponse
			if err := client.Post(cmd.Context(), "/api/preview/bind", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// UnbindPreviewEndpoint handles POST /api/preview/unbind.
type UnbindPreviewEndpoint struct{}

func (e *UnbindPreviewEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/preview/unbind", e.handler
}

func (e *UnbindPreviewEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Unbind the camera preview
//	@Tags		preview
//	@Produce	json
//	@Success	200	{object}	PreviewResponse
//	@Failure	503	{object}	ErrorResponse
//	@Router		/api/preview/unbind [post]
func (e *UnbindPreviewEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	holder := svcctx.HolderFrom(ctx)
	lifecycle := svcctx.LifecycleFrom(ctx)
	if holder == nil || lifecycle == nil {
		writeError(w, http.StatusServiceUnavailable, "camera not initialized")
		return
	}
	lifecycle.Stop()
	holder.UnbindPreview()
	writeJSON(w, http.StatusOK, PreviewResponse{Bound: false})
}

func (e *UnbindPreviewEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "unbind",
		Short: "Release the camera",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp PreviewResponse
			if err := client.Post(cmd.Context(), "/api/preview/unbind", nil, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// PreviewFrameEndpoint handles GET /api/preview/frame.
type PreviewFrameEndpoint struct{}

func (e *PreviewFrameEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/preview/frame", e.handler
}

func (e *PreviewFrameEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Latest preview frame
//	@Description	The most recent JPEG rendered to the preview surface
//	@Tags			preview
//	@Produce		jpeg
//	@Success		200	{file}		binary
//	@Failure		404	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/preview/frame [get]
func (e *PreviewFrameEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	frames := svcctx.FramesFrom(r.Context())
	if frames == nil {
		writeError(w, http.StatusServiceUnavailable, "camera not initialized")
		return
	}
	frame, ok := frames.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "no preview frame yet")
		return
	}
	w.Header().Set("Content-Type", camera.CaptureMIMEType)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(frame.Seq, 10))
	w.Write(frame.Data)
}

func (e *PreviewFrameEndpoint) Command(getServerURL func() string) *cobra.Command {
	var outputFile string
	cmd := &cobra.Command{
		Use:   "frame",
		Short: "Save the latest preview frame",
		RunE: func(cmd *cobra.Command, args []string) error {
			return download(cmd, getServerURL(), "/api/preview/frame", outputFile)
		},
	}
	cmd.Flags().StringVarP(&outputFile, "file", "f", "frame.jpg", "Output file path")
	return cmd
}

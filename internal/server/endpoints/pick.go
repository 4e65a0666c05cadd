package endpoints

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/docscan/internal/api"
	"github.com/jackzampolin/docscan/internal/mediastore"
	"github.com/jackzampolin/docscan/internal/svcctx"
)

// DefaultMaxUploadBytes bounds picked image uploads when unconfigured.
const DefaultMaxUploadBytes = 32 << 20

// PickEndpoint handles POST /api/pick.
type PickEndpoint struct {
	MaxUploadBytes int64
}

func (e *PickEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/pick", e.handler
}

func (e *PickEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Recognize a picked image
//	@Description	Uploads an image as if chosen from the gallery and recognizes its text. The upload is deleted when the pass finishes.
//	@Tags			scan
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			image	formData	file	true	"Image file"
//	@Param			wait	query		bool	false	"Wait for the pass to finish"
//	@Success		200		{object}	TaskResponse
//	@Success		202		{object}	TaskResponse
//	@Failure		400		{object}	ErrorResponse
//	@Failure		413		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/pick [post]
func (e *PickEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	holder := svcctx.HolderFrom(ctx)
	h := svcctx.HomeFrom(ctx)
	if holder == nil || h == nil {
		writeError(w, http.StatusServiceUnavailable, "view state not initialized")
		return
	}

	limit := e.MaxUploadBytes
	if limit <= 0 {
		limit = DefaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	file, header, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	br := bufio.NewReader(file)
	mime := mediastore.MIMEType(header.Filename)
	if mime == "" {
		head, _ := br.Peek(512)
		mime = strings.TrimSpace(strings.Split(http.DetectContentType(head), ";")[0])
	}
	if !strings.HasPrefix(mime, "image/") {
		writeError(w, http.StatusBadRequest, "upload is not an image")
		return
	}

	uploads := mediastore.New(h.UploadsPath(), svcctx.LoggerFrom(ctx))
	ref, err := uploads.Insert(ctx, mediastore.ContentValues{
		DisplayName: uuid.NewString(),
		MIMEType:    mime,
	}, br)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task, err := holder.Pick(context.WithoutCancel(ctx), ref, true)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondTask(w, r, task)
}

func (e *PickEndpoint) Command(getServerURL func() string) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "pick <file>",
		Short: "Recognize text in an existing image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			path := "/api/pick"
			if wait {
				path += "?wait=true"
			}
			var resp TaskResponse
			if err := client.PostFile(cmd.Context(), path, "image", args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for recognition to finish")
	return cmd
}

package endpoints

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docscan/internal/api"
	"github.com/jackzampolin/docscan/internal/camera"
	"github.com/jackzampolin/docscan/internal/mediastore"
	"github.com/jackzampolin/docscan/internal/svcctx"
)

// ListCapturesResponse is the response for listing stored captures.
type ListCapturesResponse struct {
	RelativePath string            `json:"relative_path"`
	Captures     []mediastore.Item `json:"captures"`
}

func capturesFolder(r *http.Request) (*mediastore.Store, string, bool) {
	store := svcctx.StoreFrom(r.Context())
	if store == nil {
		return nil, "", false
	}
	rel := camera.DefaultRelativePath
	if repo := svcctx.CameraFrom(r.Context()); repo != nil {
		rel = repo.RelativePath()
	}
	return store, rel, true
}

// ListCapturesEndpoint handles GET /api/captures.
type ListCapturesEndpoint struct{}

func (e *ListCapturesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/captures", e.handler
}

func (e *ListCapturesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	List stored captures
//	@Tags		captures
//	@Produce	json
//	@Success	200	{object}	ListCapturesResponse
//	@Failure	500	{object}	ErrorResponse
//	@Failure	503	{object}	ErrorResponse
//	@Router		/api/captures [get]
func (e *ListCapturesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	store, rel, ok := capturesFolder(r)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "media store not initialized")
		return
	}
	items, err := store.List(rel)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ListCapturesResponse{RelativePath: rel, Captures: items})
}

func (e *ListCapturesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored captures",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp ListCapturesResponse
			if err := client.Get(cmd.Context(), "/api/captures", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// GetCaptureEndpoint handles GET /api/captures/{name}.
type GetCaptureEndpoint struct{}

func (e *GetCaptureEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/captures/{name}", e.handler
}

func (e *GetCaptureEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary	Download a stored capture
//	@Tags		captures
//	@Produce	jpeg
//	@Param		name	path		string	true	"Capture name"
//	@Success	200		{file}		binary
//	@Failure	404		{object}	ErrorResponse
//	@Failure	503		{object}	ErrorResponse
//	@Router		/api/captures/{name} [get]
func (e *GetCaptureEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	store, rel, ok := capturesFolder(r)
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "media store not initialized")
		return
	}
	item, err := store.Find(rel, r.PathValue("name"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	path, err := item.Reference.Path()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", item.MIMEType)
	http.ServeFile(w, r, path)
}

func (e *GetCaptureEndpoint) Command(getServerURL func() string) *cobra.Command {
	var outputFile string
	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Download a stored capture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputFile == "" {
				outputFile = args[0] + ".jpg"
			}
			return download(cmd, getServerURL(), "/api/captures/"+url.PathEscape(args[0]), outputFile)
		},
	}
	cmd.Flags().StringVarP(&outputFile, "file", "f", "", "Output file path (default: <name>.jpg)")
	return cmd
}

// ExportCaptureEndpoint handles GET /api/captures/{name}/pdf.
type ExportCaptureEndpoint struct{}

func (e *ExportCaptureEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/captures/{name}/pdf", e.handler
}

func (e *ExportCaptureEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Share a capture as PDF
//	@Description	Wraps a stored capture in a single-page PDF
//	@Tags			captures
//	@Produce		application/pdf
//	@Param			name	path		string	true	"Capture name"
//	@Success		200		{file}		binary
//	@Failure		404		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/captures/{name}/pdf [get]
func (e *ExportCaptureEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	store, rel, ok := capturesFolder(r)
	h := svcctx.HomeFrom(r.Context())
	if !ok || h == nil {
		writeError(w, http.StatusServiceUnavailable, "media store not initialized")
		return
	}
	name := r.PathValue("name")
	item, err := store.Find(rel, name)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	outPath := filepath.Join(h.ExportsPath(), item.Name+".pdf")
	if _, err := store.ExportPDF(r.Context(), []mediastore.Reference{item.Reference}, outPath); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", item.Name+".pdf"))
	http.ServeFile(w, r, outPath)
}

func (e *ExportCaptureEndpoint) Command(getServerURL func() string) *cobra.Command {
	var outputFile string
	cmd := &cobra.Command{
		Use:   "export <name>",
		Short: "Export a capture as PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputFile == "" {
				outputFile = args[0] + ".pdf"
			}
			return download(cmd, getServerURL(), "/api/captures/"+url.PathEscape(args[0])+"/pdf", outputFile)
		},
	}
	cmd.Flags().StringVarP(&outputFile, "file", "f", "", "Output file path (default: <name>.pdf)")
	return cmd
}

// download saves a binary response to outputFile.
func download(cmd *cobra.Command, serverURL, path, outputFile string) error {
	f, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outputFile, err)
	}
	client := api.NewClient(serverURL)
	_, err = client.Download(cmd.Context(), path, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(outputFile)
		return err
	}
	cmd.Printf("Saved %s\n", outputFile)
	return nil
}

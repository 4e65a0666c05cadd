package endpoints

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/docscan/internal/api"
	"github.com/jackzampolin/docscan/internal/svcctx"
	"github.com/jackzampolin/docscan/internal/viewstate"
)

// GetStateEndpoint handles GET /api/state.
type GetStateEndpoint struct{}

func (e *GetStateEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/state", e.handler
}

func (e *GetStateEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get view state
//	@Description	Recognized text, button visibility and the transient notice
//	@Tags			state
//	@Produce		json
//	@Success		200	{object}	viewstate.Snapshot
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/state [get]
func (e *GetStateEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	holder := svcctx.HolderFrom(r.Context())
	if holder == nil {
		writeError(w, http.StatusServiceUnavailable, "view state not initialized")
		return
	}
	snap, err := holder.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (e *GetStateEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show the current view state",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var snap viewstate.Snapshot
			if err := client.Get(cmd.Context(), "/api/state", &snap); err != nil {
				return err
			}
			return api.Output(snap)
		},
	}
}

// StateEventsEndpoint handles GET /api/state/events.
type StateEventsEndpoint struct{}

func (e *StateEventsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/state/events", e.handler
}

func (e *StateEventsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Stream view state
//	@Description	Server-sent events: one "state" event with the current snapshot, then one per change. Slow readers only see the latest state.
//	@Tags			state
//	@Produce		text/event-stream
//	@Success		200	{object}	viewstate.Snapshot
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/state/events [get]
func (e *StateEventsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	holder := svcctx.HolderFrom(r.Context())
	if holder == nil {
		writeError(w, http.StatusServiceUnavailable, "view state not initialized")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	updates, err := holder.Subscribe(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for snap := range updates {
		data, err := json.Marshal(snap)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", data); err != nil {
			return
		}
		flusher.Flush()
	}
}

func (e *StateEventsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream view state changes until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			body, err := client.Stream(cmd.Context(), "/api/state/events")
			if err != nil {
				return err
			}
			defer body.Close()

			scanner := bufio.NewScanner(body)
			for scanner.Scan() {
				data, ok := strings.CutPrefix(scanner.Text(), "data: ")
				if !ok {
					continue
				}
				var snap viewstate.Snapshot
				if err := json.Unmarshal([]byte(data), &snap); err != nil {
					return fmt.Errorf("failed to decode event: %w", err)
				}
				if err := api.Output(snap); err != nil {
					return err
				}
			}
			if cmd.Context().Err() != nil {
				return nil
			}
			return scanner.Err()
		},
	}
}

// ClearStateEndpoint handles POST /api/state/clear.
type ClearStateEndpoint struct{}

func (e *ClearStateEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/state/clear", e.handler
}

func (e *ClearStateEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Dismiss recognized text
//	@Description	Drops the text and hides both buttons. Passes already running can no longer write.
//	@Tags			state
//	@Produce		json
//	@Success		200	{object}	viewstate.Snapshot
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/state/clear [post]
func (e *ClearStateEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	holder := svcctx.HolderFrom(r.Context())
	if holder == nil {
		writeError(w, http.StatusServiceUnavailable, "view state not initialized")
		return
	}
	if err := holder.Clear(); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	// Snapshot queues behind Clear on the executor.
	snap, err := holder.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (e *ClearStateEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Dismiss the recognized text",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var snap viewstate.Snapshot
			if err := client.Post(cmd.Context(), "/api/state/clear", nil, &snap); err != nil {
				return err
			}
			return api.Output(snap)
		},
	}
}

// StateTextEndpoint handles GET /api/state/text.
type StateTextEndpoint struct{}

func (e *StateTextEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/state/text", e.handler
}

func (e *StateTextEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Copy recognized text
//	@Description	Returns the recognized text as plain text
//	@Tags			state
//	@Produce		plain
//	@Success		200	{string}	string
//	@Failure		404	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/state/text [get]
func (e *StateTextEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	holder := svcctx.HolderFrom(r.Context())
	if holder == nil {
		writeError(w, http.StatusServiceUnavailable, "view state not initialized")
		return
	}
	snap, err := holder.Snapshot(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if snap.RecognizedText == nil {
		writeError(w, http.StatusNotFound, "no recognized text")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(*snap.RecognizedText))
}

func (e *StateTextEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "text",
		Short: "Print the recognized text",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			_, err := client.Download(cmd.Context(), "/api/state/text", cmd.OutOrStdout())
			return err
		},
	}
}

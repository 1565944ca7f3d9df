package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/dharsanguruparan/FlatDrop/internal/expiry"
	"github.com/dharsanguruparan/FlatDrop/internal/model"
	"github.com/dharsanguruparan/FlatDrop/internal/processing"
	"github.com/dharsanguruparan/FlatDrop/internal/storage"
)

type convertResponse struct {
	ID               string    `json:"id"`
	DownloadURL      string    `json:"downloadUrl"`
	TimeRemainingURL string    `json:"timeRemainingUrl"`
	ExpiresAt        time.Time `json:"expiresAt"`
	Pages            int       `json:"pages"`
}

type remainingResponse struct {
	Filename             string  `json:"filename"`
	TimeRemaining        float64 `json:"timeRemaining"`
	TimeRemainingSeconds int64   `json:"timeRemainingSeconds"`
	Expired              bool    `json:"expired,omitempty"`
}

func newRemainingResponse(id string, d time.Duration) remainingResponse {
	return remainingResponse{
		Filename:             id,
		TimeRemaining:        d.Seconds(),
		TimeRemainingSeconds: int64(d / time.Second),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	upload, err := s.receiveUpload(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer func() {
		if err := upload.remove(); err != nil {
			s.log.Warn().Err(err).Str("path", upload.path).Msg("remove upload")
		}
	}()

	// A started conversion outlives a client disconnect.
	artifact, err := s.conv.Convert(context.WithoutCancel(r.Context()), processing.Input{UploadPath: upload.path})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, convertResponse{
		ID:               artifact.ID,
		DownloadURL:      absoluteURL(r, artifact.Locator),
		TimeRemainingURL: absoluteURL(r, "/time-remaining/"+url.PathEscape(artifact.ID)),
		ExpiresAt:        artifact.ExpiresAt,
		Pages:            artifact.Pages,
	})
}

func (s *Server) handleTimeRemaining(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "filename")
	remaining, err := s.avail.TimeRemaining(id)
	if err != nil {
		s.writeError(w, r, availabilityError(err))
		return
	}
	respondJSON(w, http.StatusOK, newRemainingResponse(id, remaining))
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleTimeRemainingStream pushes one countdown frame per tick until the
// artifact is gone, then a final expired frame.
func (s *Server) handleTimeRemainingStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "filename")
	if _, err := s.avail.TimeRemaining(id); err != nil {
		s.writeError(w, r, availabilityError(err))
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// Reading is required to notice a client close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.opts.StreamInterval)
	defer ticker.Stop()
	for {
		remaining, err := s.avail.TimeRemaining(id)
		if err != nil {
			_ = conn.WriteJSON(remainingResponse{Filename: id, Expired: true})
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "expired"),
				time.Now().Add(time.Second))
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(newRemainingResponse(id, remaining)); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "filename")
	if _, err := s.avail.TimeRemaining(id); err != nil {
		s.writeError(w, r, availabilityError(err))
		return
	}
	if err := s.opts.Downloads.VerifyLink(id, r.URL.Query(), s.clock.Now()); err != nil {
		s.log.Debug().Err(err).Str("artifact", id).Msg("download link rejected")
		s.writeError(w, r, model.AuthError())
		return
	}
	obj, err := s.opts.Downloads.Open(r.Context(), id)
	if err != nil {
		s.writeError(w, r, availabilityError(err))
		return
	}
	defer obj.Content.Close()
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id))
	http.ServeContent(w, r, id, obj.ModTime, obj.Content)
}

func availabilityError(err error) error {
	if errors.Is(err, expiry.ErrNotFound) || errors.Is(err, storage.ErrNotFound) {
		return model.NotFoundError(err)
	}
	return err
}

// absoluteURL resolves a host-relative locator against the request.
func absoluteURL(r *http.Request, loc string) string {
	if u, err := url.Parse(loc); err == nil && u.IsAbs() {
		return loc
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	return scheme + "://" + r.Host + loc
}

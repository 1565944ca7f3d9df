package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/FlatDrop/internal/clock"
	"github.com/dharsanguruparan/FlatDrop/internal/expiry"
	"github.com/dharsanguruparan/FlatDrop/internal/imaging"
	"github.com/dharsanguruparan/FlatDrop/internal/model"
	pdfutil "github.com/dharsanguruparan/FlatDrop/internal/pdf"
	"github.com/dharsanguruparan/FlatDrop/internal/processing"
	"github.com/dharsanguruparan/FlatDrop/internal/signing"
	"github.com/dharsanguruparan/FlatDrop/internal/storage"
)

const token = "s3cret"

type env struct {
	clock     *clock.Fake
	sched     *expiry.HeapScheduler
	registry  *expiry.Registry
	store     *storage.MemoryStore
	uploadDir string
	workDir   string
	handler   http.Handler
}

type envOption func(*Options)

func newEnv(t *testing.T, conv Converter, opts ...envOption) *env {
	t.Helper()
	e := &env{
		clock:     clock.NewFake(time.Date(2025, 2, 22, 12, 0, 0, 0, time.UTC)),
		store:     storage.NewMemoryStore(signing.NewSigner([]byte("link-secret"))),
		uploadDir: filepath.Join(t.TempDir(), "uploads"),
		workDir:   filepath.Join(t.TempDir(), "images"),
	}
	e.sched = expiry.NewHeapScheduler(e.clock, zerolog.Nop())
	e.registry = expiry.NewRegistry(e.clock, e.sched, processing.NewCleaner(e.store, e.workDir))
	if conv == nil {
		renderer := &processing.Renderer{
			Rasterizer: pdfutil.NewFitzRasterizer(200),
			Encoder:    imaging.NewFitter(100, 140),
			Assembler:  pdfutil.NewAssembler(0, 0, ""),
			Workers:    2,
			Verify:     pdfutil.PageCount,
		}
		conv = processing.NewPipeline(renderer, e.store, e.registry, processing.Options{
			TTL:     5 * time.Minute,
			WorkDir: e.workDir,
			Clock:   e.clock,
			Logger:  zerolog.Nop(),
		})
	}
	o := Options{
		AuthToken:      token,
		MaxFileSize:    1 << 20,
		UploadDir:      e.uploadDir,
		Downloads:      e.store,
		StreamInterval: 10 * time.Millisecond,
		Clock:          e.clock,
		Logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	srv, err := New(conv, e.registry, o)
	require.NoError(t, err)
	e.handler = srv.Handler()
	return e
}

// advance moves virtual time and fires due expiries.
func (e *env) advance(d time.Duration) {
	e.clock.Advance(d)
	e.sched.RunDue(context.Background(), e.registry.Expire)
}

func (e *env) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// samplePDF builds a document with the given number of pages.
func samplePDF(t *testing.T, pages int) []byte {
	t.Helper()
	var imgs []imaging.Page
	for i := 0; i < pages; i++ {
		img := image.NewGray(image.Rect(0, 0, 50, 70))
		for j := range img.Pix {
			img.Pix[j] = uint8(40 * i)
		}
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, img))
		imgs = append(imgs, imaging.Page{PNG: buf.Bytes(), Width: 50, Height: 70})
	}
	out, err := pdfutil.NewAssembler(0, 0, pdfutil.PlacementStretch).Assemble(context.Background(), imgs)
	require.NoError(t, err)
	return out
}

func uploadRequest(t *testing.T, path, field string, data []byte, auth string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		part, err := mw.CreateFormFile(field, "input.pdf")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("note", "no document"))
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	return req
}

func authed(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func dirEntries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	return entries
}

func TestConvertSurvivesClientDisconnect(t *testing.T) {
	e := newEnv(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := uploadRequest(t, "/convert", "pdf", samplePDF(t, 3), "Bearer "+token).WithContext(ctx)
	rec := e.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[convertResponse](t, rec)
	assert.Equal(t, 1, e.registry.Len())
	assert.True(t, e.store.Has(resp.ID))

	_, err := e.registry.TimeRemaining(resp.ID)
	assert.NoError(t, err)
}

func TestConvertEndToEnd(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(uploadRequest(t, "/convert", "pdf", samplePDF(t, 3), "Bearer "+token))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[convertResponse](t, rec)
	assert.Equal(t, 3, resp.Pages)
	assert.True(t, strings.HasPrefix(resp.DownloadURL, "http://example.com/downloads/"+resp.ID+"?"))
	assert.Equal(t, "http://example.com/time-remaining/"+resp.ID, resp.TimeRemainingURL)
	assert.Empty(t, dirEntries(t, e.uploadDir), "upload removed")

	rec = e.do(authed(http.MethodGet, "/time-remaining/"+resp.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	remaining := decode[remainingResponse](t, rec)
	assert.Equal(t, resp.ID, remaining.Filename)
	assert.InDelta(t, 300, remaining.TimeRemaining, 1)

	e.advance(2 * time.Minute)
	remaining = decode[remainingResponse](t, e.do(authed(http.MethodGet, "/time-remaining/"+resp.ID)))
	assert.Equal(t, int64(180), remaining.TimeRemainingSeconds)

	dl, err := url.Parse(resp.DownloadURL)
	require.NoError(t, err)
	rec = e.do(authed(http.MethodGet, dl.RequestURI()))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	pages, err := pdfutil.PageCount(rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 3, pages)

	e.advance(3*time.Minute + time.Second)
	rec = e.do(authed(http.MethodGet, "/time-remaining/"+resp.ID))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", decode[errorResponse](t, rec).Error)
	assert.Equal(t, http.StatusNotFound, e.do(authed(http.MethodGet, dl.RequestURI())).Code)
	assert.Equal(t, 0, e.store.Len())
	assert.Empty(t, dirEntries(t, e.workDir))
}

func TestConvertRejectsBadTokenWithoutSideEffects(t *testing.T) {
	for name, auth := range map[string]string{
		"missing": "",
		"wrong":   "Bearer nope",
		"scheme":  "Basic " + token,
	} {
		t.Run(name, func(t *testing.T) {
			e := newEnv(t, nil)
			for _, path := range []string{"/convert", "/convert-pdf"} {
				rec := e.do(uploadRequest(t, path, "pdf", samplePDF(t, 1), auth))
				assert.Equal(t, http.StatusForbidden, rec.Code)
				assert.Equal(t, "forbidden", decode[errorResponse](t, rec).Error)
			}
			assert.Empty(t, dirEntries(t, e.uploadDir))
			assert.Empty(t, dirEntries(t, e.workDir))
			assert.Equal(t, 0, e.registry.Len())
			assert.Equal(t, 0, e.store.Len())
		})
	}
}

func TestConvertAcceptsAlternateFieldNames(t *testing.T) {
	e := newEnv(t, nil)
	for _, field := range []string{"document", "file"} {
		rec := e.do(uploadRequest(t, "/convert-pdf", field, samplePDF(t, 1), "Bearer "+token))
		assert.Equal(t, http.StatusOK, rec.Code, field)
	}
	assert.Equal(t, 2, e.registry.Len())
}

func TestConvertMissingField(t *testing.T) {
	e := newEnv(t, nil)
	rec := e.do(uploadRequest(t, "/convert", "", nil, "Bearer "+token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing document field", decode[errorResponse](t, rec).Error)
}

func TestConvertNotMultipart(t *testing.T) {
	e := newEnv(t, nil)
	req := authed(http.MethodPost, "/convert")
	req.Body = io.NopCloser(strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusBadRequest, e.do(req).Code)
}

func TestConvertOversize(t *testing.T) {
	e := newEnv(t, nil, func(o *Options) { o.MaxFileSize = 16 })
	rec := e.do(uploadRequest(t, "/convert", "pdf", bytes.Repeat([]byte("x"), 64), "Bearer "+token))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, dirEntries(t, e.uploadDir))
}

type failingConverter struct{}

func (failingConverter) Convert(context.Context, processing.Input) (*model.Artifact, error) {
	return nil, model.ConversionError(processing.StageRasterize, errors.New("xref table at /tmp/secret is broken"))
}

func TestConvertFailureIsGeneric(t *testing.T) {
	e := newEnv(t, failingConverter{})
	rec := e.do(uploadRequest(t, "/convert", "pdf", []byte("not a pdf"), "Bearer "+token))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "conversion failed", decode[errorResponse](t, rec).Error)
	assert.NotContains(t, rec.Body.String(), "secret")
	assert.Empty(t, dirEntries(t, e.uploadDir))
}

func TestConvertGarbageInputFails(t *testing.T) {
	e := newEnv(t, nil)
	rec := e.do(uploadRequest(t, "/convert", "pdf", []byte("plain text, not a document"), "Bearer "+token))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 0, e.registry.Len())
	assert.Empty(t, dirEntries(t, e.uploadDir))
}

func TestTimeRemainingUnknownID(t *testing.T) {
	e := newEnv(t, nil)
	rec := e.do(authed(http.MethodGet, "/time-remaining/converted_0_never.pdf"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestTimeRemainingAuth(t *testing.T) {
	e := newEnv(t, nil)
	rec := e.do(httptest.NewRequest(http.MethodGet, "/time-remaining/x.pdf", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	open := newEnv(t, nil, func(o *Options) {
		o.OpenTimeRemaining = true
		o.Downloads = nil
	})
	rec = open.do(httptest.NewRequest(http.MethodGet, "/time-remaining/x.pdf", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = open.do(authed(http.MethodGet, "/downloads/x.pdf"))
	assert.Equal(t, http.StatusNotFound, rec.Code, "no download route for remote stores")
}

func TestDownloadRejectsTamperedLink(t *testing.T) {
	e := newEnv(t, nil)
	resp := decode[convertResponse](t, e.do(uploadRequest(t, "/convert", "pdf", samplePDF(t, 1), "Bearer "+token)))

	rec := e.do(authed(http.MethodGet, "/downloads/"+resp.ID+"?expires=9999999999&signature=abc"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	dl, err := url.Parse(resp.DownloadURL)
	require.NoError(t, err)
	rec = e.do(httptest.NewRequest(http.MethodGet, dl.RequestURI(), nil))
	assert.Equal(t, http.StatusForbidden, rec.Code, "bearer required")
}

func TestMethodNotAllowedAndUnknownRoute(t *testing.T) {
	e := newEnv(t, nil)
	rec := e.do(authed(http.MethodGet, "/convert"))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "method not allowed", decode[errorResponse](t, rec).Error)

	rec = e.do(authed(http.MethodDelete, "/time-remaining/x.pdf"))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = e.do(authed(http.MethodGet, "/nope"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	e := newEnv(t, nil)
	rec := e.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(failingConverter{}, nil, Options{UploadDir: t.TempDir()})
	assert.Error(t, err)
}

func TestTimeRemainingStream(t *testing.T) {
	e := newEnv(t, nil)
	resp := decode[convertResponse](t, e.do(uploadRequest(t, "/convert", "pdf", samplePDF(t, 1), "Bearer "+token)))

	ts := httptest.NewServer(e.handler)
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/time-remaining/" + resp.ID + "/stream"
	header := http.Header{"Authorization": {"Bearer " + token}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	var first remainingResponse
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, resp.ID, first.Filename)
	assert.Equal(t, int64(300), first.TimeRemainingSeconds)

	e.advance(5 * time.Minute)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var frame remainingResponse
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Expired {
			break
		}
	}
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestTimeRemainingStreamUnknownID(t *testing.T) {
	e := newEnv(t, nil)
	ts := httptest.NewServer(e.handler)
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/time-remaining/missing.pdf/stream"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Authorization": {"Bearer " + token}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-slideshow/internal/images"
	"github.com/i474232898/weather-slideshow/internal/mail"
	"github.com/i474232898/weather-slideshow/internal/radar"
	"github.com/i474232898/weather-slideshow/internal/slideshow"
	"github.com/i474232898/weather-slideshow/internal/weather"
)

type fakeWeather struct {
	obs     weather.Observation
	err     error
	history []weather.Observation
}

func (f *fakeWeather) Current(context.Context) (weather.Observation, error) { return f.obs, f.err }
func (f *fakeWeather) History(from, to time.Time) ([]weather.Observation, error) {
	return f.history, nil
}
func (f *fakeWeather) Status() weather.Status { return weather.Status{Connected: f.err == nil} }

type fakeImages struct {
	urls    []string
	lookup  map[string]images.Image
	saved   []string
	saveErr error
	deleted []string
}

func (f *fakeImages) URLs() []string { return f.urls }
func (f *fakeImages) Lookup(url string) (images.Image, bool) {
	img, ok := f.lookup[url]
	return img, ok
}
func (f *fakeImages) Save(name string, data []byte) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	f.saved = append(f.saved, name)
	return "image_1_abcdef12.jpg", nil
}
func (f *fakeImages) Delete(name string) (bool, error) {
	if strings.Contains(name, "..") {
		return false, images.ErrInvalidName
	}
	if name == "missing.jpg" {
		return false, nil
	}
	f.deleted = append(f.deleted, name)
	return true, nil
}
func (f *fakeImages) Status() images.Status { return images.Status{ImageCount: len(f.urls)} }

type fakeRadar struct {
	ref radar.Ref
	ok  bool
}

func (f *fakeRadar) Latest() (radar.Ref, bool) { return f.ref, f.ok }
func (f *fakeRadar) Status() radar.Status       { return radar.Status{Connected: f.ok} }

type fakeMail struct{}

func (fakeMail) Status() mail.Status { return mail.Status{Connected: true} }

type fakeShow struct {
	mu        sync.Mutex
	frame     slideshow.Frame
	err       error
	calls     []string
	gesture   slideshow.Gesture
	viewport  [2]float64
	reason    string
	refreshes int
	pending   []slideshow.Frame
}

func (f *fakeShow) record(call string) (slideshow.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.frame, f.err
}

func (f *fakeShow) Frame() slideshow.Frame { return f.frame }
func (f *fakeShow) Next(context.Context) (slideshow.Frame, error) {
	return f.record("next")
}
func (f *fakeShow) Previous(context.Context) (slideshow.Frame, error) {
	return f.record("previous")
}
func (f *fakeShow) Toggle(context.Context) (slideshow.Frame, error) {
	return f.record("toggle")
}
func (f *fakeShow) Gesture(_ context.Context, g slideshow.Gesture) (slideshow.Intent, slideshow.Frame, error) {
	f.gesture = g
	fr, err := f.record("gesture")
	return slideshow.IntentNext, fr, err
}
func (f *fakeShow) SetViewport(_ context.Context, w, h float64) (slideshow.Frame, error) {
	f.viewport = [2]float64{w, h}
	return f.record("viewport")
}
func (f *fakeShow) RadarLoaded(context.Context, uint64) (slideshow.Frame, bool, error) {
	fr, err := f.record("radar-loaded")
	return fr, true, err
}
func (f *fakeShow) RadarFailed(_ context.Context, _ uint64, reason string) (slideshow.Frame, bool, error) {
	f.reason = reason
	fr, err := f.record("radar-failed")
	return fr, true, err
}
func (f *fakeShow) Refresh(context.Context) (slideshow.Frame, error) {
	f.refreshes++
	return f.frame, nil
}
func (f *fakeShow) Subscribe() (string, <-chan slideshow.Frame, func()) {
	ch := make(chan slideshow.Frame, len(f.pending))
	for _, fr := range f.pending {
		ch <- fr
	}
	close(ch)
	return "sub-1", ch, func() {}
}

type testEnv struct {
	app     *fiber.App
	weather *fakeWeather
	images  *fakeImages
	radar   *fakeRadar
	show    *fakeShow
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		app:     fiber.New(fiber.Config{ErrorHandler: ErrorHandler}),
		weather: &fakeWeather{},
		images:  &fakeImages{},
		radar:   &fakeRadar{},
		show: &fakeShow{frame: slideshow.Frame{
			Decision: slideshow.Decision{Kind: slideshow.KindPhoto, Image: "/uploads/images/a.jpg", Playing: true},
			Seq:      7,
		}},
	}
	RegisterRoutes(env.app, Deps{
		Weather:       env.weather,
		Images:        env.images,
		Radar:         env.radar,
		Mail:          fakeMail{},
		Slideshow:     env.show,
		RadarLocation: "Central Florida",
		Now:           func() time.Time { return time.UnixMilli(1700000123456) },
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, target string, body io.Reader, contentType string) (*http.Response, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := e.app.Test(req, 2000)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	return resp, data
}

func (e *testEnv) postJSON(t *testing.T, target, body string) (*http.Response, []byte) {
	t.Helper()
	return e.do(t, http.MethodPost, target, strings.NewReader(body), fiber.MIMEApplicationJSON)
}

func decode(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestImagesList(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/images", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[]`, string(body))

	env.images.urls = []string{"/uploads/images/b.jpg", "/uploads/images/a.jpg"}
	_, body = env.do(t, http.MethodGet, "/api/images", nil, "")
	assert.JSONEq(t, `["/uploads/images/b.jpg","/uploads/images/a.jpg"]`, string(body))
}

func TestRadarEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/radar", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"No radar image available"}`, string(body))

	env.radar.ref = radar.Ref{URL: "/uploads/radar/radar_1.png", CapturedAt: time.UnixMilli(1700000000000)}
	env.radar.ok = true
	resp, body = env.do(t, http.MethodGet, "/api/radar", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{
		"radarUrl": "/uploads/radar/radar_1.png?t=1700000123456",
		"timestamp": 1700000000000,
		"location": "Central Florida"
	}`, string(body))
}

func TestRadarEndpoint_NotConfigured(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterRoutes(app, Deps{Weather: &fakeWeather{}, Images: &fakeImages{}, Slideshow: &fakeShow{}})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/radar", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWeatherEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.weather.err = errors.New("all providers failed")

	resp, body := env.do(t, http.MethodGet, "/api/weather", nil, "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Failed to fetch weather data"}`, string(body))

	env.weather.err = nil
	env.weather.obs = weather.Observation{Temperature: 78.5, Description: "clear sky", Location: "Melbourne"}
	resp, body = env.do(t, http.MethodGet, "/api/weather", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	m := decode(t, body)
	assert.Equal(t, 78.5, m["temperature"])
	assert.Equal(t, "clear sky", m["description"])
}

func TestWeatherHistoryValidation(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodGet, "/api/weather/history", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := env.do(t, http.MethodGet, "/api/weather/history?from=1700000100&to=1700000000", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, true, decode(t, body)["error"])

	resp, _ = env.do(t, http.MethodGet, "/api/weather/history?from=yesterday&to=1700000000", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	env.weather.history = []weather.Observation{{Temperature: 70}}
	resp, body = env.do(t, http.MethodGet, "/api/weather/history?from=2023-11-14T00:00:00Z&to=1700000000", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode(t, body)["observations"], 1)
}

func TestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.images.urls = []string{"/uploads/images/a.jpg"}

	resp, body := env.do(t, http.MethodGet, "/api/status", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{
		"email": {"connected": true},
		"weather": {"connected": true},
		"images": {"imageCount": 1},
		"radar": {"connected": false}
	}`, string(body))
}

func TestSlideshowFrameAndControls(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/slideshow", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	m := decode(t, body)
	assert.Equal(t, "photo", m["kind"])
	assert.Equal(t, float64(7), m["seq"])

	for _, action := range []string{"next", "previous", "toggle"} {
		resp, _ := env.do(t, http.MethodPost, "/api/slideshow/"+action, nil, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode, action)
	}
	assert.Equal(t, []string{"next", "previous", "toggle"}, env.show.calls)

	env.show.err = slideshow.ErrStopped
	resp, _ = env.do(t, http.MethodPost, "/api/slideshow/next", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestSlideshowGesture(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.postJSON(t, "/api/slideshow/gesture", `{"dx":-80,"dy":4,"durationMs":120}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "next", decode(t, body)["intent"])
	assert.Equal(t, slideshow.Gesture{DX: -80, DY: 4, Duration: 120 * time.Millisecond}, env.show.gesture)

	resp, _ = env.postJSON(t, "/api/slideshow/gesture", `{"dx":1,"dy":1,"durationMs":-5}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.postJSON(t, "/api/slideshow/gesture", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSlideshowViewport(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.postJSON(t, "/api/slideshow/viewport", `{"width":1920,"height":1080}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, [2]float64{1920, 1080}, env.show.viewport)

	resp, _ = env.postJSON(t, "/api/slideshow/viewport", `{"width":0,"height":1080}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSlideshowRadarReports(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.postJSON(t, "/api/slideshow/radar/loaded", `{"token":3}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decode(t, body)["accepted"])

	resp, _ = env.postJSON(t, "/api/slideshow/radar/failed", `{"token":3}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Failed to load radar image", env.show.reason)

	resp, _ = env.postJSON(t, "/api/slideshow/radar/failed", `{"token":3,"reason":"decode error"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "decode error", env.show.reason)

	resp, _ = env.postJSON(t, "/api/slideshow/radar/loaded", `{"token":0}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFitEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.images.lookup = map[string]images.Image{
		"/uploads/images/tall.jpg": {Name: "tall.jpg", URL: "/uploads/images/tall.jpg", Width: 600, Height: 1000},
	}

	resp, body := env.do(t, http.MethodGet, "/api/fit?imageWidth=1600&imageHeight=1000&viewportWidth=1770&viewportHeight=1000", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"orientation":"landscape","fit":"cover"}`, string(body))

	resp, body = env.do(t, http.MethodGet, "/api/fit?image=/uploads/images/tall.jpg&viewportWidth=1000&viewportHeight=1000", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"orientation":"portrait","fit":"contain"}`, string(body))

	resp, _ = env.do(t, http.MethodGet, "/api/fit?image=/uploads/images/none.jpg&viewportWidth=1000&viewportHeight=1000", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/fit?imageWidth=1600&imageHeight=1000", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/fit?viewportWidth=1000&viewportHeight=1000", nil, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSlideshowEvents(t *testing.T) {
	env := newTestEnv(t)
	env.show.pending = []slideshow.Frame{{Decision: slideshow.Decision{Kind: slideshow.KindRadar}, Seq: 8}}

	resp, body := env.do(t, http.MethodGet, "/api/slideshow/events", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	text := string(body)
	assert.Contains(t, text, "id: 7\nevent: frame\ndata: ")
	assert.Contains(t, text, "id: 8\nevent: frame\ndata: ")
	assert.Less(t, strings.Index(text, "id: 7"), strings.Index(text, "id: 8"))
	assert.Contains(t, text, `"kind":"radar"`)
}

func TestImageUploadAndDelete(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("images", "beach.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, body := env.do(t, http.MethodPost, "/api/images", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.JSONEq(t, `{"saved":["/uploads/images/image_1_abcdef12.jpg"]}`, string(body))
	assert.Equal(t, []string{"beach.jpg"}, env.images.saved)
	assert.Equal(t, 1, env.show.refreshes)

	resp, _ = env.do(t, http.MethodPost, "/api/images", strings.NewReader("{}"), fiber.MIMEApplicationJSON)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodDelete, "/api/images/beach.jpg", nil, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"beach.jpg"}, env.images.deleted)
	assert.Equal(t, 2, env.show.refreshes)

	resp, _ = env.do(t, http.MethodDelete, "/api/images/missing.jpg", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestImageUpload_RejectsNonImage(t *testing.T) {
	env := newTestEnv(t)
	env.images.saveErr = images.ErrNotImage

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("images", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, _ := env.do(t, http.MethodPost, "/api/images", &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

package echoapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/vitrine/apps/api/echo"
	"github.com/trezcool/vitrine/core/block"
	"github.com/trezcool/vitrine/core/page"
	"github.com/trezcool/vitrine/tests"
)

func openSession(t *testing.T, e env, blocks ...block.Block) (block.Document, page.Snapshot) {
	doc := testutil.CreatePage(t, e.repo, "Club", "club", blocks...)
	var snap page.Snapshot
	e.do(t, http.MethodPost, "/v1/pages/"+doc.ID+"/sessions", nil, http.StatusCreated, &snap)
	return doc, snap
}

func TestSessionAPI_editAndSave(t *testing.T) {
	e := setup(t)
	doc, snap := openSession(t, e)
	base := "/v1/sessions/" + snap.SessionID
	assert.Equal(t, doc.ID, snap.PageID)
	assert.Empty(t, snap.Blocks)

	var text, cta block.Block
	e.do(t, http.MethodPost, base+"/blocks", echoapi.AddBlockRequest{Type: "Text"}, http.StatusCreated, &text)
	e.do(t, http.MethodPost, base+"/blocks", echoapi.AddBlockRequest{Type: "cta"}, http.StatusCreated, &cta)
	assert.Equal(t, block.TypeText, text.Type)
	assert.Equal(t, 1, cta.Order)
	assert.Equal(t, block.DefaultConfig(block.TypeCTA), cta.Config)

	// drafts may be incomplete, saving them may not
	var saveErr struct {
		Error   string            `json:"error"`
		BlockID string            `json:"block_id"`
		Fields  map[string]string `json:"fields"`
	}
	e.do(t, http.MethodPost, base+"/save", nil, http.StatusBadRequest, &saveErr)
	assert.Equal(t, cta.ID, saveErr.BlockID)
	assert.Contains(t, saveErr.Fields, "title")

	var updated block.Block
	e.do(t, http.MethodPut, base+"/blocks/"+cta.ID, map[string]interface{}{
		"config": map[string]string{"title": "Join us", "link": "https://example.org/join"},
	}, http.StatusOK, &updated)
	assert.Equal(t, block.CTAConfig{Title: "Join us", Link: "https://example.org/join"}, updated.Config)

	var moved echoapi.MoveResponse
	e.do(t, http.MethodPost, base+"/blocks/"+cta.ID+"/move", map[string]string{"direction": "up"}, http.StatusOK, &moved)
	assert.True(t, moved.Moved)
	assert.Equal(t, cta.ID, moved.Blocks[0].ID)
	e.do(t, http.MethodPost, base+"/blocks/"+cta.ID+"/move", map[string]string{"direction": "up"}, http.StatusOK, &moved)
	assert.False(t, moved.Moved)

	var form block.Form
	e.do(t, http.MethodPatch, base+"/blocks/"+text.ID+"/form", echoapi.FormRequest{Changes: []block.FieldChange{
		{Op: block.FieldSet, Field: "content", Value: "**Welcome**"},
		{Op: block.FieldSet, Field: "alignment", Value: "center"},
	}}, http.StatusOK, &form)
	assert.Equal(t, text.ID, form.BlockID)

	var display block.Display
	e.do(t, http.MethodGet, base+"/blocks/"+text.ID+"/render", nil, http.StatusOK, &display)
	assert.Contains(t, string(display.HTML), "<strong>Welcome</strong>")
	assert.Contains(t, string(display.HTML), "align-center")

	var saved block.Document
	e.do(t, http.MethodPost, base+"/save", echoapi.SaveRequest{ExpectedVersion: 1}, http.StatusOK, &saved)
	assert.Equal(t, int64(2), saved.Version)
	require.Len(t, saved.Blocks, 2)
	assert.Equal(t, "cta", saved.Blocks[0].Type)

	var errBody httpErr
	e.do(t, http.MethodPost, base+"/save", echoapi.SaveRequest{ExpectedVersion: 1}, http.StatusConflict, &errBody)
	assert.Equal(t, page.ErrVersionConflict.Error(), errBody.Error)

	e.do(t, http.MethodDelete, base+"/blocks/"+text.ID, nil, http.StatusNoContent, nil)
	e.do(t, http.MethodGet, base, nil, http.StatusOK, &snap)
	assert.Len(t, snap.Blocks, 1)
	assert.True(t, snap.Dirty)

	e.do(t, http.MethodDelete, base, nil, http.StatusNoContent, nil)
	e.do(t, http.MethodGet, base, nil, http.StatusNotFound, nil)
}

func TestSessionAPI_errors(t *testing.T) {
	e := setup(t)
	_, snap := openSession(t, e, testutil.NewBlock("t", block.DefaultConfig(block.TypeText)))
	base := "/v1/sessions/" + snap.SessionID

	runHTTPTests(t, e, []httpTest{
		{name: "unknown session", method: http.MethodGet, path: "/v1/sessions/nope", wantCode: http.StatusNotFound},
		{
			name:     "unknown type",
			method:   http.MethodPost,
			path:     base + "/blocks",
			body:     []byte(`{"type":"poll"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"error":"unknown block type \"poll\""}`),
		},
		{
			name:     "missing type",
			method:   http.MethodPost,
			path:     base + "/blocks",
			body:     []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"type":"this field is required"}`),
		},
		{name: "unknown block", method: http.MethodPut, path: base + "/blocks/nope", body: []byte(`{"config":{}}`), wantCode: http.StatusNotFound},
		{name: "remove unknown block", method: http.MethodDelete, path: base + "/blocks/nope", wantCode: http.StatusNotFound},
		{name: "bad enum", method: http.MethodPut, path: base + "/blocks/t", body: []byte(`{"config":{"alignment":"justify"}}`), wantCode: http.StatusBadRequest},
		{name: "bad config json", method: http.MethodPut, path: base + "/blocks/t", body: []byte(`{"config":{"content":3}}`), wantCode: http.StatusBadRequest},
		{name: "bad direction", method: http.MethodPost, path: base + "/blocks/t/move", body: []byte(`{"direction":"left"}`), wantCode: http.StatusBadRequest},
		{name: "no move", method: http.MethodPost, path: base + "/blocks/t/move", body: []byte(`{}`), wantCode: http.StatusBadRequest},
		{name: "unknown form field", method: http.MethodPatch, path: base + "/blocks/t/form", body: []byte(`{"changes":[{"op":"set","field":"color","value":"red"}]}`), wantCode: http.StatusBadRequest},
		{name: "negative version", method: http.MethodPost, path: base + "/save", body: []byte(`{"expected_version":-1}`), wantCode: http.StatusBadRequest},
	})
}

func TestSessionAPI_upload(t *testing.T) {
	e := setup(t)
	_, snap := openSession(t, e,
		testutil.NewBlock("g", block.GalleryConfig{Title: "Trips", GridView: 2}),
		testutil.NewBlock("t", block.DefaultConfig(block.TypeText)),
	)
	base := "/v1/sessions/" + snap.SessionID

	req, rec := newUploadRequest(t, base+"/blocks/g/uploads/0", "beach.jpg", []byte("jpeg"))
	e.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.svc.Wait(ctx))

	e.do(t, http.MethodGet, base, nil, http.StatusOK, &snap)
	images := snap.Blocks[0].Config.(block.GalleryConfig).Images
	require.Len(t, images, 1)
	assert.True(t, e.assets.Has(images[0]))

	tests := []struct {
		name     string
		path     string
		content  []byte
		wantCode int
	}{
		{name: "no asset slot", path: base + "/blocks/t/uploads/0", content: []byte("x"), wantCode: http.StatusBadRequest},
		{name: "bad slot", path: base + "/blocks/g/uploads/first", content: []byte("x"), wantCode: http.StatusBadRequest},
		{name: "slot past the end", path: base + "/blocks/g/uploads/5", content: []byte("x"), wantCode: http.StatusBadRequest},
		{name: "unknown block", path: base + "/blocks/nope/uploads/0", content: []byte("x"), wantCode: http.StatusNotFound},
		{name: "too large", path: base + "/blocks/g/uploads/1", content: make([]byte, 2<<10), wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newUploadRequest(t, tt.path, "x.png", tt.content)
			e.app.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}
}

func TestSessionAPI_events(t *testing.T) {
	e := setup(t)
	_, snap := openSession(t, e)
	srv := httptest.NewServer(e.app)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/" + snap.SessionID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// the subscription starts with the handler: keep editing until an event comes through
	got := make(chan page.Event, 1)
	go func() {
		var ev page.Event
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if conn.ReadJSON(&ev) == nil {
			got <- ev
		}
		close(got)
	}()

	var ev page.Event
	for received := false; !received; {
		e.do(t, http.MethodPost, "/v1/sessions/"+snap.SessionID+"/blocks", echoapi.AddBlockRequest{Type: "stats"}, http.StatusCreated, nil)
		select {
		case ev, received = <-got:
			require.True(t, received, "no event received")
		case <-time.After(20 * time.Millisecond):
		}
	}
	assert.Equal(t, page.EventBlock, ev.Kind)
	assert.Equal(t, snap.SessionID, ev.SessionID)
	require.NotNil(t, ev.Change)
	assert.Equal(t, block.TypeStats, ev.Change.Type)

	// discarding the session ends the stream
	e.do(t, http.MethodDelete, "/v1/sessions/"+snap.SessionID, nil, http.StatusNoContent, nil)
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if err := conn.ReadJSON(&ev); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err)
			break
		}
	}
}

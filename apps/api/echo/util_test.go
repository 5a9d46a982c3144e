package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/trezcool/vitrine/apps/api/echo"
	"github.com/trezcool/vitrine/core"
	"github.com/trezcool/vitrine/core/page"
	"github.com/trezcool/vitrine/storage/database/inmem"
	"github.com/trezcool/vitrine/tests"
)

type env struct {
	app    *echoapi.Server
	svc    *page.Service
	repo   page.Repository
	assets *testutil.AssetStore
	log    *testutil.Logger
}

func setup(t *testing.T) env {
	db, err := inmemdb.Open()
	require.NoError(t, err)
	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	page.RegisterValidators(validate, translator)

	e := env{
		repo:   inmemdb.NewPageRepository(db),
		assets: testutil.NewAssetStore(),
		log:    &testutil.Logger{},
	}
	e.svc = page.NewService(e.repo, e.assets, e.log, validate)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.svc.Close(ctx)
	})

	conf := &core.Config{AppName: "Vitrine", TestMode: true}
	conf.Server.DisableReqLogs = true
	conf.Assets.MaxUploadSize = 1 << 10
	e.app = echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     e.log,
		PageSvc:    e.svc,
		Validate:   validate,
		Translator: translator,
	})
	return e
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	wantCode int
	wantData []byte
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	return req, httptest.NewRecorder()
}

func newUploadRequest(t *testing.T, path, name string, content []byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req, httptest.NewRecorder()
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

// do serves a request and decodes the response into out, when given.
func (e env) do(t *testing.T, method, path string, body interface{}, wantCode int, out interface{}) {
	t.Helper()
	var data []byte
	if body != nil {
		data = marshallObj(t, body)
	}
	req, rec := newRequest(method, path, data)
	e.app.ServeHTTP(rec, req)
	require.Equal(t, wantCode, rec.Code, rec.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("%s %s: code = %d; want %d (body %s)", tt.method, tt.path, rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData != nil {
		require.JSONEq(t, string(tt.wantData), rec.Body.String())
	}
}

func runHTTPTests(t *testing.T, e env, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			e.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

package logsvc

import (
	"bytes"
	"log"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/vitrine/core"
)

func TestRollbarLogger(t *testing.T) {
	tests := []struct {
		name  string
		debug bool
		log   func(l *RollbarLogger)
		want  []string
		skip  []string
	}{
		{
			name: "warn with error and extras",
			log: func(l *RollbarLogger) {
				l.Warn("asset cleanup failed", errors.New("gone"), map[string]interface{}{"ref": "a.png"})
			},
			want: []string{"WARN asset cleanup failed", "gone", "ref:a.png"},
		},
		{
			name: "request",
			log: func(l *RollbarLogger) {
				l.Error("boom", httptest.NewRequest("POST", "/api/pages", nil))
			},
			want: []string{"ERROR boom", "POST /api/pages"},
		},
		{
			name: "debug off",
			log:  func(l *RollbarLogger) { l.Debug("noise") },
			skip: []string{"noise"},
		},
		{
			name:  "debug on",
			debug: true,
			log:   func(l *RollbarLogger) { l.Debug("noise") },
			want:  []string{"DEBUG noise"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewRollbarLogger(log.New(&buf, "", 0), &core.Config{Debug: tt.debug, TestMode: true})
			tt.log(l)
			for _, s := range tt.want {
				assert.Contains(t, buf.String(), s)
			}
			for _, s := range tt.skip {
				assert.NotContains(t, buf.String(), s)
			}
		})
	}
}

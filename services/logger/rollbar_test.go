package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/user"
)

func newTestLogger(buf *bytes.Buffer) *RollbarLogger {
	return NewRollbarLogger(log.New(buf, "TEST : ", 0), &core.Config{Env: "TEST", TestMode: true})
}

func TestRollbarLogger_prepare(t *testing.T) {
	l := newTestLogger(new(bytes.Buffer))
	err := errors.New("boom")
	extras := map[string]interface{}{"schoolId": "s1"}

	tests := []struct {
		name string
		args []interface{}
		want []interface{}
	}{
		{name: "no args", args: nil, want: []interface{}{"msg"}},
		{name: "error and map", args: []interface{}{err, extras}, want: []interface{}{"msg", err, extras}},
		{name: "user is dropped", args: []interface{}{err, user.User{ID: "u1"}}, want: []interface{}{"msg", err}},
		{
			name: "caller is dropped",
			args: []interface{}{access.Caller{UserID: "u1"}, user.User{ID: "u2"}, extras},
			want: []interface{}{"msg", extras},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, l.prepare("msg", tc.args))
		})
	}
}

func TestRollbarLogger_print(t *testing.T) {
	buf := new(bytes.Buffer)
	l := newTestLogger(buf)

	l.Warn("caching school", errors.New("redis down"))

	out := buf.String()
	assert.Contains(t, out, "TEST : caching school")
	assert.Contains(t, out, "redis down")
}

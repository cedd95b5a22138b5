package rconv2

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/go-cmp/cmp"
)

func TestNewRequestEnvelopeStringBodyVerbatim(t *testing.T) {
	env, err := newRequestEnvelope("tok", "GetInfo", 2, "raw-body")
	if err != nil {
		t.Fatalf("newRequestEnvelope: %v", err)
	}
	want := requestEnvelope{AuthToken: "tok", Version: 2, Name: "GetInfo", ContentBody: "raw-body"}
	if diff := cmp.Diff(want, env); diff != "" {
		t.Errorf("envelope mismatch (-want +got):\n%s", diff)
	}
}

func TestNewRequestEnvelopeStructBodyIsNestedJSON(t *testing.T) {
	type payload struct {
		Message string `json:"message"`
	}
	env, err := newRequestEnvelope("tok", "MessagePlayer", 2, payload{Message: "hi"})
	if err != nil {
		t.Fatalf("newRequestEnvelope: %v", err)
	}
	if want := `{"message":"hi"}`; env.ContentBody != want {
		t.Errorf("content body = %q, want %q\nfull envelope: %s", env.ContentBody, want, spew.Sdump(env))
	}
}

func TestNewRequestEnvelopeNilBodyIsEmptyString(t *testing.T) {
	env, err := newRequestEnvelope("tok", "ServerConnect", 2, nil)
	if err != nil {
		t.Fatalf("newRequestEnvelope: %v", err)
	}
	if env.ContentBody != "" {
		t.Errorf("content body = %q, want empty", env.ContentBody)
	}
}

func TestUnmarshalResponseEnvelopeRoundTrips(t *testing.T) {
	raw := []byte(`{"name":"GetInfo","version":2,"statusCode":200,"statusMessage":"OK","contentBody":"hello"}`)
	got, err := unmarshalResponseEnvelope(raw)
	if err != nil {
		t.Fatalf("unmarshalResponseEnvelope: %v", err)
	}
	want := responseEnvelope{Name: "GetInfo", Version: 2, StatusCode: StatusOK, StatusMessage: "OK", ContentBody: "hello"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("envelope mismatch (-want +got):\n%s\nraw dump: %s", diff, spew.Sdump(got))
	}
}

func TestUnmarshalResponseEnvelopeRejectsGarbage(t *testing.T) {
	if _, err := unmarshalResponseEnvelope([]byte("not json")); err == nil {
		t.Fatal("expected an error for unparseable body")
	}
}

func TestResponseEnvelopeCommandError(t *testing.T) {
	cases := []struct {
		name string
		env  responseEnvelope
		want *CommandError
	}{
		{
			name: "ok status has no error",
			env:  responseEnvelope{StatusCode: StatusOK},
			want: nil,
		},
		{
			name: "bad request becomes CommandError",
			env:  responseEnvelope{StatusCode: StatusBadRequest, StatusMessage: "unknown command"},
			want: &CommandError{StatusCode: int(StatusBadRequest), StatusMessage: "unknown command"},
		},
		{
			name: "internal error becomes CommandError",
			env:  responseEnvelope{StatusCode: StatusInternal, StatusMessage: "boom"},
			want: &CommandError{StatusCode: int(StatusInternal), StatusMessage: "boom"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.env.commandError()
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("commandError() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNextRequestIDIsMonotonic(t *testing.T) {
	a := nextRequestID()
	b := nextRequestID()
	if b <= a {
		t.Fatalf("nextRequestID not monotonic: %d then %d", a, b)
	}
}

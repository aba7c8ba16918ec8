package reliability

import "testing"

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestClassifyStatus(t *testing.T) {
	cases := map[int]string{
		400: "client",
		413: "client",
		429: "retryable",
		503: "retryable",
		501: "fatal",
		302: "fatal",
	}
	for code, want := range cases {
		if got := ClassifyStatus(code); got != want {
			t.Fatalf("ClassifyStatus(%d) = %q, want %q", code, got, want)
		}
	}
}

package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/require"
)

func zipOf(t *testing.T, members map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range members {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func sessionArchive(t *testing.T) []byte {
	doc := []byte(`<?xml version="1.0"?><Document>` + strings.Repeat("<PricRpt/>", 50) + `</Document>`)
	inner := zipOf(t, map[string][]byte{"BVBG186_250923.xml": doc, "readme.txt": []byte("x")})
	return zipOf(t, map[string][]byte{"SPRE250923.zip": inner})
}

func quickRetry() Option {
	return WithBackOff(func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
	})
}

func TestDownload(t *testing.T) {
	archive := sessionArchive(t)

	cases := []struct {
		name      string
		responses []func(http.ResponseWriter)
		wantErr   error
		wantHits  int32
	}{
		{
			name:      "ok",
			responses: []func(http.ResponseWriter){okWith(archive)},
			wantHits:  1,
		},
		{
			name:      "retries server errors",
			responses: []func(http.ResponseWriter){status(http.StatusBadGateway), okWith(archive)},
			wantHits:  2,
		},
		{
			name:      "not found is final",
			responses: []func(http.ResponseWriter){status(http.StatusNotFound)},
			wantErr:   &StatusError{},
			wantHits:  1,
		},
		{
			name:      "html page is not an archive",
			responses: []func(http.ResponseWriter){okWith([]byte(strings.Repeat("<html>sem pregão</html>", 20)))},
			wantErr:   ErrNotArchive,
			wantHits:  1,
		},
		{
			name:      "short zip-looking body",
			responses: []func(http.ResponseWriter){okWith([]byte("PK\x03\x04"))},
			wantErr:   ErrNotArchive,
			wantHits:  1,
		},
		{
			name:      "gives up after retries",
			responses: []func(http.ResponseWriter){status(500), status(500), status(500), status(500)},
			wantErr:   &StatusError{},
			wantHits:  3,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			var hits int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := atomic.AddInt32(&hits, 1)
				c.responses[int(n)-1](w)
			}))
			defer srv.Close()

			body, err := NewFetcher(quickRetry()).Download(context.Background(), srv.URL+"/download?filelist=SPRE250923.zip")
			require.Equal(t, c.wantHits, atomic.LoadInt32(&hits))
			if c.wantErr == nil {
				require.NoError(t, err)
				require.Equal(t, archive, body)
				return
			}
			var se *StatusError
			if errors.As(c.wantErr, &se) {
				require.ErrorAs(t, err, &se)
				return
			}
			require.ErrorIs(t, err, c.wantErr)
		})
	}
}

func TestDownload_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFetcher(quickRetry()).Download(ctx, srv.URL)
	require.Error(t, err)
}

func TestUnpack(t *testing.T) {
	docs, err := Unpack(sessionArchive(t))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "BVBG186_250923.xml", docs[0].Name)
	require.True(t, bytes.HasPrefix(docs[0].Data, []byte("<?xml")))

	flat := zipOf(t, map[string][]byte{"dir/b.xml": []byte("<b/>"), "a.XML": []byte("<a/>")})
	docs, err = Unpack(flat)
	require.NoError(t, err)
	require.Equal(t, "a.XML", docs[0].Name)
	require.Equal(t, "b.xml", docs[1].Name)

	_, err = Unpack(zipOf(t, map[string][]byte{"readme.txt": []byte("x")}))
	require.ErrorIs(t, err, ErrNoDocument)

	_, err = Unpack([]byte("not a zip"))
	require.ErrorIs(t, err, ErrNotArchive)
}

func TestSelect(t *testing.T) {
	docs := []Document{
		{Name: "BVBG087_250923.xml", Data: []byte("long long long")},
		{Name: "bvbg186_250923.xml", Data: []byte("short")},
	}
	d, err := Select(docs, "BVBG186")
	require.NoError(t, err)
	require.Equal(t, "bvbg186_250923.xml", d.Name)

	d, err = Select(docs, "OTHER")
	require.NoError(t, err)
	require.Equal(t, "BVBG087_250923.xml", d.Name)

	_, err = Select(nil, "BVBG186")
	require.ErrorIs(t, err, ErrNoDocument)
}

func okWith(body []byte) func(http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/zip")
		w.Write(body)
	}
}

func status(code int) func(http.ResponseWriter) {
	return func(w http.ResponseWriter) { w.WriteHeader(code) }
}

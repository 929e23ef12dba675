package fetch

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/KonishchevDmitry/newsfeedd/internal/util"
	"github.com/KonishchevDmitry/newsfeedd/pkg/feed"
	"github.com/KonishchevDmitry/newsfeedd/pkg/source"
	"github.com/KonishchevDmitry/newsfeedd/pkg/test/testutil"
)

var testFeed = heredoc.Doc(`
	<?xml version="1.0" encoding="UTF-8"?>
	<rss version="2.0">
		<channel>
			<title>Feed title</title>
			<link>http://example.com/</link>
			<description>Feed description</description>
			<item>
				<title>Item 1</title>
				<link>http://example.com/item1</link>
				<description>&lt;p&gt;Item 1 &lt;b&gt;description&lt;/b&gt;&lt;/p&gt;</description>
				<pubDate>Sat, 04 Apr 2015 07:00:13 GMT</pubDate>
			</item>
			<item>
				<title>Item 2</title>
				<link>http://example.com/item2</link>
			</item>
			<item>
				<description>Item without a title</description>
			</item>
		</channel>
	</rss>
`)

func serve(t *testing.T, status int, contentType string, body string) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestFetch(t *testing.T) {
	t.Parallel()

	server := serve(t, http.StatusOK, "application/rss+xml", testFeed)

	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test"})
	ctx := WithContext(testutil.Context(t), histogram)

	result, err := NewFetcher().Parse(ctx, Request{URL: server.URL, Encoding: "UTF-8"})
	require.NoError(t, err)

	require.Equal(t, "Feed title", result.Title)
	require.Len(t, result.Items, 2)

	item := result.Items[0]
	require.Equal(t, "Item 1", item.Title)
	require.Equal(t, "http://example.com/item1", item.URL)
	require.Equal(t, "Item 1 description", item.Description.MustGet())
	require.True(t, time.Date(2015, 4, 4, 7, 0, 13, 0, time.UTC).Equal(item.PublishedAt.MustGet()))

	item = result.Items[1]
	require.Equal(t, "Item 2", item.Title)
	require.True(t, item.PublishedAt.IsAbsent())
	require.True(t, item.Description.IsAbsent())
}

func TestFetchCustomEncoding(t *testing.T) {
	t.Parallel()

	// "Café" in ISO-8859-1
	body := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n" +
		"<rss version=\"2.0\"><channel><title>Caf\xe9</title>" +
		"<item><title>Caf\xe9 item</title><link>http://example.com/</link></item>" +
		"</channel></rss>"
	server := serve(t, http.StatusOK, "text/xml", body)

	result, err := NewFetcher().Parse(testutil.Context(t), Request{URL: server.URL, Encoding: "ISO-8859-1"})
	require.NoError(t, err)
	require.Equal(t, "Café", result.Title)
	require.Equal(t, "Café item", result.Items[0].Title)
}

func TestFetchRelativeLinks(t *testing.T) {
	t.Parallel()

	server := serve(t, http.StatusOK, "application/rss+xml", heredoc.Doc(`
		<?xml version="1.0" encoding="UTF-8"?>
		<rss version="2.0">
			<channel>
				<title>Feed title</title>
				<item>
					<title>Relative</title>
					<link>/articles/1</link>
				</item>
				<item>
					<title>Absolute</title>
					<link>https://example.com/articles/2</link>
				</item>
			</channel>
		</rss>
	`))

	result, err := NewFetcher().Parse(testutil.Context(t), Request{URL: server.URL + "/rss.xml"})
	require.NoError(t, err)
	require.Len(t, result.Items, 2)
	require.Equal(t, server.URL+"/articles/1", result.Items[0].URL)
	require.Equal(t, "https://example.com/articles/2", result.Items[1].URL)
}

func TestFetchErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		status    int
		body      string
		encoding  string
		kind      feed.ErrorKind
		temporary bool
	}{{
		name:   "not-found",
		status: http.StatusNotFound,
		kind:   feed.ClientError,
	}, {
		name:      "unavailable",
		status:    http.StatusServiceUnavailable,
		kind:      feed.ServerError,
		temporary: true,
	}, {
		name:   "not-modified",
		status: http.StatusNotModified,
		kind:   feed.UnknownFetchError,
	}, {
		name:   "not-a-feed",
		status: http.StatusOK,
		body:   "<html><body>Not a feed</body></html>",
		kind:   feed.ParseError,
	}, {
		name:     "unknown-encoding",
		status:   http.StatusOK,
		body:     testFeed,
		encoding: "NO-SUCH-ENCODING",
		kind:     feed.ParseError,
	}}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			server := serve(t, testCase.status, "application/rss+xml", testCase.body)

			_, err := NewFetcher().Parse(testutil.Context(t), Request{URL: server.URL, Encoding: testCase.encoding})
			require.Error(t, err)
			require.Equal(t, testCase.kind, Classify(err))
			require.Equal(t, testCase.temporary, util.IsTemporaryError(err))
		})
	}
}

func TestFetchConnectionRefused(t *testing.T) {
	t.Parallel()

	socket, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	address := fmt.Sprintf("http://%s/", socket.Addr())
	require.NoError(t, socket.Close())

	_, err = NewFetcher().Parse(testutil.Context(t), Request{URL: address})
	require.Error(t, err)
	require.Equal(t, feed.ConnectionRefused, Classify(err))
	require.True(t, util.IsTemporaryError(err))
}

func TestFetchThroughProxy(t *testing.T) {
	t.Parallel()

	requested := make(chan string, 1)
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested <- r.URL.String()
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = io.WriteString(w, testFeed)
	}))
	defer proxy.Close()

	proxyURL, err := url.Parse(proxy.URL)
	require.NoError(t, err)

	address := "http://feed.invalid/rss.xml"
	result, err := NewFetcher(Proxy(proxyURL)).Parse(testutil.Context(t), Request{URL: address, UseProxy: true})
	require.NoError(t, err)
	require.Equal(t, address, <-requested)
	require.Len(t, result.Items, 2)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		kind feed.ErrorKind
	}{{
		name: "malformed",
		err:  &source.MalformedError{Address: "not a url"},
		kind: feed.MalformedSource,
	}, {
		name: "no-address",
		err:  &source.MalformedError{Reason: source.ErrNoAddress},
		kind: feed.InvalidSource,
	}, {
		name: "dns",
		err: fmt.Errorf("failed to fetch: %w", &url.Error{Op: "Get", URL: "http://feed.invalid/", Err: &net.OpError{
			Op: "dial", Net: "tcp", Err: &net.DNSError{Err: "no such host", Name: "feed.invalid", IsNotFound: true},
		}}),
		kind: feed.SourceNotFound,
	}, {
		name: "connection-refused",
		err: util.MakeTemporaryError(&net.OpError{
			Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED),
		}),
		kind: feed.ConnectionRefused,
	}, {
		name: "client",
		err:  &StatusError{StatusCode: http.StatusForbidden, Status: "403 Forbidden"},
		kind: feed.ClientError,
	}, {
		name: "server",
		err:  util.MakeTemporaryError(&StatusError{StatusCode: http.StatusBadGateway, Status: "502 Bad Gateway"}),
		kind: feed.ServerError,
	}, {
		name: "parse",
		err:  &ParseError{Err: errors.New("unexpected EOF")},
		kind: feed.ParseError,
	}, {
		name: "unknown",
		err:  errors.New("something went wrong"),
		kind: feed.UnknownFetchError,
	}}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			require.Equal(t, testCase.kind, Classify(testCase.err))
		})
	}
}

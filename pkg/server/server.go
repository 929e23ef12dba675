package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"

	logging "github.com/KonishchevDmitry/go-easy-logging"
	"github.com/ggicci/httpin"
	"github.com/ggicci/httpin/integration"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/KonishchevDmitry/newsfeedd/internal/bridge"
	"github.com/KonishchevDmitry/newsfeedd/pkg/feed"
	"github.com/KonishchevDmitry/newsfeedd/pkg/image"
	"github.com/KonishchevDmitry/newsfeedd/pkg/rss"
	"github.com/KonishchevDmitry/newsfeedd/pkg/source"
)

func init() {
	integration.UseGorillaMux("path", mux.Vars)
}

type Snapshotter interface {
	Snapshot() feed.Snapshot
}

type Server struct {
	router      *mux.Router
	bridge      *bridge.Bridge
	snapshotter Snapshotter
	qr          *image.QRGenerator
	collector   prometheus.Collector

	hub      *hub
	upgrader websocket.Upgrader
	handlers sync.WaitGroup
}

func New(bridge *bridge.Bridge, snapshotter Snapshotter, qr *image.QRGenerator, collector prometheus.Collector) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		bridge:      bridge,
		snapshotter: snapshotter,
		qr:          qr,
		collector:   collector,

		hub: newHub(),
		upgrader: websocket.Upgrader{
			// Consumers are served from their own origins
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	s.register("/socket", s.serveSocket)
	s.register("/feeds.rss", s.serveFeed)
	s.register("/qr", s.serveQRCode)
	s.router.NotFoundHandler = http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		logging.L(request.Context()).Debugf("%s %s: not found.", request.Method, request.RequestURI)
		http.NotFound(writer, request)
	})

	return s
}

func (s *Server) Serve(ctx context.Context, feedsAddr string, metricsAddr string) error {
	var waitGroup sync.WaitGroup
	defer waitGroup.Wait()

	// Hijacked WebSocket connections aren't tracked by http.Server
	defer s.handlers.Wait()

	if s.collector != nil {
		if err := prometheus.DefaultRegisterer.Register(s.collector); err != nil {
			return err
		}
	}

	//nolint:gosec
	feedsServer := http.Server{
		Addr:     feedsAddr,
		Handler:  s.router,
		ErrorLog: log.New(newHTTPLogger(logging.L(ctx)), "Feeds HTTP server: ", 0),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	defer func() {
		if err := feedsServer.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logging.L(ctx).Errorf("Failed to shutdown feeds HTTP server: %s.", err)
		}
	}()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorLog: newPrometheusLogger(logging.L(ctx)),
	}))

	//nolint:gosec
	metricsServer := http.Server{
		Addr:     metricsAddr,
		Handler:  metricsMux,
		ErrorLog: log.New(newHTTPLogger(logging.L(ctx)), "Metrics HTTP server: ", 0),
	}
	defer func() {
		if err := metricsServer.Shutdown(context.WithoutCancel(ctx)); err != nil {
			logging.L(ctx).Errorf("Failed to shutdown metrics HTTP server: %s.", err)
		}
	}()

	logging.L(ctx).Infof("Listening on %s (feeds) and %s (metrics)...", feedsAddr, metricsAddr)

	feedsSocket, err := net.Listen("tcp", feedsAddr)
	if err != nil {
		return err
	}
	closeFeedsSocket := true
	defer func() {
		if closeFeedsSocket {
			if err := feedsSocket.Close(); err != nil {
				logging.L(ctx).Errorf("Failed to close a socket: %s.", err)
			}
		}
	}()

	metricsSocket, err := net.Listen("tcp", metricsAddr)
	if err != nil {
		return err
	}
	closeMetricsSocket := true
	defer func() {
		if closeMetricsSocket {
			if err := metricsSocket.Close(); err != nil {
				logging.L(ctx).Errorf("Failed to close a socket: %s.", err)
			}
		}
	}()

	serverCrashed := make(chan error, 2)

	closeFeedsSocket = false
	waitGroup.Go(func() {
		if err := feedsServer.Serve(feedsSocket); !errors.Is(err, http.ErrServerClosed) {
			serverCrashed <- fmt.Errorf("feeds HTTP server has crashed: %w", err)
		}
	})

	closeMetricsSocket = false
	waitGroup.Go(func() {
		if err := metricsServer.Serve(metricsSocket); !errors.Is(err, http.ErrServerClosed) {
			serverCrashed <- fmt.Errorf("metrics HTTP server has crashed: %w", err)
		}
	})

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()

	waitGroup.Go(func() {
		s.hub.run(hubCtx, s.bridge.Events())
	})

	select {
	case err := <-serverCrashed:
		return err
	case <-ctx.Done():
		logging.L(ctx).Info("Stopping HTTP servers...")
		return nil
	}
}

func (s *Server) serveSocket(ctx context.Context, writer http.ResponseWriter, request *http.Request) {
	connection, err := s.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		logging.L(ctx).Warnf("Failed to accept WebSocket connection from %s: %s.", request.RemoteAddr, err)
		return
	}

	client := newClient(connection)
	if !s.hub.add(ctx, client) {
		_ = connection.Close()
		return
	}

	var waitGroup sync.WaitGroup
	waitGroup.Go(func() {
		client.write(ctx)
	})

	client.read(ctx, s.bridge)
	s.hub.remove(client)
	waitGroup.Wait()
}

type feedParams struct {
	Source string `in:"query=source"`
}

func (s *Server) serveFeed(ctx context.Context, writer http.ResponseWriter, request *http.Request) {
	params, err := httpin.Decode[feedParams](request)
	if err != nil {
		logging.L(ctx).Warnf("Invalid feed parameters: %s.", err)
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}

	snapshot := s.snapshotter.Snapshot()
	title, items := "News", snapshot.Merge()

	if params.Source != "" {
		var ok bool
		if items, ok = snapshot[source.Key(params.Source)]; !ok {
			http.NotFound(writer, request)
			return
		}

		title = params.Source
		if len(items) != 0 && items[0].SourceTitle != "" {
			title = items[0].SourceTitle
		}
	}

	data, err := rss.Generate(rss.Render(title, requestURL(request), fmt.Sprintf("%s news feed", title), items))
	if err != nil {
		logging.L(ctx).Errorf("Failed to generate RSS feed: %s.", err)
		http.Error(writer, "failed to generate RSS feed", http.StatusInternalServerError)
		return
	}

	writer.Header().Set("Content-Type", rss.ContentType)
	if _, err := writer.Write(data); err != nil {
		logging.L(ctx).Debugf("Failed to send the feed: %s.", err)
	}
}

func requestURL(request *http.Request) string {
	scheme := "http"
	if request.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s", scheme, request.Host, request.URL.RequestURI())
}

type qrParams struct {
	URL string `in:"query=url;required"`
}

func (s *Server) serveQRCode(ctx context.Context, writer http.ResponseWriter, request *http.Request) {
	params, err := httpin.Decode[qrParams](request)
	if err != nil {
		logging.L(ctx).Warnf("Invalid QR code parameters: %s.", err)
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}

	data, err := s.qr.PNG(params.URL)
	if err != nil {
		logging.L(ctx).Errorf("Failed to generate QR code for %s (%s): %s.", params.URL, feed.ImageGenerationError, err)
		http.Error(writer, "failed to generate QR code", http.StatusInternalServerError)
		return
	}

	writer.Header().Set("Content-Type", "image/png")
	if _, err := writer.Write(data); err != nil {
		logging.L(ctx).Debugf("Failed to send QR code: %s.", err)
	}
}

func (s *Server) register(path string, handler func(ctx context.Context, writer http.ResponseWriter, request *http.Request)) {
	s.router.HandleFunc(path, func(writer http.ResponseWriter, request *http.Request) {
		s.handlers.Add(1)
		defer s.handlers.Done()

		ctx := request.Context()
		logging.L(ctx).Debugf("%s %s...", request.Method, request.RequestURI)
		handler(ctx, writer, request)
		logging.L(ctx).Debugf("%s %s finished.", request.Method, request.RequestURI)
	}).Methods(http.MethodGet)
}

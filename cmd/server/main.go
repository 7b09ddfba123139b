package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/SyedDaiam9101/cropdoc/internal/api"
	"github.com/SyedDaiam9101/cropdoc/internal/cache"
	"github.com/SyedDaiam9101/cropdoc/internal/classifier"
	"github.com/SyedDaiam9101/cropdoc/internal/config"
	"github.com/SyedDaiam9101/cropdoc/internal/coordinator"
	"github.com/SyedDaiam9101/cropdoc/internal/handler"
	"github.com/SyedDaiam9101/cropdoc/internal/inference"
	"github.com/SyedDaiam9101/cropdoc/internal/metrics"
	"github.com/SyedDaiam9101/cropdoc/internal/middleware"
	"github.com/SyedDaiam9101/cropdoc/internal/model"
)

const serviceName = "cropdoc"

func main() {
	// Parse command-line flags
	port := flag.Int("port", 0, "gRPC server port (default: 50051)")
	metricsPort := flag.Int("metrics", 0, "HTTP port for metrics, health and uploads (default: 9100)")
	imageModel := flag.String("image-model", "", "Path to the leaf image ONNX model")
	textModel := flag.String("text-model", "", "Path to the symptom text ONNX model")
	manifestPath := flag.String("manifest", "", "Path to the model bundle manifest (YAML)")
	redisAddr := flag.String("redis", "", "Redis address for the shared result cache (disabled when empty)")
	configFile := flag.String("config", "", "Path to config file (optional)")
	useMock := flag.Bool("mock", false, "Use mock inference engine (for testing)")
	flag.Parse()

	v := config.New()
	if err := config.ReadFile(v, *configFile); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if f := v.ConfigFileUsed(); f != "" {
		log.Printf("Using config file: %s", f)
	}

	// Override with flags if provided
	if *port > 0 {
		v.Set("port", *port)
	}
	if *metricsPort > 0 {
		v.Set("metrics_port", *metricsPort)
	}
	if *imageModel != "" {
		v.Set("image_model", *imageModel)
	}
	if *textModel != "" {
		v.Set("text_model", *textModel)
	}
	if *manifestPath != "" {
		v.Set("manifest", *manifestPath)
	}
	if *redisAddr != "" {
		v.Set("redis", *redisAddr)
	}
	if *useMock {
		v.Set("use_mock_inference", true)
	}

	cfg, err := config.Decode(v)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Printf("Starting %s...", serviceName)
	log.Printf("Configuration: port=%d, metrics=%d, manifest=%s, image_model=%s, text_model=%s, redis=%s, mock=%v, otel=%v",
		cfg.Port, cfg.MetricsPort, cfg.Manifest, cfg.ImageModel, cfg.TextModel, cfg.Redis, cfg.UseMockInference, cfg.OTELEnabled)

	// Initialize OpenTelemetry tracer
	var tracerShutdown func(context.Context) error
	if cfg.OTELEnabled {
		tracerShutdown, err = initTracer(cfg.OTELEndpoint)
		if err != nil {
			log.Printf("Warning: Failed to initialize tracer: %v", err)
		} else {
			log.Printf("OpenTelemetry tracing enabled (endpoint: %s)", cfg.OTELEndpoint)
		}
	}

	manifest, engine, err := loadBundle(cfg)
	if err != nil {
		log.Fatalf("Failed to load model bundle: %v", err)
	}
	log.Printf("Model bundle %s loaded: %d labels", manifest.Version, manifest.NumClasses())

	// Initialize Redis result store (optional)
	var opts []coordinator.Option
	if cfg.Redis != "" {
		log.Printf("Connecting to Redis at %s...", cfg.Redis)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		store, err := cache.New(ctx, cfg.Redis)
		cancel()
		if err != nil {
			log.Printf("Warning: Failed to connect to Redis: %v (continuing without shared cache)", err)
		} else {
			defer store.Close()
			opts = append(opts, coordinator.WithStore(store, cfg.RedisTTL))
			log.Printf("Redis connected successfully")
		}
	}

	coord, err := coordinator.New(cfg.Coordinator(), opts...)
	if err != nil {
		log.Fatalf("Failed to create coordinator: %v", err)
	}
	clf, err := classifier.New(manifest, engine, cfg.Fusion, coord)
	if err != nil {
		engine.Close()
		log.Fatalf("Failed to create classifier: %v", err)
	}
	defer clf.Close()

	// Create gRPC health server
	healthServer := health.NewServer()

	// Start HTTP server for metrics, health checks and uploads
	httpServer := startHTTPServer(cfg.MetricsPort, healthServer, handler.NewHTTP(clf))

	// Build interceptor chain
	interceptors := []grpc.UnaryServerInterceptor{
		middleware.UnaryRequestIDInterceptor(),
		middleware.UnaryLoggingInterceptor(),
		middleware.UnaryMetricsInterceptor(),
	}

	// Add OpenTelemetry interceptor if enabled
	if cfg.OTELEnabled {
		interceptors = append(interceptors, otelgrpc.UnaryServerInterceptor())
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(interceptors...),
	)

	api.RegisterDiagnosisServer(grpcServer, handler.New(clf))
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	addr := fmt.Sprintf(":%d", cfg.Port)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", addr, err)
	}

	healthServer.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING) // Overall health
	metrics.SetHealthy()

	// SIGHUP reloads the model bundle; SIGINT/SIGTERM shut down
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	// Serve returns as soon as GracefulStop does; main waits here for the rest of shutdown.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		for sig := range sigChan {
			if sig == syscall.SIGHUP {
				reload(cfg, clf)
				continue
			}

			log.Printf("Received signal %v, shutting down gracefully...", sig)

			healthServer.SetServingStatus(api.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
			healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			metrics.SetUnhealthy()

			// Give time for load balancers to detect unhealthy status
			time.Sleep(5 * time.Second)

			grpcServer.GracefulStop()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := httpServer.Shutdown(ctx); err != nil {
				log.Printf("HTTP server shutdown error: %v", err)
			}
			if tracerShutdown != nil {
				if err := tracerShutdown(ctx); err != nil {
					log.Printf("Tracer shutdown error: %v", err)
				}
			}
			cancel()
			return
		}
	}()

	log.Printf("gRPC server listening on %s", addr)
	log.Printf("%s is ready to accept requests", serviceName)

	if err := grpcServer.Serve(lis); err != nil {
		log.Fatalf("Failed to serve: %v", err)
	}
	<-shutdownDone

	log.Printf("Server shutdown complete")
}

// loadBundle reads the manifest and opens the inference engine it describes. In mock mode a
// missing manifest falls back to a built-in demo label set.
func loadBundle(cfg *config.Config) (*model.Manifest, inference.InferenceEngine, error) {
	manifest, err := model.LoadManifest(cfg.Manifest)
	if err != nil {
		if !cfg.UseMockInference {
			return nil, nil, err
		}
		log.Printf("Warning: %v (using demo manifest)", err)
		manifest = demoManifest()
	}

	if cfg.UseMockInference {
		log.Printf("Using mock inference engine")
		return manifest, inference.NewMock(manifest.NumClasses()), nil
	}

	log.Printf("Loading ONNX models (image=%q, text=%q)...", cfg.ImageModel, cfg.TextModel)
	engine, err := inference.New(inference.Options{
		LibraryPath: cfg.ORTLibrary,
		ImageModel:  cfg.ImageModel,
		TextModel:   cfg.TextModel,
		Manifest:    manifest,
	})
	if err != nil {
		return nil, nil, err
	}
	return manifest, engine, nil
}

func demoManifest() *model.Manifest {
	m := model.DefaultManifest()
	m.Version = "demo"
	m.Labels = []model.Label{
		{Name: "healthy", Description: "No visible disease."},
		{Name: "early_blight", Description: "Brown concentric lesions on older leaves."},
		{Name: "late_blight", Description: "Water-soaked lesions that spread quickly in humid weather."},
		{Name: "leaf_mold", Description: "Yellow patches on the upper leaf, olive mold underneath."},
	}
	m.Vocabulary = []string{"yellow", "brown", "spots", "wilting", "mold", "lesions", "curling", "dry"}
	return &m
}

// reload swaps in the bundle currently on disk, keeping the old one when anything fails.
func reload(cfg *config.Config, clf *classifier.Classifier) {
	log.Printf("Received SIGHUP, reloading model bundle...")
	manifest, engine, err := loadBundle(cfg)
	if err != nil {
		log.Printf("Reload aborted: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout+5*time.Second)
	defer cancel()
	if err := clf.Reload(ctx, manifest, engine); err != nil {
		log.Printf("Reload failed: %v", err)
	}
}

func startHTTPServer(port int, healthServer *health.Server, classify http.Handler) *http.Server {
	mux := http.NewServeMux()

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Photo/symptom upload endpoint
	mux.Handle("/v1/classify", middleware.RequestIDHandler(classify))

	// Health check endpoint
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp, err := healthServer.Check(r.Context(), &healthpb.HealthCheckRequest{})
		if err != nil || resp.Status != healthpb.HealthCheckResponse_SERVING {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Service Unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Readiness reflects the diagnosis service specifically
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		resp, err := healthServer.Check(r.Context(), &healthpb.HealthCheckRequest{Service: api.ServiceName})
		if err != nil || resp.Status != healthpb.HealthCheckResponse_SERVING {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Not Ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Ready"))
	})

	addr := fmt.Sprintf(":%d", port)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s (metrics, health, uploads)", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	return server
}

func initTracer(endpoint string) (func(context.Context) error, error) {
	if endpoint != "" {
		// OTLP export is not wired; spans go to stdout regardless of the endpoint
		log.Printf("Note: Using stdout trace exporter (OTLP endpoint: %s)", endpoint)
	}
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Domenick1991/deskbooking/api"
	"github.com/Domenick1991/deskbooking/config"
	"github.com/Domenick1991/deskbooking/internal/service/booking"
	"github.com/Domenick1991/deskbooking/internal/service/group"
	"github.com/gin-gonic/gin"
	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	httpSwagger "github.com/swaggo/http-swagger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const serviceName = "deskbooking"

type Servers struct {
	grpcServer *grpc.Server
	httpServer *http.Server
	health     *health.Server
	healthConn *grpc.ClientConn
}

// Run starts the gRPC health server and the HTTP server (REST API, gateway health probe and
// swagger) and blocks until the context is canceled or a server fails.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger, bookingSvc booking.BookingUseCase, groupSvc group.GroupUseCase) error {
	s, err := newServers(cfg, logger, bookingSvc, groupSvc)
	if err != nil {
		return err
	}
	defer s.healthConn.Close()

	errCh := make(chan error, 2)

	lis, err := net.Listen("tcp", cfg.GRPC.Address)
	if err != nil {
		return fmt.Errorf("listen gRPC %s: %w", cfg.GRPC.Address, err)
	}
	go func() { errCh <- s.grpcServer.Serve(lis) }()

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.health.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	logger.Info("servers started", "http", cfg.HTTP.Address, "grpc", cfg.GRPC.Address)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.health.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.grpcServer.GracefulStop()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}

func newServers(cfg *config.Config, logger *slog.Logger, bookingSvc booking.BookingUseCase, groupSvc group.GroupUseCase) (*Servers, error) {
	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)

	conn, err := grpc.NewClient(cfg.GRPC.Address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial gRPC health: %w", err)
	}
	gateway := runtime.NewServeMux(runtime.WithHealthzEndpoint(healthpb.NewHealthClient(conn)))

	handler := http.NewServeMux()
	handler.Handle("/api/", NewRouter(cfg, logger, bookingSvc, groupSvc))
	handler.Handle("/healthz", gateway)

	if cfg.HTTP.SwaggerDir != "" {
		fs := http.FileServer(http.Dir(cfg.HTTP.SwaggerDir))
		handler.Handle("/swagger/", http.StripPrefix("/swagger/", fs))
		handler.Handle("/docs/", httpSwagger.Handler(httpSwagger.URL("/swagger/deskbooking.swagger.json")))
	}

	return &Servers{
		grpcServer: grpcSrv,
		httpServer: &http.Server{
			Addr:              cfg.HTTP.Address,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		health:     healthSrv,
		healthConn: conn,
	}, nil
}

// NewRouter builds the authenticated REST API.
func NewRouter(cfg *config.Config, logger *slog.Logger, bookingSvc booking.BookingUseCase, groupSvc group.GroupUseCase) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/api")
	v1.Use(api.JWTAuth(cfg.Auth.JWTSecret), api.RequestLogger(logger))

	api.NewBookingHandler(bookingSvc).Register(v1.Group("/bookings"))
	api.NewSlotHandler(bookingSvc).Register(v1.Group("/slots"))
	api.NewGroupHandler(groupSvc).Register(v1.Group("/groups"))
	return r
}

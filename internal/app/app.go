package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/orderdesk/internal/cache"
	"github.com/Additional-Code/orderdesk/internal/config"
	"github.com/Additional-Code/orderdesk/internal/logger"
	"github.com/Additional-Code/orderdesk/internal/notification"
	"github.com/Additional-Code/orderdesk/internal/objectstore"
	"github.com/Additional-Code/orderdesk/internal/observability"
	"github.com/Additional-Code/orderdesk/internal/queue"
	"github.com/Additional-Code/orderdesk/internal/redisclient"
	repositoryorder "github.com/Additional-Code/orderdesk/internal/repository/order"
	grpcserver "github.com/Additional-Code/orderdesk/internal/server/grpc"
	httpserver "github.com/Additional-Code/orderdesk/internal/server/http"
	servicefile "github.com/Additional-Code/orderdesk/internal/service/file"
	serviceorder "github.com/Additional-Code/orderdesk/internal/service/order"
	transporthttp "github.com/Additional-Code/orderdesk/internal/transport/http"
	"github.com/Additional-Code/orderdesk/internal/worker"
	workerorder "github.com/Additional-Code/orderdesk/internal/worker/order"
)

// Base provides configuration, logging, telemetry and the shared redis client.
var Base = fx.Options(
	config.Module,
	logger.Module,
	observability.Module,
	fx.Invoke(func(*observability.Manager) {}),
	redisclient.Module,
)

// Core adds the order store, collaborators and services.
var Core = fx.Options(
	Base,
	repositoryorder.Module,
	cache.Module,
	objectstore.Module,
	notification.Module,
	serviceorder.Module,
	servicefile.Module,
)

// Server wires the HTTP and gRPC servers and the HTTP handlers.
var Server = fx.Options(
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Poller wires the queue poller and its handlers.
var Poller = fx.Options(
	queue.Module,
	worker.Module,
	workerorder.Module,
)

// Worker runs only the queue poller.
var Worker = fx.Options(
	Base,
	Poller,
)

// Module is the default application wiring: HTTP API plus the queue poller.
var Module = fx.Options(
	Core,
	Server,
	Poller,
)

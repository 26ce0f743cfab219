package http

import (
	"go.uber.org/fx"

	filetransport "github.com/Additional-Code/orderdesk/internal/transport/http/file"
	ordertransport "github.com/Additional-Code/orderdesk/internal/transport/http/order"
)

// Module aggregates all HTTP transport handlers.
var Module = fx.Options(
	ordertransport.Module,
	filetransport.Module,
)

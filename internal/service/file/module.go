package file

import "go.uber.org/fx"

// Module provides the file upload service to Fx.
var Module = fx.Provide(NewService)

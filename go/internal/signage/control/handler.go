package control

import (
	"net/http"

	"connectrpc.com/connect"
)

// ServiceName is the fully-qualified name of the control service.
const ServiceName = "signage.control.v1.ControlService"

// Procedure paths of the control service RPCs.
const (
	PauseProcedure       = "/" + ServiceName + "/Pause"
	ResumeProcedure      = "/" + ServiceName + "/Resume"
	PushContentProcedure = "/" + ServiceName + "/PushContent"
	FullResyncProcedure  = "/" + ServiceName + "/FullResync"
)

// NewHandler builds the HTTP handler for svc and returns the path prefix to
// mount it on.
func NewHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(PauseProcedure, connect.NewUnaryHandler(PauseProcedure, svc.Pause, opts...))
	mux.Handle(ResumeProcedure, connect.NewUnaryHandler(ResumeProcedure, svc.Resume, opts...))
	mux.Handle(PushContentProcedure, connect.NewUnaryHandler(PushContentProcedure, svc.PushContent, opts...))
	mux.Handle(FullResyncProcedure, connect.NewUnaryHandler(FullResyncProcedure, svc.FullResync, opts...))
	return "/" + ServiceName + "/", mux
}

// Package server serves the control RPC of a job manager.
package server

import (
	"net/rpc"

	"github.com/nrwiersma/worker/jobs"
	"github.com/nrwiersma/worker/pkg/memcodec"
)

// Registry represents a job registry.
type Registry interface {
	FindAll(sel *jobs.Selector) []*jobs.Job
	CancelJob(id int) bool
}

// Server is an RPC server.
type Server struct {
	reg Registry

	server *rpc.Server
}

// New returns an RPC server.
func New(reg Registry) *Server {
	srv := &Server{
		reg:    reg,
		server: rpc.NewServer(),
	}

	_ = srv.server.Register(&Jobs{srv: srv})

	return srv
}

// Call makes an in memory call to the server.
func (s *Server) Call(method string, req, resp interface{}) error {
	return memcodec.Serve(s.server, method, req, resp)
}

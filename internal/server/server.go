// Package server exposes a threads.Service over HTTP JSON and gRPC.
package server

import (
	"strconv"

	"github.com/alfredjeanlab/threads/internal/logger"
	"github.com/alfredjeanlab/threads/internal/model"
	"github.com/alfredjeanlab/threads/internal/threads"
)

// ThreadsServer serves one threads.Service on both transports.
type ThreadsServer struct {
	svc *threads.Service
	log *logger.Logger
}

func NewThreadsServer(svc *threads.Service, log *logger.Logger) *ThreadsServer {
	return &ThreadsServer{svc: svc, log: log.With("component", "server")}
}

// listParams are the transport-neutral paging and shape parameters. Page
// and Items are nil when the caller left them out; an explicit zero is kept
// so validation can reject it.
type listParams struct {
	Page  *int   `json:"page"`
	Items *int   `json:"items"`
	Depth string `json:"depth"`
	Order string `json:"order"`
}

func (p listParams) pageRequest() model.PageRequest {
	req := model.PageRequest{Page: 1, Items: model.DefaultItemsPerPage}
	if p.Page != nil {
		req.Page = *p.Page
	}
	if p.Items != nil {
		req.Items = *p.Items
	}
	return req
}

func (p listParams) depth() (model.Depth, error) {
	return model.ParseDepth(p.Depth)
}

func (p listParams) order() model.Order {
	return model.Order(p.Order)
}

// parseInt reads an optional integer parameter; empty is nil.
func parseInt(field, v string) (*int, error) {
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, inputError(field, "must be an integer")
	}
	return &n, nil
}

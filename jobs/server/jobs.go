package server

import (
	"github.com/hashicorp/go-bexpr"
	"github.com/nrwiersma/worker/jobs"
	"github.com/nrwiersma/worker/jobs/rpc"
)

// Jobs serves RPC calls about jobs.
type Jobs struct {
	srv *Server
}

// List lists the registered jobs.
func (j *Jobs) List(req *rpc.ListRequest, resp *rpc.ListResponse) error {
	all, err := j.list(req.Filter)
	if err != nil {
		return err
	}

	resp.Jobs = all
	return nil
}

// Cancel cancels the job with the given id, or the jobs matching the filter.
func (j *Jobs) Cancel(req *rpc.CancelRequest, resp *rpc.CancelResponse) error {
	if req.Filter == "" {
		if j.srv.reg.CancelJob(req.ID) {
			resp.Cancelled = 1
		}
		return nil
	}

	matched, err := j.list(req.Filter)
	if err != nil {
		return err
	}

	for _, job := range matched {
		if j.srv.reg.CancelJob(job.ID) {
			resp.Cancelled++
		}
	}
	return nil
}

func (j *Jobs) list(expr string) ([]rpc.Job, error) {
	all := []rpc.Job{}
	filter, err := bexpr.CreateFilter(expr, nil, all)
	if err != nil {
		return nil, err
	}

	for _, job := range j.srv.reg.FindAll(jobs.Select()) {
		info := job.Info()
		all = append(all, rpc.Job{
			ID:       info.ID,
			Name:     info.Name,
			Group:    info.Group,
			Priority: info.Priority,
			Status:   info.Status,
			Tags:     info.Tags,
			Flags:    info.Flags,
			Paused:   info.Paused,
		})
	}

	if expr == "" {
		return all, nil
	}

	filtered, err := filter.Execute(all)
	if err != nil {
		return nil, err
	}
	return filtered.([]rpc.Job), nil
}

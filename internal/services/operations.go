package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/osvaldoandrade/elqbulk/pkg/domain"
)

// OperationHandler runs one bulk operation to completion.
type OperationHandler func(ctx context.Context, rows []domain.Row, target domain.SubmissionTarget, opts domain.SubmissionOptions, progress ProgressFunc) (*domain.JobOutput, error)

type OperationInfo struct {
	Name        domain.Operation `json:"name"`
	Description string           `json:"description"`
}

// OperationRegistry maps operation names to handlers. It is built once at
// startup and handed to the job service and the CLI.
type OperationRegistry struct {
	handlers map[domain.Operation]OperationHandler
	info     map[domain.Operation]OperationInfo
}

func NewOperationRegistry(bulk BulkSubmissionService) *OperationRegistry {
	r := &OperationRegistry{
		handlers: make(map[domain.Operation]OperationHandler),
		info:     make(map[domain.Operation]OperationInfo),
	}
	r.Register(OperationInfo{Name: domain.OpSubmit, Description: "Submit every CSV row to the form endpoint"}, bulk.Run)
	r.Register(OperationInfo{Name: domain.OpValidate, Description: "Build requests without sending them"},
		func(ctx context.Context, rows []domain.Row, target domain.SubmissionTarget, opts domain.SubmissionOptions, progress ProgressFunc) (*domain.JobOutput, error) {
			opts.ValidateOnly = true
			return bulk.Run(ctx, rows, target, opts, progress)
		})
	return r
}

func (r *OperationRegistry) Register(info OperationInfo, h OperationHandler) {
	r.handlers[info.Name] = h
	r.info[info.Name] = info
}

func (r *OperationRegistry) Lookup(op domain.Operation) (OperationHandler, error) {
	if op == "" {
		op = domain.OpSubmit
	}
	h, ok := r.handlers[op]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}
	return h, nil
}

func (r *OperationRegistry) Names() []domain.Operation {
	names := make([]domain.Operation, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

func (r *OperationRegistry) Describe() []OperationInfo {
	out := make([]OperationInfo, 0, len(r.info))
	for _, n := range r.Names() {
		out = append(out, r.info[n])
	}
	return out
}

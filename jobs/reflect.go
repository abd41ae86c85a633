package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"reflect"
)

// payload is the persisted representation of a Job.
type payload struct {
	JobData json.RawMessage `json:"jobData"`
	Ctx     payloadCtx      `json:"ctx"`
}

type payloadCtx struct {
	Carrier map[string]string `json:"carrier,omitempty"`
	UserID  string            `json:"userID,omitempty"`
}

// jobTypeOf returns the type of a Job, see JobType.
func jobTypeOf(job reflect.Type) (string, error) {
	if job.Kind() != reflect.Struct || job.Name() == "" {
		return "", ErrInvalidJobType
	}

	jobTypeInterface := reflect.TypeOf((*JobType)(nil)).Elem()

	if job.Implements(jobTypeInterface) {
		if t, ok := reflect.New(job).Elem().Interface().(JobType); ok && t.JobType() != "" {
			return t.JobType(), nil
		}
	}

	if reflect.PointerTo(job).Implements(jobTypeInterface) {
		if t, ok := reflect.New(job).Interface().(JobType); ok && t.JobType() != "" {
			return t.JobType(), nil
		}
	}

	return path.Base(job.PkgPath()) + "." + job.Name(), nil
}

// TypeOf returns the job type used to register and process job.
func TypeOf(job Job) (string, error) {
	if job == nil {
		return "", ErrInvalidJobType
	}

	return jobTypeOf(reflect.TypeOf(job))
}

// flatten returns each Job of job. Valid are a struct and a non-empty slice of structs.
func flatten(job Job) ([]any, error) {
	if job == nil {
		return nil, ErrInvalidJobType
	}

	val := reflect.ValueOf(job)

	switch val.Kind() { //nolint:exhaustive // all other kinds are invalid
	case reflect.Struct:
		return []any{job}, nil
	case reflect.Slice:
		if val.Len() == 0 {
			return nil, ErrInvalidJobType
		}

		jobs := make([]any, 0, val.Len())

		for i := range val.Len() {
			elem := val.Index(i)
			if elem.Kind() == reflect.Interface {
				elem = elem.Elem()
			}

			if elem.Kind() != reflect.Struct {
				return nil, ErrInvalidJobType
			}

			jobs = append(jobs, elem.Interface())
		}

		return jobs, nil
	}

	return nil, ErrInvalidJobType
}

func isValidJobFunc(f JobFunc) bool {
	if f == nil {
		return false
	}

	fn := reflect.TypeOf(f)

	if fn.Kind() != reflect.Func || fn.NumIn() != 2 || fn.NumOut() != 1 {
		return false
	}

	ctxType := reflect.TypeOf((*context.Context)(nil)).Elem()
	if fn.In(0) != ctxType {
		return false
	}

	if fn.In(1).Kind() != reflect.Struct {
		return false
	}

	errType := reflect.TypeOf((*error)(nil)).Elem()

	return fn.Out(0) == errType
}

// callJobFunc decodes data into the job type of jf and calls it.
func callJobFunc(ctx context.Context, jf JobFunc, data []byte) error {
	paramType := reflect.TypeOf(jf).In(1)

	job := reflect.New(paramType)
	if len(data) > 0 {
		if err := json.Unmarshal(data, job.Interface()); err != nil {
			return fmt.Errorf("%w: could not unmarshal job data: %v", ErrJobFuncFailed, err) //nolint:errorlint,lll // prevent err in api
		}
	}

	return invoke(ctx, jf, job.Elem())
}

func invoke(ctx context.Context, jf JobFunc, job reflect.Value) error {
	vals := reflect.ValueOf(jf).Call([]reflect.Value{reflect.ValueOf(ctx), job})

	if jobErr, ok := vals[0].Interface().(error); ok && jobErr != nil {
		return fmt.Errorf("%w: %w", ErrJobFuncFailed, jobErr)
	}

	return nil
}

// reflectParam returns the type of the Job a valid JobFunc processes.
func reflectParam(jf JobFunc) reflect.Type {
	return reflect.TypeOf(jf).In(1)
}
